package main

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/realmauth/auth/authctx"
	"github.com/kbukum/realmauth/auth/oidc"
	"github.com/kbukum/realmauth/authz"
	"github.com/kbukum/realmauth/cache"
	apperrors "github.com/kbukum/realmauth/errors"
	"github.com/kbukum/realmauth/logger"
	"github.com/kbukum/realmauth/realm"
	"github.com/kbukum/realmauth/refresh"
	"github.com/kbukum/realmauth/server"
	"github.com/kbukum/realmauth/server/middleware"
	"github.com/kbukum/realmauth/session"
)

const finishLoginPath = "/securityRealm/finishLogin"

type handlers struct {
	coordinator *realm.Coordinator
	cache       *cache.Cache
	interceptor *refresh.Interceptor
	rootURL     string
	log         *logger.Logger
}

// loginForm accepts the classic form field names and JSON.
type loginForm struct {
	Username string `form:"j_username" json:"username" binding:"required"`
	Password string `form:"j_password" json:"password" binding:"required"`
}

type cacheSettings struct {
	Enabled    bool `json:"enabled"`
	TTLSeconds int  `json:"ttl_seconds" binding:"gte=0"`
	Size       int  `json:"size" binding:"gte=1"`
}

type identityView struct {
	Name          string   `json:"name"`
	Roles         []string `json:"roles"`
	Authenticated bool     `json:"authenticated"`
}

func viewOf(id *realm.Identity) identityView {
	return identityView{Name: id.Name, Roles: id.Roles, Authenticated: id.Authenticated}
}

type sessionView struct {
	identityView
	Tokens *session.Snapshot `json:"tokens,omitempty"`
}

// refreshSettings is a partial update; nil fields keep their value.
type refreshSettings struct {
	ValidateEachRequest       *bool `json:"validate_each_request"`
	RespectAccessTokenTimeout *bool `json:"respect_access_token_timeout"`
}

type refreshView struct {
	ValidateEachRequest       bool     `json:"validate_each_request"`
	RespectAccessTokenTimeout bool     `json:"respect_access_token_timeout"`
	SkipPaths                 []string `json:"skip_paths"`
	LogoutURL                 string   `json:"logout_url"`
}

func refreshViewOf(p refresh.Policy) refreshView {
	return refreshView{
		ValidateEachRequest:       p.ValidateEachRequest,
		RespectAccessTokenTimeout: p.RespectAccessTokenTimeout,
		SkipPaths:                 p.SkipPaths,
		LogoutURL:                 p.LogoutURL,
	}
}

func (h *handlers) register(r *gin.Engine, a *app, checker authz.Checker) {
	r.Use(session.Gin(a.store, a.cfg.Session.Cookie), a.interceptor.Gin())

	loginLimit := middleware.RateLimit(middleware.RateLimitConfig{
		Name:              "login",
		RequestsPerMinute: a.cfg.Server.LoginRateLimit,
		Logger:            h.log,
	})
	r.POST("/login", loginLimit, h.login)
	r.GET("/commenceLogin", h.commenceLogin)
	r.GET(finishLoginPath, loginLimit, h.finishLogin)
	r.GET("/logout", h.logout)
	r.GET("/whoami", middleware.RequireIdentity(), h.whoami)

	r.GET("/users/:name", middleware.RequirePermission(checker, permUsersRead), h.loadUser)
	r.GET("/groups/:name", middleware.RequirePermission(checker, permUsersRead), h.lookupGroup)
	r.GET("/admin/cache", middleware.RequirePermission(checker, permCacheRead), h.cacheStats)
	r.PUT("/admin/cache", middleware.RequirePermission(checker, permCacheConfigure), h.configureCache)
	r.GET("/admin/refresh", middleware.RequirePermission(checker, permRefreshRead), h.refreshPolicy)
	r.PUT("/admin/refresh", middleware.RequirePermission(checker, permRefreshConfigure), h.configureRefresh)

	r.GET("/api/whoami", middleware.Bearer(a.realm.Verifier()), h.bearerWhoami)
}

func mustSession(c *gin.Context) *session.Session {
	sess, _ := session.FromContext(c.Request.Context())
	return sess
}

func (h *handlers) login(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		server.RespondWithError(c, apperrors.InvalidInput("", "username and password are required").WithCause(err))
		return
	}

	id, ledger, err := h.coordinator.PasswordLogin(c.Request.Context(), form.Username, form.Password)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	sess := mustSession(c)
	if old := sess.Ledger(); old != nil {
		old.Discard()
	}
	sess.Authenticate(id, ledger)
	server.RespondOK(c, viewOf(id))
}

func (h *handlers) commenceLogin(c *gin.Context) {
	from := c.Query("from")
	if from == "" {
		from = c.GetHeader("Referer")
	}
	target, err := h.coordinator.CommenceLogin(mustSession(c), h.callbackURL(c), localTarget(from))
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	c.Redirect(http.StatusFound, target)
}

func (h *handlers) finishLogin(c *gin.Context) {
	if e := c.Query("error"); e != "" {
		server.RespondWithError(c, apperrors.AuthenticationFailed(apperrors.InvalidCredentials(nil)).WithDetail("provider_error", e))
		return
	}
	_, referer, err := h.coordinator.FinishLogin(c.Request.Context(), mustSession(c), c.Query("code"), c.Query("state"), h.callbackURL(c))
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	if referer == "" {
		referer = h.rootPath()
	}
	c.Redirect(http.StatusFound, referer)
}

func (h *handlers) logout(c *gin.Context) {
	h.coordinator.EndSession(c.Request.Context(), mustSession(c))
	c.Redirect(http.StatusFound, h.rootPath())
}

func (h *handlers) whoami(c *gin.Context) {
	sess := mustSession(c)
	out := sessionView{identityView: viewOf(sess.Identity())}
	if ledger := sess.Ledger(); ledger != nil {
		snap := ledger.Snapshot()
		out.Tokens = &snap
	}
	server.RespondOK(c, out)
}

func (h *handlers) bearerWhoami(c *gin.Context) {
	claims := authctx.MustGet[*oidc.Claims](c.Request.Context())
	server.RespondOK(c, gin.H{
		"name":       claims.Username(),
		"subject":    claims.Subject,
		"expires_at": claims.ExpiresAt,
	})
}

func (h *handlers) loadUser(c *gin.Context) {
	id, err := h.coordinator.LoadUser(c.Request.Context(), c.Param("name"))
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, viewOf(id))
}

func (h *handlers) lookupGroup(c *gin.Context) {
	if err := h.coordinator.LookupGroup(c.Request.Context(), c.Param("name")); err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondNoContent(c)
}

func (h *handlers) cacheStats(c *gin.Context) {
	server.RespondOK(c, h.cache.Stats())
}

func (h *handlers) configureCache(c *gin.Context) {
	var in cacheSettings
	if err := c.ShouldBindJSON(&in); err != nil {
		server.RespondWithError(c, apperrors.InvalidInput("", "ttl_seconds must be >= 0 and size >= 1").WithCause(err))
		return
	}
	h.coordinator.ConfigureCache(in.Enabled, in.TTLSeconds, in.Size)
	h.log.WithContext(c.Request.Context()).Info("cache reconfigured", logger.Fields(
		"enabled", in.Enabled, "ttl_seconds", in.TTLSeconds, "size", in.Size,
	))
	server.RespondOK(c, h.cache.Stats())
}

func (h *handlers) refreshPolicy(c *gin.Context) {
	server.RespondOK(c, refreshViewOf(h.interceptor.Policy()))
}

func (h *handlers) configureRefresh(c *gin.Context) {
	var in refreshSettings
	if err := c.ShouldBindJSON(&in); err != nil {
		server.RespondWithError(c, apperrors.InvalidInput("", "malformed refresh settings").WithCause(err))
		return
	}
	p := h.interceptor.Policy()
	if in.ValidateEachRequest != nil {
		p.ValidateEachRequest = *in.ValidateEachRequest
	}
	if in.RespectAccessTokenTimeout != nil {
		p.RespectAccessTokenTimeout = *in.RespectAccessTokenTimeout
	}
	h.interceptor.UpdatePolicy(p)
	h.log.WithContext(c.Request.Context()).Info("refresh policy updated", logger.Fields(
		"validate_each_request", p.ValidateEachRequest,
		"respect_access_token_timeout", p.RespectAccessTokenTimeout,
	))
	server.RespondOK(c, refreshViewOf(p))
}

// callbackURL is the absolute finishLogin URL registered with the provider.
// A relative root URL is resolved against the request's host.
func (h *handlers) callbackURL(c *gin.Context) string {
	root, err := url.Parse(h.rootURL)
	if err != nil || !root.IsAbs() {
		scheme := "http"
		if c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
			scheme = "https"
		}
		root = &url.URL{Scheme: scheme, Host: c.Request.Host, Path: h.rootPath()}
	}
	return strings.TrimSuffix(root.String(), "/") + finishLoginPath
}

func (h *handlers) rootPath() string {
	root, err := url.Parse(h.rootURL)
	if err != nil || root.Path == "" {
		return "/"
	}
	return root.Path
}

// localTarget keeps only same-origin paths so the post-login redirect can
// not be pointed at another site.
func localTarget(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || raw == "" {
		return ""
	}
	if !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(u.Path, "//") {
		return ""
	}
	out := &url.URL{Path: u.Path, RawQuery: u.RawQuery}
	return out.String()
}
