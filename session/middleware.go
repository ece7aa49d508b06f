package session

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/realmauth/auth/authctx"
	"github.com/kbukum/realmauth/logger"
)

// DefaultCookieName is the session cookie name.
const DefaultCookieName = "REALMAUTH_SESSION"

// CookieConfig configures the session cookie.
type CookieConfig struct {
	Name   string `mapstructure:"name"`
	Path   string `mapstructure:"path"`
	Secure bool   `mapstructure:"secure"`
}

// ApplyDefaults fills unset fields.
func (c *CookieConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = DefaultCookieName
	}
	if c.Path == "" {
		c.Path = "/"
	}
}

// WithSession stores sess in ctx.
func WithSession(ctx context.Context, sess *Session) context.Context {
	ctx = authctx.Set(ctx, sess)
	return logger.ContextWithSessionID(ctx, logger.Redact(sess.ID))
}

// FromContext returns the request's session.
func FromContext(ctx context.Context) (*Session, bool) {
	sess, ok := authctx.Get[*Session](ctx)
	return sess, ok && sess != nil
}

// Middleware binds a session to every request, creating one and setting
// the cookie when the request carries no live session.
func Middleware(store *Store, cfg CookieConfig) func(http.Handler) http.Handler {
	cfg.ApplyDefaults()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := bind(store, cfg, w, r)
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// Gin is Middleware for gin routers.
func Gin(store *Store, cfg CookieConfig) gin.HandlerFunc {
	cfg.ApplyDefaults()
	return func(c *gin.Context) {
		sess := bind(store, cfg, c.Writer, c.Request)
		c.Request = c.Request.WithContext(WithSession(c.Request.Context(), sess))
		c.Next()
	}
}

func bind(store *Store, cfg CookieConfig, w http.ResponseWriter, r *http.Request) *Session {
	if ck, err := r.Cookie(cfg.Name); err == nil {
		if sess, ok := store.Get(ck.Value); ok {
			return sess
		}
	}
	sess := store.Create()
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Name,
		Value:    sess.ID,
		Path:     cfg.Path,
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sess
}
