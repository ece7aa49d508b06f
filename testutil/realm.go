package testutil

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kbukum/realmauth/component"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Endpoint names used by Hits and FailWith.
const (
	EndpointDiscovery    = "discovery"
	EndpointJWKS         = "jwks"
	EndpointToken        = "token"
	EndpointLogout       = "logout"
	EndpointUsers        = "users"
	EndpointRoleMappings = "role-mappings"
	EndpointRoles        = "roles"
)

// User is a directory entry in the fake realm. An empty role name is
// served as a mapping without a name.
type User struct {
	ID       string
	Username string
	Password string
	Roles    []string
}

// Realm is an in-process identity provider that speaks the subset of the
// Keycloak protocol and admin API realmauth uses. Tokens are RS256 JWTs
// signed with a per-realm key published at the JWKS endpoint.
type Realm struct {
	RealmName    string
	ClientID     string
	ClientSecret string

	// AccessTTL and RefreshTTL are advertised in token responses.
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Now stamps issued tokens. Defaults to time.Now.
	Now func() time.Time

	mu          sync.Mutex
	ts          *httptest.Server
	key         *rsa.PrivateKey
	kid         string
	users       map[string]*User
	codes       map[string]string
	refresh     map[string]string
	issued      map[string]bool
	hits        map[string]int
	failures    map[string]int
	omitIDToken bool
}

var _ Fixture = (*Realm)(nil)

// NewRealm creates a fake realm with a confidential client "realmauth".
// Call Start (or T(t).Setup) before use.
func NewRealm(name string) *Realm {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(fmt.Sprintf("testutil: generate realm key: %v", err))
	}
	r := &Realm{
		RealmName:    name,
		ClientID:     "realmauth",
		ClientSecret: "s3cr3t",
		AccessTTL:    5 * time.Minute,
		RefreshTTL:   30 * time.Minute,
		Now:          time.Now,
		key:          key,
		kid:          uuid.NewString(),
	}
	r.resetState()
	return r
}

// --- component.Component ---

func (r *Realm) Name() string { return "realm-test" }

// Start serves the realm on a loopback listener.
func (r *Realm) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ts != nil {
		return nil
	}
	r.ts = httptest.NewServer(r.routes())
	return nil
}

// Stop closes the listener.
func (r *Realm) Stop(ctx context.Context) error {
	r.mu.Lock()
	ts := r.ts
	r.ts = nil
	r.mu.Unlock()
	if ts != nil {
		ts.Close()
	}
	return nil
}

// Health reports healthy while the listener is up.
func (r *Realm) Health(ctx context.Context) component.Health {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ts == nil {
		return component.Health{Name: r.Name(), Status: component.StatusUnhealthy, Message: "not started"}
	}
	return component.Health{Name: r.Name(), Status: component.StatusHealthy}
}

// Reset forgets users, issued tokens, hit counts and injected failures.
func (r *Realm) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetState()
	return nil
}

func (r *Realm) resetState() {
	r.users = make(map[string]*User)
	r.codes = make(map[string]string)
	r.refresh = make(map[string]string)
	r.issued = make(map[string]bool)
	r.hits = make(map[string]int)
	r.failures = make(map[string]int)
	r.omitIDToken = false
}

// --- setup ---

// URL is the provider base URL, suitable for auth_server_url.
func (r *Realm) URL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ts == nil {
		return ""
	}
	return r.ts.URL
}

// Issuer is the realm issuer URL.
func (r *Realm) Issuer() string {
	return r.URL() + "/realms/" + r.RealmName
}

// AddUser registers a user with a password and realm roles.
func (r *Realm) AddUser(username, password string, roles ...string) *User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := &User{ID: uuid.NewString(), Username: username, Password: password, Roles: roles}
	r.users[username] = u
	return u
}

// IssueCode returns a single-use authorization code for username, as if
// the user had just signed in on the provider's login page.
func (r *Realm) IssueCode(username string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	code := uuid.NewString()
	r.codes[code] = username
	return code
}

// OmitIDToken makes token responses leave out id_token.
func (r *Realm) OmitIDToken(omit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.omitIDToken = omit
}

// FailWith makes endpoint answer status until FailWith(endpoint, 0).
func (r *Realm) FailWith(endpoint string, status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if status == 0 {
		delete(r.failures, endpoint)
		return
	}
	r.failures[endpoint] = status
}

// Hits returns how many requests endpoint has received. Token grants are
// also counted per grant type as "token:<grant_type>".
func (r *Realm) Hits(endpoint string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits[endpoint]
}

// AdminGets is the number of admin API requests received.
func (r *Realm) AdminGets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits[EndpointUsers] + r.hits[EndpointRoleMappings] + r.hits[EndpointRoles]
}

// Sign signs arbitrary claims with the realm key.
func (r *Realm) Sign(claims jwt.MapClaims) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = r.kid
	s, err := tok.SignedString(r.key)
	if err != nil {
		panic(fmt.Sprintf("testutil: sign token: %v", err))
	}
	return s
}

// AccessToken mints an access token for username as the token endpoint would.
func (r *Realm) AccessToken(username string) string {
	r.mu.Lock()
	u := r.users[username]
	r.mu.Unlock()
	if u == nil {
		u = &User{ID: uuid.NewString(), Username: username}
	}
	tok := r.Sign(r.accessClaims(u))
	r.mu.Lock()
	r.issued[tok] = true
	r.mu.Unlock()
	return tok
}

func (r *Realm) accessClaims(u *User) jwt.MapClaims {
	now := r.Now()
	roles := make([]any, 0, len(u.Roles))
	for _, role := range u.Roles {
		if role != "" {
			roles = append(roles, role)
		}
	}
	return jwt.MapClaims{
		"iss":                r.Issuer(),
		"sub":                u.ID,
		"aud":                "account",
		"azp":                r.ClientID,
		"typ":                "Bearer",
		"iat":                now.Unix(),
		"exp":                now.Add(r.AccessTTL).Unix(),
		"jti":                uuid.NewString(),
		"preferred_username": u.Username,
		"realm_access":       map[string]any{"roles": roles},
	}
}

func (r *Realm) idClaims(u *User) jwt.MapClaims {
	now := r.Now()
	return jwt.MapClaims{
		"iss":                r.Issuer(),
		"sub":                u.ID,
		"aud":                r.ClientID,
		"azp":                r.ClientID,
		"typ":                "ID",
		"iat":                now.Unix(),
		"exp":                now.Add(r.AccessTTL).Unix(),
		"preferred_username": u.Username,
	}
}

// --- HTTP ---

func (r *Realm) routes() http.Handler {
	g := gin.New()
	g.Use(r.count)

	realm := g.Group("/realms/:realm")
	realm.GET("/.well-known/openid-configuration", r.discovery)
	realm.GET("/protocol/openid-connect/certs", r.jwks)
	realm.POST("/protocol/openid-connect/token", r.token)
	realm.POST("/protocol/openid-connect/logout", r.logout)

	admin := g.Group("/admin/realms/:realm", r.requireAdmin)
	admin.GET("/users", r.findUsers)
	admin.GET("/users/:id/role-mappings", r.roleMappings)
	admin.GET("/roles", r.realmRoles)
	return g
}

func endpointFor(path string) string {
	switch {
	case strings.HasSuffix(path, "/openid-configuration"):
		return EndpointDiscovery
	case strings.HasSuffix(path, "/certs"):
		return EndpointJWKS
	case strings.HasSuffix(path, "/token"):
		return EndpointToken
	case strings.HasSuffix(path, "/logout"):
		return EndpointLogout
	case strings.HasSuffix(path, "/role-mappings"):
		return EndpointRoleMappings
	case strings.HasSuffix(path, "/users"):
		return EndpointUsers
	case strings.HasSuffix(path, "/roles"):
		return EndpointRoles
	default:
		return path
	}
}

// count records the hit and applies any injected failure.
func (r *Realm) count(c *gin.Context) {
	if c.Param("realm") != "" && c.Param("realm") != r.RealmName {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	ep := endpointFor(c.Request.URL.Path)

	r.mu.Lock()
	r.hits[ep]++
	if ep == EndpointToken {
		r.hits[EndpointToken+":"+c.PostForm("grant_type")]++
	}
	status := r.failures[ep]
	r.mu.Unlock()

	if status != 0 {
		c.AbortWithStatusJSON(status, gin.H{"error": "injected_failure"})
		return
	}
	c.Next()
}

func (r *Realm) discovery(c *gin.Context) {
	issuer := r.Issuer()
	protocol := issuer + "/protocol/openid-connect"
	c.JSON(http.StatusOK, gin.H{
		"issuer":                 issuer,
		"authorization_endpoint": protocol + "/auth",
		"token_endpoint":         protocol + "/token",
		"end_session_endpoint":   protocol + "/logout",
		"jwks_uri":               protocol + "/certs",
	})
}

func (r *Realm) jwks(c *gin.Context) {
	pub := r.key.PublicKey
	c.JSON(http.StatusOK, gin.H{"keys": []gin.H{{
		"kty": "RSA",
		"kid": r.kid,
		"use": "sig",
		"alg": "RS256",
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}})
}

func (r *Realm) token(c *gin.Context) {
	if c.PostForm("client_id") != r.ClientID || c.PostForm("client_secret") != r.ClientSecret {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_client"})
		return
	}

	var u *User
	withRefresh := true
	r.mu.Lock()
	switch c.PostForm("grant_type") {
	case "password":
		if cand := r.users[c.PostForm("username")]; cand != nil && cand.Password == c.PostForm("password") {
			u = cand
		}
	case "authorization_code":
		if name, ok := r.codes[c.PostForm("code")]; ok {
			delete(r.codes, c.PostForm("code"))
			u = r.users[name]
		}
	case "refresh_token":
		if name, ok := r.refresh[c.PostForm("refresh_token")]; ok {
			delete(r.refresh, c.PostForm("refresh_token"))
			u = r.users[name]
		}
	case "client_credentials":
		u = &User{ID: uuid.NewString(), Username: "service-account-" + r.ClientID}
		withRefresh = false
	}
	omitID := r.omitIDToken
	r.mu.Unlock()

	if u == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_grant", "error_description": "Invalid user credentials"})
		return
	}

	access := r.Sign(r.accessClaims(u))
	body := gin.H{
		"access_token": access,
		"token_type":   "Bearer",
		"expires_in":   int(r.AccessTTL / time.Second),
		"scope":        "openid profile email",
	}
	if withRefresh {
		rt := uuid.NewString()
		body["refresh_token"] = rt
		body["refresh_expires_in"] = int(r.RefreshTTL / time.Second)
		if !omitID {
			body["id_token"] = r.Sign(r.idClaims(u))
		}
		r.mu.Lock()
		r.refresh[rt] = u.Username
		r.mu.Unlock()
	} else {
		body["refresh_expires_in"] = 0
	}

	r.mu.Lock()
	r.issued[access] = true
	r.mu.Unlock()
	c.JSON(http.StatusOK, body)
}

func (r *Realm) logout(c *gin.Context) {
	r.mu.Lock()
	delete(r.refresh, c.PostForm("refresh_token"))
	r.mu.Unlock()
	c.Status(http.StatusNoContent)
}

func (r *Realm) requireAdmin(c *gin.Context) {
	bearer := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	r.mu.Lock()
	ok := r.issued[bearer]
	r.mu.Unlock()
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "HTTP 401 Unauthorized"})
		return
	}
	c.Next()
}

func (r *Realm) findUsers(c *gin.Context) {
	name := c.Query("username")
	out := []gin.H{}
	r.mu.Lock()
	if u := r.users[name]; u != nil && c.Query("exact") == "true" {
		out = append(out, gin.H{"id": u.ID, "username": u.Username, "enabled": true})
	}
	r.mu.Unlock()
	c.JSON(http.StatusOK, out)
}

func (r *Realm) roleMappings(c *gin.Context) {
	var u *User
	r.mu.Lock()
	for _, cand := range r.users {
		if cand.ID == c.Param("id") {
			u = cand
		}
	}
	r.mu.Unlock()
	if u == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	mappings := make([]gin.H, 0, len(u.Roles))
	for _, role := range u.Roles {
		m := gin.H{"id": uuid.NewString(), "composite": false}
		if role != "" {
			m["name"] = role
		}
		mappings = append(mappings, m)
	}
	c.JSON(http.StatusOK, gin.H{"realmMappings": mappings})
}

func (r *Realm) realmRoles(c *gin.Context) {
	seen := map[string]bool{}
	out := []gin.H{}
	r.mu.Lock()
	for _, u := range r.users {
		for _, role := range u.Roles {
			if role != "" && !seen[role] {
				seen[role] = true
				out = append(out, gin.H{"id": uuid.NewString(), "name": role})
			}
		}
	}
	r.mu.Unlock()
	c.JSON(http.StatusOK, out)
}
