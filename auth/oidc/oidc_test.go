package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kbukum/realmauth/errors"
	"github.com/kbukum/realmauth/httpclient"
	"github.com/kbukum/realmauth/testutil"
)

func newRealm(t *testing.T) (*testutil.Realm, Config, *httpclient.Client) {
	t.Helper()
	realm := testutil.NewRealm("acme")
	testutil.T(t).Setup(realm)
	realm.AddUser("alice", "wonderland", "admin", "dev")

	cfg := Config{
		AuthServerURL: realm.URL() + "/",
		Realm:         realm.RealmName,
		ClientID:      realm.ClientID,
		ClientSecret:  realm.ClientSecret,
	}
	hc, err := httpclient.New(httpclient.Config{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return realm, cfg, hc
}

func newProvider(t *testing.T, cfg Config, hc *httpclient.Client) *Provider {
	t.Helper()
	p, err := NewProvider(cfg, hc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return p
}

func TestConfig_Endpoints(t *testing.T) {
	cfg := Config{AuthServerURL: "https://sso.example.com/", Realm: "acme", ClientID: "app"}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ep := cfg.Endpoints()
	tests := map[string]string{
		ep.Issuer:        "https://sso.example.com/realms/acme",
		ep.Authorization: "https://sso.example.com/realms/acme/protocol/openid-connect/auth",
		ep.Token:         "https://sso.example.com/realms/acme/protocol/openid-connect/token",
		ep.Logout:        "https://sso.example.com/realms/acme/protocol/openid-connect/logout",
		ep.Discovery:     "https://sso.example.com/realms/acme/.well-known/openid-configuration",
		ep.Admin:         "https://sso.example.com/admin/realms/acme",
	}
	for got, want := range tests {
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
	if cfg.SupportedSigningAlgs[0] != "RS256" {
		t.Errorf("expected default alg RS256, got %v", cfg.SupportedSigningAlgs)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing url", Config{Realm: "r", ClientID: "c"}},
		{"bad url", Config{AuthServerURL: "not a url", Realm: "r", ClientID: "c"}},
		{"missing realm", Config{AuthServerURL: "https://sso", ClientID: "c"}},
		{"missing client", Config{AuthServerURL: "https://sso", Realm: "r"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestProvider_AuthURL(t *testing.T) {
	cfg := Config{AuthServerURL: "https://sso.example.com", Realm: "acme", ClientID: "app", IDPHint: "github"}
	p, err := NewProvider(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw := p.AuthURL("https://ci.example.com/securityRealm/finishLogin", "xyz")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Path != "/realms/acme/protocol/openid-connect/auth" {
		t.Errorf("unexpected path %q", u.Path)
	}
	q := u.Query()
	want := map[string]string{
		"client_id":     "app",
		"redirect_uri":  "https://ci.example.com/securityRealm/finishLogin",
		"state":         "xyz",
		"response_type": "code",
		"scope":         "openid",
		"kc_idp_hint":   "github",
	}
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Errorf("expected %s=%q, got %q", k, v, got)
		}
	}

	pkce, _ := NewPKCE()
	q2, _ := url.Parse(p.AuthURL("https://cb", "s", WithIDPHint("google"), WithPKCE(pkce)))
	if got := q2.Query().Get("kc_idp_hint"); got != "google" {
		t.Errorf("expected overridden hint, got %q", got)
	}
	if got := q2.Query().Get("code_challenge_method"); got != "S256" {
		t.Errorf("expected S256, got %q", got)
	}
}

func TestProvider_PasswordToken(t *testing.T) {
	realm, cfg, hc := newRealm(t)
	p := newProvider(t, cfg, hc)

	tr, err := p.PasswordToken(context.Background(), "alice", "wonderland")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.AccessToken == "" || tr.RefreshToken == "" || tr.IDToken == "" {
		t.Errorf("expected access, refresh and id tokens, got %+v", tr)
	}
	if tr.ExpiresIn != realm.AccessTTL {
		t.Errorf("expected ExpiresIn %v, got %v", realm.AccessTTL, tr.ExpiresIn)
	}
	if tr.RefreshExpiresIn != realm.RefreshTTL {
		t.Errorf("expected RefreshExpiresIn %v, got %v", realm.RefreshTTL, tr.RefreshExpiresIn)
	}
	if got := realm.Hits("token:password"); got != 1 {
		t.Errorf("expected 1 password grant, got %d", got)
	}
}

func TestProvider_PasswordToken_Rejected(t *testing.T) {
	_, cfg, hc := newRealm(t)
	p := newProvider(t, cfg, hc)

	_, err := p.PasswordToken(context.Background(), "alice", "wrong")
	if !errors.IsInvalidCredentials(err) {
		t.Fatalf("expected INVALID_CREDENTIALS, got %v", err)
	}
	if appErr, _ := errors.AsAppError(err); appErr.Details["status"] != http.StatusUnauthorized {
		t.Errorf("expected status 401 in details, got %v", appErr.Details)
	}
}

func TestProvider_ServerErrorIsServiceUnavailable(t *testing.T) {
	realm, cfg, hc := newRealm(t)
	p := newProvider(t, cfg, hc)
	realm.FailWith(testutil.EndpointToken, http.StatusBadGateway)

	_, err := p.PasswordToken(context.Background(), "alice", "wonderland")
	if !errors.HasCode(err, errors.ErrCodeServiceUnavailable) {
		t.Errorf("expected SERVICE_UNAVAILABLE, got %v", err)
	}
}

func TestProvider_UnreachableIsTransport(t *testing.T) {
	realm, cfg, hc := newRealm(t)
	p := newProvider(t, cfg, hc)
	_ = realm.Stop(context.Background())

	_, err := p.PasswordToken(context.Background(), "alice", "wonderland")
	if !errors.IsTransport(err) {
		t.Errorf("expected TRANSPORT, got %v", err)
	}
}

func TestProvider_ExchangeAndRefresh(t *testing.T) {
	realm, cfg, hc := newRealm(t)
	p := newProvider(t, cfg, hc)
	ctx := context.Background()

	tr, err := p.ExchangeCode(ctx, realm.IssueCode("alice"), "https://cb")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	refreshed, err := p.Refresh(ctx, tr.RefreshToken)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if refreshed.AccessToken == "" || refreshed.RefreshToken == tr.RefreshToken {
		t.Errorf("expected rotated tokens, got %+v", refreshed)
	}

	// The fake realm rotates refresh tokens, so the old one is now spent.
	_, err = p.Refresh(ctx, tr.RefreshToken)
	if !errors.HasCode(err, errors.ErrCodeRefreshFailed) {
		t.Errorf("expected REFRESH_FAILED, got %v", err)
	}

	if _, err := p.ExchangeCode(ctx, "bogus", "https://cb"); !errors.IsInvalidCredentials(err) {
		t.Errorf("expected INVALID_CREDENTIALS for unknown code, got %v", err)
	}
}

func TestProvider_Refresh_EmptyToken(t *testing.T) {
	_, cfg, hc := newRealm(t)
	p := newProvider(t, cfg, hc)

	_, err := p.Refresh(context.Background(), "")
	if !errors.HasCode(err, errors.ErrCodeRefreshFailed) {
		t.Errorf("expected REFRESH_FAILED, got %v", err)
	}
}

func TestProvider_ServiceToken(t *testing.T) {
	realm, cfg, hc := newRealm(t)
	p := newProvider(t, cfg, hc)

	tr, err := p.ServiceToken(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.AccessToken == "" {
		t.Error("expected service access token")
	}
	if tr.ExpiresIn != realm.AccessTTL {
		t.Errorf("expected ExpiresIn %v, got %v", realm.AccessTTL, tr.ExpiresIn)
	}

	cfg.ClientSecret = ""
	public := newProvider(t, cfg, hc)
	if _, err := public.ServiceToken(context.Background()); err == nil {
		t.Error("expected error for public client")
	}
}

func TestProvider_Logout(t *testing.T) {
	realm, cfg, hc := newRealm(t)
	p := newProvider(t, cfg, hc)
	ctx := context.Background()

	tr, err := p.PasswordToken(ctx, "alice", "wonderland")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Logout(ctx, tr.RefreshToken); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := realm.Hits(testutil.EndpointLogout); got != 1 {
		t.Errorf("expected 1 logout call, got %d", got)
	}
	if _, err := p.Refresh(ctx, tr.RefreshToken); err == nil {
		t.Error("expected refresh to fail after logout")
	}

	realm.FailWith(testutil.EndpointLogout, http.StatusInternalServerError)
	if err := p.Logout(ctx, "whatever"); !errors.HasCode(err, errors.ErrCodeServiceUnavailable) {
		t.Errorf("expected SERVICE_UNAVAILABLE, got %v", err)
	}
}

func TestVerifier_Verify(t *testing.T) {
	realm, cfg, hc := newRealm(t)
	v := NewVerifier(cfg, hc)
	ctx := context.Background()

	claims, err := v.Verify(ctx, realm.AccessToken("alice"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Username() != "alice" {
		t.Errorf("expected alice, got %q", claims.Username())
	}
	if claims.Issuer != realm.Issuer() {
		t.Errorf("expected issuer %q, got %q", realm.Issuer(), claims.Issuer)
	}
	if !claims.IssuedTo(realm.ClientID) {
		t.Error("expected token to be issued to the client")
	}

	if _, err := v.Verify(ctx, realm.AccessToken("alice")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := realm.Hits(testutil.EndpointDiscovery); got != 1 {
		t.Errorf("expected discovery fetched once, got %d", got)
	}
	if got := realm.Hits(testutil.EndpointJWKS); got != 1 {
		t.Errorf("expected JWKS fetched once, got %d", got)
	}
}

func TestVerifier_Rejects(t *testing.T) {
	realm, cfg, hc := newRealm(t)
	now := time.Now()

	foreignKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	foreign := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": realm.Issuer(), "sub": "x", "azp": realm.ClientID,
		"exp": now.Add(time.Minute).Unix(), "iat": now.Unix(),
	})
	foreign.Header["kid"] = "foreign"
	foreignSigned, _ := foreign.SignedString(foreignKey)

	tests := []struct {
		name  string
		token string
		clock func() time.Time
	}{
		{"empty", "", nil},
		{"garbage", "not.a.jwt", nil},
		{"wrong audience", realm.Sign(jwt.MapClaims{
			"iss": realm.Issuer(), "sub": "x", "aud": "other", "azp": "other",
			"exp": now.Add(time.Minute).Unix(), "iat": now.Unix(),
		}), nil},
		{"wrong issuer", realm.Sign(jwt.MapClaims{
			"iss": "https://evil.example.com/realms/acme", "sub": "x", "azp": realm.ClientID,
			"exp": now.Add(time.Minute).Unix(), "iat": now.Unix(),
		}), nil},
		{"no expiry", realm.Sign(jwt.MapClaims{
			"iss": realm.Issuer(), "sub": "x", "azp": realm.ClientID, "iat": now.Unix(),
		}), nil},
		{"expired", realm.AccessToken("alice"), func() time.Time { return now.Add(10 * time.Minute) }},
		{"unknown key", foreignSigned, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []VerifierOption
			if tt.clock != nil {
				opts = append(opts, WithVerifierClock(tt.clock))
			}
			v := NewVerifier(cfg, hc, opts...)
			_, err := v.Verify(context.Background(), tt.token)
			if !errors.IsVerificationFailed(err) {
				t.Errorf("expected VERIFICATION_FAILED, got %v", err)
			}
		})
	}
}

func TestVerifier_DiscoveryFailure(t *testing.T) {
	realm, cfg, hc := newRealm(t)
	realm.FailWith(testutil.EndpointDiscovery, http.StatusServiceUnavailable)
	v := NewVerifier(cfg, hc)

	_, err := v.Verify(context.Background(), realm.AccessToken("alice"))
	if !errors.IsVerificationFailed(err) {
		t.Fatalf("expected VERIFICATION_FAILED, got %v", err)
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("expected status in error, got %v", err)
	}

	realm.FailWith(testutil.EndpointDiscovery, 0)
	eps, err := v.Discover(context.Background())
	if err != nil {
		t.Fatalf("expected discovery to recover, got %v", err)
	}
	if !strings.HasSuffix(eps.JWKS, "/protocol/openid-connect/certs") {
		t.Errorf("unexpected jwks uri %q", eps.JWKS)
	}
}

func TestState(t *testing.T) {
	a, err := GenerateState()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := GenerateState()
	if a == b {
		t.Error("expected distinct states")
	}
	if len(a) != 43 {
		t.Errorf("expected 43 characters, got %d", len(a))
	}
	if !StateMatches(a, a) || StateMatches(a, b) || StateMatches("", "") {
		t.Error("unexpected StateMatches result")
	}
}
