package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/kbukum/realmauth/errors"
	"github.com/kbukum/realmauth/httpclient"
)

// Fetcher issues GET requests against the provider. *httpclient.Client
// implements it.
type Fetcher interface {
	Get(ctx context.Context, rawURL, bearer string) (*httpclient.Response, error)
}

// Verifier validates tokens issued by the realm. It discovers the realm's
// OpenID configuration on first use and caches the JWKS for signature checks.
type Verifier struct {
	config    Config
	endpoints Endpoints
	fetch     Fetcher
	now       func() time.Time

	mu    sync.RWMutex
	disco *discoveryDoc
	jwks  *jwksCache
	group singleflight.Group
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithVerifierClock replaces time.Now for expiry checks and JWKS caching.
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates a verifier for the configured realm. No network
// call is made until the first Verify or Discover.
func NewVerifier(cfg Config, fetch Fetcher, opts ...VerifierOption) *Verifier {
	cfg.ApplyDefaults()
	v := &Verifier{
		config:    cfg,
		endpoints: cfg.Endpoints(),
		fetch:     fetch,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify validates a raw access or ID token and returns its claims. It
// checks the signature, issuer, expiry, and that the token was issued to
// the configured client. Every failure is a VERIFICATION_FAILED error.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	if raw == "" {
		return nil, errors.VerificationFailed(fmt.Errorf("oidc: empty token"))
	}
	disco, jwks, err := v.discovered(ctx)
	if err != nil {
		return nil, errors.VerificationFailed(err)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods(v.config.SupportedSigningAlgs),
		jwt.WithIssuer(disco.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.config.ClockSkew),
		jwt.WithTimeFunc(v.now),
	)

	mc := jwt.MapClaims{}
	_, err = parser.ParseWithClaims(raw, mc, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return jwks.key(ctx, kid)
	})
	if err != nil {
		return nil, errors.VerificationFailed(fmt.Errorf("oidc: %w", err))
	}

	claims := claimsFromMap(mc)
	if !claims.IssuedTo(v.config.ClientID) {
		return nil, errors.VerificationFailed(
			fmt.Errorf("oidc: token audience %v / azp %q does not include %q", claims.Audience, claims.AuthorizedParty, v.config.ClientID))
	}
	return claims, nil
}

// Discover fetches the realm's OpenID configuration if it has not been
// fetched yet and returns the advertised endpoints.
func (v *Verifier) Discover(ctx context.Context) (DiscoveryEndpoints, error) {
	disco, _, err := v.discovered(ctx)
	if err != nil {
		return DiscoveryEndpoints{}, err
	}
	return DiscoveryEndpoints{
		Issuer:        disco.Issuer,
		Authorization: disco.AuthorizationEndpoint,
		Token:         disco.TokenEndpoint,
		Logout:        disco.EndSessionEndpoint,
		JWKS:          disco.JWKSUri,
	}, nil
}

// DiscoveryEndpoints holds the endpoints advertised by the provider.
type DiscoveryEndpoints struct {
	Issuer        string
	Authorization string
	Token         string
	Logout        string
	JWKS          string
}

// --- Discovery ---

type discoveryDoc struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	EndSessionEndpoint    string `json:"end_session_endpoint"`
	JWKSUri               string `json:"jwks_uri"`
}

func (v *Verifier) discovered(ctx context.Context) (*discoveryDoc, *jwksCache, error) {
	v.mu.RLock()
	disco, jwks := v.disco, v.jwks
	v.mu.RUnlock()
	if disco != nil {
		return disco, jwks, nil
	}

	if _, err, _ := v.group.Do("discovery", func() (any, error) {
		return nil, v.discover(ctx)
	}); err != nil {
		return nil, nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.disco == nil {
		return nil, nil, fmt.Errorf("oidc: discovery did not complete")
	}
	return v.disco, v.jwks, nil
}

func (v *Verifier) discover(ctx context.Context) error {
	resp, err := v.fetch.Get(ctx, v.endpoints.Discovery, "")
	if err != nil {
		return fmt.Errorf("oidc: discovery for %s: %w", v.endpoints.Issuer, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("oidc: discovery for %s returned %d", v.endpoints.Issuer, resp.StatusCode)
	}

	var doc discoveryDoc
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return fmt.Errorf("oidc: decode discovery document: %w", err)
	}
	if doc.JWKSUri == "" {
		return fmt.Errorf("oidc: discovery document missing jwks_uri")
	}
	if doc.Issuer == "" {
		doc.Issuer = v.endpoints.Issuer
	}

	v.mu.Lock()
	v.disco = &doc
	v.jwks = &jwksCache{
		uri:   doc.JWKSUri,
		fetch: v.fetch,
		ttl:   v.config.JWKSCacheDuration,
		now:   v.now,
	}
	v.mu.Unlock()
	return nil
}

// --- Claims ---

func claimsFromMap(mc jwt.MapClaims) *Claims {
	c := &Claims{Raw: map[string]any(mc)}
	c.Issuer, _ = mc.GetIssuer()
	c.Subject, _ = mc.GetSubject()
	if aud, err := mc.GetAudience(); err == nil {
		c.Audience = []string(aud)
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	c.AuthorizedParty, _ = mc["azp"].(string)
	c.PreferredUsername, _ = mc["preferred_username"].(string)
	return c
}
