package oidc

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config describes one realm on a Keycloak-style identity provider.
// Loadable from YAML/env via mapstructure tags.
type Config struct {
	// AuthServerURL is the provider base URL, e.g. "https://sso.example.com".
	AuthServerURL string `mapstructure:"auth_server_url" validate:"required,url"`

	// Realm is the realm name the client is registered in.
	Realm string `mapstructure:"realm" validate:"required"`

	// ClientID is the OAuth2 client ID (also accepted as "aud" or "azp").
	ClientID string `mapstructure:"client_id" validate:"required"`

	// ClientSecret is the OAuth2 client secret. Empty for public clients,
	// in which case the service-account grant is unavailable.
	ClientSecret string `mapstructure:"client_secret"`

	// Scopes are requested in addition to "openid".
	Scopes []string `mapstructure:"scopes"`

	// IDPHint, when set, is forwarded as kc_idp_hint so the provider skips
	// its own login page and goes straight to a brokered identity provider.
	IDPHint string `mapstructure:"idp_hint"`

	// SupportedSigningAlgs restricts allowed token signing algorithms (default: ["RS256"]).
	SupportedSigningAlgs []string `mapstructure:"supported_signing_algs"`

	// JWKSCacheDuration controls how long JWKS keys are cached (default: "1h").
	JWKSCacheDuration time.Duration `mapstructure:"jwks_cache_duration"`

	// ClockSkew is tolerated when checking exp, nbf and iat (default: "30s").
	ClockSkew time.Duration `mapstructure:"clock_skew"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	c.AuthServerURL = strings.TrimRight(c.AuthServerURL, "/")
	if len(c.SupportedSigningAlgs) == 0 {
		c.SupportedSigningAlgs = []string{"RS256"}
	}
	if c.JWKSCacheDuration == 0 {
		c.JWKSCacheDuration = time.Hour
	}
	if c.ClockSkew == 0 {
		c.ClockSkew = 30 * time.Second
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.AuthServerURL == "" {
		return fmt.Errorf("auth_server_url is required")
	}
	if _, err := url.ParseRequestURI(c.AuthServerURL); err != nil {
		return fmt.Errorf("auth_server_url is invalid: %w", err)
	}
	if c.Realm == "" {
		return fmt.Errorf("realm is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	return nil
}

// Endpoints are the realm URLs derived from the provider base URL.
type Endpoints struct {
	Issuer        string
	Authorization string
	Token         string
	Logout        string
	Discovery     string
	Admin         string
}

// Endpoints derives the realm's protocol and admin URLs.
func (c *Config) Endpoints() Endpoints {
	base := strings.TrimRight(c.AuthServerURL, "/")
	realm := url.PathEscape(c.Realm)
	issuer := base + "/realms/" + realm
	protocol := issuer + "/protocol/openid-connect"
	return Endpoints{
		Issuer:        issuer,
		Authorization: protocol + "/auth",
		Token:         protocol + "/token",
		Logout:        protocol + "/logout",
		Discovery:     issuer + "/.well-known/openid-configuration",
		Admin:         base + "/admin/realms/" + realm,
	}
}

// RequestedScopes returns "openid" followed by any configured scopes.
func (c *Config) RequestedScopes() []string {
	scopes := []string{"openid"}
	for _, s := range c.Scopes {
		if s != "" && s != "openid" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}
