package realm

import (
	"strings"
	"time"

	"github.com/kbukum/realmauth/auth/oidc"
	"github.com/kbukum/realmauth/httpclient"
	"github.com/kbukum/realmauth/resilience"
	"github.com/kbukum/realmauth/util"
	"github.com/kbukum/realmauth/validation"
	"github.com/kbukum/realmauth/version"
)

// Missing ID token policies.
const (
	// PolicySynthesize builds a minimal identity from the access token.
	PolicySynthesize = "synthesize"
	// PolicyReject fails the login.
	PolicyReject = "reject"
)

// DefaultSkipPaths are the request path suffixes the refresh check never
// touches: the host logout URL and the browser login callback.
var DefaultSkipPaths = []string{"/logout", "securityRealm/finishLogin"}

// Config is the realm configuration, loadable with config.LoadConfig.
type Config struct {
	AuthServerURL string   `yaml:"auth_server_url" mapstructure:"auth_server_url" validate:"required,absurl"`
	Realm         string   `yaml:"realm" mapstructure:"realm" validate:"required"`
	ClientID      string   `yaml:"client_id" mapstructure:"client_id" validate:"required"`
	ClientSecret  string   `yaml:"client_secret" mapstructure:"client_secret"`
	IDPHint       string   `yaml:"idp_hint" mapstructure:"idp_hint"`
	Scopes        []string `yaml:"scopes" mapstructure:"scopes"`

	// ValidateEachRequest turns on the per-request refresh check.
	ValidateEachRequest bool `yaml:"validate_each_request" mapstructure:"validate_each_request"`
	// RespectAccessTokenTimeout refreshes only once the access token has
	// expired. When false a refresh is attempted on every request at most
	// once per second. Defaults to true.
	RespectAccessTokenTimeout *bool `yaml:"respect_access_token_timeout" mapstructure:"respect_access_token_timeout"`
	// SingleFlightRefresh collapses concurrent refreshes of one session.
	SingleFlightRefresh bool `yaml:"single_flight_refresh" mapstructure:"single_flight_refresh"`
	// MissingIDTokenPolicy decides browser logins whose token response has
	// no id_token: "synthesize" (default) or "reject".
	MissingIDTokenPolicy string `yaml:"missing_id_token_policy" mapstructure:"missing_id_token_policy" validate:"oneof=synthesize reject"`

	// RootURL is the host's externally visible root; forced logouts
	// redirect to RootURL + "logout". Always ends with "/".
	RootURL   string   `yaml:"root_url" mapstructure:"root_url"`
	SkipPaths []string `yaml:"skip_paths" mapstructure:"skip_paths"`

	ClockSkew time.Duration `yaml:"clock_skew" mapstructure:"clock_skew" validate:"gte=0"`

	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`
	HTTP  HTTPConfig  `yaml:"http" mapstructure:"http"`
}

// CacheConfig sizes the validity cache.
type CacheConfig struct {
	Enabled    *bool `yaml:"enabled" mapstructure:"enabled"`
	TTLSeconds int   `yaml:"ttl_seconds" mapstructure:"ttl_seconds" validate:"gte=0"`
	Size       int   `yaml:"size" mapstructure:"size" validate:"min=1"`
}

// IsEnabled reports the effective enabled flag.
func (c CacheConfig) IsEnabled() bool {
	return util.DerefOr(c.Enabled, true)
}

// TTL returns TTLSeconds as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// HTTPConfig tunes the client used for every provider call.
type HTTPConfig struct {
	Timeout        time.Duration                    `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`
	CircuitBreaker *resilience.CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
	RateLimit      *resilience.RateLimiterConfig    `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ApplyDefaults fills in zero-value fields.
func (c *Config) ApplyDefaults() {
	c.AuthServerURL = strings.TrimRight(c.AuthServerURL, "/")
	if c.RespectAccessTokenTimeout == nil {
		c.RespectAccessTokenTimeout = util.Ptr(true)
	}
	if c.MissingIDTokenPolicy == "" {
		c.MissingIDTokenPolicy = PolicySynthesize
	}
	if c.RootURL == "" {
		c.RootURL = "/"
	}
	if !strings.HasSuffix(c.RootURL, "/") {
		c.RootURL += "/"
	}
	if c.SkipPaths == nil {
		c.SkipPaths = append([]string(nil), DefaultSkipPaths...)
	}
	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = 300
	}
	if c.Cache.Size == 0 {
		c.Cache.Size = 1000
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = 10 * time.Second
	}
	if c.HTTP.CircuitBreaker == nil {
		c.HTTP.CircuitBreaker = httpclient.DefaultCircuitBreakerConfig("realm")
	}
}

// Validate checks the configuration after ApplyDefaults.
func (c *Config) Validate() error {
	return validation.New().
		Merge("", validation.Validate(c)).
		Custom(c.RespectAccessTokenTimeout != nil, "respect_access_token_timeout", "is required").
		Validate()
}

// RespectsAccessTimeout returns the effective respect_access_token_timeout.
func (c *Config) RespectsAccessTimeout() bool {
	return util.DerefOr(c.RespectAccessTokenTimeout, true)
}

// LogoutURL is where forced logouts are redirected.
func (c *Config) LogoutURL() string {
	return c.RootURL + "logout"
}

// OIDC returns the provider configuration.
func (c *Config) OIDC() oidc.Config {
	return oidc.Config{
		AuthServerURL: c.AuthServerURL,
		Realm:         c.Realm,
		ClientID:      c.ClientID,
		ClientSecret:  c.ClientSecret,
		Scopes:        c.Scopes,
		IDPHint:       c.IDPHint,
		ClockSkew:     c.ClockSkew,
	}
}

// HTTPClient returns the transport configuration shared by all provider calls.
func (c *Config) HTTPClient() httpclient.Config {
	return httpclient.Config{
		Timeout:        c.HTTP.Timeout,
		Headers:        map[string]string{"User-Agent": version.UserAgent("realmauth")},
		CircuitBreaker: c.HTTP.CircuitBreaker,
		RateLimiter:    c.HTTP.RateLimit,
	}
}
