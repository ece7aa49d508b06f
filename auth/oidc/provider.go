package oidc

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/kbukum/realmauth/errors"
	"github.com/kbukum/realmauth/httpclient"
)

// Provider runs the OAuth2 grants against one realm's token endpoint:
// password, authorization code, refresh and client credentials. It also
// builds authorization URLs and revokes sessions at the logout endpoint.
type Provider struct {
	config    Config
	endpoints Endpoints
	http      *httpclient.Client
	oauth     *oauth2.Config
	now       func() time.Time
}

// NewProvider creates a provider client. All requests go through hc so the
// client's TLS settings, rate limiter and circuit breaker apply.
func NewProvider(cfg Config, hc *httpclient.Client) (*Provider, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("oidc: %w", err)
	}
	ep := cfg.Endpoints()
	return &Provider{
		config:    cfg,
		endpoints: ep,
		http:      hc,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.RequestedScopes(),
			Endpoint: oauth2.Endpoint{
				AuthURL:   ep.Authorization,
				TokenURL:  ep.Token,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		now: time.Now,
	}, nil
}

// Config returns the realm configuration with defaults applied.
func (p *Provider) Config() Config { return p.config }

// Endpoints returns the realm URLs.
func (p *Provider) Endpoints() Endpoints { return p.endpoints }

// AuthURL returns the authorization URL that starts a browser login.
// kc_idp_hint is added when an IDP hint is configured and not overridden.
func (p *Provider) AuthURL(redirectURI, state string, opts ...AuthURLOption) string {
	o := ApplyAuthURLOptions(opts)
	if o.IDPHint == "" {
		o.IDPHint = p.config.IDPHint
	}

	conf := *p.oauth
	conf.RedirectURL = redirectURI
	if len(o.Scopes) > 0 {
		conf.Scopes = o.Scopes
	}

	var params []oauth2.AuthCodeOption
	if o.IDPHint != "" {
		params = append(params, oauth2.SetAuthURLParam("kc_idp_hint", o.IDPHint))
	}
	if o.PKCE != nil {
		params = append(params,
			oauth2.SetAuthURLParam("code_challenge", o.PKCE.CodeChallenge),
			oauth2.SetAuthURLParam("code_challenge_method", o.PKCE.CodeChallengeMethod))
	}
	for k, v := range o.ExtraParams {
		params = append(params, oauth2.SetAuthURLParam(k, v))
	}
	return conf.AuthCodeURL(state, params...)
}

// PasswordToken runs the resource owner password grant. A rejection by
// the provider is INVALID_CREDENTIALS.
func (p *Provider) PasswordToken(ctx context.Context, username, password string) (*TokenResult, error) {
	//nolint:staticcheck // the realm still offers direct access grants for non-browser clients
	tok, err := p.oauth.PasswordCredentialsToken(p.clientContext(ctx), username, password)
	if err != nil {
		return nil, grantError(err, errors.InvalidCredentials)
	}
	return p.tokenResult(tok), nil
}

// ExchangeCode trades an authorization code for tokens. redirectURI must
// match the one sent in the authorization URL.
func (p *Provider) ExchangeCode(ctx context.Context, code, redirectURI string, opts ...ExchangeOption) (*TokenResult, error) {
	o := ApplyExchangeOptions(opts)
	conf := *p.oauth
	conf.RedirectURL = redirectURI

	var params []oauth2.AuthCodeOption
	if o.CodeVerifier != "" {
		params = append(params, oauth2.VerifierOption(o.CodeVerifier))
	}
	tok, err := conf.Exchange(p.clientContext(ctx), code, params...)
	if err != nil {
		return nil, grantError(err, errors.InvalidCredentials)
	}
	return p.tokenResult(tok), nil
}

// Refresh runs the refresh_token grant. Any rejection is REFRESH_FAILED.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*TokenResult, error) {
	if refreshToken == "" {
		return nil, errors.RefreshFailed(fmt.Errorf("oidc: no refresh token"))
	}
	src := p.oauth.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, grantError(err, errors.RefreshFailed)
	}
	return p.tokenResult(tok), nil
}

// ServiceToken obtains a token for the client's own service account.
// Confidential clients only.
func (p *Provider) ServiceToken(ctx context.Context) (*TokenResult, error) {
	if p.config.ClientSecret == "" {
		return nil, errors.InvalidCredentials(fmt.Errorf("oidc: client %q has no secret for the service-account grant", p.config.ClientID))
	}
	cc := &clientcredentials.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: p.config.ClientSecret,
		TokenURL:     p.endpoints.Token,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tok, err := cc.Token(p.clientContext(ctx))
	if err != nil {
		return nil, grantError(err, errors.InvalidCredentials)
	}
	return p.tokenResult(tok), nil
}

// Logout ends the provider session that owns refreshToken.
func (p *Provider) Logout(ctx context.Context, refreshToken string) error {
	form := url.Values{}
	form.Set("client_id", p.config.ClientID)
	if p.config.ClientSecret != "" {
		form.Set("client_secret", p.config.ClientSecret)
	}
	form.Set("refresh_token", refreshToken)

	resp, err := p.http.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   p.endpoints.Logout,
		Body:   form,
	})
	if err == nil {
		return nil
	}
	if resp != nil {
		return errors.ServiceUnavailable("identity provider").
			WithDetail("status", resp.StatusCode).
			WithDetail("reason", resp.Reason).
			WithCause(err)
	}
	return errors.Transport(err)
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.http.Unwrap())
}

func (p *Provider) tokenResult(tok *oauth2.Token) *TokenResult {
	tr := &TokenResult{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if id, ok := tok.Extra("id_token").(string); ok {
		tr.IDToken = id
	}
	// Expiry is already relative to the local clock; prefer the exact
	// lifetime the provider advertised.
	if secs, ok := numericExtra(tok, "expires_in"); ok && secs > 0 {
		tr.ExpiresIn = time.Duration(secs) * time.Second
	} else if tok.ExpiresIn > 0 {
		tr.ExpiresIn = time.Duration(tok.ExpiresIn) * time.Second
	} else if !tok.Expiry.IsZero() {
		tr.ExpiresIn = tok.Expiry.Sub(p.now())
	}
	if secs, ok := numericExtra(tok, "refresh_expires_in"); ok {
		tr.RefreshExpiresIn = time.Duration(secs) * time.Second
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		tr.Scopes = strings.Fields(scope)
	}
	return tr
}

// numericExtra reads a numeric token response field. JSON responses decode
// numbers as float64, form-encoded ones as strings.
func numericExtra(tok *oauth2.Token, key string) (int64, bool) {
	switch v := tok.Extra(key).(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// grantError maps token endpoint failures. 4xx answers are rejections,
// 5xx answers mean the provider is unavailable, and anything without a
// response is a transport failure.
func grantError(err error, rejected func(error) *errors.AppError) error {
	var re *oauth2.RetrieveError
	if stderrors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		if status >= http.StatusInternalServerError {
			return errors.ServiceUnavailable("identity provider").WithCause(err).WithDetail("status", status)
		}
		return rejected(err).WithDetail("status", status)
	}
	return errors.Transport(err)
}

// AuthURLOption configures authorization URL generation.
type AuthURLOption func(*AuthURLOptions)

// AuthURLOptions holds the configuration for authorization URL generation.
type AuthURLOptions struct {
	Scopes      []string
	IDPHint     string
	PKCE        *PKCE
	ExtraParams map[string]string
}

// WithScopes overrides the default scopes for this request.
func WithScopes(scopes ...string) AuthURLOption {
	return func(o *AuthURLOptions) { o.Scopes = scopes }
}

// WithIDPHint overrides the configured kc_idp_hint.
func WithIDPHint(hint string) AuthURLOption {
	return func(o *AuthURLOptions) { o.IDPHint = hint }
}

// WithPKCE adds PKCE (Proof Key for Code Exchange) parameters.
func WithPKCE(pkce *PKCE) AuthURLOption {
	return func(o *AuthURLOptions) { o.PKCE = pkce }
}

// WithExtraParam adds a custom query parameter to the authorization URL.
func WithExtraParam(key, value string) AuthURLOption {
	return func(o *AuthURLOptions) {
		if o.ExtraParams == nil {
			o.ExtraParams = make(map[string]string)
		}
		o.ExtraParams[key] = value
	}
}

// ApplyAuthURLOptions applies options and returns the resolved configuration.
func ApplyAuthURLOptions(opts []AuthURLOption) AuthURLOptions {
	var o AuthURLOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ExchangeOption configures the token exchange.
type ExchangeOption func(*ExchangeOptions)

// ExchangeOptions holds the configuration for token exchange.
type ExchangeOptions struct {
	CodeVerifier string
}

// WithCodeVerifier adds the PKCE code verifier for the exchange.
func WithCodeVerifier(verifier string) ExchangeOption {
	return func(o *ExchangeOptions) { o.CodeVerifier = verifier }
}

// ApplyExchangeOptions applies options and returns the resolved configuration.
func ApplyExchangeOptions(opts []ExchangeOption) ExchangeOptions {
	var o ExchangeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
