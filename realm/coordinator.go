package realm

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/realmauth/auth/oidc"
	"github.com/kbukum/realmauth/cache"
	"github.com/kbukum/realmauth/errors"
	"github.com/kbukum/realmauth/logger"
	"github.com/kbukum/realmauth/observability"
	"github.com/kbukum/realmauth/session"
)

// AuthenticatedRole is granted to every identity that completed a login.
const AuthenticatedRole = "authenticated"

// Login flows, as recorded in logs and metrics.
const (
	FlowPassword = "password"
	FlowBrowser  = "browser"
)

// Identity is a resolved principal.
type Identity = session.Identity

// IdentityProvider performs the OAuth2 grants. *oidc.Provider implements it.
type IdentityProvider interface {
	AuthURL(redirectURI, state string, opts ...oidc.AuthURLOption) string
	PasswordToken(ctx context.Context, username, password string) (*oidc.TokenResult, error)
	ExchangeCode(ctx context.Context, code, redirectURI string, opts ...oidc.ExchangeOption) (*oidc.TokenResult, error)
	Refresh(ctx context.Context, refreshToken string) (*oidc.TokenResult, error)
	ServiceToken(ctx context.Context) (*oidc.TokenResult, error)
	Logout(ctx context.Context, refreshToken string) error
}

// TokenVerifier checks token signatures and claims. *oidc.Verifier implements it.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*oidc.Claims, error)
}

// RoleDirectory resolves role memberships. *directory.Client implements it.
type RoleDirectory interface {
	RolesForUser(ctx context.Context, username, bearer string) ([]string, error)
	Roles(ctx context.Context) ([]string, error)
}

// Coordinator runs logins and role lookups for one realm.
type Coordinator struct {
	config    Config
	provider  IdentityProvider
	verifier  TokenVerifier
	directory RoleDirectory
	cache     *cache.Cache
	log       *logger.Logger
	metrics   *observability.AuthMetrics
	now       func() time.Time
}

// NewCoordinator creates a coordinator from its collaborators. cfg should
// already have had ApplyDefaults applied.
func NewCoordinator(cfg Config, provider IdentityProvider, verifier TokenVerifier, dir RoleDirectory, c *cache.Cache, opts ...Option) *Coordinator {
	o := applyOptions(opts)
	if c == nil {
		c = cache.New()
	}
	return &Coordinator{
		config:    cfg,
		provider:  provider,
		verifier:  verifier,
		directory: dir,
		cache:     c,
		log:       o.log.WithComponent("realm"),
		metrics:   o.metrics,
		now:       o.now,
	}
}

// Config returns the coordinator's configuration.
func (c *Coordinator) Config() Config { return c.config }

// PasswordLogin authenticates with the resource-owner password grant.
// The fresh access token authorizes the role lookup.
func (c *Coordinator) PasswordLogin(ctx context.Context, username, password string) (*Identity, *session.Ledger, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanPasswordLogin,
		attribute.String(observability.AttrFlow, FlowPassword),
		attribute.String(observability.AttrUsername, username))

	id, ledger, err := c.passwordLogin(ctx, username, password)
	observability.EndSpan(span, err)
	return id, ledger, c.finishLogin(ctx, FlowPassword, username, id, err)
}

func (c *Coordinator) passwordLogin(ctx context.Context, username, password string) (*Identity, *session.Ledger, error) {
	if username == "" || password == "" {
		return nil, nil, errors.InvalidCredentials(fmt.Errorf("username and password are required"))
	}
	tr, err := c.provider.PasswordToken(ctx, username, password)
	if err != nil {
		return nil, nil, err
	}
	claims, err := c.verifier.Verify(ctx, tr.AccessToken)
	if err != nil {
		return nil, nil, err
	}

	name := claims.PreferredUsername
	if name == "" {
		name = username
	}
	roles, err := c.directory.RolesForUser(ctx, name, tr.AccessToken)
	if err != nil {
		return nil, nil, err
	}

	ledger := c.newLedger(tr, claims.Raw)
	return newIdentity(name, roles), ledger, nil
}

// CallbackOption configures BrowserCallback.
type CallbackOption func(*callbackOptions)

type callbackOptions struct {
	codeVerifier  string
	knownUsername string
}

// WithCodeVerifier sends the PKCE verifier paired with the authorization request.
func WithCodeVerifier(verifier string) CallbackOption {
	return func(o *callbackOptions) { o.codeVerifier = verifier }
}

// WithKnownUsername names the user when the provider returns no ID token
// and the synthesize policy applies.
func WithKnownUsername(username string) CallbackOption {
	return func(o *callbackOptions) { o.knownUsername = username }
}

// BrowserCallback completes the authorization-code flow. The access token
// is verified, then the ID token if one was returned. A response without an
// ID token is handled per MissingIDTokenPolicy.
func (c *Coordinator) BrowserCallback(ctx context.Context, code, redirectURI string, opts ...CallbackOption) (*Identity, *session.Ledger, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanBrowserLogin,
		attribute.String(observability.AttrFlow, FlowBrowser))

	id, ledger, err := c.browserCallback(ctx, code, redirectURI, opts)
	observability.EndSpan(span, err)
	name := ""
	if id != nil {
		name = id.Name
	}
	return id, ledger, c.finishLogin(ctx, FlowBrowser, name, id, err)
}

func (c *Coordinator) browserCallback(ctx context.Context, code, redirectURI string, opts []CallbackOption) (*Identity, *session.Ledger, error) {
	var o callbackOptions
	for _, opt := range opts {
		opt(&o)
	}
	if code == "" {
		return nil, nil, errors.InvalidCredentials(fmt.Errorf("authorization code is required"))
	}

	var exchangeOpts []oidc.ExchangeOption
	if o.codeVerifier != "" {
		exchangeOpts = append(exchangeOpts, oidc.WithCodeVerifier(o.codeVerifier))
	}
	tr, err := c.provider.ExchangeCode(ctx, code, redirectURI, exchangeOpts...)
	if err != nil {
		return nil, nil, err
	}
	access, err := c.verifier.Verify(ctx, tr.AccessToken)
	if err != nil {
		return nil, nil, err
	}

	var name string
	var claims map[string]any
	if tr.IDToken != "" {
		idClaims, err := c.verifier.Verify(ctx, tr.IDToken)
		if err != nil {
			return nil, nil, err
		}
		name, claims = idClaims.Username(), idClaims.Raw
	} else {
		name, claims, err = c.missingIDToken(access, o.knownUsername)
		if err != nil {
			return nil, nil, err
		}
	}

	roles, err := c.directory.RolesForUser(ctx, name, tr.AccessToken)
	if err != nil {
		return nil, nil, err
	}
	return newIdentity(name, roles), c.newLedger(tr, claims), nil
}

// missingIDToken applies MissingIDTokenPolicy.
func (c *Coordinator) missingIDToken(access *oidc.Claims, knownUsername string) (string, map[string]any, error) {
	if c.config.MissingIDTokenPolicy == PolicyReject {
		return "", nil, errors.VerificationFailed(fmt.Errorf("token response carried no id_token"))
	}
	name := knownUsername
	if name == "" {
		name = access.Username()
	}
	if name == "" {
		return "", nil, errors.VerificationFailed(fmt.Errorf("no id_token and no username to synthesize an identity from"))
	}
	c.log.Debug("synthesizing identity without id_token", logger.Fields(logger.FieldUsername, name))
	return name, map[string]any{
		"sub":                access.Subject,
		"preferred_username": name,
		"iss":                access.Issuer,
	}, nil
}

// finishLogin records the outcome and collapses failures.
func (c *Coordinator) finishLogin(ctx context.Context, flow, username string, id *Identity, err error) error {
	log := c.log.WithContext(ctx)
	if err != nil {
		c.metrics.RecordLogin(ctx, flow, observability.OutcomeFailure)
		fields := logger.Fields(logger.FieldFlow, flow, logger.FieldError, err.Error())
		if username != "" {
			fields[logger.FieldUsername] = username
		}
		if appErr, ok := errors.AsAppError(err); ok {
			fields["code"] = string(appErr.Code)
		}
		log.Info("login failed", fields)
		return errors.AuthenticationFailed(err)
	}
	c.metrics.RecordLogin(ctx, flow, observability.OutcomeSuccess)
	log.Info("login succeeded", logger.Fields(logger.FieldFlow, flow, logger.FieldUsername, id.Name, "roles", len(id.Roles)))
	return nil
}

func (c *Coordinator) newLedger(tr *oidc.TokenResult, claims map[string]any) *session.Ledger {
	l := session.NewLedger(session.WithLedgerClock(c.now))
	l.Install(tr, claims)
	return l
}

func newIdentity(name string, roles []string) *Identity {
	return &Identity{Name: name, Roles: withAuthenticated(roles), Authenticated: true}
}

func withAuthenticated(roles []string) []string {
	out := make([]string, 0, len(roles)+1)
	out = append(out, roles...)
	if !slices.Contains(out, AuthenticatedRole) {
		out = append(out, AuthenticatedRole)
	}
	return out
}

// Logout ends the provider session behind ledger and discards the ledger.
// Provider failures are logged, never returned.
func (c *Coordinator) Logout(ctx context.Context, ledger *session.Ledger) {
	if ledger == nil {
		return
	}
	defer ledger.Discard()
	rt := ledger.RefreshToken()
	if rt == "" {
		return
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanLogout)
	err := c.provider.Logout(ctx, rt)
	observability.EndSpan(span, err)
	if err != nil {
		c.log.WithContext(ctx).Warn("provider logout failed", logger.ErrorFields("logout", err))
		return
	}
	c.log.WithContext(ctx).Info("logged out at provider")
}

// LoadUser looks up username with the service account, for callers that
// need a user's roles outside a login. The returned identity is not
// authenticated but carries AuthenticatedRole like any known user.
// An unknown user is NOT_FOUND; any other failure is SERVICE_UNAVAILABLE.
func (c *Coordinator) LoadUser(ctx context.Context, username string) (*Identity, error) {
	roles, err := c.directory.RolesForUser(ctx, username, "")
	switch {
	case err == nil:
		return &Identity{Name: username, Roles: withAuthenticated(roles)}, nil
	case errors.IsUnknownIdentity(err):
		return nil, errors.NotFound("user", username).WithCause(err)
	default:
		c.log.WithContext(ctx).Warn("user lookup failed", logger.Fields(logger.FieldUsername, username, logger.FieldError, err.Error()))
		return nil, errors.ServiceUnavailable("user directory").WithCause(err)
	}
}

// LookupGroup reports whether name is a role of the realm. It returns nil
// when found, NOT_FOUND when not, and SERVICE_UNAVAILABLE wrapping the
// directory error otherwise.
func (c *Coordinator) LookupGroup(ctx context.Context, name string) error {
	if name == AuthenticatedRole {
		return nil
	}
	roles, err := c.directory.Roles(ctx)
	if err != nil {
		c.log.WithContext(ctx).Warn("group lookup failed", logger.Fields("group", name, logger.FieldError, err.Error()))
		return errors.ServiceUnavailable("user directory").WithCause(err)
	}
	if !slices.Contains(roles, name) {
		return errors.NotFound("group", name)
	}
	return nil
}

// ConfigureCache applies cache settings; ttlSeconds and capacity follow the
// cache section of Config.
func (c *Coordinator) ConfigureCache(enabled bool, ttlSeconds, capacity int) {
	c.cache.Configure(enabled, time.Duration(ttlSeconds)*time.Second, capacity)
	c.log.Info("cache configured", logger.Fields("enabled", enabled, "ttl_seconds", ttlSeconds, "capacity", capacity))
}

// AuthURL returns the provider authorization URL for a browser login.
// The cache picks up the configured settings here if nothing configured it
// earlier.
func (c *Coordinator) AuthURL(redirectURI, state string, opts ...oidc.AuthURLOption) string {
	c.ensureCacheConfigured()
	return c.provider.AuthURL(redirectURI, state, opts...)
}

func (c *Coordinator) ensureCacheConfigured() {
	if !c.cache.Initialized() {
		cc := c.config.Cache
		c.ConfigureCache(cc.IsEnabled(), cc.TTLSeconds, cc.Size)
	}
}

// Refresh runs the refresh grant for ledger and installs the result.
func (c *Coordinator) Refresh(ctx context.Context, ledger *session.Ledger) error {
	ctx, span := observability.StartSpan(ctx, observability.SpanRefresh)
	tr, err := c.provider.Refresh(ctx, ledger.RefreshToken())
	observability.EndSpan(span, err)
	if err != nil {
		return err
	}
	ledger.Install(tr, nil)
	return nil
}
