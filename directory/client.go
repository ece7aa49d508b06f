package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/kbukum/realmauth/auth/oidc"
	"github.com/kbukum/realmauth/cache"
	"github.com/kbukum/realmauth/errors"
	"github.com/kbukum/realmauth/httpclient"
	"github.com/kbukum/realmauth/logger"
	"github.com/kbukum/realmauth/observability"
)

// Operation names used in logs and metrics.
const (
	OpRolesForUser = "roles_for_user"
	OpRealmRoles   = "realm_roles"
)

// Transport issues an authenticated GET and returns whatever the server
// answered. Only failures that produced no response are errors.
// *httpclient.Client implements it.
type Transport interface {
	Get(ctx context.Context, rawURL, bearer string) (*httpclient.Response, error)
}

// TokenSource obtains a token for the client's service account.
// *oidc.Provider implements it.
type TokenSource interface {
	ServiceToken(ctx context.Context) (*oidc.TokenResult, error)
}

// Client looks up users and roles in one realm.
type Client struct {
	adminURL  string
	transport Transport
	tokens    TokenSource
	cache     *cache.Cache
	log       *logger.Logger
	metrics   *observability.AuthMetrics
	now       func() time.Time

	tokenGroup singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = logger.OrNop(l).WithComponent("directory") }
}

// WithMetrics records lookups on m.
func WithMetrics(m *observability.AuthMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a directory client for the realm whose admin API lives at
// adminURL, e.g. "https://sso.example.com/admin/realms/acme".
func New(adminURL string, transport Transport, tokens TokenSource, c *cache.Cache, opts ...Option) *Client {
	if c == nil {
		c = cache.New()
	}
	dc := &Client{
		adminURL:  strings.TrimRight(adminURL, "/"),
		transport: transport,
		tokens:    tokens,
		cache:     c,
		log:       logger.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(dc)
	}
	return dc
}

// Cache returns the validity cache the client reads through.
func (c *Client) Cache() *cache.Cache { return c.cache }

type userRep struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type roleRep struct {
	Name string `json:"name"`
}

type mappingsRep struct {
	RealmMappings []roleRep `json:"realmMappings"`
}

// RolesForUser returns the realm role names mapped to username. bearer
// authorizes the admin calls; when empty the service-account token is used.
// A bearer issued to the user proves the account exists, so the negative
// cache is only consulted for service-account lookups.
// Errors are UNKNOWN_IDENTITY, DIRECTORY_UNAVAILABLE or TRANSPORT.
func (c *Client) RolesForUser(ctx context.Context, username, bearer string) ([]string, error) {
	log := c.log.WithContext(ctx)
	if roles, ok := c.cache.RolesForUser(username); ok {
		log.Debug("roles from cache", logger.Fields(logger.FieldUsername, username))
		c.metrics.RecordDirectoryRequest(ctx, OpRolesForUser, observability.OutcomeHit, 0)
		return roles, nil
	}
	if bearer == "" && c.cache.IsKnownInvalid(username) {
		c.metrics.RecordDirectoryRequest(ctx, OpRolesForUser, observability.OutcomeHit, 0)
		return nil, errors.UnknownIdentity(username)
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanDirectoryRoles, attribute.String(observability.AttrUsername, username))
	start := c.now()
	roles, err := c.fetchUserRoles(ctx, username, bearer)
	observability.EndSpan(span, err)
	c.record(ctx, OpRolesForUser, err, c.now().Sub(start))

	if err != nil {
		if errors.IsUnknownIdentity(err) {
			c.cache.MarkInvalid(username)
			log.Info("user not in directory", logger.Fields(logger.FieldUsername, username))
		} else {
			log.Warn("role lookup failed", c.failureFields(username, err))
		}
		return nil, err
	}

	c.cache.SetRolesForUser(username, roles)
	log.Debug("roles resolved", logger.Fields(logger.FieldUsername, username, "count", len(roles)))
	return roles, nil
}

func (c *Client) fetchUserRoles(ctx context.Context, username, bearer string) ([]string, error) {
	token, err := c.adminToken(ctx, bearer)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("username", username)
	q.Set("exact", "true")
	var users []userRep
	if err := c.getJSON(ctx, c.adminURL+"/users?"+q.Encode(), token, &users); err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, errors.UnknownIdentity(username)
	}

	var mappings mappingsRep
	if err := c.getJSON(ctx, c.adminURL+"/users/"+url.PathEscape(users[0].ID)+"/role-mappings", token, &mappings); err != nil {
		return nil, err
	}
	return roleNames(mappings.RealmMappings), nil
}

// Roles returns the realm's role catalog, authorized by the service account.
func (c *Client) Roles(ctx context.Context) ([]string, error) {
	if roles, ok := c.cache.GlobalRoles(); ok {
		c.metrics.RecordDirectoryRequest(ctx, OpRealmRoles, observability.OutcomeHit, 0)
		return roles, nil
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanDirectoryRealm)
	start := c.now()
	roles, err := c.fetchRealmRoles(ctx)
	observability.EndSpan(span, err)
	c.record(ctx, OpRealmRoles, err, c.now().Sub(start))

	if err != nil {
		c.log.WithContext(ctx).Warn("realm role lookup failed", c.failureFields("", err))
		return nil, err
	}
	c.cache.SetGlobalRoles(roles)
	return roles, nil
}

func (c *Client) fetchRealmRoles(ctx context.Context) ([]string, error) {
	token, err := c.adminToken(ctx, "")
	if err != nil {
		return nil, err
	}
	var roles []roleRep
	if err := c.getJSON(ctx, c.adminURL+"/roles", token, &roles); err != nil {
		return nil, err
	}
	return roleNames(roles), nil
}

// adminToken returns bearer, else the cached service token, else a freshly
// obtained one. Concurrent callers share one service-account grant, which
// runs detached from any single caller's cancellation; the transport
// timeout still bounds it.
func (c *Client) adminToken(ctx context.Context, bearer string) (string, error) {
	if bearer != "" {
		return bearer, nil
	}
	if tok, ok := c.cache.ServiceToken(); ok {
		return tok, nil
	}
	if c.tokens == nil {
		return "", errors.DirectoryUnavailable(0, "no service account configured")
	}

	grantCtx := context.WithoutCancel(ctx)
	ch := c.tokenGroup.DoChan("service-token", func() (any, error) {
		tr, err := c.tokens.ServiceToken(grantCtx)
		if err != nil {
			return "", err
		}
		c.cache.SetServiceToken(tr.AccessToken, tr.ExpiresIn)
		c.log.Debug("service token obtained", logger.Fields("expires_in", tr.ExpiresIn.String()))
		return tr.AccessToken, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", serviceTokenError(res.Err)
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", errors.Transport(ctx.Err())
	}
}

// serviceTokenError keeps grant failures inside the directory's taxonomy:
// no response stays TRANSPORT, any refusal is DIRECTORY_UNAVAILABLE.
func serviceTokenError(err error) error {
	if appErr, ok := errors.AsAppError(err); ok && appErr.Code == errors.ErrCodeTransport {
		return err
	}
	status := 0
	if appErr, ok := errors.AsAppError(err); ok {
		if s, ok := appErr.Details["status"].(int); ok {
			status = s
		}
	}
	return errors.DirectoryUnavailable(status, "service account token refused").WithCause(err)
}

func (c *Client) getJSON(ctx context.Context, rawURL, bearer string, out any) error {
	resp, err := c.transport.Get(ctx, rawURL, bearer)
	if err != nil {
		return errors.Transport(err)
	}
	if !resp.IsSuccess() {
		return errors.DirectoryUnavailable(resp.StatusCode, resp.Reason)
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return errors.DirectoryUnavailable(resp.StatusCode, "malformed response").
			WithCause(fmt.Errorf("decode %s: %w", rawURL, err))
	}
	return nil
}

func (c *Client) record(ctx context.Context, op string, err error, d time.Duration) {
	outcome := observability.OutcomeSuccess
	if err != nil {
		outcome = observability.OutcomeFailure
	}
	c.metrics.RecordDirectoryRequest(ctx, op, outcome, d)
}

func (c *Client) failureFields(username string, err error) map[string]interface{} {
	fields := logger.Fields(logger.FieldError, err.Error())
	if username != "" {
		fields[logger.FieldUsername] = username
	}
	if appErr, ok := errors.AsAppError(err); ok {
		fields["code"] = string(appErr.Code)
		for k, v := range appErr.Details {
			fields[k] = v
		}
	}
	return fields
}

func roleNames(roles []roleRep) []string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		if r.Name != "" {
			names = append(names, r.Name)
		}
	}
	return names
}
