package refresh

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kbukum/realmauth/errors"
	"github.com/kbukum/realmauth/logger"
	"github.com/kbukum/realmauth/observability"
	"github.com/kbukum/realmauth/realm"
	"github.com/kbukum/realmauth/session"
)

// MinRefreshInterval bounds how often a session refreshes when access
// token expiry is not respected.
const MinRefreshInterval = time.Second

// State is the per-request classification.
type State int

const (
	Skip State = iota
	Unauthenticated
	ValidPassthrough
	NeedsRefresh
	NeedsForcedLogout
)

func (s State) String() string {
	switch s {
	case Skip:
		return "Skip"
	case Unauthenticated:
		return "Unauthenticated"
	case ValidPassthrough:
		return "ValidPassthrough"
	case NeedsRefresh:
		return "NeedsRefresh"
	case NeedsForcedLogout:
		return "NeedsForcedLogout"
	default:
		return "Unknown"
	}
}

// Outcome tells the caller whether to continue with the request.
type Outcome int

const (
	Pass Outcome = iota
	Logout
)

func (o Outcome) String() string {
	if o == Logout {
		return "LOGOUT"
	}
	return "PASS"
}

// Policy is the live configuration of the interceptor.
type Policy struct {
	ValidateEachRequest       bool
	RespectAccessTokenTimeout bool
	// SkipPaths are path suffixes never checked.
	SkipPaths []string
	// LogoutURL is the redirect target for forced logouts.
	LogoutURL string
}

// PolicyFromConfig derives the policy from a realm configuration with
// defaults applied.
func PolicyFromConfig(cfg realm.Config) Policy {
	return Policy{
		ValidateEachRequest:       cfg.ValidateEachRequest,
		RespectAccessTokenTimeout: cfg.RespectsAccessTimeout(),
		SkipPaths:                 append([]string(nil), cfg.SkipPaths...),
		LogoutURL:                 cfg.LogoutURL(),
	}
}

func (p *Policy) exempt(path string) bool {
	for _, suffix := range p.SkipPaths {
		if suffix != "" && strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

// Refresher runs the refresh grant for a ledger and installs the result.
// *realm.Coordinator implements it.
type Refresher interface {
	Refresh(ctx context.Context, ledger *session.Ledger) error
}

// Request is what the interceptor needs to know about an inbound request.
type Request struct {
	Path    string
	Session *session.Session
}

// Interceptor decides and performs token refreshes.
type Interceptor struct {
	refresher    Refresher
	policy       atomic.Pointer[Policy]
	singleFlight bool
	group        singleflight.Group
	log          *logger.Logger
	metrics      *observability.AuthMetrics
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(i *Interceptor) { i.log = logger.OrNop(l).WithComponent("refresh") }
}

// WithMetrics records each decision on m.
func WithMetrics(m *observability.AuthMetrics) Option {
	return func(i *Interceptor) { i.metrics = m }
}

// WithSingleFlight makes concurrent requests of one session share a single
// refresh grant. Without it each request refreshes on its own and the last
// response installed wins.
func WithSingleFlight(enabled bool) Option {
	return func(i *Interceptor) { i.singleFlight = enabled }
}

// New creates an interceptor.
func New(refresher Refresher, policy Policy, opts ...Option) *Interceptor {
	i := &Interceptor{refresher: refresher, log: logger.NewNop()}
	i.policy.Store(&policy)
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// UpdatePolicy replaces the policy for subsequent requests.
func (i *Interceptor) UpdatePolicy(p Policy) {
	i.policy.Store(&p)
}

// Policy returns the current policy.
func (i *Interceptor) Policy() Policy {
	return *i.policy.Load()
}

// Evaluate classifies req without side effects.
func (i *Interceptor) Evaluate(req Request) State {
	p := i.policy.Load()
	sess := req.Session
	if !p.ValidateEachRequest || p.exempt(req.Path) || sess == nil || !sess.AuthRequested() {
		return Skip
	}

	ledger := sess.Ledger()
	if sess.Identity() == nil || ledger == nil {
		return Unauthenticated
	}
	if ledger.RefreshExpired() {
		return NeedsForcedLogout
	}
	if p.RespectAccessTokenTimeout {
		if ledger.AccessExpired() {
			return NeedsRefresh
		}
		return ValidPassthrough
	}
	if since, ok := ledger.SinceRefresh(); !ok || since >= MinRefreshInterval {
		return NeedsRefresh
	}
	return ValidPassthrough
}

// Check classifies req and acts on it: NeedsRefresh runs the refresh grant
// and, if that fails, becomes NeedsForcedLogout. It returns Logout only for
// a forced logout; the session itself is left for the logout handler.
func (i *Interceptor) Check(ctx context.Context, req Request) Outcome {
	state := i.Evaluate(req)
	if state == NeedsRefresh {
		if err := i.refresh(ctx, req.Session); err != nil {
			i.log.WithContext(ctx).Warn("token refresh failed, forcing logout",
				logger.Fields(logger.FieldPath, req.Path, logger.FieldError, err.Error()))
			state = NeedsForcedLogout
		}
	}
	i.metrics.RecordRefreshDecision(ctx, state.String())

	if state == NeedsForcedLogout {
		fields := logger.Fields(logger.FieldPath, req.Path)
		if id := req.Session.Identity(); id != nil {
			fields[logger.FieldUsername] = id.Name
		}
		i.log.WithContext(ctx).Info("forcing logout", fields)
		return Logout
	}
	return Pass
}

func (i *Interceptor) refresh(ctx context.Context, sess *session.Session) error {
	ledger := sess.Ledger()
	if ledger == nil {
		return errors.RefreshFailed(fmt.Errorf("session has no token ledger"))
	}
	if !i.singleFlight {
		return i.refresher.Refresh(ctx, ledger)
	}
	_, err, shared := i.group.Do(sess.ID, func() (any, error) {
		return nil, i.refresher.Refresh(ctx, ledger)
	})
	if shared {
		i.log.Debug("joined in-flight refresh")
	}
	return err
}
