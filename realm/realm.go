package realm

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/realmauth/auth/oidc"
	"github.com/kbukum/realmauth/cache"
	"github.com/kbukum/realmauth/component"
	"github.com/kbukum/realmauth/directory"
	"github.com/kbukum/realmauth/httpclient"
	"github.com/kbukum/realmauth/logger"
	"github.com/kbukum/realmauth/resilience"
)

// Realm owns every collaborator needed to authenticate against one realm
// and manages them as a component.
type Realm struct {
	config      Config
	http        *httpclient.Client
	provider    *oidc.Provider
	verifier    *oidc.Verifier
	cache       *cache.Cache
	directory   *directory.Client
	coordinator *Coordinator
	log         *logger.Logger

	mu          sync.Mutex
	discoverErr error
}

var (
	_ component.Component   = (*Realm)(nil)
	_ component.Describable = (*Realm)(nil)
)

// New builds the realm stack from cfg. Defaults are applied and the
// configuration validated; no network call is made until Start.
func New(cfg Config, opts ...Option) (*Realm, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("realm: %w", err)
	}
	o := applyOptions(opts)

	hc, err := httpclient.New(cfg.HTTPClient())
	if err != nil {
		return nil, fmt.Errorf("realm: http client: %w", err)
	}
	provider, err := oidc.NewProvider(cfg.OIDC(), hc)
	if err != nil {
		return nil, fmt.Errorf("realm: provider: %w", err)
	}
	verifier := oidc.NewVerifier(cfg.OIDC(), hc, oidc.WithVerifierClock(o.now))

	metrics := o.metrics
	c := cache.New(
		cache.WithClock(o.now),
		cache.WithLookupHook(func(store cache.Store, hit bool) {
			metrics.RecordCacheLookup(context.Background(), string(store), hit)
		}),
	)
	dir := directory.New(provider.Endpoints().Admin, hc, provider, c,
		directory.WithLogger(o.log), directory.WithMetrics(o.metrics))

	return &Realm{
		config:      cfg,
		http:        hc,
		provider:    provider,
		verifier:    verifier,
		cache:       c,
		directory:   dir,
		coordinator: NewCoordinator(cfg, provider, verifier, dir, c, opts...),
		log:         o.log.WithComponent("realm"),
	}, nil
}

// Coordinator returns the login coordinator.
func (r *Realm) Coordinator() *Coordinator { return r.coordinator }

// Provider returns the OAuth2 grant client.
func (r *Realm) Provider() *oidc.Provider { return r.provider }

// Verifier returns the token verifier.
func (r *Realm) Verifier() *oidc.Verifier { return r.verifier }

// Cache returns the validity cache.
func (r *Realm) Cache() *cache.Cache { return r.cache }

// Directory returns the role directory client.
func (r *Realm) Directory() *directory.Client { return r.directory }

// Config returns the effective configuration.
func (r *Realm) Config() Config { return r.config }

// Name implements component.Component.
func (r *Realm) Name() string { return "realm" }

// Start applies the cache settings and fetches the provider's discovery
// document. An unreachable provider is logged and reported by Health but
// does not fail startup; logins fail until it recovers.
func (r *Realm) Start(ctx context.Context) error {
	cc := r.config.Cache
	r.coordinator.ConfigureCache(cc.IsEnabled(), cc.TTLSeconds, cc.Size)

	_, err := r.verifier.Discover(ctx)
	r.mu.Lock()
	r.discoverErr = err
	r.mu.Unlock()
	if err != nil {
		r.log.Warn("provider discovery failed", logger.Fields(logger.FieldRealm, r.config.Realm, logger.FieldError, err.Error()))
		return nil
	}
	r.log.Info("provider discovered", logger.Fields(logger.FieldRealm, r.config.Realm))
	return nil
}

// Stop implements component.Component. The realm holds no resources that
// need releasing.
func (r *Realm) Stop(ctx context.Context) error { return nil }

// Health reports unhealthy while the provider circuit is open or discovery
// has never succeeded, and degraded while the circuit is probing.
func (r *Realm) Health(ctx context.Context) component.Health {
	h := component.Health{Name: r.Name(), Status: component.StatusHealthy}
	switch r.http.BreakerState() {
	case resilience.StateOpen:
		h.Status, h.Message = component.StatusUnhealthy, "provider circuit open"
		return h
	case resilience.StateHalfOpen:
		h.Status, h.Message = component.StatusDegraded, "provider circuit half-open"
	}

	r.mu.Lock()
	failed := r.discoverErr != nil
	r.mu.Unlock()
	if failed {
		_, err := r.verifier.Discover(ctx)
		r.mu.Lock()
		r.discoverErr = err
		r.mu.Unlock()
		if err != nil {
			h.Status, h.Message = component.StatusUnhealthy, "provider discovery failing"
		}
	}
	return h
}

// Describe implements component.Describable.
func (r *Realm) Describe() component.Description {
	return component.Description{
		Type:    "realm",
		Details: fmt.Sprintf("%s realm=%s client=%s", r.config.AuthServerURL, r.config.Realm, r.config.ClientID),
	}
}
