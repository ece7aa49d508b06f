package main

import (
	"context"
	"time"

	"github.com/kbukum/realmauth/authz"
	"github.com/kbukum/realmauth/component"
	"github.com/kbukum/realmauth/logger"
	"github.com/kbukum/realmauth/observability"
	"github.com/kbukum/realmauth/realm"
	"github.com/kbukum/realmauth/refresh"
	"github.com/kbukum/realmauth/server"
	"github.com/kbukum/realmauth/session"
	"github.com/kbukum/realmauth/version"
)

// app is the wired host: telemetry, realm and HTTP server under one registry.
type app struct {
	cfg         Config
	log         *logger.Logger
	registry    *component.Registry
	telemetry   *observability.Telemetry
	realm       *realm.Realm
	store       *session.Store
	interceptor *refresh.Interceptor
	server      *server.Server
}

// newApp builds every component. now overrides the clock for the realm and
// session store; nil means time.Now.
func newApp(ctx context.Context, cfg Config, log *logger.Logger, now func() time.Time) (*app, error) {
	if now == nil {
		now = time.Now
	}
	log = logger.OrNop(log)

	tel := observability.NewTelemetry(cfg.Telemetry, cfg.Name, version.Get().Version, log)
	if err := tel.Start(ctx); err != nil {
		return nil, err
	}

	rm, err := realm.New(cfg.Realm,
		realm.WithLogger(log),
		realm.WithMetrics(tel.Metrics()),
		realm.WithClock(now),
	)
	if err != nil {
		return nil, err
	}
	rcfg := rm.Config()

	a := &app{
		cfg:       cfg,
		log:       log,
		registry:  component.NewRegistry(log),
		telemetry: tel,
		realm:     rm,
		store: session.NewStore(
			session.WithIdleTimeout(cfg.Session.IdleTimeout),
			session.WithStoreClock(now),
		),
		interceptor: refresh.New(rm.Coordinator(), refresh.PolicyFromConfig(rcfg),
			refresh.WithLogger(log),
			refresh.WithMetrics(tel.Metrics()),
			refresh.WithSingleFlight(rcfg.SingleFlightRefresh),
		),
		server: server.New(cfg.Server, log),
	}

	for _, c := range []component.Component{tel, rm, server.NewComponent(a.server)} {
		if err := a.registry.Register(c); err != nil {
			return nil, err
		}
	}

	a.server.ApplyDefaults(cfg.Name, server.RegistryChecker(a.registry))
	h := &handlers{
		coordinator: rm.Coordinator(),
		cache:       rm.Cache(),
		interceptor: a.interceptor,
		rootURL:     rcfg.RootURL,
		log:         log.WithComponent("handlers"),
	}
	h.register(a.server.GinEngine(), a, authz.NewMapChecker(cfg.Permissions))
	return a, nil
}

// start starts every component in registration order and logs what runs.
func (a *app) start(ctx context.Context) error {
	if err := a.registry.StartAll(ctx); err != nil {
		return err
	}
	for _, c := range []component.Describable{a.realm, server.NewComponent(a.server)} {
		d := c.Describe()
		a.log.Info("component ready", logger.Fields("name", d.Name, "type", d.Type, "details", d.Details))
	}
	return nil
}

// stop stops every started component in reverse order.
func (a *app) stop(ctx context.Context) error {
	return a.registry.StopAll(ctx)
}
