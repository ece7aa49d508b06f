package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kbukum/realmauth/component"
	"github.com/kbukum/realmauth/logger"
)

// Config selects whether and where telemetry is exported.
type Config struct {
	Enabled     bool          `mapstructure:"enabled"`
	Endpoint    string        `mapstructure:"endpoint"`
	Insecure    bool          `mapstructure:"insecure"`
	SampleRate  float64       `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	Interval    time.Duration `mapstructure:"interval"`
	Environment string        `mapstructure:"environment"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4318"
	}
	if c.Interval <= 0 {
		c.Interval = 15 * time.Second
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

// Telemetry is a component owning the tracer and meter providers. When
// disabled it hands out AuthMetrics on a no-op meter.
type Telemetry struct {
	cfg     Config
	service string
	version string
	log     *logger.Logger

	tp      *sdktrace.TracerProvider
	mp      *sdkmetric.MeterProvider
	metrics *AuthMetrics
}

var _ component.Component = (*Telemetry)(nil)

// NewTelemetry creates the telemetry component.
func NewTelemetry(cfg Config, service, version string, log *logger.Logger) *Telemetry {
	cfg.ApplyDefaults()
	return &Telemetry{cfg: cfg, service: service, version: version, log: logger.OrNop(log).WithComponent("telemetry")}
}

// Name implements component.Component.
func (t *Telemetry) Name() string { return "telemetry" }

// Start initializes exporters when enabled and creates the instruments.
// Hosts that need the instruments before other components are built may
// call Start early; later calls are no-ops.
func (t *Telemetry) Start(ctx context.Context) error {
	if t.metrics != nil {
		return nil
	}
	if !t.cfg.Enabled {
		m, err := NewAuthMetrics(noop.NewMeterProvider().Meter(defaultTracerName))
		t.metrics = m
		return err
	}

	tc := DefaultTracerConfig(t.service)
	tc.ServiceVersion, tc.Environment = t.version, t.cfg.Environment
	tc.Endpoint, tc.Insecure, tc.SampleRate = t.cfg.Endpoint, t.cfg.Insecure, t.cfg.SampleRate
	tp, err := InitTracer(ctx, tc)
	if err != nil {
		return err
	}
	t.tp = tp

	mc := DefaultMeterConfig(t.service)
	mc.ServiceVersion, mc.Environment = t.version, t.cfg.Environment
	mc.Endpoint, mc.Insecure, mc.Interval = t.cfg.Endpoint, t.cfg.Insecure, t.cfg.Interval
	mp, err := InitMeter(ctx, mc)
	if err != nil {
		return err
	}
	t.mp = mp

	t.metrics, err = NewAuthMetrics(Meter(defaultTracerName))
	if err != nil {
		return err
	}
	t.log.Info("telemetry exporting", logger.Fields("endpoint", t.cfg.Endpoint, "sample_rate", t.cfg.SampleRate))
	return nil
}

// Stop flushes and shuts down the providers.
func (t *Telemetry) Stop(ctx context.Context) error {
	var errs []error
	if t.tp != nil {
		errs = append(errs, t.tp.Shutdown(ctx))
	}
	if t.mp != nil {
		errs = append(errs, t.mp.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// Health implements component.Component.
func (t *Telemetry) Health(ctx context.Context) component.Health {
	msg := "disabled"
	if t.cfg.Enabled {
		msg = "exporting to " + t.cfg.Endpoint
	}
	return component.Health{Name: t.Name(), Status: component.StatusHealthy, Message: msg}
}

// Metrics returns the instruments created by Start, or nil before Start.
func (t *Telemetry) Metrics() *AuthMetrics { return t.metrics }
