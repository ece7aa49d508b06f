package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the OTLP meter provider and installs it globally.
// The provider should be shut down on application exit.
func InitMeter(ctx context.Context, config MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeHit     = "hit"
	OutcomeMiss    = "miss"
)

// AuthMetrics holds the instruments recorded by the realm, directory and
// refresh packages. All methods are safe on a nil receiver.
type AuthMetrics struct {
	cacheLookups      metric.Int64Counter
	directoryRequests metric.Int64Counter
	directoryDuration metric.Float64Histogram
	refreshDecisions  metric.Int64Counter
	loginAttempts     metric.Int64Counter
}

// NewAuthMetrics creates the instruments on meter.
func NewAuthMetrics(meter metric.Meter) (*AuthMetrics, error) {
	cacheLookups, err := meter.Int64Counter("realmauth.cache.lookups",
		metric.WithDescription("Validity cache lookups by store and result"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating cache.lookups counter: %w", err)
	}

	directoryRequests, err := meter.Int64Counter("realmauth.directory.requests",
		metric.WithDescription("Directory lookups by operation and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating directory.requests counter: %w", err)
	}

	directoryDuration, err := meter.Float64Histogram("realmauth.directory.duration",
		metric.WithDescription("Duration of directory lookups that reached the network"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating directory.duration histogram: %w", err)
	}

	refreshDecisions, err := meter.Int64Counter("realmauth.refresh.decisions",
		metric.WithDescription("Refresh interceptor decisions by state"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating refresh.decisions counter: %w", err)
	}

	loginAttempts, err := meter.Int64Counter("realmauth.login.attempts",
		metric.WithDescription("Login attempts by flow and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating login.attempts counter: %w", err)
	}

	return &AuthMetrics{
		cacheLookups:      cacheLookups,
		directoryRequests: directoryRequests,
		directoryDuration: directoryDuration,
		refreshDecisions:  refreshDecisions,
		loginAttempts:     loginAttempts,
	}, nil
}

// RecordCacheLookup counts a cache read.
func (m *AuthMetrics) RecordCacheLookup(ctx context.Context, store string, hit bool) {
	if m == nil {
		return
	}
	result := OutcomeMiss
	if hit {
		result = OutcomeHit
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("store", store),
		attribute.String("result", result),
	))
}

// RecordDirectoryRequest counts a directory lookup. A zero duration means
// the lookup was answered from cache and is not recorded in the histogram.
func (m *AuthMetrics) RecordDirectoryRequest(ctx context.Context, op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.directoryRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
	if d > 0 {
		m.directoryDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("op", op)))
	}
}

// RecordRefreshDecision counts one interceptor decision.
func (m *AuthMetrics) RecordRefreshDecision(ctx context.Context, state string) {
	if m == nil {
		return
	}
	m.refreshDecisions.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

// RecordLogin counts a login attempt.
func (m *AuthMetrics) RecordLogin(ctx context.Context, flow, outcome string) {
	if m == nil {
		return
	}
	m.loginAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow", flow),
		attribute.String("outcome", outcome),
	))
}
