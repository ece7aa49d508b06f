// Package observability provides OpenTelemetry tracing and metrics for
// realmauth.
//
// AuthMetrics counts cache lookups, directory requests, refresh decisions
// and login attempts. A nil *AuthMetrics is valid and records nothing, so
// core packages take it as an optional dependency.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("realmd"))
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, observability.SpanDirectoryRoles)
//	defer span.End()
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, observability.DefaultMeterConfig("realmd"))
//	metrics, err := observability.NewAuthMetrics(observability.Meter("realmauth"))
//	metrics.RecordLogin(ctx, "password", "success")
package observability
