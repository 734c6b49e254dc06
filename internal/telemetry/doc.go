// Package telemetry provides OpenTelemetry tracing and metrics export for
// contextkeeper.
//
// Telemetry is disabled by default. When enabled it installs global tracer
// and meter providers that export over OTLP (gRPC or HTTP/protobuf):
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
// Provider failures degrade to no-op instrumentation instead of failing
// startup. NewTestTelemetry records spans and metrics in memory for tests.
package telemetry
