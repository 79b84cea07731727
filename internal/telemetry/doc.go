// Package telemetry sets up OpenTelemetry tracing for gh-grep.
//
// Spans are exported over OTLP (gRPC or HTTP) to a collector. Tracing is
// off unless enabled in configuration; when off, or when the exporter
// cannot be created, the global no-op tracer stays in place and runs
// proceed untraced.
//
//	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Telemetry, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Use TestTelemetry to record spans in tests:
//
//	tt := telemetry.NewTestTelemetry()
//	defer tt.Install()()
//	// ... run code that starts spans ...
//	tt.AssertSpanExists(t, "grep.run")
package telemetry
