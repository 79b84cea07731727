// Package logging provides structured diagnostics for gh-grep.
//
// Diagnostics are strictly separate from grep results: results go to
// stdout through the output package, while everything logged here goes to
// stderr (or any writer handed to NewLogger). A run that finds nothing
// and hits no errors prints nothing on stderr at the default level.
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	cfg.Level = zapcore.DebugLevel
//	logger, err := logging.NewLogger(cfg, os.Stderr)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, uuid.NewString())
//	ctx = logging.WithLogger(ctx, logger)
//	logger.Debug(ctx, "fetching tree", zap.String("repo", "octo/hello"))
//
// Every entry carries the run ID and, when a span is active, the
// OpenTelemetry trace and span IDs.
//
// # Secret Redaction
//
// Tokens are config.Secret values and never print. The encoder also
// redacts well-known sensitive field names and bearer-style patterns, so
// an Authorization header that slips into a field is still masked.
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	tl.Warn(ctx, "file skipped", zap.String("path", "a.go"))
//	tl.AssertLogged(t, zapcore.WarnLevel, "file skipped")
package logging
