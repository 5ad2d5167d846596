// Package log builds the slog loggers used across somnia-auditor.
//
// Loggers returned by NewSecureLogger wrap the standard text or JSON handler
// in a SecureHandler, which masks attributes that look like credentials
// before they are written. This matters because the tool logs subprocess
// command lines, tool stderr and HTTP request metadata, any of which may
// carry an OpenAI key, a registry token or an RPC URL with an embedded key.
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
//	logger.Debug("calling assistant", "api_key", key) // api_key=***REDACTED***
package log
