// Package logger provides structured logging functionality for the application
// using Go's standard library log/slog package. It configures the process-wide
// JSON logger, optionally fans records out to additional handlers (such as the
// OpenTelemetry log bridge), and carries request-scoped loggers in contexts.
package logger
