// Package logger provides structured logging for vos-server and vos-cli.
//
// It configures log/slog handlers for the process:
//
//   - logger.go: handler construction and the runtime-adjustable level
//   - context.go: request scoped loggers and request ids
//   - redact.go: masking of credentials in attributes
//
// Engine packages take a plain *slog.Logger; this package only decides
// how records are rendered and filtered.
package logger
