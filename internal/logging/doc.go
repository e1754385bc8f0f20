// Package logging assembles structured slog loggers and formatting helpers used
// across fingerid services.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so request handlers and the
// verification pipeline tag every line with the correlation ID, identity and
// protocol in play. A no-op logger is provided for tests and wiring code that
// cannot fail.
package logging
