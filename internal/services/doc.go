// Package services defines shared utilities consumed by the HTTP handlers and
// the enrollment and verification pipeline.
//
// Key responsibilities:
//   - Context helpers that stamp identity IDs, protocol names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper, and the mapping from
//     markers to HTTP status codes and client-safe messages.
//
// Use these helpers when wiring new handlers so failure reporting stays
// uniform across the service.
package services
