// Package notifications pushes approver-facing account events to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers publish unconditionally and treat delivery failures as warnings.
package notifications
