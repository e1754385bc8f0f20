// Package api defines the wire-format types of the HTTP API and the
// converters from internal store, oracle and verification models.
//
// DTOs use camelCase JSON tags for browser consumers. Roles and statuses are
// passed through as their upper-case enum names. Timestamps use RFC3339 with
// milliseconds in UTC. Password hashes never appear in any DTO.
//
// Enrollment image references come in two shapes: bare stored names
// (FeatureNames, for the account's own view) and URLs under the uploads route
// (Features, for rendering).
package api
