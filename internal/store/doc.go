// Package store persists identities, biometric enrollments, approver audit
// records and superuser operation logs.
//
// SQLite (modernc.org/sqlite) is the default backend; Postgres (lib/pq) is
// selected through configuration. Queries are written once with `?`
// placeholders and rebound per driver by sqlx. Each backend has its own
// embedded migration directory, recorded in schema_migrations.
//
// The enrollment_digests table indexes every digest of every enrollment under
// a primary key. That key is what keeps a digest from belonging to two
// identities, even when two enrollments race.
package store
