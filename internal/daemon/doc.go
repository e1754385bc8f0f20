// Package daemon runs the long-lived fingerid HTTP service.
//
// It wires configuration, the identity store, the enrollment manager, the
// verification orchestrator and session issuance behind a gin router, with
// flock-based locking so only one daemon serves a data directory. Handlers
// here translate multipart uploads and JSON bodies into service calls and
// map marker errors to HTTP responses; the login and enrollment logic itself
// lives in its own packages.
package daemon
