// Package preflight provides readiness checks for the filesystem paths,
// database, session store and subprocesses fingerid depends on.
//
// The CLI "fingerid doctor" command runs RunAll and renders the results;
// individual checks are exported so callers can report a single concern.
// Checks for optional features are skipped when the feature is disabled.
package preflight
