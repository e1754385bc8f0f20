// Package logs reads the daemon's log files.
//
// Tail returns the newest lines of a log file, optionally waiting for more,
// and Filter narrows JSON log records by level, identity or correlation id.
package logs
