// Package ipc exposes a running daemon over JSON-RPC on a Unix socket and
// ships the matching client used by the CLI.
//
// The socket lives in the data directory and is only reachable by local
// users with access to it, so calls carry no session token.
package ipc
