// Command fingerid runs the biometric identity daemon and offers operator
// tooling around it: configuration scaffolding, account administration
// against the local database, image digest inspection, readiness checks,
// log tailing and status/stop over the daemon's control socket.
//
// Environment variables from a .env file in the working directory are loaded
// before configuration, so FINGERID_JWT_SECRET and friends can live there.
package main
