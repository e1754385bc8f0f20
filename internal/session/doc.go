// Package session issues and validates the signed bearer tokens handed out
// after a successful login, and tracks tokens revoked by logout until they
// would have expired anyway.
package session
