// Package verification sequences biometric logins.
//
// Two protocols are supported. The digest protocol backs the plain login
// endpoint: after the password check, any submitted images must be exact
// byte copies of images enrolled to the same identity, and submitting none
// skips the factor. The similarity protocol backs the biometric login
// endpoint and runs a fixed state machine:
//
//	AUTHENTICATING -> STATUS_GATE -> ENROLLMENT_LOOKUP -> ORACLE_CALL -> DECISION -> SESSION_ISSUED | REJECTED
//
// Any error ends the attempt in FAILED at the state that raised it. Nothing
// is retried. Submitted images are temporary files owned by the attempt and
// are removed on every exit path.
package verification
