// Package identity implements the account lifecycle around biometric
// enrollment: self-registration (identity plus enrollment, pending approval),
// password authentication, approver review with an audit trail, and superuser
// administration recorded in the operation log.
package identity
