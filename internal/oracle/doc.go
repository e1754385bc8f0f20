// Package oracle invokes the external multi-modal similarity model.
//
// One comparison is one subprocess: the enrolled and submitted image of each
// of the four modalities are passed as paired flags, and the model prints a
// single JSON object describing its decision. The call is bounded by a hard
// deadline and is never retried. Timeouts surface as services.ErrOracleTimeout;
// every other failure (non-zero exit, unparseable or out-of-range output, an
// error reported by the model) surfaces as services.ErrOracleError.
//
// The client never removes the image files it is given; cleanup belongs to
// the caller that created them.
package oracle
