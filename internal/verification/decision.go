package verification

import (
	"fmt"

	"fingerid/internal/oracle"
	"fingerid/internal/services"
)

// Threshold is the minimum model confidence accepted for a match.
const Threshold = 0.6

// Reject reasons.
const (
	ReasonBelowThreshold = "confidence below threshold"
	ReasonNoMatch        = "model reported no match"
)

// Decision is the accept/reject verdict for one similarity result.
type Decision struct {
	Accepted bool
	Reason   string
}

// Decide accepts iff the model reports a match with confidence of at least
// Threshold. A low confidence is reported ahead of a negative match flag.
func Decide(result oracle.Result) Decision {
	switch {
	case result.IsMatch && result.Confidence >= Threshold:
		return Decision{Accepted: true}
	case result.Confidence < Threshold:
		return Decision{Reason: ReasonBelowThreshold}
	default:
		return Decision{Reason: ReasonNoMatch}
	}
}

// RejectError is returned when the model ran but the decision rejected the
// attempt. It matches services.ErrThresholdReject.
type RejectError struct {
	Reason string
	Result oracle.Result
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("%s: %s (confidence %.4f, threshold %.2f)", services.ErrThresholdReject, e.Reason, e.Result.Confidence, Threshold)
}

func (e *RejectError) Unwrap() error { return services.ErrThresholdReject }
