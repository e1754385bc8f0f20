package api

import (
	"fmt"
	"path"
	"time"

	"fingerid/internal/oracle"
	"fingerid/internal/store"
	"fingerid/internal/verification"
)

// FromIdentity converts a store identity to its API representation.
func FromIdentity(identity *store.Identity) User {
	if identity == nil {
		return User{}
	}
	return User{
		ID:        identity.ID,
		Username:  identity.Username,
		RealName:  identity.RealName,
		Email:     identity.Email,
		Phone:     identity.Phone,
		Role:      string(identity.Role),
		Status:    string(identity.Status),
		Reason:    identity.Reason,
		CreatedAt: formatTime(identity.CreatedAt),
		UpdatedAt: formatTime(identity.UpdatedAt),
	}
}

// FromIdentities converts a slice of identities. The result is never nil so
// it encodes as an empty JSON array.
func FromIdentities(identities []*store.Identity) []User {
	out := make([]User, 0, len(identities))
	for _, identity := range identities {
		out = append(out, FromIdentity(identity))
	}
	return out
}

// FeatureNames lists the stored image names of an enrollment.
func FeatureNames(e *store.Enrollment) *Features {
	return features(e, func(name string) string { return name })
}

// FeatureURLs lists the enrollment images as paths under urlPrefix.
func FeatureURLs(e *store.Enrollment, urlPrefix string) *Features {
	return features(e, func(name string) string { return path.Join(urlPrefix, name) })
}

func features(e *store.Enrollment, ref func(string) string) *Features {
	if e == nil {
		return nil
	}
	return &Features{
		FingerprintPath: ref(e.Images.Fingerprint),
		VeinAugPath:     ref(e.Images.VeinAug),
		VeinBinPath:     ref(e.Images.VeinBin),
		KnucklePath:     ref(e.Images.Knuckle),
		CreatedAt:       formatTime(e.CreatedAt),
		UpdatedAt:       formatTime(e.UpdatedAt),
	}
}

// FromAuditRecords converts approver decisions.
func FromAuditRecords(records []store.AuditRecord) []AuditRecord {
	out := make([]AuditRecord, 0, len(records))
	for _, r := range records {
		out = append(out, AuditRecord{
			ID:         r.ID,
			ApproverID: r.ApproverID,
			Action:     r.Action,
			Reason:     r.Reason,
			CreatedAt:  formatTime(r.CreatedAt),
		})
	}
	return out
}

// FromSimilarity reports a model verdict alongside the decision reached.
func FromSimilarity(result oracle.Result, decision verification.Decision) *Recognition {
	return &Recognition{
		IsMatch:              result.IsMatch,
		Confidence:           result.Confidence,
		MatchProbability:     result.MatchProbability,
		DifferentProbability: result.DifferentProbability,
		ModelLoaded:          result.ModelLoaded,
		Threshold:            verification.Threshold,
		Reason:               decision.Reason,
	}
}

// FromLogin builds the success payload of a login outcome.
func FromLogin(out *verification.Outcome) LoginResponse {
	resp := LoginResponse{
		Token:     out.Token.Value,
		ExpiresAt: formatTime(out.Token.ExpiresAt),
		User:      FromIdentity(out.Identity),
	}
	if out.Similarity != nil {
		resp.Recognition = FromSimilarity(*out.Similarity, out.Decision)
		resp.Message = fmt.Sprintf("biometric verification passed (confidence %.2f%%)", out.Similarity.Confidence*100)
	}
	return resp
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
