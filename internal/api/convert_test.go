package api

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"fingerid/internal/biometric"
	"fingerid/internal/oracle"
	"fingerid/internal/session"
	"fingerid/internal/store"
	"fingerid/internal/verification"
)

func TestFromIdentityOmitsCredentials(t *testing.T) {
	created := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	user := FromIdentity(&store.Identity{
		ID:           9,
		Username:     "alice",
		PasswordHash: "$2a$10$secret",
		Role:         store.RoleApprover,
		Status:       store.StatusApproved,
		CreatedAt:    created,
	})
	data, err := json.Marshal(user)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "secret") {
		t.Fatalf("password hash leaked: %s", data)
	}
	if user.CreatedAt != "2026-03-04T05:06:07.000Z" {
		t.Fatalf("createdAt = %q", user.CreatedAt)
	}
	if user.Role != "APPROVER" {
		t.Fatalf("role = %q", user.Role)
	}
}

func TestFeatureViews(t *testing.T) {
	e := &store.Enrollment{Images: biometric.ImageSet{
		Fingerprint: "fingerprint-a.png",
		VeinAug:     "vein_aug-b.png",
		VeinBin:     "vein_bin-c.png",
		Knuckle:     "knuckle-d.png",
	}}
	if got := FeatureNames(e).VeinBinPath; got != "vein_bin-c.png" {
		t.Fatalf("name = %q", got)
	}
	if got := FeatureURLs(e, "/uploads").KnucklePath; got != "/uploads/knuckle-d.png" {
		t.Fatalf("url = %q", got)
	}
	if FeatureNames(nil) != nil {
		t.Fatal("nil enrollment should map to nil")
	}
}

func TestFromLoginIncludesRecognition(t *testing.T) {
	result := oracle.Result{IsMatch: true, Confidence: 0.75, MatchProbability: 0.75, DifferentProbability: 0.25, ModelLoaded: true}
	resp := FromLogin(&verification.Outcome{
		Identity:   &store.Identity{ID: 1, Username: "bob"},
		Similarity: &result,
		Decision:   verification.Decision{Accepted: true},
		Token:      session.Token{Value: "tok", ExpiresAt: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)},
	})
	if resp.Token != "tok" || resp.Recognition == nil || resp.Recognition.Threshold != verification.Threshold {
		t.Fatalf("unexpected response %+v", resp)
	}
	if FromIdentities(nil) == nil {
		t.Fatal("FromIdentities must not return nil")
	}
}
