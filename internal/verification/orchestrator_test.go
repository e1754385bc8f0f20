package verification_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"fingerid/internal/binarize"
	"fingerid/internal/biometric"
	"fingerid/internal/config"
	"fingerid/internal/enrollment"
	"fingerid/internal/identity"
	"fingerid/internal/oracle"
	"fingerid/internal/services"
	"fingerid/internal/session"
	"fingerid/internal/store"
	"fingerid/internal/testsupport"
	"fingerid/internal/verification"
)

type stubOracle struct {
	mu        sync.Mutex
	result    oracle.Result
	err       error
	calls     int
	submitted biometric.ImageSet
	present   bool
}

func (s *stubOracle) Compare(_ context.Context, enrolled, submitted biometric.ImageSet) (oracle.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.submitted = submitted
	s.present = true
	for _, path := range append(enrolled.Paths(), submitted.Paths()...) {
		if !testsupport.Exists(path) {
			s.present = false
		}
	}
	return s.result, s.err
}

type recordingObserver struct {
	states []verification.State
}

func (r *recordingObserver) ObserveVerification(_ string, state verification.State) {
	r.states = append(r.states, state)
}

type harness struct {
	cfg      *config.Config
	store    *store.Store
	ids      *identity.Service
	mgr      *enrollment.Manager
	issuer   *session.Issuer
	oracle   *stubOracle
	observer *recordingObserver
	orch     *verification.Orchestrator
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)
	mgr := enrollment.NewManager(st, cfg.Paths.UploadDir)
	ids := identity.NewService(st, mgr, identity.WithBcryptCost(4))
	issuer, err := session.NewIssuer(cfg.Auth.JWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	h := &harness{
		cfg:      cfg,
		store:    st,
		ids:      ids,
		mgr:      mgr,
		issuer:   issuer,
		oracle:   &stubOracle{result: oracle.Result{IsMatch: true, Confidence: 0.9, MatchProbability: 0.9, DifferentProbability: 0.1, ModelLoaded: true}},
		observer: &recordingObserver{},
	}
	h.orch, err = verification.NewOrchestrator(verification.Dependencies{
		Auth:        ids,
		Enrollments: mgr,
		Index:       enrollment.NewIndex(st),
		Oracle:      h.oracle,
		Sessions:    issuer,
		Completer:   binarize.NewFromConfig(cfg),
		TempDir:     cfg.Paths.TempDir,
	}, verification.WithObserver(h.observer))
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return h
}

// enrolled creates an identity with status and enrolls images written with seed.
func (h *harness) enrolled(t *testing.T, username string, status store.Status, seed string) *store.Identity {
	t.Helper()
	user := testsupport.NewIdentity(t, h.store, username, "pw", store.RoleOrdinary, status)
	if _, err := h.mgr.Enroll(context.Background(), user.ID, testsupport.WriteImages(t, h.cfg.Paths.TempDir, seed)); err != nil {
		t.Fatalf("Enroll(%s): %v", username, err)
	}
	return user
}

func (h *harness) submission(t *testing.T, seed string) biometric.ImageSet {
	t.Helper()
	return testsupport.WriteImages(t, filepath.Join(h.cfg.Paths.TempDir, "attempt"), seed)
}

func assertRemoved(t *testing.T, images biometric.ImageSet) {
	t.Helper()
	for _, path := range images.Paths() {
		if testsupport.Exists(path) {
			t.Fatalf("temporary image %s was not removed", path)
		}
	}
}

func TestDigestLoginWithoutImagesIsPasswordOnly(t *testing.T) {
	h := newHarness(t)
	user := testsupport.NewIdentity(t, h.store, "plain", "pw", store.RoleOrdinary, store.StatusApproved)

	out, err := h.orch.LoginWithDigests(context.Background(), verification.Credentials{Username: "plain", Password: "pw"}, biometric.ImageSet{})
	if err != nil {
		t.Fatalf("LoginWithDigests: %v", err)
	}
	if out.State != verification.StateSessionIssued || out.Token.Value == "" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	claims, err := h.issuer.Parse(context.Background(), out.Token.Value)
	if err != nil || claims.UserID != user.ID || claims.LoginMethod != session.MethodPassword {
		t.Fatalf("claims = %+v, err=%v", claims, err)
	}
}

func TestDigestLoginAcceptsOwnImageResubmission(t *testing.T) {
	h := newHarness(t)
	h.enrolled(t, "owner", store.StatusApproved, "owner")

	full := h.submission(t, "owner")
	partial := biometric.ImageSet{Knuckle: full.Knuckle}
	out, err := h.orch.LoginWithDigests(context.Background(), verification.Credentials{Username: "owner", Password: "pw"}, partial)
	if err != nil {
		t.Fatalf("LoginWithDigests: %v", err)
	}
	if out.Token.Value == "" {
		t.Fatal("expected session token")
	}
	assertRemoved(t, partial)
}

func TestDigestLoginRejectsOtherIdentitysImage(t *testing.T) {
	h := newHarness(t)
	h.enrolled(t, "victim", store.StatusApproved, "victim")
	h.enrolled(t, "attacker", store.StatusApproved, "attacker")

	stolen := h.submission(t, "victim")
	out, err := h.orch.LoginWithDigests(context.Background(), verification.Credentials{Username: "attacker", Password: "pw"}, stolen)
	if !errors.Is(err, services.ErrBiometricMismatch) {
		t.Fatalf("expected ErrBiometricMismatch, got %v", err)
	}
	if out.Token.Value != "" || out.FailedAt != verification.StateDigestMatch {
		t.Fatalf("unexpected outcome %+v", out)
	}
	assertRemoved(t, stolen)

	unknown := h.submission(t, "never-enrolled")
	if _, err := h.orch.LoginWithDigests(context.Background(), verification.Credentials{Username: "attacker", Password: "pw"}, unknown); !errors.Is(err, services.ErrBiometricMismatch) {
		t.Fatalf("expected ErrBiometricMismatch for unknown images, got %v", err)
	}
}

func TestDigestLoginStatusGate(t *testing.T) {
	h := newHarness(t)
	testsupport.NewIdentity(t, h.store, "waiting", "pw", store.RoleOrdinary, store.StatusPending)
	rejected := testsupport.NewIdentity(t, h.store, "rejected", "pw", store.RoleOrdinary, store.StatusPending)
	if _, err := h.ids.Review(context.Background(), 0, rejected.ID, identity.ActionReject, "duplicate account"); err != nil {
		t.Fatalf("Review: %v", err)
	}

	if _, err := h.orch.LoginWithDigests(context.Background(), verification.Credentials{Username: "waiting", Password: "pw"}, biometric.ImageSet{}); err != nil {
		t.Fatalf("pending identity should log in: %v", err)
	}

	_, err := h.orch.LoginWithDigests(context.Background(), verification.Credentials{Username: "rejected", Password: "pw"}, biometric.ImageSet{})
	var inactive *services.AccountNotActiveError
	if !errors.As(err, &inactive) || inactive.Status != string(store.StatusRejected) || inactive.Reason != "duplicate account" {
		t.Fatalf("expected AccountNotActiveError with reason, got %v", err)
	}
}

func TestDigestLoginInvalidCredentials(t *testing.T) {
	h := newHarness(t)
	testsupport.NewIdentity(t, h.store, "someone", "pw", store.RoleOrdinary, store.StatusApproved)
	images := h.submission(t, "x")

	_, err := h.orch.LoginWithDigests(context.Background(), verification.Credentials{Username: "someone", Password: "nope"}, images)
	if !errors.Is(err, services.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	assertRemoved(t, images)
}

func TestSimilarityLoginAcceptsAtThreshold(t *testing.T) {
	h := newHarness(t)
	user := h.enrolled(t, "alice", store.StatusApproved, "alice")
	h.oracle.result = oracle.Result{IsMatch: true, Confidence: 0.6, MatchProbability: 0.6, DifferentProbability: 0.4, ModelLoaded: true}

	submitted := h.submission(t, "alice-live")
	out, err := h.orch.LoginWithSimilarity(context.Background(), verification.Credentials{Username: "alice", Password: "pw"}, submitted)
	if err != nil {
		t.Fatalf("LoginWithSimilarity: %v", err)
	}
	if out.State != verification.StateSessionIssued || !out.Decision.Accepted {
		t.Fatalf("unexpected outcome %+v", out)
	}
	claims, err := h.issuer.Parse(context.Background(), out.Token.Value)
	if err != nil || claims.UserID != user.ID || claims.Role != string(store.RoleOrdinary) || claims.LoginMethod != session.MethodBiometric {
		t.Fatalf("claims = %+v, err=%v", claims, err)
	}
	if !h.oracle.present {
		t.Fatal("oracle ran without every image on disk")
	}
	assertRemoved(t, submitted)
	if len(h.observer.states) != 1 || h.observer.states[0] != verification.StateSessionIssued {
		t.Fatalf("observer states = %v", h.observer.states)
	}
}

func TestSimilarityLoginRejectsJustBelowThreshold(t *testing.T) {
	h := newHarness(t)
	h.enrolled(t, "alice", store.StatusApproved, "alice")
	h.oracle.result = oracle.Result{IsMatch: true, Confidence: 0.5999, MatchProbability: 0.5999, DifferentProbability: 0.4001, ModelLoaded: true}

	submitted := h.submission(t, "alice-live")
	out, err := h.orch.LoginWithSimilarity(context.Background(), verification.Credentials{Username: "alice", Password: "pw"}, submitted)
	var reject *verification.RejectError
	if !errors.As(err, &reject) || reject.Reason != verification.ReasonBelowThreshold {
		t.Fatalf("expected below-threshold RejectError, got %v", err)
	}
	if reject.Result.MatchProbability != 0.5999 {
		t.Fatalf("reject should carry probabilities, got %+v", reject.Result)
	}
	if out.State != verification.StateRejected || out.Token.Value != "" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	assertRemoved(t, submitted)
}

func TestSimilarityLoginModelSaysNoMatch(t *testing.T) {
	h := newHarness(t)
	h.enrolled(t, "alice", store.StatusApproved, "alice")
	h.oracle.result = oracle.Result{IsMatch: false, Confidence: 0.92, MatchProbability: 0.08, DifferentProbability: 0.92, ModelLoaded: true}

	_, err := h.orch.LoginWithSimilarity(context.Background(), verification.Credentials{Username: "alice", Password: "pw"}, h.submission(t, "imposter"))
	var reject *verification.RejectError
	if !errors.As(err, &reject) || reject.Reason != verification.ReasonNoMatch {
		t.Fatalf("expected no-match RejectError, got %v", err)
	}
}

func TestRejectedLoginDecisionIsAlerted(t *testing.T) {
	h := newHarness(t)
	h.enrolled(t, "alice", store.StatusApproved, "alice")
	h.oracle.result = oracle.Result{IsMatch: false, Confidence: 0.92, MatchProbability: 0.08, DifferentProbability: 0.92, ModelLoaded: true}

	var buf bytes.Buffer
	orch, err := verification.NewOrchestrator(verification.Dependencies{
		Auth:        h.ids,
		Enrollments: h.mgr,
		Index:       enrollment.NewIndex(h.store),
		Oracle:      h.oracle,
		Sessions:    h.issuer,
		TempDir:     h.cfg.Paths.TempDir,
	}, verification.WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))))
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	if _, err := orch.LoginWithSimilarity(context.Background(), verification.Credentials{Username: "alice", Password: "pw"}, h.submission(t, "imposter")); err == nil {
		t.Fatal("expected rejection")
	}

	var decision map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var record map[string]any
		if err := json.Unmarshal(line, &record); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		if record["msg"] == "login decision" {
			decision = record
		}
	}
	if decision == nil {
		t.Fatalf("no login decision logged: %s", buf.String())
	}
	if decision["level"] != "WARN" || decision["alert"] != "login_rejected" {
		t.Fatalf("decision record not flagged: %v", decision)
	}
}

func TestSimilarityLoginRequiresAllImages(t *testing.T) {
	h := newHarness(t)
	h.enrolled(t, "alice", store.StatusApproved, "alice")

	submitted := h.submission(t, "alice-live")
	partial := submitted
	partial.VeinBin = ""
	_, err := h.orch.LoginWithSimilarity(context.Background(), verification.Credentials{Username: "alice", Password: "wrong"}, partial)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation ahead of credential check, got %v", err)
	}
	if h.oracle.calls != 0 {
		t.Fatal("oracle must not run for incomplete submissions")
	}
	assertRemoved(t, partial)
}

func TestSimilarityLoginStatusGateCarriesStatus(t *testing.T) {
	h := newHarness(t)
	h.enrolled(t, "pending", store.StatusPending, "pending")

	out, err := h.orch.LoginWithSimilarity(context.Background(), verification.Credentials{Username: "pending", Password: "pw"}, h.submission(t, "p"))
	var inactive *services.AccountNotActiveError
	if !errors.As(err, &inactive) || inactive.Status != string(store.StatusPending) {
		t.Fatalf("expected AccountNotActiveError(PENDING), got %v", err)
	}
	if out.FailedAt != verification.StateStatusGate || h.oracle.calls != 0 {
		t.Fatalf("unexpected outcome %+v calls=%d", out, h.oracle.calls)
	}
}

func TestSimilarityLoginWithoutEnrollment(t *testing.T) {
	h := newHarness(t)
	testsupport.NewIdentity(t, h.store, "bare", "pw", store.RoleOrdinary, store.StatusApproved)

	submitted := h.submission(t, "bare")
	_, err := h.orch.LoginWithSimilarity(context.Background(), verification.Credentials{Username: "bare", Password: "pw"}, submitted)
	if !errors.Is(err, services.ErrNoEnrollment) {
		t.Fatalf("expected ErrNoEnrollment, got %v", err)
	}
	assertRemoved(t, submitted)
}

func TestSimilarityLoginOracleTimeoutIssuesNothing(t *testing.T) {
	h := newHarness(t)
	h.enrolled(t, "alice", store.StatusApproved, "alice")
	h.oracle.err = services.Wrap(services.ErrOracleTimeout, "oracle", "compare", "exceeded 30s", context.DeadlineExceeded)

	submitted := h.submission(t, "alice-live")
	out, err := h.orch.LoginWithSimilarity(context.Background(), verification.Credentials{Username: "alice", Password: "pw"}, submitted)
	if !errors.Is(err, services.ErrOracleTimeout) {
		t.Fatalf("expected ErrOracleTimeout, got %v", err)
	}
	if out.Token.Value != "" || out.FailedAt != verification.StateOracleCall {
		t.Fatalf("unexpected outcome %+v", out)
	}
	assertRemoved(t, submitted)
}

func TestSimilarityLoginInvalidCredentials(t *testing.T) {
	h := newHarness(t)
	h.enrolled(t, "alice", store.StatusApproved, "alice")

	submitted := h.submission(t, "alice-live")
	_, err := h.orch.LoginWithSimilarity(context.Background(), verification.Credentials{Username: "mallory", Password: "pw"}, submitted)
	if !errors.Is(err, services.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	assertRemoved(t, submitted)
}

func TestSimilarityLoginDerivesBinaryVein(t *testing.T) {
	h := newHarness(t, testsupport.WithBinarize())
	h.enrolled(t, "alice", store.StatusApproved, "alice")

	submitted := h.submission(t, "alice-live")
	submitted.VeinBin = ""
	if _, err := h.orch.LoginWithSimilarity(context.Background(), verification.Credentials{Username: "alice", Password: "pw"}, submitted); err != nil {
		t.Fatalf("LoginWithSimilarity: %v", err)
	}
	derived := h.oracle.submitted.VeinBin
	if derived == "" || filepath.Dir(derived) != h.cfg.Paths.TempDir {
		t.Fatalf("derived vein_bin = %q", derived)
	}
	if !h.oracle.present {
		t.Fatal("derived image missing when oracle ran")
	}
	if testsupport.Exists(derived) {
		t.Fatal("derived image should be removed with the attempt")
	}
}

func TestSimilarityLoginWithRealOracleScript(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithOracleOutput(`{"success":true,"is_match":true,"match_probability":0.7,"different_probability":0.3,"confidence":0.7,"model_loaded":true}`))
	st := testsupport.MustOpenStore(t, cfg)
	mgr := enrollment.NewManager(st, cfg.Paths.UploadDir)
	ids := identity.NewService(st, mgr, identity.WithBcryptCost(4))
	issuer, _ := session.NewIssuer(cfg.Auth.JWTSecret, time.Hour)
	client, err := oracle.NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("oracle.NewFromConfig: %v", err)
	}
	orch, err := verification.NewOrchestrator(verification.Dependencies{
		Auth: ids, Enrollments: mgr, Index: enrollment.NewIndex(st), Oracle: client, Sessions: issuer, TempDir: cfg.Paths.TempDir,
	})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	user := testsupport.NewIdentity(t, st, "real", "pw", store.RoleOrdinary, store.StatusApproved)
	if _, err := mgr.Enroll(context.Background(), user.ID, testsupport.WriteImages(t, cfg.Paths.TempDir, "real")); err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	submitted := testsupport.WriteImages(t, cfg.Paths.TempDir, "real-live")
	out, err := orch.LoginWithSimilarity(context.Background(), verification.Credentials{Username: "real", Password: "pw"}, submitted)
	if err != nil {
		t.Fatalf("LoginWithSimilarity: %v", err)
	}
	if out.Similarity == nil || out.Similarity.Confidence != 0.7 {
		t.Fatalf("unexpected similarity %+v", out.Similarity)
	}
	assertRemoved(t, submitted)
}
