package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"fingerid/internal/biometric"
	"fingerid/internal/contentid"
	"fingerid/internal/fileutil"
	"fingerid/internal/logging"
	"fingerid/internal/oracle"
	"fingerid/internal/services"
	"fingerid/internal/session"
	"fingerid/internal/store"
)

// Protocol names.
const (
	ProtocolDigest     = "digest"
	ProtocolSimilarity = "similarity"
)

// State is a step of a verification attempt.
type State string

const (
	StateAuthenticating   State = "AUTHENTICATING"
	StateStatusGate       State = "STATUS_GATE"
	StateEnrollmentLookup State = "ENROLLMENT_LOOKUP"
	StateDigestMatch      State = "DIGEST_MATCH"
	StateOracleCall       State = "ORACLE_CALL"
	StateDecision         State = "DECISION"
	StateSessionIssued    State = "SESSION_ISSUED"
	StateRejected         State = "REJECTED"
	StateFailed           State = "FAILED"
)

// Credentials are the username and password of a login attempt.
type Credentials struct {
	Username string
	Password string
}

// Outcome describes how an attempt ended. Identity is set once the password
// check passed; Similarity once the model answered.
type Outcome struct {
	Protocol   string
	State      State
	FailedAt   State
	Identity   *store.Identity
	Similarity *oracle.Result
	Decision   Decision
	Token      session.Token
}

// Authenticator verifies passwords.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*store.Identity, error)
}

// Enrollments resolves stored enrollments.
type Enrollments interface {
	Get(ctx context.Context, identityID int64) (*store.Enrollment, error)
	Paths(e *store.Enrollment) biometric.ImageSet
}

// DigestIndex resolves digests to their owning identity.
type DigestIndex interface {
	Lookup(ctx context.Context, digests []string) (int64, bool, error)
}

// Issuer signs session tokens.
type Issuer interface {
	Issue(ctx context.Context, subject session.Subject, method string) (session.Token, error)
}

// Completer derives missing images, such as the binary vein image.
type Completer interface {
	Enabled() bool
	Complete(ctx context.Context, images *biometric.ImageSet, dir string) error
}

// Observer receives the terminal state of every attempt.
type Observer interface {
	ObserveVerification(protocol string, state State)
}

// Dependencies wires the orchestrator.
type Dependencies struct {
	Auth        Authenticator
	Enrollments Enrollments
	Index       DigestIndex
	Oracle      oracle.Comparer
	Sessions    Issuer
	Completer   Completer
	TempDir     string
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logging.NewComponentLogger(logger, "verification")
	}
}

// WithObserver reports attempt outcomes to obs.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		o.observer = obs
	}
}

// Orchestrator runs verification attempts.
type Orchestrator struct {
	deps     Dependencies
	logger   *slog.Logger
	observer Observer
}

// NewOrchestrator validates deps and constructs an orchestrator.
func NewOrchestrator(deps Dependencies, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.Auth == nil:
		return nil, errors.New("verification: authenticator required")
	case deps.Enrollments == nil:
		return nil, errors.New("verification: enrollments required")
	case deps.Index == nil:
		return nil, errors.New("verification: digest index required")
	case deps.Oracle == nil:
		return nil, errors.New("verification: similarity oracle required")
	case deps.Sessions == nil:
		return nil, errors.New("verification: session issuer required")
	}
	if deps.TempDir == "" {
		deps.TempDir = os.TempDir()
	}
	o := &Orchestrator{
		deps:   deps,
		logger: logging.NewComponentLogger(nil, "verification"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// LoginWithDigests runs the digest protocol. submitted may hold zero to four
// images; each present image must be byte-identical to an image enrolled to
// the authenticating identity.
func (o *Orchestrator) LoginWithDigests(ctx context.Context, creds Credentials, submitted biometric.ImageSet) (*Outcome, error) {
	ctx = services.WithProtocol(ctx, ProtocolDigest)
	attempt := o.begin(ctx, ProtocolDigest, submitted)
	defer attempt.cleanup()

	attempt.enter(StateAuthenticating)
	identity, err := o.deps.Auth.Authenticate(ctx, creds.Username, creds.Password)
	if err != nil {
		return attempt.fail(err)
	}
	attempt.outcome.Identity = identity
	ctx = services.WithIdentityID(ctx, identity.ID)
	attempt.ctx = ctx

	if !submitted.Empty() {
		attempt.enter(StateDigestMatch)
		digests, err := contentid.Set(submitted)
		if err != nil {
			return attempt.fail(services.Wrap(services.ErrValidation, "verification", "digest login", "unreadable image", err))
		}
		owner, found, err := o.deps.Index.Lookup(ctx, digests.Values())
		if err != nil {
			return attempt.fail(err)
		}
		if !found || owner != identity.ID {
			return attempt.fail(services.Wrap(services.ErrBiometricMismatch, "verification", "digest login", "submitted images are not enrolled to this identity", nil))
		}
	}

	attempt.enter(StateStatusGate)
	if identity.Status == store.StatusRejected || identity.Status == store.StatusDisabled {
		return attempt.fail(&services.AccountNotActiveError{Status: string(identity.Status), Reason: identity.Reason})
	}

	return attempt.issue(o.deps.Sessions, session.MethodPassword)
}

// LoginWithSimilarity runs the similarity protocol.
func (o *Orchestrator) LoginWithSimilarity(ctx context.Context, creds Credentials, submitted biometric.ImageSet) (*Outcome, error) {
	ctx = services.WithProtocol(ctx, ProtocolSimilarity)
	attempt := o.begin(ctx, ProtocolSimilarity, submitted)
	defer attempt.cleanup()

	if err := submitted.Require(o.requiredFields()); err != nil {
		return attempt.fail(services.Wrap(services.ErrValidation, "verification", "similarity login", err.Error(), nil))
	}

	attempt.enter(StateAuthenticating)
	identity, err := o.deps.Auth.Authenticate(ctx, creds.Username, creds.Password)
	if err != nil {
		return attempt.fail(err)
	}
	attempt.outcome.Identity = identity
	ctx = services.WithIdentityID(ctx, identity.ID)
	attempt.ctx = ctx

	attempt.enter(StateStatusGate)
	if identity.Status != store.StatusApproved {
		return attempt.fail(&services.AccountNotActiveError{Status: string(identity.Status), Reason: identity.Reason})
	}

	attempt.enter(StateEnrollmentLookup)
	enrolled, err := o.deps.Enrollments.Get(ctx, identity.ID)
	if err != nil {
		return attempt.fail(err)
	}
	if enrolled == nil {
		return attempt.fail(services.Wrap(services.ErrNoEnrollment, "verification", "similarity login", fmt.Sprintf("identity %d", identity.ID), nil))
	}

	attempt.enter(StateOracleCall)
	if o.deps.Completer != nil && submitted.VeinBin == "" {
		if err := o.deps.Completer.Complete(ctx, &submitted, o.deps.TempDir); err != nil {
			return attempt.fail(services.Wrap(services.ErrOracleError, "verification", "similarity login", "derive binary vein image", err))
		}
		attempt.track(submitted.VeinBin)
	}
	// A client that disconnects does not abort the comparison; only the
	// oracle deadline ends it.
	result, err := o.deps.Oracle.Compare(context.WithoutCancel(ctx), o.deps.Enrollments.Paths(enrolled), submitted)
	if err != nil {
		return attempt.fail(err)
	}
	attempt.outcome.Similarity = &result
	attempt.cleanup()

	attempt.enter(StateDecision)
	decision := Decide(result)
	attempt.outcome.Decision = decision
	if !decision.Accepted {
		return attempt.reject(&RejectError{Reason: decision.Reason, Result: result})
	}

	return attempt.issue(o.deps.Sessions, session.MethodBiometric)
}

func (o *Orchestrator) requiredFields() biometric.FieldSet {
	if o.deps.Completer == nil || !o.deps.Completer.Enabled() {
		return biometric.SimilarityFields
	}
	fields := make(biometric.FieldSet, 0, len(biometric.SimilarityFields))
	for _, m := range biometric.SimilarityFields {
		if m != biometric.VeinBin {
			fields = append(fields, m)
		}
	}
	return fields
}

func (o *Orchestrator) begin(ctx context.Context, protocol string, submitted biometric.ImageSet) *attempt {
	return &attempt{
		o:       o,
		ctx:     ctx,
		files:   submitted.Paths(),
		outcome: &Outcome{Protocol: protocol},
	}
}

type attempt struct {
	o       *Orchestrator
	ctx     context.Context
	files   []string
	cleaned bool
	outcome *Outcome
}

func (a *attempt) enter(state State) {
	a.outcome.State = state
}

func (a *attempt) track(path string) {
	if path != "" {
		a.files = append(a.files, path)
	}
}

// cleanup removes the attempt's temporary images. It is idempotent.
func (a *attempt) cleanup() {
	if a.cleaned {
		return
	}
	a.cleaned = true
	failed, err := fileutil.RemoveFiles(a.files...)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(a.ctx, a.o.logger), "temporary image cleanup failed", "temp_cleanup_failed",
			logging.Any("paths", failed),
			logging.Error(err),
			logging.Alert("orphaned_files"),
			logging.String(logging.FieldImpact, "submitted images left in the temp directory"),
			logging.String(logging.FieldErrorHint, "check temp directory permissions"),
		)
	}
}

func (a *attempt) fail(err error) (*Outcome, error) {
	a.outcome.FailedAt = a.outcome.State
	a.outcome.State = StateFailed
	a.finish("failed", err.Error())
	return a.outcome, err
}

func (a *attempt) reject(err *RejectError) (*Outcome, error) {
	a.outcome.State = StateRejected
	a.finish("rejected", err.Reason)
	return a.outcome, err
}

func (a *attempt) issue(issuer Issuer, method string) (*Outcome, error) {
	identity := a.outcome.Identity
	token, err := issuer.Issue(a.ctx, session.Subject{UserID: identity.ID, Role: string(identity.Role)}, method)
	if err != nil {
		return a.fail(err)
	}
	a.outcome.Token = token
	a.outcome.State = StateSessionIssued
	a.finish("accepted", method)
	return a.outcome, nil
}

func (a *attempt) finish(result, reason string) {
	if a.o.observer != nil {
		a.o.observer.ObserveVerification(a.outcome.Protocol, a.outcome.State)
	}
	attrs := logging.DecisionAttrs("verification", result, reason)
	if a.outcome.FailedAt != "" {
		attrs = append(attrs, logging.String("failed_at", string(a.outcome.FailedAt)))
	}
	if sim := a.outcome.Similarity; sim != nil {
		attrs = append(attrs,
			logging.Bool("is_match", sim.IsMatch),
			logging.Float64("confidence", sim.Confidence),
			logging.Float64("match_probability", sim.MatchProbability),
		)
	}
	logger := logging.WithContext(a.ctx, a.o.logger)
	if result == "accepted" {
		logger.Info("login decision", logging.Args(attrs...)...)
		return
	}
	attrs = append(attrs,
		logging.Alert("login_"+result),
		logging.String(logging.FieldImpact, "no session issued"),
		logging.String(logging.FieldErrorHint, "client must submit a new attempt"),
	)
	logging.WarnWithContext(logger, "login decision", "login_"+result, attrs...)
}
