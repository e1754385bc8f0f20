package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"fingerid/internal/biometric"
	"fingerid/internal/enrollment"
	"fingerid/internal/logging"
	"fingerid/internal/notifications"
	"fingerid/internal/services"
	"fingerid/internal/store"
)

const maxUsernameLength = 64

// Review actions.
const (
	ActionApprove = "APPROVE"
	ActionReject  = "REJECT"
)

// Operation log types.
const (
	OpCreate = "CREATE_USER"
	OpUpdate = "UPDATE_USER"
	OpDelete = "DELETE_USER"
)

// Profile carries the optional descriptive fields of an identity.
type Profile struct {
	RealName string
	Email    string
	Phone    string
}

// RegisterInput is a self-registration request.
type RegisterInput struct {
	Username string
	Password string
	Profile
}

// CreateInput is a superuser-created account.
type CreateInput struct {
	Username string
	Password string
	Role     store.Role
	Profile
}

// UpdateInput lists the fields a superuser changes; nil fields are kept.
type UpdateInput struct {
	Password *string
	RealName *string
	Email    *string
	Phone    *string
	Role     *store.Role
	Status   *store.Status
	Reason   *string
}

// Option configures the service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logging.NewComponentLogger(logger, "identity")
	}
}

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.cost = cost
		}
	}
}

// WithNotifier publishes registration and review events to notifier.
func WithNotifier(notifier notifications.Service) Option {
	return func(s *Service) {
		if notifier != nil {
			s.notifier = notifier
		}
	}
}

// Service owns identity records.
type Service struct {
	store       *store.Store
	enrollments *enrollment.Manager
	cost        int
	dummyHash   []byte
	logger      *slog.Logger
	notifier    notifications.Service
}

// NewService constructs the identity service.
func NewService(st *store.Store, enrollments *enrollment.Manager, opts ...Option) *Service {
	s := &Service{
		store:       st,
		enrollments: enrollments,
		cost:        bcrypt.DefaultCost,
		logger:      logging.NewComponentLogger(nil, "identity"),
		notifier:    notifications.NewService(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("fingerid-unknown-user"), s.cost)
	return s
}

// Register creates a PENDING ordinary identity together with its enrollment.
// Nothing is persisted when either part fails.
func (s *Service) Register(ctx context.Context, in RegisterInput, images biometric.ImageSet) (*store.Identity, *enrollment.Result, error) {
	username, err := validateCredentials(in.Username, in.Password, "register")
	if err != nil {
		return nil, nil, err
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, nil, err
	}

	identity := &store.Identity{
		Username:     username,
		PasswordHash: hash,
		RealName:     strings.TrimSpace(in.RealName),
		Email:        strings.TrimSpace(in.Email),
		Phone:        strings.TrimSpace(in.Phone),
		Role:         store.RoleOrdinary,
		Status:       store.StatusPending,
	}
	_, result, err := s.enrollments.Register(ctx, func(ctx context.Context, tx *store.Store) (int64, error) {
		if err := tx.CreateIdentity(ctx, identity); err != nil {
			return 0, err
		}
		return identity.ID, nil
	}, images)
	if err != nil {
		return nil, nil, err
	}

	logging.WithContext(ctx, s.logger).Info("identity registered",
		logging.Int64(logging.FieldIdentityID, identity.ID),
		logging.String("username", identity.Username),
	)
	s.notify(ctx, notifications.EventRegistrationPending, notifications.Payload{
		"username":   identity.Username,
		"identityID": strconv.FormatInt(identity.ID, 10),
		"realName":   identity.RealName,
	})
	return identity, result, nil
}

// Authenticate checks username and password. Unknown users and wrong
// passwords fail identically with services.ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*store.Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, services.Wrap(services.ErrValidation, "identity", "authenticate", "username and password are required", nil)
	}
	identity, err := s.store.IdentityByUsername(ctx, username)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "identity", "authenticate", "", err)
	}
	if identity == nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, services.Wrap(services.ErrInvalidCredentials, "identity", "authenticate", "", nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)); err != nil {
		return nil, services.Wrap(services.ErrInvalidCredentials, "identity", "authenticate", "", nil)
	}
	return identity, nil
}

// Get returns the identity with id or services.ErrNotFound.
func (s *Service) Get(ctx context.Context, id int64) (*store.Identity, error) {
	identity, err := s.store.IdentityByID(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "identity", "get", "", err)
	}
	if identity == nil {
		return nil, services.Wrap(services.ErrNotFound, "identity", "get", fmt.Sprintf("identity %d", id), nil)
	}
	return identity, nil
}

// Pending lists ordinary identities awaiting review.
func (s *Service) Pending(ctx context.Context) ([]*store.Identity, error) {
	return s.List(ctx, store.IdentityFilter{Role: store.RoleOrdinary, Status: store.StatusPending})
}

// List returns identities matching filter.
func (s *Service) List(ctx context.Context, filter store.IdentityFilter) ([]*store.Identity, error) {
	if filter.Role != "" && !filter.Role.Valid() {
		return nil, services.Wrap(services.ErrValidation, "identity", "list", fmt.Sprintf("unknown role %q", filter.Role), nil)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, services.Wrap(services.ErrValidation, "identity", "list", fmt.Sprintf("unknown status %q", filter.Status), nil)
	}
	identities, err := s.store.ListIdentities(ctx, filter)
	if errors.Is(err, store.ErrInvalidFilter) {
		return nil, services.Wrap(services.ErrValidation, "identity", "list", "", err)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "identity", "list", "", err)
	}
	return identities, nil
}

// Review approves or rejects a pending ordinary identity and records the
// decision in the audit trail.
func (s *Service) Review(ctx context.Context, approverID, targetID int64, action, reason string) (*store.Identity, error) {
	action = strings.ToUpper(strings.TrimSpace(action))
	reason = strings.TrimSpace(reason)
	var status store.Status
	switch action {
	case ActionApprove:
		status = store.StatusApproved
	case ActionReject:
		status = store.StatusRejected
	default:
		return nil, services.Wrap(services.ErrValidation, "identity", "review", fmt.Sprintf("unknown action %q", action), nil)
	}

	var updated *store.Identity
	err := s.store.InTx(ctx, func(tx *store.Store) error {
		target, err := tx.IdentityByID(ctx, targetID)
		if err != nil {
			return err
		}
		if target == nil {
			return services.Wrap(services.ErrNotFound, "identity", "review", fmt.Sprintf("identity %d", targetID), nil)
		}
		if target.Role != store.RoleOrdinary {
			return services.Wrap(services.ErrValidation, "identity", "review", "only ordinary accounts are reviewed", nil)
		}
		update := store.IdentityUpdate{Status: &status, Reason: &reason}
		if updated, err = tx.UpdateIdentity(ctx, targetID, update); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, &store.AuditRecord{
			IdentityID: targetID,
			ApproverID: approverID,
			Action:     action,
			Reason:     reason,
		})
	})
	if err != nil {
		return nil, classify(err, "review")
	}

	logging.WithContext(ctx, s.logger).Info("identity reviewed",
		logging.Args(append(logging.DecisionAttrs("identity_review", action, reason),
			logging.Int64(logging.FieldIdentityID, targetID),
			logging.Int64("approver_id", approverID),
		)...)...,
	)
	s.notify(ctx, notifications.EventAccountReviewed, notifications.Payload{
		"username": updated.Username,
		"action":   action,
		"reason":   reason,
	})
	return updated, nil
}

// notify delivers event without failing the caller.
func (s *Service) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := s.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, s.logger), "notification failed", "notification_failed",
			logging.String("notification_event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "approvers were not alerted"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}

// History returns the review decisions recorded for id.
func (s *Service) History(ctx context.Context, id int64) ([]store.AuditRecord, error) {
	records, err := s.store.AuditHistory(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "identity", "history", "", err)
	}
	return records, nil
}

// Create adds an APPROVED account on behalf of a superuser.
func (s *Service) Create(ctx context.Context, operatorID int64, in CreateInput) (*store.Identity, error) {
	username, err := validateCredentials(in.Username, in.Password, "create")
	if err != nil {
		return nil, err
	}
	if !in.Role.Valid() {
		return nil, services.Wrap(services.ErrValidation, "identity", "create", fmt.Sprintf("unknown role %q", in.Role), nil)
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}
	identity := &store.Identity{
		Username:     username,
		PasswordHash: hash,
		RealName:     strings.TrimSpace(in.RealName),
		Email:        strings.TrimSpace(in.Email),
		Phone:        strings.TrimSpace(in.Phone),
		Role:         in.Role,
		Status:       store.StatusApproved,
	}
	err = s.store.InTx(ctx, func(tx *store.Store) error {
		if err := tx.CreateIdentity(ctx, identity); err != nil {
			return err
		}
		return tx.RecordOperation(ctx, &store.OperationLog{
			OperatorID: operatorID,
			TargetID:   identity.ID,
			Operation:  OpCreate,
			After:      snapshot(identity),
		})
	})
	if err != nil {
		return nil, classify(err, "create")
	}
	logging.WithContext(ctx, s.logger).Info("identity created",
		logging.Int64(logging.FieldIdentityID, identity.ID),
		logging.String("role", string(identity.Role)),
		logging.Int64("operator_id", operatorID),
	)
	return identity, nil
}

// Update changes any field of an identity on behalf of a superuser.
func (s *Service) Update(ctx context.Context, operatorID, id int64, in UpdateInput) (*store.Identity, error) {
	update := store.IdentityUpdate{
		RealName: trimmed(in.RealName),
		Email:    trimmed(in.Email),
		Phone:    trimmed(in.Phone),
		Reason:   trimmed(in.Reason),
		Role:     in.Role,
		Status:   in.Status,
	}
	if in.Role != nil && !in.Role.Valid() {
		return nil, services.Wrap(services.ErrValidation, "identity", "update", fmt.Sprintf("unknown role %q", *in.Role), nil)
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, services.Wrap(services.ErrValidation, "identity", "update", fmt.Sprintf("unknown status %q", *in.Status), nil)
	}
	if in.Password != nil {
		if *in.Password == "" {
			return nil, services.Wrap(services.ErrValidation, "identity", "update", "password must not be empty", nil)
		}
		hash, err := s.hash(*in.Password)
		if err != nil {
			return nil, err
		}
		update.PasswordHash = &hash
	}

	var updated *store.Identity
	err := s.store.InTx(ctx, func(tx *store.Store) error {
		before, err := tx.IdentityByID(ctx, id)
		if err != nil {
			return err
		}
		if before == nil {
			return services.Wrap(services.ErrNotFound, "identity", "update", fmt.Sprintf("identity %d", id), nil)
		}
		if updated, err = tx.UpdateIdentity(ctx, id, update); err != nil {
			return err
		}
		return tx.RecordOperation(ctx, &store.OperationLog{
			OperatorID: operatorID,
			TargetID:   id,
			Operation:  OpUpdate,
			Before:     snapshot(before),
			After:      snapshot(updated),
		})
	})
	if err != nil {
		return nil, classify(err, "update")
	}
	logging.WithContext(ctx, s.logger).Info("identity updated",
		logging.Int64(logging.FieldIdentityID, id),
		logging.Int64("operator_id", operatorID),
	)
	return updated, nil
}

// Delete removes an identity and its enrollment on behalf of a superuser.
func (s *Service) Delete(ctx context.Context, operatorID, id int64) error {
	if operatorID == id {
		return services.Wrap(services.ErrForbidden, "identity", "delete", "cannot delete own account", nil)
	}
	target, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.enrollments.Delete(ctx, id); err != nil && !errors.Is(err, services.ErrNoEnrollment) {
		return err
	}
	err = s.store.InTx(ctx, func(tx *store.Store) error {
		if err := tx.RecordOperation(ctx, &store.OperationLog{
			OperatorID: operatorID,
			TargetID:   id,
			Operation:  OpDelete,
			Before:     snapshot(target),
		}); err != nil {
			return err
		}
		deleted, err := tx.DeleteIdentity(ctx, id)
		if err != nil {
			return err
		}
		if !deleted {
			return services.Wrap(services.ErrNotFound, "identity", "delete", fmt.Sprintf("identity %d", id), nil)
		}
		return nil
	})
	if err != nil {
		return classify(err, "delete")
	}
	logging.WithContext(ctx, s.logger).Info("identity deleted",
		logging.Int64(logging.FieldIdentityID, id),
		logging.Int64("operator_id", operatorID),
	)
	return nil
}

func (s *Service) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", services.Wrap(services.ErrValidation, "identity", "hash", "password too long", err)
		}
		return "", services.Wrap(services.ErrTransient, "identity", "hash", "", err)
	}
	return string(hash), nil
}

func validateCredentials(username, password, op string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", services.Wrap(services.ErrValidation, "identity", op, "username and password are required", nil)
	}
	if len(username) > maxUsernameLength || strings.ContainsAny(username, " \t\r\n") {
		return "", services.Wrap(services.ErrValidation, "identity", op, "username must be at most 64 characters without whitespace", nil)
	}
	return username, nil
}

func classify(err error, op string) error {
	switch {
	case errors.Is(err, store.ErrUsernameTaken):
		return services.Wrap(services.ErrConflict, "identity", op, "username already exists", nil)
	case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrForbidden):
		return err
	default:
		return services.Wrap(services.ErrTransient, "identity", op, "", err)
	}
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	return &v
}

type identitySnapshot struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	RealName string `json:"realName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
}

func snapshot(identity *store.Identity) string {
	if identity == nil {
		return ""
	}
	data, err := json.Marshal(identitySnapshot{
		ID:       identity.ID,
		Username: identity.Username,
		RealName: identity.RealName,
		Email:    identity.Email,
		Phone:    identity.Phone,
		Role:     string(identity.Role),
		Status:   string(identity.Status),
		Reason:   identity.Reason,
	})
	if err != nil {
		return ""
	}
	return string(data)
}
