package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"fingerid/internal/biometric"
	"fingerid/internal/contentid"
	"fingerid/internal/fileutil"
	"fingerid/internal/logging"
	"fingerid/internal/services"
	"fingerid/internal/store"
)

// Action reports whether an enrollment was created or replaced.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
)

// Observer receives enrollment outcomes for metrics.
type Observer interface {
	ObserveEnrollment(outcome string)
}

// Result describes a successful enrollment.
type Result struct {
	Action     Action
	Enrollment *store.Enrollment
}

// CreateFunc creates the identity that a registration enrolls, inside the
// enrollment transaction, and returns its ID.
type CreateFunc func(ctx context.Context, tx *store.Store) (int64, error)

// Manager enrolls, reads and deletes biometric templates.
type Manager struct {
	store     *store.Store
	uploadDir string
	logger    *slog.Logger
	observer  Observer
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for cleanup warnings and decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logging.NewComponentLogger(logger, "enrollment")
	}
}

// WithObserver reports outcomes to o.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		m.observer = o
	}
}

// NewManager constructs a Manager storing image files under uploadDir.
func NewManager(st *store.Store, uploadDir string, opts ...Option) *Manager {
	m := &Manager{
		store:     st,
		uploadDir: uploadDir,
		logger:    logging.NewComponentLogger(nil, "enrollment"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type prepared struct {
	names   biometric.ImageSet
	digests contentid.Digests
}

// Enroll creates or replaces the enrollment of identityID from images, which
// name files the caller has written. On any failure the submitted files are
// removed and the stored state is unchanged.
func (m *Manager) Enroll(ctx context.Context, identityID int64, images biometric.ImageSet) (*Result, error) {
	p, err := m.prepare(images)
	if err != nil {
		m.observe("invalid")
		return nil, err
	}

	var (
		result *Result
		prior  *store.Enrollment
	)
	err = m.store.InTx(ctx, func(tx *store.Store) error {
		var txErr error
		result, prior, txErr = m.commit(ctx, tx, identityID, p)
		return txErr
	})
	if err != nil {
		m.discard(ctx, m.absolute(p.names))
		return nil, m.fail(err)
	}

	m.finish(ctx, identityID, result, prior)
	return result, nil
}

// Register creates an identity with create and enrolls images for it in one
// transaction. A duplicate biometric leaves no identity behind.
func (m *Manager) Register(ctx context.Context, create CreateFunc, images biometric.ImageSet) (int64, *Result, error) {
	p, err := m.prepare(images)
	if err != nil {
		m.observe("invalid")
		return 0, nil, err
	}

	var (
		identityID int64
		result     *Result
	)
	err = m.store.InTx(ctx, func(tx *store.Store) error {
		id, err := create(ctx, tx)
		if err != nil {
			return err
		}
		identityID = id
		result, _, err = m.commit(ctx, tx, id, p)
		return err
	})
	if err != nil {
		m.discard(ctx, m.absolute(p.names))
		return 0, nil, m.fail(err)
	}

	m.finish(ctx, identityID, result, nil)
	return identityID, result, nil
}

// Get returns the enrollment of identityID, or nil when none exists.
func (m *Manager) Get(ctx context.Context, identityID int64) (*store.Enrollment, error) {
	enrollment, err := m.store.EnrollmentByIdentity(ctx, identityID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "enrollment", "get", "", err)
	}
	return enrollment, nil
}

// Delete removes the enrollment row, its digests and, best effort, its files.
func (m *Manager) Delete(ctx context.Context, identityID int64) error {
	prior, err := m.Get(ctx, identityID)
	if err != nil {
		return err
	}
	if prior == nil {
		return services.Wrap(services.ErrNoEnrollment, "enrollment", "delete", fmt.Sprintf("identity %d", identityID), nil)
	}
	deleted, err := m.store.DeleteEnrollment(ctx, identityID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "enrollment", "delete", "", err)
	}
	if !deleted {
		return services.Wrap(services.ErrNoEnrollment, "enrollment", "delete", fmt.Sprintf("identity %d", identityID), nil)
	}
	m.discard(ctx, m.Paths(prior))
	m.observe("deleted")
	logging.WithContext(ctx, m.logger).Info("enrollment deleted", logging.Int64(logging.FieldIdentityID, identityID))
	return nil
}

// Paths resolves the stored image names of e to absolute paths.
func (m *Manager) Paths(e *store.Enrollment) biometric.ImageSet {
	if e == nil {
		return biometric.ImageSet{}
	}
	return m.absolute(e.Images)
}

// UploadDir returns the directory enrollment images live in.
func (m *Manager) UploadDir() string {
	return m.uploadDir
}

func (m *Manager) prepare(images biometric.ImageSet) (prepared, error) {
	if err := images.Require(biometric.EnrollmentFields); err != nil {
		m.discard(context.Background(), images)
		return prepared{}, services.Wrap(services.ErrValidation, "enrollment", "enroll", err.Error(), nil)
	}
	digests, err := contentid.Set(images)
	if err != nil {
		m.discard(context.Background(), images)
		return prepared{}, services.Wrap(services.ErrValidation, "enrollment", "enroll", "unreadable image", err)
	}
	names, err := m.adopt(images)
	if err != nil {
		m.discard(context.Background(), images)
		return prepared{}, services.Wrap(services.ErrTransient, "enrollment", "enroll", "store images", err)
	}
	return prepared{names: names, digests: digests}, nil
}

func (m *Manager) commit(ctx context.Context, tx *store.Store, identityID int64, p prepared) (*Result, *store.Enrollment, error) {
	owner, found, err := NewIndex(tx).Lookup(ctx, p.digests.Values())
	if err != nil {
		return nil, nil, err
	}
	if found && owner != identityID {
		return nil, nil, services.Wrap(services.ErrDuplicateBiometric, "enrollment", "enroll", fmt.Sprintf("digest owned by identity %d", owner), nil)
	}

	prior, err := tx.EnrollmentByIdentity(ctx, identityID)
	if err != nil {
		return nil, nil, err
	}

	enrollment := &store.Enrollment{IdentityID: identityID, Images: p.names, Digests: p.digests}
	if err := tx.SaveEnrollment(ctx, enrollment); err != nil {
		return nil, nil, err
	}

	action := ActionCreated
	if prior != nil {
		action = ActionUpdated
	}
	return &Result{Action: action, Enrollment: enrollment}, prior, nil
}

func (m *Manager) finish(ctx context.Context, identityID int64, result *Result, prior *store.Enrollment) {
	if prior != nil {
		stale := prior.Images.Map(func(mod biometric.Modality, name string) string {
			if name == result.Enrollment.Images.Get(mod) {
				return ""
			}
			return filepath.Join(m.uploadDir, name)
		})
		m.discard(ctx, stale)
	}
	m.observe(string(result.Action))
	logging.WithContext(ctx, m.logger).Info("enrollment saved",
		logging.Int64(logging.FieldIdentityID, identityID),
		logging.String("action", string(result.Action)),
	)
}

func (m *Manager) fail(err error) error {
	switch {
	case errors.Is(err, store.ErrDigestTaken):
		m.observe("duplicate")
		return services.Wrap(services.ErrDuplicateBiometric, "enrollment", "enroll", "", err)
	case errors.Is(err, services.ErrDuplicateBiometric):
		m.observe("duplicate")
		return err
	case errors.Is(err, store.ErrUsernameTaken):
		return services.Wrap(services.ErrConflict, "enrollment", "register", "username already exists", nil)
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrConflict), errors.Is(err, services.ErrNotFound):
		return err
	default:
		return services.Wrap(services.ErrTransient, "enrollment", "enroll", "", err)
	}
}

// adopt moves submitted files into the upload directory when they are not
// already there and returns their stored names.
func (m *Manager) adopt(images biometric.ImageSet) (biometric.ImageSet, error) {
	var names biometric.ImageSet
	for _, mod := range images.Present() {
		src := images.Get(mod)
		if filepath.Dir(filepath.Clean(src)) == filepath.Clean(m.uploadDir) {
			names.Set(mod, filepath.Base(src))
			continue
		}
		name := string(mod) + "-" + uuid.NewString() + strings.ToLower(filepath.Ext(src))
		if err := fileutil.MoveFile(src, filepath.Join(m.uploadDir, name)); err != nil {
			m.discard(context.Background(), m.absolute(names))
			return biometric.ImageSet{}, fmt.Errorf("move %s: %w", mod, err)
		}
		names.Set(mod, name)
	}
	return names, nil
}

func (m *Manager) absolute(names biometric.ImageSet) biometric.ImageSet {
	return names.Map(func(_ biometric.Modality, name string) string {
		return filepath.Join(m.uploadDir, name)
	})
}

func (m *Manager) discard(ctx context.Context, files biometric.ImageSet) {
	failed, err := fileutil.RemoveFiles(files.Paths()...)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "image cleanup failed", "image_cleanup_failed",
			logging.Any("paths", failed),
			logging.Error(err),
			logging.Alert("orphaned_files"),
			logging.String(logging.FieldImpact, "orphaned image files left on disk"),
			logging.String(logging.FieldErrorHint, "remove the files manually"),
		)
	}
}

func (m *Manager) observe(outcome string) {
	if m.observer != nil {
		m.observer.ObserveEnrollment(outcome)
	}
}
