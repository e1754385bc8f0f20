package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"

	"fingerid/internal/api"
	"fingerid/internal/binarize"
	"fingerid/internal/config"
	"fingerid/internal/deps"
	"fingerid/internal/enrollment"
	"fingerid/internal/identity"
	"fingerid/internal/logging"
	"fingerid/internal/metrics"
	"fingerid/internal/session"
	"fingerid/internal/store"
	"fingerid/internal/verification"
)

// Components are the services the HTTP layer dispatches to.
type Components struct {
	Identities  *identity.Service
	Enrollments *enrollment.Manager
	Verifier    *verification.Orchestrator
	Sessions    *session.Issuer
	Completer   *binarize.Transformer
	Metrics     *metrics.Recorder
}

func (c Components) validate() error {
	switch {
	case c.Identities == nil:
		return errors.New("identity service required")
	case c.Enrollments == nil:
		return errors.New("enrollment manager required")
	case c.Verifier == nil:
		return errors.New("verification orchestrator required")
	case c.Sessions == nil:
		return errors.New("session issuer required")
	}
	return nil
}

// Daemon serves the HTTP API and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *store.Store
	components Components
	server     *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool
	PID            int
	Database       string
	SchemaVersion  string
	LockFilePath   string
	Identities     map[store.Status]int
	Enrollments    int
	BinarizeActive bool
	Dependencies   []deps.Status
}

// API converts the status to its wire form.
func (s Status) API() api.DaemonStatus {
	dependencies := make([]api.DependencyStatus, len(s.Dependencies))
	for i, dep := range s.Dependencies {
		dependencies[i] = api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	counts := make(map[string]int, len(s.Identities))
	for st, n := range s.Identities {
		counts[string(st)] = n
	}
	return api.DaemonStatus{
		Running:        s.Running,
		PID:            s.PID,
		Database:       s.Database,
		SchemaVersion:  s.SchemaVersion,
		LockFilePath:   s.LockFilePath,
		Identities:     counts,
		Enrollments:    s.Enrollments,
		BinarizeActive: s.BinarizeActive,
		Dependencies:   dependencies,
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, components Components) (*Daemon, error) {
	if cfg == nil || st == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if err := components.validate(); err != nil {
		return nil, fmt.Errorf("daemon: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      st,
		components: components,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}
	d.server = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and begins serving HTTP.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another fingerid daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.server.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start api server: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("fingerid daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.server.address()),
	)
	return nil
}

// Stop shuts the HTTP server down and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "next start may report another instance"),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"),
		)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("fingerid daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Handler exposes the router, primarily for in-process tests.
func (d *Daemon) Handler() http.Handler {
	return d.server.engine
}

// Addr returns the listening address once started.
func (d *Daemon) Addr() string {
	return d.server.address()
}

// Status returns the current daemon status. Database failures are reported
// in the returned fields rather than as an error.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		Database:       d.store.Driver(),
		LockFilePath:   d.lockPath,
		BinarizeActive: d.components.Completer.Enabled(),
		Dependencies:   deps.CheckBinaries(deps.FromConfig(d.cfg)),
	}
	if version, err := d.store.SchemaVersion(ctx); err == nil {
		status.SchemaVersion = version
	}
	if counts, err := d.store.CountByStatus(ctx); err == nil {
		status.Identities = counts
	}
	if n, err := d.store.CountEnrollments(ctx); err == nil {
		status.Enrollments = n
	}
	return status
}
