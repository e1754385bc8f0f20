package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"fingerid/internal/binarize"
	"fingerid/internal/config"
	"fingerid/internal/daemon"
	"fingerid/internal/deps"
	"fingerid/internal/enrollment"
	"fingerid/internal/identity"
	"fingerid/internal/ipc"
	"fingerid/internal/logging"
	"fingerid/internal/metrics"
	"fingerid/internal/notifications"
	"fingerid/internal/oracle"
	"fingerid/internal/session"
	"fingerid/internal/store"
	"fingerid/internal/verification"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the fingerid daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("fingerid-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update fingerid.log link: %v\n", err)
	}
	logDependencySnapshot(logger, cfg)

	pidPath := filepath.Join(cfg.Paths.DataDir, "fingerid.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open identity store", logging.Error(err))
		return err
	}

	revocations, closeRevocations, err := openRevocations(signalCtx, cfg)
	if err != nil {
		st.Close()
		return err
	}
	defer closeRevocations()

	components, err := Assemble(cfg, st, logger, revocations)
	if err != nil {
		st.Close()
		return err
	}

	if !opts.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	d, err := daemon.New(cfg, st, logger, components)
	if err != nil {
		st.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the bind address and data directory lock"),
			logging.String(logging.FieldImpact, "no requests are served"),
		)
		return err
	}

	control, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, cancel, logger)
	if err != nil {
		logging.WarnWithContext(logger, "control socket unavailable", "ipc_listen_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "fingerid status and stop cannot reach this daemon"),
			logging.String(logging.FieldErrorHint, "check data directory permissions"),
		)
	} else {
		control.Serve()
		defer control.Close()
	}

	<-signalCtx.Done()
	logger.Info("fingerid daemon shutting down")
	return nil
}

// Assemble wires the services behind the HTTP layer. A nil revocations store
// keeps revoked sessions in memory.
func Assemble(cfg *config.Config, st *store.Store, logger *slog.Logger, revocations session.RevocationStore) (daemon.Components, error) {
	recorder := metrics.NewRecorder()

	mgr := enrollment.NewManager(st, cfg.Paths.UploadDir,
		enrollment.WithLogger(logger),
		enrollment.WithObserver(recorder),
	)
	ids := identity.NewService(st, mgr,
		identity.WithLogger(logger),
		identity.WithBcryptCost(cfg.Auth.BcryptCost),
		identity.WithNotifier(notifications.NewService(cfg)),
	)

	issuerOpts := []session.IssuerOption{}
	if revocations != nil {
		issuerOpts = append(issuerOpts, session.WithRevocations(revocations))
	}
	issuer, err := session.NewIssuer(cfg.Auth.JWTSecret, cfg.TokenTTL(), issuerOpts...)
	if err != nil {
		return daemon.Components{}, err
	}

	client, err := oracle.NewFromConfig(cfg, oracle.WithLogger(logger), oracle.WithObserver(recorder))
	if err != nil {
		return daemon.Components{}, fmt.Errorf("similarity oracle: %w", err)
	}
	completer := binarize.NewFromConfig(cfg, binarize.WithLogger(logger))

	orch, err := verification.NewOrchestrator(verification.Dependencies{
		Auth:        ids,
		Enrollments: mgr,
		Index:       enrollment.NewIndex(st),
		Oracle:      client,
		Sessions:    issuer,
		Completer:   completer,
		TempDir:     cfg.Paths.TempDir,
	}, verification.WithLogger(logger), verification.WithObserver(recorder))
	if err != nil {
		return daemon.Components{}, err
	}

	return daemon.Components{
		Identities:  ids,
		Enrollments: mgr,
		Verifier:    orch,
		Sessions:    issuer,
		Completer:   completer,
		Metrics:     recorder,
	}, nil
}

func openRevocations(ctx context.Context, cfg *config.Config) (session.RevocationStore, func(), error) {
	addr := strings.TrimSpace(cfg.Sessions.RedisAddr)
	if addr == "" {
		return session.NewMemoryRevocations(), func() {}, nil
	}
	redisStore, err := session.NewRedisRevocations(ctx, addr, cfg.Sessions.RedisPassword, cfg.Sessions.RedisDB)
	if err != nil {
		return nil, nil, fmt.Errorf("connect revocation store: %w", err)
	}
	return redisStore, func() { _ = redisStore.Close() }, nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "fingerid.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("database_driver", cfg.Database.Driver),
		logging.Bool("binarize_enabled", cfg.Binarize.Enabled),
		logging.Bool("redis_revocations", strings.TrimSpace(cfg.Sessions.RedisAddr) != ""),
	}
	for _, status := range deps.CheckBinaries(deps.FromConfig(cfg)) {
		key := strings.ReplaceAll(strings.ToLower(status.Name), " ", "_")
		attrs = append(attrs, logging.Bool(key+"_available", status.Available))
		if status.Detail != "" {
			attrs = append(attrs, logging.String(key+"_detail", status.Detail))
		}
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
