package binarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"fingerid/internal/biometric"
	"fingerid/internal/config"
	"fingerid/internal/logging"
	"fingerid/internal/procexec"
	"fingerid/internal/services"
)

const defaultTimeout = 30 * time.Second

// Option configures the transformer.
type Option func(*Transformer)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec procexec.Executor) Option {
	return func(t *Transformer) {
		if exec != nil {
			t.exec = exec
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transformer) {
		t.logger = logging.NewComponentLogger(logger, "binarize")
	}
}

// Transformer runs the binarization command.
type Transformer struct {
	enabled bool
	python  string
	script  string
	timeout time.Duration
	exec    procexec.Executor
	logger  *slog.Logger
}

// New constructs a transformer. A disabled transformer leaves image sets
// untouched in Complete but still honours explicit Transform calls.
func New(enabled bool, python, script string, timeout time.Duration, opts ...Option) *Transformer {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	t := &Transformer{
		enabled: enabled,
		python:  strings.TrimSpace(python),
		script:  strings.TrimSpace(script),
		timeout: timeout,
		exec:    procexec.CommandExecutor{},
		logger:  logging.NewComponentLogger(nil, "binarize"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewFromConfig constructs a transformer from the [binarize] section.
func NewFromConfig(cfg *config.Config, opts ...Option) *Transformer {
	return New(cfg.Binarize.Enabled, cfg.Binarize.Python, cfg.Binarize.Script, cfg.BinarizeTimeout(), opts...)
}

// Enabled reports whether Complete derives missing binary vein images.
func (t *Transformer) Enabled() bool {
	return t != nil && t.enabled
}

// Transform writes the binarized form of input to output.
func (t *Transformer) Transform(ctx context.Context, input, output string) error {
	if t.python == "" || t.script == "" {
		return services.Wrap(services.ErrConfiguration, "binarize", "transform", "binarize command not configured", nil)
	}
	if _, err := os.Stat(input); err != nil {
		return services.Wrap(services.ErrValidation, "binarize", "transform", "input image unavailable", err)
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "binarize", "transform", "prepare output directory", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	out, err := t.exec.Run(runCtx, t.python, []string{t.script, "-i", input, "-o", output})
	if err != nil {
		_ = os.Remove(output)
		detail := procexec.TailString(out.Stderr, 512)
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			detail = fmt.Sprintf("timed out after %s", t.timeout)
		}
		return services.Wrap(services.ErrExternalTool, "binarize", "transform", detail, err)
	}
	info, err := os.Stat(output)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(output)
		return services.Wrap(services.ErrExternalTool, "binarize", "transform", "transform produced no output", err)
	}

	logging.WithContext(ctx, t.logger).Debug("vein image binarized",
		logging.String("output", filepath.Base(output)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Complete derives the binary vein image from the augmented one when the
// set lacks it and the transform is enabled. The derived file is written to
// dir and recorded in images.
func (t *Transformer) Complete(ctx context.Context, images *biometric.ImageSet, dir string) error {
	if !t.Enabled() || images == nil {
		return nil
	}
	if strings.TrimSpace(images.VeinBin) != "" || strings.TrimSpace(images.VeinAug) == "" {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(images.VeinAug))
	if ext == "" {
		ext = ".png"
	}
	output := filepath.Join(dir, string(biometric.VeinBin)+"-"+uuid.NewString()+ext)
	if err := t.Transform(ctx, images.VeinAug, output); err != nil {
		return err
	}
	images.VeinBin = output
	return nil
}
