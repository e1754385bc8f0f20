package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"fingerid/internal/biometric"
	"fingerid/internal/config"
	"fingerid/internal/logging"
	"fingerid/internal/procexec"
	"fingerid/internal/services"
)

// DefaultTimeout bounds one comparison when none is configured.
const DefaultTimeout = 30 * time.Second

// Result is the model's verdict for one comparison.
type Result struct {
	IsMatch              bool    `json:"is_match"`
	MatchProbability     float64 `json:"match_probability"`
	DifferentProbability float64 `json:"different_probability"`
	Confidence           float64 `json:"confidence"`
	ModelLoaded          bool    `json:"model_loaded"`
}

// Comparer compares an enrolled image set against a submitted one.
type Comparer interface {
	Compare(ctx context.Context, enrolled, submitted biometric.ImageSet) (Result, error)
}

// Observer receives the duration and outcome of every comparison.
type Observer interface {
	ObserveOracle(outcome string, elapsed time.Duration)
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec procexec.Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithModel passes --model-path and --device through to the model.
func WithModel(modelPath, device string) Option {
	return func(c *Client) {
		c.modelPath = strings.TrimSpace(modelPath)
		c.device = strings.TrimSpace(device)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "oracle")
	}
}

// WithObserver reports comparison outcomes to o.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// Client wraps the similarity model command line.
type Client struct {
	python    string
	script    string
	modelPath string
	device    string
	timeout   time.Duration
	exec      procexec.Executor
	logger    *slog.Logger
	observer  Observer
}

// New constructs a similarity oracle client.
func New(python, script string, timeout time.Duration, opts ...Option) (*Client, error) {
	python = strings.TrimSpace(python)
	if python == "" {
		return nil, errors.New("oracle interpreter required")
	}
	script = strings.TrimSpace(script)
	if script == "" {
		return nil, errors.New("oracle script required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := &Client{
		python:  python,
		script:  script,
		timeout: timeout,
		exec:    procexec.CommandExecutor{},
		logger:  logging.NewComponentLogger(nil, "oracle"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// NewFromConfig constructs a client from the [oracle] section.
func NewFromConfig(cfg *config.Config, opts ...Option) (*Client, error) {
	opts = append([]Option{WithModel(cfg.Oracle.ModelPath, cfg.Oracle.Device)}, opts...)
	return New(cfg.Oracle.Python, cfg.Oracle.Script, cfg.OracleTimeout(), opts...)
}

// Timeout returns the hard deadline applied to each comparison.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Compare runs the model on enrolled (side 1) and submitted (side 2) images.
func (c *Client) Compare(ctx context.Context, enrolled, submitted biometric.ImageSet) (Result, error) {
	if err := checkInputs("enrolled", enrolled); err != nil {
		c.observe("error", 0)
		return Result{}, err
	}
	if err := checkInputs("submitted", submitted); err != nil {
		c.observe("error", 0)
		return Result{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	logger := logging.WithContext(ctx, c.logger)
	start := time.Now()
	out, err := c.exec.Run(runCtx, c.python, c.args(enrolled, submitted))
	elapsed := time.Since(start)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		c.observe("timeout", elapsed)
		logging.WarnWithContext(logger, "similarity model timed out", "oracle_timeout",
			logging.Duration("timeout", c.timeout),
			logging.Alert("oracle_timeout"),
			logging.String(logging.FieldImpact, "login rejected as service unavailable"),
			logging.String(logging.FieldErrorHint, "check model load time and device availability"),
		)
		return Result{}, services.Wrap(services.ErrOracleTimeout, "oracle", "compare", fmt.Sprintf("exceeded %s", c.timeout), err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		c.observe("error", elapsed)
		return Result{}, services.Wrap(services.ErrOracleError, "oracle", "compare", "request cancelled", ctxErr)
	}

	result, parseErr := parseOutput(out.Stdout)
	if err != nil {
		c.observe("error", elapsed)
		detail := procexec.TailString(out.Stderr, 512)
		var reported *modelError
		if errors.As(parseErr, &reported) {
			detail = reported.message
		}
		return Result{}, services.Wrap(services.ErrOracleError, "oracle", "compare", detail, err)
	}
	if parseErr != nil {
		c.observe("error", elapsed)
		return Result{}, services.Wrap(services.ErrOracleError, "oracle", "compare", "invalid model output", parseErr)
	}

	c.observe("ok", elapsed)
	logger.Debug("similarity model finished",
		logging.Duration("elapsed", elapsed),
		logging.Bool("is_match", result.IsMatch),
		logging.Float64("confidence", result.Confidence),
	)
	return result, nil
}

func (c *Client) args(enrolled, submitted biometric.ImageSet) []string {
	args := []string{
		c.script,
		"--fp1", enrolled.Fingerprint,
		"--fp2", submitted.Fingerprint,
		"--vein-aug1", enrolled.VeinAug,
		"--vein-aug2", submitted.VeinAug,
		"--vein-bin1", enrolled.VeinBin,
		"--vein-bin2", submitted.VeinBin,
		"--knuckle1", enrolled.Knuckle,
		"--knuckle2", submitted.Knuckle,
		"--output-json",
	}
	if c.modelPath != "" {
		args = append(args, "--model-path", c.modelPath)
	}
	if c.device != "" {
		args = append(args, "--device", c.device)
	}
	return args
}

func (c *Client) observe(outcome string, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveOracle(outcome, elapsed)
	}
}

func checkInputs(side string, images biometric.ImageSet) error {
	if err := images.Require(biometric.SimilarityFields); err != nil {
		return services.Wrap(services.ErrValidation, "oracle", "compare", side+" "+err.Error(), nil)
	}
	for _, m := range biometric.SimilarityFields {
		if _, err := os.Stat(images.Get(m)); err != nil {
			return services.Wrap(services.ErrOracleError, "oracle", "compare", fmt.Sprintf("%s %s image unavailable", side, m), err)
		}
	}
	return nil
}

type modelError struct {
	message string
}

func (e *modelError) Error() string { return "model reported error: " + e.message }

type response struct {
	Success              *bool    `json:"success"`
	Error                string   `json:"error"`
	IsMatch              *bool    `json:"is_match"`
	MatchProbability     *float64 `json:"match_probability"`
	DifferentProbability *float64 `json:"different_probability"`
	Confidence           *float64 `json:"confidence"`
	ModelLoaded          *bool    `json:"model_loaded"`
}

func parseOutput(stdout []byte) (Result, error) {
	payload := jsonPayload(stdout)
	if len(payload) == 0 {
		return Result{}, errors.New("empty model output")
	}
	var resp response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return Result{}, fmt.Errorf("decode model output: %w", err)
	}
	if resp.Error != "" || (resp.Success != nil && !*resp.Success) {
		msg := resp.Error
		if msg == "" {
			msg = "success=false"
		}
		return Result{}, &modelError{message: msg}
	}
	if resp.IsMatch == nil || resp.Confidence == nil || resp.MatchProbability == nil || resp.DifferentProbability == nil {
		return Result{}, errors.New("model output missing decision fields")
	}

	result := Result{
		IsMatch:              *resp.IsMatch,
		MatchProbability:     *resp.MatchProbability,
		DifferentProbability: *resp.DifferentProbability,
		Confidence:           *resp.Confidence,
		ModelLoaded:          resp.ModelLoaded == nil || *resp.ModelLoaded,
	}
	for name, v := range map[string]float64{
		"match_probability":     result.MatchProbability,
		"different_probability": result.DifferentProbability,
		"confidence":            result.Confidence,
	} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return Result{}, fmt.Errorf("%s out of range: %v", name, v)
		}
	}
	return result, nil
}

// jsonPayload returns the JSON object in stdout. Models that log to stdout
// before printing their verdict are tolerated by taking the last line that
// opens an object.
func jsonPayload(stdout []byte) []byte {
	trimmed := bytes.TrimSpace(stdout)
	if len(trimmed) == 0 {
		return nil
	}
	if json.Valid(trimmed) {
		return trimmed
	}
	lines := bytes.Split(trimmed, []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if bytes.HasPrefix(line, []byte("{")) {
			return line
		}
	}
	return trimmed
}
