// Package procexec runs external helper programs (the similarity model and
// the vein binarizer) with captured output and supervised deadlines.
package procexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultGracePeriod is how long a cancelled process may take to exit after
// SIGTERM before it is killed.
const DefaultGracePeriod = 2 * time.Second

// Output captures what a finished process wrote.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) (Output, error)
}

// CommandExecutor runs binaries with os/exec. Each process leads its own
// process group. When ctx ends the whole group receives SIGTERM, then
// SIGKILL after GracePeriod.
type CommandExecutor struct {
	GracePeriod time.Duration
}

func (e CommandExecutor) Run(ctx context.Context, binary string, args []string) (Output, error) {
	grace := e.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	var escalate *time.Timer
	cmd.Cancel = func() error {
		pgid := cmd.Process.Pid
		escalate = time.AfterFunc(grace, func() { _ = signalGroup(pgid, unix.SIGKILL) })
		return signalGroup(pgid, unix.SIGTERM)
	}
	cmd.WaitDelay = grace

	err := cmd.Run()
	if escalate != nil {
		escalate.Stop()
	}
	if ctx.Err() != nil && cmd.Process != nil {
		// Descendants that ignored SIGTERM or outlived the leader.
		_ = signalGroup(cmd.Process.Pid, unix.SIGKILL)
	}
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, fmt.Errorf("%s: %w", binary, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, fmt.Errorf("%s exited with status %d: %w", binary, out.ExitCode, err)
		}
		return out, fmt.Errorf("run %s: %w", binary, err)
	}
	return out, nil
}

func signalGroup(pgid int, sig syscall.Signal) error {
	err := unix.Kill(-pgid, sig)
	if errors.Is(err, unix.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}

// TailString returns at most limit trailing bytes of data as a trimmed string,
// for error messages built from process output.
func TailString(data []byte, limit int) string {
	data = bytes.TrimSpace(data)
	if limit > 0 && len(data) > limit {
		data = data[len(data)-limit:]
	}
	return string(data)
}
