package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"
)

// waitDelay bounds how long Run waits for stray descendants that keep the
// output pipes open after the shell itself has exited.
const waitDelay = time.Second

// ShellRunner executes command lines with `<shell> -c` as OS processes.
//
// Each command runs in its own process group so that the whole group can be
// killed when the timeout fires. Output is captured per stream and capped to
// the policy budget.
type ShellRunner struct {
	policy Policy
	logger *slog.Logger
}

// NewShellRunner creates a runner enforcing the given policy.
func NewShellRunner(policy Policy, logger *slog.Logger) *ShellRunner {
	if policy.Shell == "" {
		policy.Shell = DefaultPolicy().Shell
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ShellRunner{policy: policy, logger: logger}
}

// Policy returns the limits this runner enforces.
func (r *ShellRunner) Policy() Policy {
	return r.policy
}

// Run executes req and always returns a well-formed Result.
func (r *ShellRunner) Run(ctx context.Context, req Request) Result {
	timeout := r.policy.ClampTimeout(req.Timeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.policy.Shell, "-c", req.Command)
	cmd.Dir = req.Dir
	cmd.Env = buildEnv(req.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Negative PID targets the whole process group.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay

	r.logger.Debug("executing command",
		slog.String("command", req.Command),
		slog.String("dir", req.Dir),
		slog.Duration("timeout", timeout),
	)
	result := runCmd(ctx, cmd, r.policy, timeout, r.logger)
	if cmd.Process != nil {
		// Background children outlive the shell; the group dies with it.
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	return result
}

// runCmd runs a prepared command under ctx (which carries the timeout) and
// folds every outcome into a Result.
func runCmd(ctx context.Context, cmd *exec.Cmd, policy Policy, timeout time.Duration, logger *slog.Logger) Result {
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = newLimitedWriter(&stdoutBuf, captureBudget(policy))
	cmd.Stderr = newLimitedWriter(&stderrBuf, captureBudget(policy))

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	result := Result{Duration: duration}

	switch {
	case runErr == nil:
		result.ExitCode = ExitCode(0)

	case ctx.Err() == context.DeadlineExceeded:
		logger.Warn("command timed out",
			slog.String("path", cmd.Path),
			slog.Duration("timeout", timeout),
		)
		return Result{
			Stderr:   fmt.Sprintf("command timed out after %d seconds", int(timeout/time.Second)),
			TimedOut: true,
			Duration: duration,
		}

	case ctx.Err() != nil:
		return Result{
			Stderr:   "command cancelled: " + ctx.Err().Error(),
			Duration: duration,
		}

	case errors.Is(runErr, exec.ErrWaitDelay):
		// The shell exited but a background child held the pipes open.
		if cmd.ProcessState != nil {
			result.ExitCode = ExitCode(cmd.ProcessState.ExitCode())
		}

	default:
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			logger.Error("command failed to start",
				slog.String("path", cmd.Path),
				slog.String("error", runErr.Error()),
			)
			return Result{
				Stderr:   "failed to start command: " + runErr.Error(),
				Duration: duration,
			}
		}
		if code := exitErr.ExitCode(); code >= 0 {
			result.ExitCode = ExitCode(code)
		} else {
			stderrBuf.WriteString("\nterminated by " + exitErr.ProcessState.String())
		}
	}

	result.Stdout = capture(stdoutBuf.Bytes(), policy.MaxOutputBytes)
	result.Stderr = capture(stderrBuf.Bytes(), policy.MaxOutputBytes)

	logger.Debug("command finished",
		slog.Any("exit_code", result.ExitCode),
		slog.Duration("duration", duration),
		slog.Int("stdout_bytes", len(result.Stdout)),
		slog.Int("stderr_bytes", len(result.Stderr)),
	)
	return result
}

// capture repairs invalid UTF-8 and applies the output cap.
func capture(b []byte, limit int) string {
	return Cap(strings.ToValidUTF8(string(b), string(utf8.RuneError)), limit)
}

// captureBudget keeps a few bytes past the cap so Cap can still see that the
// stream overflowed and can find a rune boundary near the cut.
func captureBudget(policy Policy) int {
	if policy.MaxOutputBytes <= 0 {
		return -1
	}
	return policy.MaxOutputBytes + utf8.UTFMax
}

// buildEnv inherits the service environment and layers extra on top.
func buildEnv(extra map[string]string) []string {
	return append(os.Environ(), envPairs(extra)...)
}

// envPairs renders env as KEY=VALUE in key order.
func envPairs(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+env[k])
	}
	return pairs
}

// limitedWriter stops storing data after a byte budget. Excess writes are
// reported as successful so the child never sees EPIPE. A negative budget
// means unlimited.
type limitedWriter struct {
	w         io.Writer
	remaining int
}

func newLimitedWriter(w io.Writer, budget int) *limitedWriter {
	return &limitedWriter{w: w, remaining: budget}
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.remaining < 0 {
		return lw.w.Write(p)
	}
	if lw.remaining == 0 {
		return len(p), nil
	}
	chunk := p
	if len(chunk) > lw.remaining {
		chunk = chunk[:lw.remaining]
	}
	n, err := lw.w.Write(chunk)
	lw.remaining -= n
	if err != nil {
		return n, err
	}
	return len(p), nil
}
