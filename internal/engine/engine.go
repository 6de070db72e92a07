// Package engine dispatches commands between the directory sandbox, the
// process runner and the tutorial state machine.
//
// Executing arbitrary shell text is the purpose of this package; confinement
// is limited to the working directory commands start in.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/michaelbrown/cmdbox/internal/metrics"
	"github.com/michaelbrown/cmdbox/internal/sandbox"
	"github.com/michaelbrown/cmdbox/internal/storage"
	"github.com/michaelbrown/cmdbox/internal/tutorial"
)

var (
	ErrEmptyCommand = errors.New("command must not be empty")
	ErrTimeoutRange = errors.New("timeout out of range")
)

// Invocation is one command request. A zero Timeout selects the default.
type Invocation struct {
	Command string `json:"command"`
	Timeout int    `json:"timeout,omitempty"`
}

// Validate rejects empty commands and timeouts outside the policy range.
func (inv Invocation) Validate(p sandbox.Policy) error {
	if strings.TrimSpace(inv.Command) == "" {
		return ErrEmptyCommand
	}
	if inv.Timeout != 0 && !p.TimeoutInRange(time.Duration(inv.Timeout)*time.Second) {
		return fmt.Errorf("%w: %d not in [%d, %d] seconds", ErrTimeoutRange, inv.Timeout,
			int(p.MinTimeout/time.Second), int(p.MaxTimeout/time.Second))
	}
	return nil
}

// Outcome is the result of one command plus the sandbox directory after it.
type Outcome struct {
	ID      string       `json:"id"`
	Mode    storage.Mode `json:"mode"`
	Command string       `json:"command"`
	sandbox.Result
	Cwd     string `json:"cwd"`
	Message string `json:"message,omitempty"`
}

// TutorialOutcome pairs a verdict with the execution of the submitted command.
type TutorialOutcome struct {
	Verdict tutorial.Verdict `json:"verdict"`
	Hint    string           `json:"hint"`
	Outcome Outcome          `json:"outcome"`
}

// Options carries the optional collaborators of an Engine.
type Options struct {
	Store   storage.Store
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Engine owns the sandbox workspace and tutorial progress for one process.
type Engine struct {
	ws       *sandbox.Workspace
	runner   sandbox.Runner
	policy   sandbox.Policy
	tutorial *tutorial.Machine
	store    storage.Store
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// New returns an Engine. runner must execute commands under the policy's limits.
func New(ws *sandbox.Workspace, runner sandbox.Runner, policy sandbox.Policy, machine *tutorial.Machine, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		ws:       ws,
		runner:   runner,
		policy:   policy,
		tutorial: machine,
		store:    opts.Store,
		metrics:  opts.Metrics,
		logger:   logger,
	}
}

// Policy returns the execution limits.
func (e *Engine) Policy() sandbox.Policy { return e.policy }

// Workspace returns the sandbox workspace.
func (e *Engine) Workspace() *sandbox.Workspace { return e.ws }

// Tutorial returns the tutorial state machine.
func (e *Engine) Tutorial() *tutorial.Machine { return e.tutorial }

// RunFree executes a command outside tutorial mode. A bare cd moves the
// sandbox directory; anything else runs in the current directory.
func (e *Engine) RunFree(ctx context.Context, inv Invocation) Outcome {
	out := e.execute(ctx, inv, storage.ModeFree)
	e.record(ctx, out, 0, nil)
	return out
}

// ChangeDir moves the sandbox directory. Failures leave it unchanged and are
// reported with exit code 1.
func (e *Engine) ChangeDir(target string) Outcome {
	out := e.changeDir(strings.TrimSpace("cd "+target), target)
	e.record(context.Background(), out, 0, nil)
	return out
}

// TutorialStart starts or restarts the tutorial and returns the first step.
func (e *Engine) TutorialStart() tutorial.Step {
	step := e.tutorial.Start()
	e.logger.Info("tutorial started", "steps", len(e.tutorial.Steps()))
	return step
}

// TutorialSubmit judges the command against the current step, then executes
// it whatever the verdict.
func (e *Engine) TutorialSubmit(ctx context.Context, inv Invocation) TutorialOutcome {
	v := e.tutorial.Submit(inv.Command)
	e.metrics.ObserveSubmission(v.Matched)
	e.logger.Info("tutorial submission", "step", v.Step.ID, "matched", v.Matched, "completed", v.Completed)

	out := e.execute(ctx, inv, storage.ModeTutorial)
	matched := v.Matched
	e.record(ctx, out, v.Step.ID, &matched)

	return TutorialOutcome{Verdict: v, Hint: v.Hint(), Outcome: out}
}

// TutorialReset clears tutorial progress.
func (e *Engine) TutorialReset() {
	e.tutorial.Reset()
	e.logger.Info("tutorial reset")
}

// SandboxReset wipes the sandbox root and returns to it.
func (e *Engine) SandboxReset() error {
	if err := e.ws.Reset(); err != nil {
		e.logger.Error("sandbox reset failed", "error", err)
		return err
	}
	e.logger.Info("sandbox reset", "root", e.ws.Root())
	return nil
}

func (e *Engine) execute(ctx context.Context, inv Invocation, mode storage.Mode) Outcome {
	if target, ok := parseCD(inv.Command); ok {
		out := e.changeDir(inv.Command, target)
		if mode == storage.ModeTutorial {
			out.Mode = mode
		}
		return out
	}

	dir := e.ws.Dir()
	timeout := e.policy.ClampTimeout(time.Duration(inv.Timeout) * time.Second)

	// Only the timeout bounds a command; callers going away do not stop it.
	res := e.runner.Run(context.WithoutCancel(ctx), sandbox.Request{
		Command: inv.Command,
		Dir:     dir,
		Timeout: timeout,
		Env:     map[string]string{"HOME": e.ws.Root(), "PWD": dir},
	})

	e.metrics.ObserveExec(string(mode), execStatus(res), res.Duration)
	e.logger.Info("command executed",
		"mode", mode,
		"command", inv.Command,
		"dir", dir,
		"exit_code", storage.FormatExitCode(res.ExitCode),
		"timed_out", res.TimedOut,
		"duration", res.Duration,
	)

	return Outcome{
		ID:      uuid.NewString(),
		Mode:    mode,
		Command: inv.Command,
		Result:  res,
		Cwd:     e.ws.Dir(),
	}
}

func (e *Engine) changeDir(command, target string) Outcome {
	out := Outcome{ID: uuid.NewString(), Mode: storage.ModeCD, Command: command}

	dir, err := e.ws.ChangeDir(target)
	out.Cwd = dir
	e.metrics.ObserveCD(cdResult(err))

	if err != nil {
		msg := cdMessage(target, err)
		out.Result = sandbox.Result{ExitCode: sandbox.ExitCode(1), Stderr: msg}
		out.Message = msg
		e.logger.Info("cd rejected", "target", target, "reason", cdResult(err))
		return out
	}
	out.Result = sandbox.Result{ExitCode: sandbox.ExitCode(0)}
	out.Message = "changed directory to " + dir
	e.logger.Debug("cd", "target", target, "cwd", dir)
	return out
}

// record stores the outcome in history. Failures are logged, never returned.
func (e *Engine) record(ctx context.Context, out Outcome, stepID int, matched *bool) {
	if e.store == nil {
		return
	}
	err := e.store.Record(context.WithoutCancel(ctx), &storage.Execution{
		ID:       out.ID,
		Mode:     out.Mode,
		Command:  out.Command,
		Dir:      out.Cwd,
		ExitCode: out.ExitCode,
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
		TimedOut: out.TimedOut,
		Duration: out.Duration,
		StepID:   stepID,
		Matched:  matched,
	})
	if err != nil {
		e.logger.Warn("recording execution failed", "id", out.ID, "error", err)
	}
}

func execStatus(r sandbox.Result) string {
	switch {
	case r.TimedOut:
		return "timeout"
	case r.Succeeded():
		return "ok"
	}
	return "error"
}
