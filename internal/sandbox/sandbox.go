// Package sandbox runs shell commands inside a single confined directory tree.
//
// Confinement is path based: a Workspace owns the sandbox root and the
// current directory, and every command is started with that directory as its
// working directory. There is no namespace or syscall isolation.
package sandbox

import (
	"context"
	"time"
)

// Request describes one command execution.
type Request struct {
	Command string        // Raw command line, passed to the shell as-is
	Dir     string        // Working directory
	Timeout time.Duration // Wall-clock bound; zero means the runner default
	Env     map[string]string
}

// Result is the outcome of a command execution. A nil ExitCode means the
// process never exited normally (timeout, launch failure, signal).
type Result struct {
	ExitCode *int          `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"duration_ns"`
}

// Succeeded reports whether the command exited with status 0.
func (r Result) Succeeded() bool {
	return r.ExitCode != nil && *r.ExitCode == 0
}

// Runner executes a command line through a command interpreter.
//
// Implementations never return an error: every failure is folded into the
// Result.
type Runner interface {
	Run(ctx context.Context, req Request) Result
}

// ExitCode returns a pointer to code, for building Results.
func ExitCode(code int) *int {
	return &code
}
