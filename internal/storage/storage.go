package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no execution matches an ID or prefix.
var ErrNotFound = errors.New("execution not found")

// Mode records how a command reached the engine.
type Mode string

const (
	ModeFree     Mode = "free"
	ModeCD       Mode = "cd"
	ModeTutorial Mode = "tutorial"
)

// Execution is one recorded command run.
type Execution struct {
	ID        string        `json:"id"`
	Mode      Mode          `json:"mode"`
	Command   string        `json:"command"`
	Dir       string        `json:"dir"`
	ExitCode  *int          `json:"exit_code"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	TimedOut  bool          `json:"timed_out"`
	Duration  time.Duration `json:"duration_ns"`
	StepID    int           `json:"step_id,omitempty"`
	Matched   *bool         `json:"matched,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// ListOptions controls filtering and pagination for List.
type ListOptions struct {
	Mode   Mode
	Limit  int
	Offset int
}

// Store is the persistence interface for execution history.
type Store interface {
	// Record inserts an execution. The ID field must be set by the caller.
	Record(ctx context.Context, e *Execution) error

	// Get returns an execution by ID or ID prefix.
	Get(ctx context.Context, id string) (*Execution, error)

	// List returns executions, most recent first.
	List(ctx context.Context, opts ListOptions) ([]Execution, error)

	// Clear deletes all executions and reports how many were removed.
	Clear(ctx context.Context) (int64, error)

	// Close releases resources.
	Close() error
}
