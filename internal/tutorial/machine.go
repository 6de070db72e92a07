// Package tutorial tracks progress through an ordered list of expected
// commands and judges submissions against the current step.
package tutorial

import (
	"errors"
	"strings"
	"sync"
)

// State is the coarse position of a Machine.
type State int

const (
	NotStarted State = iota
	InProgress
	Completed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case Completed:
		return "completed"
	}
	return "unknown"
}

// Verdict is the judgement for one submission.
type Verdict struct {
	// Step is the step the submission was judged against.
	Step      Step   `json:"step"`
	Matched   bool   `json:"matched"`
	Expected  string `json:"expected_command"`
	Next      *Step  `json:"next,omitempty"`
	Completed bool   `json:"completed"`
}

// Hint is the text to show after the verdict: the next instruction on a
// match, the expected command on a mismatch, empty on completion.
func (v Verdict) Hint() string {
	switch {
	case v.Next != nil:
		return v.Next.Instruction
	case v.Completed:
		return ""
	default:
		return v.Expected
	}
}

// Status is a snapshot of a Machine.
type Status struct {
	State     string `json:"state"`
	Started   bool   `json:"started"`
	Completed bool   `json:"completed"`
	Current   *Step  `json:"current,omitempty"`
	Index     int    `json:"index"`
	Total     int    `json:"total"`
	Steps     []Step `json:"steps"`
}

// Machine is the tutorial state machine. It is safe for concurrent use.
type Machine struct {
	steps []Step

	mu      sync.Mutex
	state   State
	current int
}

// New returns a Machine over steps. The slice is copied.
func New(steps []Step) (*Machine, error) {
	if len(steps) == 0 {
		return nil, errors.New("tutorial needs at least one step")
	}
	return &Machine{steps: append([]Step(nil), steps...)}, nil
}

// Start moves to the first step from any state and returns it.
func (m *Machine) Start() Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = InProgress
	m.current = 0
	return m.steps[0]
}

// Submit compares the trimmed command with the current step's expected
// command. A submission before Start starts the tutorial implicitly.
func (m *Machine) Submit(command string) Verdict {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case NotStarted:
		m.state = InProgress
		m.current = 0
	case Completed:
		last := m.steps[len(m.steps)-1]
		return Verdict{Step: last, Expected: last.Command, Completed: true}
	}

	step := m.steps[m.current]
	v := Verdict{Step: step, Expected: step.Command}
	if strings.TrimSpace(command) != step.Command {
		return v
	}

	v.Matched = true
	if m.current == len(m.steps)-1 {
		m.state = Completed
		v.Completed = true
		return v
	}
	m.current++
	next := m.steps[m.current]
	v.Next = &next
	return v
}

// Reset clears progress back to NotStarted.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = NotStarted
	m.current = 0
}

// Status returns the current state and step.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		State:     m.state.String(),
		Started:   m.state != NotStarted,
		Completed: m.state == Completed,
		Index:     m.current,
		Total:     len(m.steps),
		Steps:     append([]Step(nil), m.steps...),
	}
	if m.state == InProgress {
		cur := m.steps[m.current]
		st.Current = &cur
	}
	return st
}

// Steps returns a copy of the step sequence.
func (m *Machine) Steps() []Step {
	return append([]Step(nil), m.steps...)
}
