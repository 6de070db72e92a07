package tutorial

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RootPlaceholder is replaced with the sandbox root in step commands and
// instructions loaded from a file.
const RootPlaceholder = "{root}"

// Step is one entry in the ordered tutorial sequence.
type Step struct {
	ID          int    `yaml:"id" json:"id"`
	Instruction string `yaml:"instruction" json:"instruction"`
	Command     string `yaml:"command" json:"command"`
}

type stepsFile struct {
	Steps []Step `yaml:"steps"`
}

// DefaultSteps returns the built-in walk through the sandbox rooted at root.
func DefaultSteps(root string) []Step {
	return []Step{
		{ID: 1, Instruction: "Move to the sandbox root.", Command: "cd " + root},
		{ID: 2, Instruction: "Create a directory called test.", Command: "mkdir test"},
		{ID: 3, Instruction: "Change into the test directory.", Command: "cd test"},
		{ID: 4, Instruction: "Write hello into hello.txt.", Command: "echo hello > hello.txt"},
		{ID: 5, Instruction: "Print the contents of hello.txt.", Command: "cat hello.txt"},
	}
}

// LoadSteps reads a step sequence from a YAML file of the form
//
//	steps:
//	  - instruction: Move to the sandbox root.
//	    command: cd {root}
//
// Missing IDs are numbered from 1 in file order.
func LoadSteps(path, root string) ([]Step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading steps %s: %w", path, err)
	}

	var f stepsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing steps %s: %w", path, err)
	}
	if len(f.Steps) == 0 {
		return nil, fmt.Errorf("steps %s: no steps defined", path)
	}

	steps := make([]Step, len(f.Steps))
	for i, s := range f.Steps {
		s.Command = strings.TrimSpace(strings.ReplaceAll(s.Command, RootPlaceholder, root))
		s.Instruction = strings.ReplaceAll(s.Instruction, RootPlaceholder, root)
		if s.Command == "" {
			return nil, fmt.Errorf("steps %s: step %d has no command", path, i+1)
		}
		if s.ID == 0 {
			s.ID = i + 1
		}
		steps[i] = s
	}
	return steps, nil
}
