package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/michaelbrown/cmdbox/internal/sandbox"
)

// shellMeta marks a command line the shell has to interpret.
const shellMeta = ";&|<>`$()\n\\*?"

// parseCD reports whether command is a bare directory change and returns its
// target. "cd", "cd dir", "cd 'my dir'" qualify; anything chained, expanded or
// with more than one argument is left to the shell and does not move the
// sandbox directory.
func parseCD(command string) (string, bool) {
	command = strings.TrimSpace(command)
	if command == "cd" {
		return "", true
	}
	rest, ok := strings.CutPrefix(command, "cd")
	if !ok || rest == "" || (rest[0] != ' ' && rest[0] != '\t') {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	if strings.ContainsAny(rest, shellMeta) {
		return "", false
	}

	if n := len(rest); n >= 2 && (rest[0] == '\'' || rest[0] == '"') && rest[n-1] == rest[0] {
		inner := rest[1 : n-1]
		if strings.ContainsAny(inner, `'"`) {
			return "", false
		}
		return inner, true
	}
	if strings.ContainsAny(rest, " \t'\"") {
		return "", false
	}
	return rest, true
}

// cdMessage renders a ChangeDir failure the way a shell reports it.
func cdMessage(target string, err error) string {
	switch {
	case errors.Is(err, sandbox.ErrOutsideSandbox):
		return fmt.Sprintf("cd: %s: Outside sandbox", target)
	case errors.Is(err, sandbox.ErrNotFound):
		return fmt.Sprintf("cd: %s: No such file or directory", target)
	case errors.Is(err, sandbox.ErrNotDirectory):
		return fmt.Sprintf("cd: %s: Not a directory", target)
	}
	return fmt.Sprintf("cd: %s: %v", target, err)
}

// cdResult labels a ChangeDir outcome for metrics and logs.
func cdResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, sandbox.ErrOutsideSandbox):
		return "outside_sandbox"
	case errors.Is(err, sandbox.ErrNotFound):
		return "not_found"
	case errors.Is(err, sandbox.ErrNotDirectory):
		return "not_directory"
	}
	return "error"
}
