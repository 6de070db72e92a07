package storage

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExportMarkdown renders executions as a markdown document, one section per run.
func ExportMarkdown(execs []Execution) string {
	var b strings.Builder

	b.WriteString("# cmdbox history\n\n")
	if len(execs) == 0 {
		b.WriteString("_No executions recorded._\n")
		return b.String()
	}

	for _, e := range execs {
		b.WriteString(fmt.Sprintf("## `%s`\n\n", e.Command))
		b.WriteString(fmt.Sprintf("- **ID:** %s\n", e.ID))
		b.WriteString(fmt.Sprintf("- **Mode:** %s\n", e.Mode))
		b.WriteString(fmt.Sprintf("- **Directory:** %s\n", e.Dir))
		b.WriteString(fmt.Sprintf("- **Exit code:** %s\n", FormatExitCode(e.ExitCode)))
		if e.TimedOut {
			b.WriteString("- **Timed out:** yes\n")
		}
		if e.Matched != nil {
			b.WriteString(fmt.Sprintf("- **Tutorial step:** %d (matched: %t)\n", e.StepID, *e.Matched))
		}
		b.WriteString(fmt.Sprintf("- **Duration:** %s\n", e.Duration))
		b.WriteString(fmt.Sprintf("- **Ran at:** %s\n\n", e.CreatedAt.Format("2006-01-02 15:04:05")))

		if e.Stdout != "" {
			b.WriteString(fmt.Sprintf("```\n%s\n```\n\n", strings.TrimRight(e.Stdout, "\n")))
		}
		if e.Stderr != "" {
			b.WriteString(fmt.Sprintf("<details>\n<summary>stderr</summary>\n\n```\n%s\n```\n</details>\n\n", strings.TrimRight(e.Stderr, "\n")))
		}
	}

	return b.String()
}

// ExportJSON renders executions as formatted JSON.
func ExportJSON(execs []Execution) ([]byte, error) {
	if execs == nil {
		execs = []Execution{}
	}
	export := struct {
		Executions []Execution `json:"executions"`
	}{
		Executions: execs,
	}
	return json.MarshalIndent(export, "", "  ")
}

// FormatExitCode renders a nullable exit code, "none" when absent.
func FormatExitCode(code *int) string {
	if code == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *code)
}
