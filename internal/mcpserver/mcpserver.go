// Package mcpserver exposes the sandbox engine as MCP tools.
package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/michaelbrown/cmdbox/internal/engine"
	"github.com/michaelbrown/cmdbox/internal/storage"
	"github.com/michaelbrown/cmdbox/internal/tutorial"
)

// Tool names.
const (
	ToolExec           = "sandbox_exec"
	ToolChangeDir      = "sandbox_cd"
	ToolReset          = "sandbox_reset"
	ToolTutorialStart  = "tutorial_start"
	ToolTutorialSubmit = "tutorial_submit"
)

type handlers struct {
	engine *engine.Engine
}

// New builds an MCP server whose tools drive eng.
func New(eng *engine.Engine, version string) *server.MCPServer {
	s := server.NewMCPServer("cmdbox", version)
	h := &handlers{engine: eng}

	commandSchema := mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The shell command to execute",
			},
			"timeout": map[string]any{
				"type":        "integer",
				"description": "Timeout in seconds (optional)",
			},
		},
		Required: []string{"command"},
	}

	s.AddTool(mcp.Tool{
		Name:        ToolExec,
		Description: "Execute a shell command in the sandbox's current directory and return its exit code, stdout and stderr. A bare `cd <dir>` moves the sandbox directory for later commands.",
		InputSchema: commandSchema,
	}, h.exec)

	s.AddTool(mcp.Tool{
		Name:        ToolChangeDir,
		Description: "Change the sandbox's current directory. Targets outside the sandbox root are rejected.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"target": map[string]any{
					"type":        "string",
					"description": "Directory to move to; empty or ~ returns to the sandbox root",
				},
			},
		},
	}, h.changeDir)

	s.AddTool(mcp.Tool{
		Name:        ToolReset,
		Description: "Delete everything in the sandbox and return to its root.",
		InputSchema: mcp.ToolInputSchema{Type: "object"},
	}, h.reset)

	s.AddTool(mcp.Tool{
		Name:        ToolTutorialStart,
		Description: "Start (or restart) the command-line tutorial and return the first step.",
		InputSchema: mcp.ToolInputSchema{Type: "object"},
	}, h.tutorialStart)

	s.AddTool(mcp.Tool{
		Name:        ToolTutorialSubmit,
		Description: "Submit a command for the current tutorial step. The command is judged against the expected one and executed either way.",
		InputSchema: commandSchema,
	}, h.tutorialSubmit)

	return s
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "error: " + text}},
		IsError: true,
	}
}

// invocation reads command and timeout arguments and validates them.
func (h *handlers) invocation(request mcp.CallToolRequest) (engine.Invocation, *mcp.CallToolResult) {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return engine.Invocation{}, errorResult("invalid arguments")
	}

	command, ok := args["command"].(string)
	if !ok {
		return engine.Invocation{}, errorResult("'command' argument must be a string")
	}
	inv := engine.Invocation{Command: command}

	switch v := args["timeout"].(type) {
	case nil:
	case float64:
		inv.Timeout = int(v)
	case int:
		inv.Timeout = v
	default:
		return inv, errorResult("'timeout' argument must be a number")
	}

	if err := inv.Validate(h.engine.Policy()); err != nil {
		return inv, errorResult(err.Error())
	}
	return inv, nil
}

func (h *handlers) exec(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	inv, errRes := h.invocation(request)
	if errRes != nil {
		return errRes, nil
	}
	out := h.engine.RunFree(ctx, inv)
	return textResult(h.formatOutcome(out)), nil
}

func (h *handlers) changeDir(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	target, _ := args["target"].(string)

	out := h.engine.ChangeDir(target)
	if !out.Succeeded() {
		return errorResult(out.Message), nil
	}
	return textResult("cwd: " + h.engine.Workspace().Rel()), nil
}

func (h *handlers) reset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.engine.SandboxReset(); err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult("sandbox reset; cwd: " + h.engine.Workspace().Rel()), nil
}

func (h *handlers) tutorialStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	step := h.engine.TutorialStart()
	return textResult(FormatStep(step, len(h.engine.Tutorial().Steps()))), nil
}

func (h *handlers) tutorialSubmit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	inv, errRes := h.invocation(request)
	if errRes != nil {
		return errRes, nil
	}
	res := h.engine.TutorialSubmit(ctx, inv)
	total := len(h.engine.Tutorial().Steps())

	var b strings.Builder
	b.WriteString(FormatVerdict(res.Verdict, total))
	b.WriteString("\n\n")
	b.WriteString(h.formatOutcome(res.Outcome))
	return textResult(b.String()), nil
}

func (h *handlers) formatOutcome(out engine.Outcome) string {
	return fmt.Sprintf("cwd: %s\nexit code: %s\nstdout:\n%s\nstderr:\n%s",
		h.engine.Workspace().Rel(), storage.FormatExitCode(out.ExitCode), out.Stdout, out.Stderr)
}

// FormatStep renders a tutorial step for text clients.
func FormatStep(step tutorial.Step, total int) string {
	return fmt.Sprintf("Step %d/%d: %s\nexample: %s", step.ID, total, step.Instruction, step.Command)
}

// FormatVerdict renders a verdict for text clients.
func FormatVerdict(v tutorial.Verdict, total int) string {
	switch {
	case v.Matched && v.Completed:
		return "Correct! Tutorial complete."
	case v.Matched:
		return "Correct!\n" + FormatStep(*v.Next, total)
	case v.Completed:
		return "The tutorial is already complete. Start it again to repeat."
	}
	return fmt.Sprintf("Not quite. Expected: %s", v.Expected)
}
