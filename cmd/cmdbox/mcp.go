package main

import (
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/cmdbox/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the sandbox as MCP tools over stdio",
	Long: `Run an MCP server on stdin/stdout exposing sandbox_exec, sandbox_cd,
sandbox_reset, tutorial_start and tutorial_submit.

Logs are written to stderr.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	// stdout carries the protocol.
	a, err := setup(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	return server.ServeStdio(mcpserver.New(a.engine, version))
}
