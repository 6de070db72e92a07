package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "cmdbox",
	Short: "cmdbox - a sandboxed shell for learning the command line",
	Long: `cmdbox runs shell commands inside a confined sandbox directory.

It serves a web UI and JSON API, an interactive terminal, and an MCP tool
server, all backed by the same sandbox, tutorial and execution history.`,
	SilenceUsage: true,
	Version:      version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default: ./cmdbox.yaml or ~/.cmdbox/cmdbox.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
