package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/cmdbox/internal/config"
	"github.com/michaelbrown/cmdbox/internal/storage"
)

var (
	modeFilter   string
	limitFlag    int
	exportFormat string
	exportOutput string
	forceFlag    bool
)

var historyCmd = &cobra.Command{
	Use:     "history",
	Aliases: []string{"hist", "h"},
	Short:   "Inspect recorded command executions",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent executions",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <execution-id>",
	Short: "Show one execution with its output",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export history as markdown or JSON",
	RunE:  runHistoryExport,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all recorded executions",
	RunE:  runHistoryClear,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyExportCmd, historyClearCmd)

	for _, c := range []*cobra.Command{historyListCmd, historyExportCmd} {
		c.Flags().StringVar(&modeFilter, "mode", "", "Filter by mode (free, cd, tutorial)")
		c.Flags().IntVar(&limitFlag, "limit", 20, "Max executions to include")
	}

	historyExportCmd.Flags().StringVar(&exportFormat, "format", "md", "Export format: md or json")
	historyExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")

	historyClearCmd.Flags().BoolVar(&forceFlag, "force", false, "Skip confirmation")
}

func openHistory() (storage.Store, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return openStore(cfg)
}

func listOptions() (storage.ListOptions, error) {
	mode := storage.Mode(modeFilter)
	switch mode {
	case "", storage.ModeFree, storage.ModeCD, storage.ModeTutorial:
	default:
		return storage.ListOptions{}, fmt.Errorf("unknown mode %q (want free, cd or tutorial)", modeFilter)
	}
	return storage.ListOptions{Mode: mode, Limit: limitFlag}, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	opts, err := listOptions()
	if err != nil {
		return err
	}
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	execs, err := store.List(context.Background(), opts)
	if err != nil {
		return err
	}

	if len(execs) == 0 {
		fmt.Println("No executions found.")
		return nil
	}

	fmt.Printf("%-10s %-9s %-6s %-44s %s\n", "ID", "MODE", "EXIT", "COMMAND", "RAN")
	fmt.Println(strings.Repeat("─", 85))

	for _, e := range execs {
		command := strings.ReplaceAll(e.Command, "\n", " ")
		if len(command) > 42 {
			command = command[:42] + ".."
		}
		exit := storage.FormatExitCode(e.ExitCode)
		if e.TimedOut {
			exit = "t/o"
		}
		fmt.Printf("%-10s %-9s %-6s %-44s %s\n",
			shortID(e.ID), e.Mode, exit, command, timeAgo(e.CreatedAt))
	}

	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	e, err := store.Get(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Execution: %s\n", e.ID)
	fmt.Printf("Command:   %s\n", e.Command)
	fmt.Printf("Mode:      %s\n", e.Mode)
	fmt.Printf("Directory: %s\n", e.Dir)
	fmt.Printf("Exit code: %s\n", storage.FormatExitCode(e.ExitCode))
	if e.TimedOut {
		fmt.Printf("Timed out: yes\n")
	}
	if e.StepID > 0 {
		matched := "no"
		if e.Matched != nil && *e.Matched {
			matched = "yes"
		}
		fmt.Printf("Step:      %d (matched: %s)\n", e.StepID, matched)
	}
	fmt.Printf("Duration:  %s\n", e.Duration)
	fmt.Printf("Ran at:    %s\n", e.CreatedAt.Format(time.RFC3339))

	fmt.Println(strings.Repeat("─", 60))
	if e.Stdout != "" {
		fmt.Print(ensureNewline(e.Stdout))
	}
	if e.Stderr != "" {
		fmt.Printf("\033[31m%s\033[0m", ensureNewline(e.Stderr))
	}
	return nil
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	opts, err := listOptions()
	if err != nil {
		return err
	}
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	execs, err := store.List(context.Background(), opts)
	if err != nil {
		return err
	}

	var output string
	switch exportFormat {
	case "json":
		data, err := storage.ExportJSON(execs)
		if err != nil {
			return err
		}
		output = string(data)
	case "md", "markdown":
		output = storage.ExportMarkdown(execs)
	default:
		return fmt.Errorf("unknown format %q (want md or json)", exportFormat)
	}

	if exportOutput != "" {
		return os.WriteFile(exportOutput, []byte(output), 0o644)
	}

	fmt.Print(output)
	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	if !forceFlag {
		fmt.Print("Delete all recorded executions? [y/N] ")
		var confirm string
		fmt.Scanln(&confirm)
		if strings.ToLower(confirm) != "y" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	n, err := store.Clear(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d executions\n", n)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
