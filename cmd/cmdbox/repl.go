package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/cmdbox/internal/engine"
	"github.com/michaelbrown/cmdbox/internal/mcpserver"
)

var replCmd = &cobra.Command{
	Use:     "repl",
	Aliases: []string{"shell"},
	Short:   "Start an interactive sandboxed shell",
	Long: `Start an interactive prompt that runs each line in the sandbox.

A bare "cd <dir>" moves the sandbox directory. Type /tutorial to begin the
guided tutorial, where each line is judged against the current step before
it runs.

Examples:
  cmdbox repl
  cmdbox repl --config ./cmdbox.yaml`,
	RunE: runREPL,
}

func init() {
	rootCmd.AddCommand(replCmd)
}

// replState is the per-session prompt state.
type replState struct {
	eng      *engine.Engine
	tutorial bool
	timeout  int
	out      io.Writer
}

func runREPL(cmd *cobra.Command, args []string) error {
	logFile, err := replLogFile()
	if err != nil {
		return err
	}
	defer logFile.Close()

	a, err := setup(logFile)
	if err != nil {
		return err
	}
	defer a.Close()

	st := &replState{eng: a.engine, out: os.Stdout}

	fmt.Printf("cmdbox - sandboxed shell\n")
	fmt.Printf("Sandbox: %s\n", a.engine.Workspace().Root())
	fmt.Printf("Type /help for commands, /quit to exit\n\n")

	home, _ := os.UserHomeDir()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          st.prompt(),
		HistoryFile:     filepath.Join(home, ".cmdbox", "repl_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	// Commands run in their own process group, so Ctrl+C does not reach
	// them; they end at their timeout. Swallow SIGINT to keep the prompt.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
		}
	}()

	for {
		input, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if st.dispatch(input) {
			return nil
		}
		rl.SetPrompt(st.prompt())
	}
}

// replLogFile opens the log destination for interactive sessions so log
// lines do not interleave with command output.
func replLogFile() (*os.File, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(home, ".cmdbox")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, "repl.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

func (st *replState) prompt() string {
	if st.tutorial {
		return fmt.Sprintf("\033[35mtutorial\033[0m \033[36m%s\033[0m$ ", st.eng.Workspace().Rel())
	}
	return fmt.Sprintf("\033[36m%s\033[0m$ ", st.eng.Workspace().Rel())
}

func (st *replState) run(command string) {
	inv := engine.Invocation{Command: command, Timeout: st.timeout}
	if err := inv.Validate(st.eng.Policy()); err != nil {
		fmt.Fprintf(st.out, "\033[31merror: %s\033[0m\n", err)
		return
	}

	ctx := context.Background()
	if !st.tutorial {
		st.printOutcome(st.eng.RunFree(ctx, inv))
		return
	}

	res := st.eng.TutorialSubmit(ctx, inv)
	st.printOutcome(res.Outcome)
	total := len(st.eng.Tutorial().Steps())
	if res.Verdict.Matched {
		fmt.Fprintf(st.out, "\033[32m%s\033[0m\n", mcpserver.FormatVerdict(res.Verdict, total))
	} else {
		fmt.Fprintf(st.out, "\033[33m%s\033[0m\n", mcpserver.FormatVerdict(res.Verdict, total))
	}
	if res.Verdict.Completed && res.Verdict.Matched {
		st.tutorial = false
	}
}

func (st *replState) printOutcome(out engine.Outcome) {
	if out.Stdout != "" {
		fmt.Fprint(st.out, ensureNewline(out.Stdout))
	}
	if out.Stderr != "" {
		fmt.Fprintf(st.out, "\033[31m%s\033[0m", ensureNewline(out.Stderr))
	}
	switch {
	case out.TimedOut:
		fmt.Fprintf(st.out, "\033[90m(timed out after %s)\033[0m\n", out.Duration.Round(time.Millisecond))
	case out.ExitCode != nil && *out.ExitCode != 0:
		fmt.Fprintf(st.out, "\033[90m(exit %d)\033[0m\n", *out.ExitCode)
	}
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

var slashCommands = map[string]bool{
	"/quit": true, "/exit": true, "/q": true,
	"/tutorial": true, "/free": true, "/status": true, "/reset": true,
	"/wipe": true, "/pwd": true, "/timeout": true, "/help": true,
}

// isSlashCommand reports whether input names a REPL command rather than an
// absolute-path program such as /bin/ls.
func isSlashCommand(input string) bool {
	fields := strings.Fields(input)
	return len(fields) > 0 && slashCommands[strings.ToLower(fields[0])]
}

// dispatch routes one input line and reports whether the REPL should exit.
func (st *replState) dispatch(input string) bool {
	if isSlashCommand(input) {
		return st.handleCommand(input)
	}
	st.run(input)
	return false
}

// handleCommand runs a slash command and reports whether the REPL should exit.
func (st *replState) handleCommand(input string) bool {
	fields := strings.Fields(input)
	switch strings.ToLower(fields[0]) {
	case "/quit", "/exit", "/q":
		fmt.Fprintln(st.out, "Goodbye!")
		return true
	case "/tutorial":
		step := st.eng.TutorialStart()
		st.tutorial = true
		fmt.Fprintln(st.out, mcpserver.FormatStep(step, len(st.eng.Tutorial().Steps())))
	case "/free":
		st.tutorial = false
		fmt.Fprintln(st.out, "Tutorial paused; commands run freely.")
	case "/status":
		status := st.eng.Tutorial().Status()
		fmt.Fprintf(st.out, "Tutorial: %s\n", status.State)
		if status.Current != nil {
			fmt.Fprintln(st.out, mcpserver.FormatStep(*status.Current, status.Total))
		}
	case "/reset":
		st.eng.TutorialReset()
		st.tutorial = false
		fmt.Fprintln(st.out, "Tutorial reset.")
	case "/wipe":
		if err := st.eng.SandboxReset(); err != nil {
			fmt.Fprintf(st.out, "\033[31merror: %s\033[0m\n", err)
			break
		}
		fmt.Fprintln(st.out, "Sandbox wiped.")
	case "/pwd":
		fmt.Fprintln(st.out, st.eng.Workspace().Dir())
	case "/timeout":
		if len(fields) < 2 {
			fmt.Fprintf(st.out, "Timeout: %s\n", st.timeoutLabel())
			break
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 0 {
			fmt.Fprintf(st.out, "Invalid timeout: %s\n", fields[1])
			break
		}
		probe := engine.Invocation{Command: "true", Timeout: n}
		if err := probe.Validate(st.eng.Policy()); err != nil {
			fmt.Fprintf(st.out, "\033[31merror: %s\033[0m\n", err)
			break
		}
		st.timeout = n
		fmt.Fprintf(st.out, "Timeout: %s\n", st.timeoutLabel())
	case "/help":
		fmt.Fprintln(st.out, "Commands:")
		fmt.Fprintln(st.out, "  /help        - Show this help")
		fmt.Fprintln(st.out, "  /tutorial    - Start the tutorial from step 1")
		fmt.Fprintln(st.out, "  /free        - Leave tutorial mode without resetting it")
		fmt.Fprintln(st.out, "  /status      - Show tutorial progress")
		fmt.Fprintln(st.out, "  /reset       - Reset tutorial progress")
		fmt.Fprintln(st.out, "  /wipe        - Delete everything in the sandbox")
		fmt.Fprintln(st.out, "  /pwd         - Print the absolute sandbox directory")
		fmt.Fprintln(st.out, "  /timeout [n] - Show or set the command timeout in seconds (0 = default)")
		fmt.Fprintln(st.out, "  /quit        - Exit")
	default:
		fmt.Fprintf(st.out, "Unknown command: %s (try /help)\n", input)
	}
	fmt.Fprintln(st.out)
	return false
}

func (st *replState) timeoutLabel() string {
	if st.timeout == 0 {
		return fmt.Sprintf("default (%s)", st.eng.Policy().DefaultTimeout)
	}
	return fmt.Sprintf("%ds", st.timeout)
}
