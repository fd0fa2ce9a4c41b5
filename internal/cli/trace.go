package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/rapture/internal/harness"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <scenario.yaml>...",
		Short: "Run scenarios and print their event traces",
		Long: `Run scenario files and print what the root rule context published.

Each scenario applies its rules to its document, runs its steps and
checks its assertions. With --format json the canonical trace is
printed, one scenario per line, exactly as stored in golden files.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid scenario, unreadable rules, etc.)

Examples:
  rapture trace scenarios/limit.yaml
  rapture trace --format json scenarios/*.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd, args)
		},
	}

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command, paths []string) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	failed := 0
	for _, path := range paths {
		scenario, err := harness.LoadScenario(path)
		if err != nil {
			_ = out.Error(ErrCodeScenario, err.Error(), map[string]string{"file": path})
			return WrapExitError(ExitCommandError, "failed to load scenario", err)
		}

		slog.Info("running scenario", "name", scenario.Name, "file", path)

		result, err := harness.Run(scenario)
		if err != nil {
			_ = out.Error(ErrCodeScenario, err.Error(), map[string]string{"file": path})
			return WrapExitError(ExitCommandError, "failed to run scenario", err)
		}
		if !result.Pass {
			failed++
		}

		if opts.Format == "json" {
			data, err := harness.MarshalTrace(scenario.Name, result)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to marshal trace", err)
			}
			fmt.Fprintln(out.Writer, string(data))
			continue
		}

		printTraceText(out, scenario, result)
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", failed))
	}
	return nil
}

func printTraceText(out *OutputFormatter, scenario *harness.Scenario, result *harness.Result) {
	status := "PASS"
	if !result.Pass {
		status = "FAIL"
	}
	fmt.Fprintf(out.Writer, "%s %s\n", status, scenario.Name)
	out.VerboseLog("  %s", scenario.Description)

	for _, event := range result.Trace {
		switch event.Type {
		case harness.EventStep:
			if event.ID != "" {
				fmt.Fprintf(out.Writer, "  [%d] step %s %s\n", event.Seq, event.Op, event.ID)
			} else {
				fmt.Fprintf(out.Writer, "  [%d] step %s\n", event.Seq, event.Op)
			}
		case harness.EventRaise:
			fmt.Fprintf(out.Writer, "  [%d] raise %d issue(s)\n", event.Seq, len(event.Issues))
			for _, issue := range event.Issues {
				fmt.Fprint(out.Writer, "        ")
				out.Issue(scenario.Name, issue)
			}
		default:
			fmt.Fprintf(out.Writer, "  [%d] %s\n", event.Seq, event.Type)
		}
	}

	for _, msg := range result.Errors {
		fmt.Fprintf(out.Writer, "  %s\n", msg)
	}
}
