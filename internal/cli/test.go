package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/warden/internal/harness"
)

// ScenarioResult summarizes one scenario execution.
type ScenarioResult struct {
	Scenario string `json:"scenario"`
	Passed   bool   `json:"passed"`
	Events   int    `json:"events"`
	Requests int    `json:"requests"`
	Error    string `json:"error,omitempty"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test <scenario-file>...",
		Short: "Run scenario files against a deterministic engine",
		Long: `Execute YAML scenarios on fresh deterministic engines and report
pass/fail per scenario. A scenario passes when every step expectation
and assertion holds. Exit code 1 when any scenario fails.

Example:
  warden test scenarios/*.yaml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runScenarios(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	results := make([]ScenarioResult, 0, len(paths))
	failed := 0
	for _, path := range paths {
		results = append(results, runOneScenario(path))
		if !results[len(results)-1].Passed {
			failed++
		}
	}

	if opts.Format == "json" {
		if err := formatter.Success(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Passed {
				fmt.Fprintf(cmd.OutOrStdout(), "PASS\t%s\t(%d events, %d requests)\n", r.Scenario, r.Events, r.Requests)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "FAIL\t%s: %s\n", r.Scenario, r.Error)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d passed, %d failed\n", len(results)-failed, failed)
	}

	if failed > 0 {
		return WrapExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", failed, len(paths)), nil)
	}
	return nil
}

func runOneScenario(path string) ScenarioResult {
	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return ScenarioResult{Scenario: path, Error: err.Error()}
	}

	result, err := harness.Run(scenario)
	if err != nil {
		return ScenarioResult{Scenario: scenario.Name, Error: err.Error()}
	}
	return ScenarioResult{
		Scenario: scenario.Name,
		Passed:   true,
		Events:   len(result.Trace),
		Requests: len(result.Responses),
	}
}
