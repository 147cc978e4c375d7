package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/warden/internal/harness"
	"github.com/roach88/warden/internal/policy"
)

// ValidationResult holds validation results for one file.
type ValidationResult struct {
	Path  string `json:"path"`
	Kind  string `json:"kind"` // "policy" | "scenario"
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate policy and scenario files",
		Long: `Validate CUE policy files (.cue) and YAML scenario files (.yaml,
.yml) without executing them. Exit code 1 when any file is invalid.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	results := make([]ValidationResult, 0, len(paths))
	failed := 0
	for _, path := range paths {
		result := validateFile(path)
		if !result.Valid {
			failed++
		}
		results = append(results, result)
	}

	if opts.Format == "json" {
		if err := formatter.Success(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Valid {
				fmt.Fprintf(cmd.OutOrStdout(), "ok\t%s\n", r.Path)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "FAIL\t%s: %s\n", r.Path, r.Error)
			}
		}
	}

	if failed > 0 {
		return WrapExitError(ExitFailure, fmt.Sprintf("%d of %d files invalid", failed, len(paths)), nil)
	}
	return nil
}

func validateFile(path string) ValidationResult {
	switch filepath.Ext(path) {
	case ".cue":
		result := ValidationResult{Path: path, Kind: "policy"}
		src, err := os.ReadFile(path)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		if _, err := policy.CompileSource(string(src)); err != nil {
			result.Error = err.Error()
			return result
		}
		result.Valid = true
		return result

	case ".yaml", ".yml":
		result := ValidationResult{Path: path, Kind: "scenario"}
		if _, err := harness.LoadScenario(path); err != nil {
			result.Error = err.Error()
			return result
		}
		result.Valid = true
		return result

	default:
		return ValidationResult{
			Path:  path,
			Kind:  "unknown",
			Error: fmt.Sprintf("unsupported extension %q: expected .cue, .yaml, or .yml", filepath.Ext(path)),
		}
	}
}
