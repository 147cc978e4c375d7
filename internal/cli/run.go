package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/warden/internal/engine"
	"github.com/roach88/warden/internal/policy"
	"github.com/roach88/warden/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config   string
	Database string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [policy-file]",
		Short: "Start the authority engine",
		Long: `Start the warden authority engine with an automatic tick loop.

An optional CUE policy file seeds permissions, entities, and scheduled
actions before the first tick. With --db, retained audit entries and
execution history are archived to SQLite on shutdown.

Example:
  warden run ./village.cue
  warden run --config warden.yaml --db ./audit.db ./village.cue`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			policyPath := ""
			if len(args) == 1 {
				policyPath = args[0]
			}
			return runEngine(opts, policyPath, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to YAML engine configuration")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite audit archive")

	return cmd
}

func runEngine(opts *RunOptions, policyPath string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))

	cfg, err := LoadConfig(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	// run always means an automatic tick loop.
	if cfg.TickIntervalMs == 0 {
		cfg.TickIntervalMs = engine.DefaultTickIntervalMs
	}

	eng, err := engine.New(cfg, engine.Options{Guard: engine.NewGuard()})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create engine", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	if err := eng.Init(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to initialize engine", err)
	}

	if policyPath != "" {
		src, err := os.ReadFile(policyPath)
		if err != nil {
			eng.Stop()
			return WrapExitError(ExitCommandError, "failed to read policy", err)
		}
		p, err := policy.CompileSource(string(src))
		if err != nil {
			eng.Stop()
			return WrapExitError(ExitFailure, "failed to compile policy", err)
		}
		if err := policy.Apply(p, eng); err != nil {
			eng.Stop()
			return WrapExitError(ExitFailure, "failed to apply policy", err)
		}
		slog.Info("policy applied",
			"policy", p.Name,
			"entities", len(p.Entities),
			"actions", len(p.Actions),
		)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	fmt.Fprintln(cmd.OutOrStdout(), "Engine started. Press Ctrl-C to stop.")

	select {
	case sig := <-sigChan:
		slog.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	}

	// Archive retained rings before Stop clears them.
	var archiveErr error
	if opts.Database != "" {
		archiveErr = archiveRings(ctx, opts.Database, eng)
	}

	eng.Stop()
	if archiveErr != nil {
		return WrapExitError(ExitFailure, "failed to archive audit data", archiveErr)
	}
	return nil
}

func archiveRings(ctx context.Context, path string, eng *engine.Engine) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()

	audits, err := st.ArchiveAudit(ctx, eng.AuditLog())
	if err != nil {
		return err
	}
	history, err := st.ArchiveHistory(ctx, eng.ExecutionHistory())
	if err != nil {
		return err
	}
	slog.Info("audit archive written", "path", path, "audit_rows", audits, "history_rows", history)
	return nil
}
