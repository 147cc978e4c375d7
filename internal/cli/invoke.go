package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/warden/internal/engine"
	"github.com/roach88/warden/internal/ident"
	"github.com/roach88/warden/internal/permission"
	"github.com/roach88/warden/internal/policy"
	"github.com/roach88/warden/internal/request"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	Actor   string
	Role    string
	Payload string
	Policy  string
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <request-type>",
		Short: "Submit one request to an ephemeral engine",
		Long: `Submit a single request to a fresh in-process engine and print the
response. Useful for exploring the request pipeline and permission
matrix without a long-running engine.

Example:
  warden invoke engine.snapshot --actor operator --role HUMAN
  warden invoke entity.register --role SYSTEM --payload '{"entityId":"npc-1","kind":"villager"}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return invokeRequest(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Actor, "actor", "operator", "actor id for the request")
	cmd.Flags().StringVar(&opts.Role, "role", string(permission.RoleHuman), "actor role (HUMAN|SIMULANT|SYSTEM)")
	cmd.Flags().StringVar(&opts.Payload, "payload", "{}", "request payload as JSON")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "CUE policy file applied before the request")

	return cmd
}

func invokeRequest(opts *InvokeOptions, requestType string, cmd *cobra.Command) error {
	var payload map[string]any
	if err := json.Unmarshal([]byte(opts.Payload), &payload); err != nil {
		return WrapExitError(ExitCommandError, "invalid --payload JSON", err)
	}

	eng, err := engine.New(engine.Config{TickIntervalMs: 0}, engine.Options{
		IDs: ident.NewSequential("id"),
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create engine", err)
	}
	if err := eng.Init(cmd.Context()); err != nil {
		return WrapExitError(ExitFailure, "failed to initialize engine", err)
	}
	defer eng.Stop()

	if opts.Policy != "" {
		src, err := os.ReadFile(opts.Policy)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read policy", err)
		}
		p, err := policy.CompileSource(string(src))
		if err != nil {
			return WrapExitError(ExitFailure, "failed to compile policy", err)
		}
		if err := policy.Apply(p, eng); err != nil {
			return WrapExitError(ExitFailure, "failed to apply policy", err)
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	resp := eng.Request(ctx, request.Request{
		ID:        "cli-1",
		ActorID:   opts.Actor,
		Role:      permission.Role(opts.Role),
		Type:      request.Type(requestType),
		Timestamp: nowMillis(),
		Payload:   payload,
	})

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if !resp.OK {
		if err := formatter.Error(resp.Error.Code, resp.Error.Message, resp.Error.Details); err != nil {
			return err
		}
		return WrapExitError(ExitFailure, fmt.Sprintf("request failed with %s", resp.Error.Code), nil)
	}
	return formatter.Success(resp.Result)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
