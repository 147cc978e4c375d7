package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/warden/internal/store"
)

// AuditOptions holds flags for the audit command.
type AuditOptions struct {
	*RootOptions
	Database   string
	Actor      string
	Capability string
	DeniedOnly bool
	Limit      int
}

// AuditSummary is the JSON shape for audit query output.
type AuditSummary struct {
	Total   int          `json:"total"`
	Denied  int          `json:"denied"`
	Entries []AuditEntry `json:"entries"`
}

// AuditEntry mirrors one archived permission check.
type AuditEntry struct {
	Timestamp  int64  `json:"ts"`
	ActorID    string `json:"actor_id"`
	Role       string `json:"role"`
	Capability string `json:"capability"`
	Allowed    bool   `json:"allowed"`
	Reason     string `json:"reason,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the audit archive",
		Long: `Query permission checks archived to SQLite by a previous engine run.

Example:
  warden audit --db ./audit.db --denied
  warden audit --db ./audit.db --actor npc-1 --limit 20 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite audit archive (required)")
	cmd.Flags().StringVar(&opts.Actor, "actor", "", "filter by actor id")
	cmd.Flags().StringVar(&opts.Capability, "capability", "", "filter by capability")
	cmd.Flags().BoolVar(&opts.DeniedOnly, "denied", false, "only denied checks")
	cmd.Flags().IntVar(&opts.Limit, "limit", 100, "maximum entries to print (0 for all)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runAudit(opts *AuditOptions, cmd *cobra.Command) error {
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "audit archive not found", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open audit archive", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	total, denied, err := st.AuditCounts(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count audit entries", err)
	}

	entries, err := st.ReadAudit(ctx, store.AuditFilter{
		ActorID:    opts.Actor,
		Capability: opts.Capability,
		DeniedOnly: opts.DeniedOnly,
		Limit:      opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read audit entries", err)
	}

	summary := AuditSummary{Total: total, Denied: denied, Entries: make([]AuditEntry, 0, len(entries))}
	for _, e := range entries {
		summary.Entries = append(summary.Entries, AuditEntry{
			Timestamp:  e.Timestamp,
			ActorID:    e.ActorID,
			Role:       string(e.Role),
			Capability: string(e.Capability),
			Allowed:    e.Allowed,
			Reason:     e.Reason,
			RequestID:  e.RequestID,
		})
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
		return formatter.Success(summary)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d checks archived, %d denied\n", total, denied)
	for _, e := range summary.Entries {
		verdict := "allow"
		if !e.Allowed {
			verdict = "DENY"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%s\t%s", e.Timestamp, verdict, e.ActorID, e.Role, e.Capability)
		if e.Reason != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "\t%s", e.Reason)
		}
		fmt.Fprintln(cmd.OutOrStdout())
	}
	return nil
}
