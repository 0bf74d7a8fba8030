package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scrypster/memvault/internal/engine"
	"github.com/scrypster/memvault/pkg/types"
)

func NewArchiveCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive <id>",
		Short: "Promote a memory to long-term storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := requireUser(cmd)
			if err != nil {
				return err
			}
			reason, _ := cmd.Flags().GetString("reason")
			retention, _ := cmd.Flags().GetInt("retention")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			rt, err := open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			m, err := rt.Engine.Archive(cmd.Context(), user, args[0], engine.ArchiveRequest{
				Reason:        reason,
				RetentionDays: retention,
				DryRun:        dryRun,
			})
			if err != nil {
				return fmt.Errorf("archive %s: %w", args[0], err)
			}

			if wantJSON(cmd) {
				return writeJSON(cmd, m)
			}
			verb := "archived"
			if dryRun {
				verb = "would archive"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s as %s, importance %s%s\n", verb, m.ID, m.MemoryType.Label(),
				types.FormatPercent(m.Importance), expiryNote(m))
			return nil
		},
	}

	cmd.Flags().String("reason", "", "Why the memory is being kept")
	cmd.Flags().Int("retention", 0, "Retention period in days (default 365, max 3650)")
	cmd.Flags().Bool("dry-run", false, "Show the result without writing it")
	return cmd
}

func expiryNote(m *types.Memory) string {
	if m.ExpiresAt == nil {
		return ""
	}
	return ", expires " + m.ExpiresAt.Format("2006-01-02")
}
