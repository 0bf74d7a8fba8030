package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scrypster/memvault/internal/engine"
)

func NewCleanupCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old or expired memories",
		Long: `Find memories older than --days (and, with --include-expired, past their expiry).
Without --execute nothing is deleted and the matches are listed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, _ := cmd.Flags().GetBool("all")
			user, _ := cmd.Flags().GetString("user")
			if !all && user == "" {
				return fmt.Errorf("--user or --all is required")
			}
			days, _ := cmd.Flags().GetInt("days")
			memType, _ := cmd.Flags().GetString("type")
			includeExpired, _ := cmd.Flags().GetBool("include-expired")
			execute, _ := cmd.Flags().GetBool("execute")

			rt, err := open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			dryRun := !execute
			req := engine.CleanupRequest{
				UserID:         user,
				DaysOld:        days,
				MemoryType:     memType,
				IncludeExpired: includeExpired,
				DryRun:         &dryRun,
			}

			var res *engine.CleanupResult
			if all {
				res, err = rt.Engine.CleanupAll(cmd.Context(), req)
			} else {
				res, err = rt.Engine.Cleanup(cmd.Context(), req)
			}
			if err != nil {
				return fmt.Errorf("cleanup: %w", err)
			}

			if wantJSON(cmd) {
				return writeJSON(cmd, res)
			}
			if res.DryRun {
				for _, m := range res.Items {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %-10s %s\n", m.ID, m.CreatedAt.Format("2006-01-02"), m.MemoryType, m.Content)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d memories older than %d days would be deleted (re-run with --execute)\n", res.Count, res.DaysOld)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d memories older than %d days\n", res.Count, res.DaysOld)
			return nil
		},
	}

	cmd.Flags().Bool("all", false, "Clean up every user")
	cmd.Flags().Int("days", engine.DefaultCleanupDays, "Age threshold in days (1-365)")
	cmd.Flags().String("type", "", "Restrict to one memory type")
	cmd.Flags().Bool("include-expired", false, "Also match memories past their expiry")
	cmd.Flags().Bool("execute", false, "Actually delete (default is a dry run)")
	return cmd
}
