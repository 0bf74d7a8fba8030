package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scrypster/memvault/pkg/types"
)

func NewStatsCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show memory statistics for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := requireUser(cmd)
			if err != nil {
				return err
			}
			rng, _ := cmd.Flags().GetString("trend")

			rt, err := open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if rng != "" {
				trend, err := rt.Engine.Trend(cmd.Context(), user, rng)
				if err != nil {
					return fmt.Errorf("trend: %w", err)
				}
				if wantJSON(cmd) {
					return writeJSON(cmd, trend)
				}
				for _, p := range trend.Points {
					fmt.Fprintf(cmd.OutOrStdout(), "%-10s %d\n", p.Label, p.Count)
				}
				return nil
			}

			stats, err := rt.Engine.Stats(cmd.Context(), user)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			if wantJSON(cmd) {
				return writeJSON(cmd, stats)
			}
			printStats(cmd, stats)
			return nil
		},
	}

	cmd.Flags().String("trend", "", "Show creation trend instead (week|month|year)")
	return cmd
}

func printStats(cmd *cobra.Command, s *types.Stats) {
	fmt.Fprintf(cmd.OutOrStdout(), "Total:        %d (immediate %d, short term %d, long term %d)\n",
		s.TotalCount, s.ImmediateCount, s.ShortTermCount, s.LongTermCount)
	fmt.Fprintf(cmd.OutOrStdout(), "Importance:   %s average (low %d, medium %d, high %d)\n",
		types.FormatPercent(s.AverageImportance),
		s.ImportanceHistogram.Low, s.ImportanceHistogram.Medium, s.ImportanceHistogram.High)
	fmt.Fprintf(cmd.OutOrStdout(), "Created:      %d today, %d this week, %d this month\n",
		s.CreatedToday, s.CreatedThisWeek, s.CreatedThisMonth)
	fmt.Fprintf(cmd.OutOrStdout(), "Expiry:       %d expired, %d expiring soon\n", s.Expired, s.ExpiringSoon)
}
