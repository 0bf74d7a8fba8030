package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func NewExportCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a user's statistics and memories as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := requireUser(cmd)
			if err != nil {
				return err
			}
			output, _ := cmd.Flags().GetString("output")

			rt, err := open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			snapshot, err := rt.Engine.Export(cmd.Context(), user)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}

			toFile := output != "" && output != "-"
			var w io.Writer = cmd.OutOrStdout()
			if toFile {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("export: %w", err)
				}
				defer f.Close()
				w = f
			}

			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if err := enc.Encode(snapshot); err != nil {
				return fmt.Errorf("export: %w", err)
			}
			if toFile {
				cmd.PrintErrf("exported %d memories to %s\n", len(snapshot.Memories), output)
			}
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")
	return cmd
}
