package main

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/scrypster/memvault/internal/backup"
)

type dbGetter interface {
	GetDB() *sql.DB
}

func NewBackupCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the SQLite store and prune old snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			verify, _ := cmd.Flags().GetBool("verify")
			prune, _ := cmd.Flags().GetBool("prune")

			rt, err := open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.Config.Storage.Engine != "sqlite" {
				return fmt.Errorf("backup supports the sqlite engine only, got %q", rt.Config.Storage.Engine)
			}
			db, ok := rt.Store.(dbGetter)
			if !ok {
				return fmt.Errorf("store %T does not expose its database", rt.Store)
			}
			if dir == "" {
				dir = rt.Config.Storage.DataPath + "/backups"
			}

			now := time.Now()
			res, err := backup.Snapshot(cmd.Context(), db.GetDB(), dir, now, verify)
			if err != nil {
				return fmt.Errorf("backup: %w", err)
			}

			var removed []string
			if prune {
				removed, err = backup.Prune(dir, backup.DefaultRetention(), now)
				if err != nil {
					return fmt.Errorf("prune: %w", err)
				}
			}

			if wantJSON(cmd) {
				return writeJSON(cmd, map[string]any{"backup": res, "pruned": removed})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes, verified=%v) in %v\n", res.Path, res.Size, res.Verified, res.Duration.Round(time.Millisecond))
			if len(removed) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %d old snapshots\n", len(removed))
			}
			return nil
		},
	}

	cmd.Flags().String("dir", "", "Backup directory (default: <data_path>/backups)")
	cmd.Flags().Bool("verify", true, "Integrity check the snapshot")
	cmd.Flags().Bool("prune", true, "Apply the tiered retention policy afterwards")
	return cmd
}
