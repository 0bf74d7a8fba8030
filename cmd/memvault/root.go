package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scrypster/memvault/internal/app"
	"github.com/scrypster/memvault/internal/config"
)

// opener builds the runtime a command operates on.
type opener func(cmd *cobra.Command) (*app.Runtime, error)

func NewRootCmd(version string, open opener) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "memvault",
		Short:         "Per-user conversational memory store",
		Long:          `Stores typed, importance-scored memories per user and manages their lifecycle.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file (default: $MEMVAULT_CONFIG)")
	rootCmd.PersistentFlags().String("user", "", "User id to operate on")
	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format")

	rootCmd.AddCommand(
		NewServeCmd(open),
		NewStatsCmd(open),
		NewCleanupCmd(open),
		NewArchiveCmd(open),
		NewMigrateCmd(open),
		NewExportCmd(open),
		NewBackupCmd(open),
	)

	return rootCmd
}

// openRuntime loads configuration from --config and the environment.
func openRuntime(cmd *cobra.Command) (*app.Runtime, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	rt, err := app.Open(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	if cmd.Name() != "serve" {
		rt.ForwardEvents()
	}
	return rt, nil
}

func requireUser(cmd *cobra.Command) (string, error) {
	user, _ := cmd.Flags().GetString("user")
	if user == "" {
		return "", fmt.Errorf("--user is required")
	}
	return user, nil
}

func wantJSON(cmd *cobra.Command) bool {
	asJSON, _ := cmd.Flags().GetBool("json")
	return asJSON
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
