// Command memvault is the operator CLI: it serves the API and runs
// maintenance (stats, cleanup, archive, migrate, export, backup) against the
// configured store.
package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	rootCmd := NewRootCmd(version, openRuntime)
	if err := fang.Execute(context.Background(), rootCmd); err != nil {
		os.Exit(1)
	}
}
