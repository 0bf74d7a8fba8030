// Command memvault-web serves the memvault HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/scrypster/memvault/internal/app"
	"github.com/scrypster/memvault/internal/config"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (default: $MEMVAULT_CONFIG)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "memvault-web: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	rt, err := app.Open(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rt.Serve(ctx, func(addr string) {
		rt.Obs.Log().Info().Str("url", "http://"+addr).Msg("memvault API running")
	})
}
