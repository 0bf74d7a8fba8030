// Package app assembles a memvault runtime from configuration: observer,
// store, embedding provider, similarity scoring and engine. Both binaries
// share it so the server and the operator CLI behave identically.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/scrypster/memvault/internal/config"
	"github.com/scrypster/memvault/internal/engine"
	"github.com/scrypster/memvault/internal/llm"
	"github.com/scrypster/memvault/internal/notify"
	"github.com/scrypster/memvault/internal/observe"
	"github.com/scrypster/memvault/internal/scoring"
	"github.com/scrypster/memvault/internal/server"
	"github.com/scrypster/memvault/internal/storage"
	"github.com/scrypster/memvault/internal/storage/mysql"
	"github.com/scrypster/memvault/internal/storage/postgres"
	"github.com/scrypster/memvault/internal/storage/sqlite"
)

// Runtime holds the long-lived collaborators of a process.
type Runtime struct {
	Config *config.Config
	Obs    *observe.Observer
	Store  storage.MemoryStore
	Engine *engine.Engine
}

// Open builds a Runtime. Logs go to logOut (stderr when nil).
func Open(cfg *config.Config, logOut io.Writer) (*Runtime, error) {
	obs := observe.New(logOut, cfg.Log.Format, cfg.Log.Level)

	store, err := OpenStore(cfg.Storage, obs)
	if err != nil {
		return nil, err
	}

	eng, err := NewEngine(cfg, store, obs)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Runtime{Config: cfg, Obs: obs, Store: store, Engine: eng}, nil
}

// Close releases the store and flushes the observer.
func (r *Runtime) Close() error {
	err := r.Store.Close()
	if cerr := r.Obs.Close(); err == nil {
		err = cerr
	}
	return err
}

// OpenStore opens the backend named by cfg.Engine. Opening applies pending
// schema migrations.
func OpenStore(cfg config.StorageConfig, obs *observe.Observer) (storage.MemoryStore, error) {
	switch cfg.Engine {
	case "", "sqlite":
		if cfg.DSN == "" {
			if err := os.MkdirAll(cfg.DataPath, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		store, err := sqlite.NewMemoryStore(cfg.SQLitePath(), sqlite.WithLogger(obs.Log()))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return store, nil
	case "postgres":
		store, err := postgres.NewMemoryStore(cfg.DSN, obs.Log())
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return store, nil
	case "mysql":
		store, err := mysql.NewMemoryStore(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open mysql store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage engine %q", cfg.Engine)
	}
}

// NewEngine wires scoring into an engine over store. With an embedding
// provider configured, search ranks by embedding cosine through a guarded,
// cached provider; otherwise it uses lexical similarity.
func NewEngine(cfg *config.Config, store storage.MemoryStore, obs *observe.Observer) (*engine.Engine, error) {
	engCfg, err := cfg.Engine.Engine()
	if err != nil {
		return nil, err
	}

	opts := engine.Options{Config: engCfg, Observer: obs}

	if cfg.Embedding.Provider != "" {
		llmCfg := cfg.Embedding.LLM()
		log := obs.Log()
		llmCfg.Breaker = llm.NewCircuitBreaker(llm.BreakerConfig{
			Name:        cfg.Embedding.Provider,
			MaxFailures: uint32(cfg.Embedding.BreakerFailures),
			Cooldown:    cfg.Embedding.BreakerCooldown,
			OnStateChange: func(name, from, to string) {
				log.Warn().Str("breaker", name).Str("from", from).Str("to", to).Msg("embedding circuit breaker state changed")
			},
		})

		gen, err := llm.NewEmbeddingGenerator(llmCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding provider: %w", err)
		}

		sim, err := scoring.NewEmbeddingSimilarity(gen, cfg.Embedding.CacheSize)
		if err != nil {
			return nil, err
		}

		// The provider's own breaker already guards every remote call.
		opts.Embedder = gen
		opts.Similarity = scoring.NewGuard(sim, engCfg.SearchTimeout, nil)
		log.Info().Str("provider", cfg.Embedding.Provider).Str("model", gen.GetModel()).Msg("embedding similarity enabled")
	}

	eng, err := engine.New(store, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}
	return eng, nil
}

// NewScheduler builds the periodic cleanup scheduler from cfg.Cleanup.
func NewScheduler(cfg *config.Config, eng *engine.Engine) (*engine.CleanupScheduler, error) {
	return engine.NewCleanupScheduler(eng, engine.SchedulerConfig{
		Interval:       cfg.Cleanup.Interval,
		DaysOld:        cfg.Cleanup.DaysOld,
		IncludeExpired: cfg.Cleanup.IncludeExpired,
	})
}

// Serve starts the HTTP server and, when cfg.Cleanup.Enabled, the cleanup
// scheduler. ready, if non-nil, receives the listen address. Serve blocks
// until ctx is cancelled.
func (r *Runtime) Serve(ctx context.Context, ready func(addr string)) error {
	log := r.Obs.Log()

	addr, hub, err := server.Start(ctx, r.Config, r.Engine, r.Obs)
	if err != nil {
		return err
	}

	// Events written by CLI maintenance runs reach websocket clients too.
	watcher := notify.NewWatcher(r.Config.Storage.DataPath, log, hub.Publish)
	if err := watcher.Start(); err != nil {
		log.Warn().Err(err).Msg("event file watcher disabled")
	} else {
		defer watcher.Stop()
	}
	if ready != nil {
		ready(addr)
	}

	if r.Config.Cleanup.Enabled {
		sched, err := NewScheduler(r.Config, r.Engine)
		if err != nil {
			return err
		}
		go func() {
			if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("cleanup scheduler exited")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")
	return nil
}

// ForwardEvents writes every engine event to the shared events directory so
// a server running on the same data path can forward it.
func (r *Runtime) ForwardEvents() {
	w := notify.NewWriter(r.Config.Storage.DataPath)
	log := r.Obs.Log()
	r.Engine.OnEvent(func(ev engine.Event) {
		if err := w.Notify(ev); err != nil {
			log.Warn().Err(err).Str("type", string(ev.Type)).Msg("failed to forward event")
		}
	})
}
