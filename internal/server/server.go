// Package server provides HTTP server initialization and lifecycle management
// for the memvault API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/scrypster/memvault/internal/config"
	"github.com/scrypster/memvault/internal/engine"
	"github.com/scrypster/memvault/internal/observe"
	"github.com/scrypster/memvault/web/handlers"
)

// Version is reported by /api/health.
const Version = "1.0.0"

// NewHandler builds the full HTTP handler: API routes, websocket endpoint
// and the middleware chain. hub may be nil, in which case /ws is not served.
func NewHandler(cfg *config.Config, eng *engine.Engine, hub *handlers.WebSocketHub, log *bolt.Logger) http.Handler {
	apiHandlers := handlers.NewAPIHandlers(eng, log)
	maintenance := handlers.NewMaintenanceHandler(eng, log)
	stats := handlers.NewStatsHandler(eng, log, Version)
	activity := handlers.NewActivityHandler(eng, log)

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/memories", apiHandlers.CreateMemory)
	apiMux.HandleFunc("GET /api/memories", apiHandlers.SearchMemories)
	apiMux.HandleFunc("POST /api/memories/cleanup", maintenance.Cleanup)
	apiMux.HandleFunc("GET /api/memories/{id}", apiHandlers.GetMemory)
	apiMux.HandleFunc("PATCH /api/memories/{id}", apiHandlers.UpdateMemory)
	apiMux.HandleFunc("DELETE /api/memories/{id}", apiHandlers.DeleteMemory)
	apiMux.HandleFunc("POST /api/memories/{id}/archive", maintenance.Archive)
	apiMux.HandleFunc("GET /api/stats", stats.GetStats)
	apiMux.HandleFunc("GET /api/stats/trend", activity.GetTrend)
	apiMux.HandleFunc("GET /api/export", stats.Export)

	// Every API route is authenticated and bound to a user.
	api := handlers.RequireAuth(handlers.RequireUser(apiMux, cfg.Security.UserHeader), cfg)

	mux := http.NewServeMux()
	mux.Handle("/api/", api)

	// Health endpoint: no auth required, used by monitoring.
	mux.HandleFunc("GET /api/health", stats.Health)

	if hub != nil {
		mux.Handle("GET /ws", handlers.RequireAuth(handlers.RequireUser(hub, cfg.Security.UserHeader), cfg))
	}

	rateLimiter := handlers.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)

	var handler http.Handler = mux
	handler = handlers.RateLimitMiddleware(handler, rateLimiter)
	handler = handlers.SecurityHeaders(handler)
	handler = handlers.RequestLogger(handler, log)
	return handler
}

// Start initializes and starts the HTTP server.
// It returns the actual address being listened on (useful for testing with
// port 0) and the WebSocketHub receiving engine events. The server shuts down
// gracefully when ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, eng *engine.Engine, obs *observe.Observer) (string, *handlers.WebSocketHub, error) {
	log := obs.Log()

	wsHub := handlers.NewWebSocketHub(log, cfg.Server.AllowedOrigins)
	go wsHub.Run()
	eng.OnEvent(wsHub.Publish)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      NewHandler(cfg, eng, wsHub, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		wsHub.Stop()
		return "", nil, fmt.Errorf("failed to listen on %s: %w", server.Addr, err)
	}

	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
		wsHub.Stop()
	}()

	log.Info().Str("addr", actualAddr).Msg("http server listening")
	return actualAddr, wsHub, nil
}
