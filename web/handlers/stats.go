package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/scrypster/memvault/internal/engine"
)

// StatsHandler handles statistics, export and health requests.
type StatsHandler struct {
	engine  *engine.Engine
	log     *bolt.Logger
	version string
}

// NewStatsHandler creates a new StatsHandler instance.
func NewStatsHandler(eng *engine.Engine, log *bolt.Logger, version string) *StatsHandler {
	return &StatsHandler{engine: eng, log: log, version: version}
}

// GetStats handles GET /api/stats - returns the caller's memory statistics.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context(), UserFromContext(r.Context()))
	if err != nil {
		respondEngineError(w, h.log, "failed to compute statistics", err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// Export handles GET /api/export - downloads a JSON snapshot of the caller's
// statistics and memories.
func (h *StatsHandler) Export(w http.ResponseWriter, r *http.Request) {
	userID := UserFromContext(r.Context())

	snapshot, err := h.engine.Export(r.Context(), userID)
	if err != nil {
		respondEngineError(w, h.log, "failed to export memories", err)
		return
	}

	filename := fmt.Sprintf("memvault-export-%s.json", snapshot.ExportedAt.UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snapshot); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("export encode failed")
	}
}

// Health handles GET /api/health. It pings the store with a short deadline.
func (h *StatsHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Version: h.version, Store: "ok"}
	if err := h.engine.Ping(ctx); err != nil {
		h.log.Warn().Err(err).Msg("health check: store unavailable")
		resp.Status = "degraded"
		resp.Store = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}
