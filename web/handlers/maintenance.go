package handlers

import (
	"net/http"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/scrypster/memvault/internal/engine"
)

// MaintenanceHandler serves the lifecycle endpoints: archive and cleanup.
type MaintenanceHandler struct {
	engine *engine.Engine
	log    *bolt.Logger
}

// NewMaintenanceHandler creates a new MaintenanceHandler.
func NewMaintenanceHandler(eng *engine.Engine, log *bolt.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{engine: eng, log: log}
}

// Archive handles POST /api/memories/{id}/archive.
func (h *MaintenanceHandler) Archive(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "memory ID is required", nil)
		return
	}

	var req ArchiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	memory, err := h.engine.Archive(r.Context(), UserFromContext(r.Context()), id, engine.ArchiveRequest{
		Reason:        req.Reason,
		RetentionDays: req.RetentionPeriod,
		DryRun:        req.DryRun,
	})
	if err != nil {
		respondEngineError(w, h.log, "failed to archive memory", err)
		return
	}

	respondJSON(w, http.StatusOK, NewMemoryView(memory))
}

// Cleanup handles POST /api/memories/cleanup.
// Without "dryRun": false it only previews. A live run also needs "confirm": true.
func (h *MaintenanceHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	live := req.DryRun != nil && !*req.DryRun
	if live && !req.Confirm {
		respondErrorCode(w, http.StatusBadRequest, CodeValidation, "confirm must be true to delete memories",
			map[string]interface{}{"field": "confirm"})
		return
	}

	creq := engine.CleanupRequest{
		UserID:         UserFromContext(r.Context()),
		DaysOld:        req.DaysOld,
		MemoryType:     req.MemoryType,
		IncludeExpired: req.IncludeExpired,
		DryRun:         req.DryRun,
	}
	if req.AsOf != nil {
		creq.AsOf = *req.AsOf
	}
	res, err := h.engine.Cleanup(r.Context(), creq)
	if err != nil {
		respondEngineError(w, h.log, "failed to clean up memories", err)
		return
	}

	resp := CleanupResponse{
		Count:   res.Count,
		DryRun:  res.DryRun,
		DaysOld: res.DaysOld,
		Cutoff:  res.Cutoff,
		AsOf:    res.AsOf,
		Items:   []MemoryView{},
	}
	if res.DryRun {
		resp.Items = newMemoryViews(res.Items)
	}
	respondJSON(w, http.StatusOK, resp)
}
