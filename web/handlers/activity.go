package handlers

import (
	"net/http"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/scrypster/memvault/internal/engine"
)

// ActivityHandler handles the /api/stats/trend endpoint.
type ActivityHandler struct {
	engine *engine.Engine
	log    *bolt.Logger
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(eng *engine.Engine, log *bolt.Logger) *ActivityHandler {
	return &ActivityHandler{engine: eng, log: log}
}

// GetTrend handles GET /api/stats/trend?range={week|month|year}.
// It returns memory creation counts bucketed per day (week, month) or per
// month (year). The range defaults to week.
func (h *ActivityHandler) GetTrend(w http.ResponseWriter, r *http.Request) {
	trend, err := h.engine.Trend(r.Context(), UserFromContext(r.Context()), r.URL.Query().Get("range"))
	if err != nil {
		respondEngineError(w, h.log, "failed to compute trend", err)
		return
	}
	respondJSON(w, http.StatusOK, trend)
}
