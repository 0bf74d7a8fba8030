package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/scrypster/memvault/internal/engine"
	"github.com/scrypster/memvault/internal/storage"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// APIHandlers contains HTTP handlers for the memory REST API.
type APIHandlers struct {
	engine *engine.Engine
	log    *bolt.Logger
}

// NewAPIHandlers creates a new APIHandlers instance.
func NewAPIHandlers(eng *engine.Engine, log *bolt.Logger) *APIHandlers {
	return &APIHandlers{engine: eng, log: log}
}

// CreateMemory handles POST /api/memories.
// Importance is scored when omitted; expiresAt defaults from the tier.
func (h *APIHandlers) CreateMemory(w http.ResponseWriter, r *http.Request) {
	userID := UserFromContext(r.Context())

	var req CreateMemoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	memory, err := h.engine.Create(r.Context(), engine.CreateRequest{
		UserID:         userID,
		ConversationID: req.ConversationID,
		Content:        req.Content,
		MemoryType:     req.MemoryType,
		Importance:     req.Importance,
		Tags:           req.Tags,
		ExpiresAt:      req.ExpiresAt,
	})
	if err != nil {
		h.respondEngineError(w, "failed to create memory", err)
		return
	}

	respondJSON(w, http.StatusCreated, NewMemoryView(memory))
}

// GetMemory handles GET /api/memories/{id}.
func (h *APIHandlers) GetMemory(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "memory ID is required", nil)
		return
	}

	memory, err := h.engine.Get(r.Context(), UserFromContext(r.Context()), id)
	if err != nil {
		h.respondEngineError(w, "failed to get memory", err)
		return
	}

	respondJSON(w, http.StatusOK, NewMemoryView(memory))
}

// UpdateMemory handles PATCH /api/memories/{id}. Only content is editable.
func (h *APIHandlers) UpdateMemory(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "memory ID is required", nil)
		return
	}

	var req UpdateMemoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if req.Content == nil {
		respondErrorCode(w, http.StatusBadRequest, CodeValidation, "content is required", nil)
		return
	}

	memory, err := h.engine.Edit(r.Context(), UserFromContext(r.Context()), id, *req.Content)
	if err != nil {
		h.respondEngineError(w, "failed to update memory", err)
		return
	}

	respondJSON(w, http.StatusOK, NewMemoryView(memory))
}

// DeleteMemory handles DELETE /api/memories/{id}.
func (h *APIHandlers) DeleteMemory(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "memory ID is required", nil)
		return
	}

	if err := h.engine.Delete(r.Context(), UserFromContext(r.Context()), id); err != nil {
		h.respondEngineError(w, "failed to delete memory", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// respondEngineError maps engine errors onto status codes. Anything
// unrecognized is a 500 and is logged.
func (h *APIHandlers) respondEngineError(w http.ResponseWriter, message string, err error) {
	respondEngineError(w, h.log, message, err)
}

func respondEngineError(w http.ResponseWriter, log *bolt.Logger, message string, err error) {
	var (
		ve *engine.ValidationError
		se *engine.SearchError
		ce *engine.CleanupError
		ae *engine.ArchiveError
	)

	switch {
	case errors.As(err, &ve):
		details := map[string]interface{}{"error": ve.Message}
		if ve.Field != "" {
			details["field"] = ve.Field
		}
		respondErrorCode(w, http.StatusBadRequest, CodeValidation, ve.Error(), details)
	case errors.Is(err, storage.ErrInvalidInput):
		respondErrorCode(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
	case errors.Is(err, storage.ErrNotFound):
		respondErrorCode(w, http.StatusNotFound, CodeNotFound, "memory not found", nil)
	case errors.As(err, &se):
		log.Error().Err(err).Str("op", se.Op).Msg("search failed")
		respondErrorCode(w, http.StatusBadGateway, CodeSearchFailed, "search failed", map[string]interface{}{"error": se.Error()})
	case errors.As(err, &ce):
		log.Error().Err(err).Int("deleted", ce.Deleted).Msg("cleanup failed")
		respondErrorCode(w, http.StatusInternalServerError, CodeCleanup, "cleanup failed", map[string]interface{}{
			"error":   ce.Err.Error(),
			"deleted": ce.Deleted,
		})
	case errors.As(err, &ae):
		log.Error().Err(err).Str("memory_id", ae.ID).Msg("archive failed")
		respondErrorCode(w, http.StatusInternalServerError, CodeArchive, "archive failed", map[string]interface{}{"error": ae.Error()})
	default:
		log.Error().Err(err).Msg(message)
		respondErrorCode(w, http.StatusInternalServerError, CodeInternal, message, map[string]interface{}{"error": err.Error()})
	}
}

// decodeJSON reads a size-limited JSON body. An empty body decodes to the zero value.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// extractID extracts a path parameter from the request.
func extractID(r *http.Request, key string) string {
	return r.PathValue(key)
}

// parseInt parses an integer from a string, returning defaultValue if s is empty.
func parseInt(s string, defaultValue int) (int, error) {
	if s == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(s)
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Headers are already sent; an encode failure cannot be reported.
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	var details map[string]interface{}
	if err != nil {
		details = map[string]interface{}{"error": err.Error()}
	}
	respondErrorCode(w, statusCode, http.StatusText(statusCode), message, details)
}

func respondErrorCode(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	respondJSON(w, statusCode, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}
