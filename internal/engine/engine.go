// Package engine is the memvault core: it validates and scores new memories,
// runs filtered and similarity search, archives and expires memories, and
// aggregates per-user statistics on top of a storage.MemoryStore.
//
// The store is the single source of truth. The engine keeps no authoritative
// state beyond request scope; per-record locks only serialize mutations that
// race inside one process, and the store's row lock covers the rest.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/scrypster/memvault/internal/llm"
	"github.com/scrypster/memvault/internal/observe"
	"github.com/scrypster/memvault/internal/scoring"
	"github.com/scrypster/memvault/internal/storage"
	"github.com/scrypster/memvault/pkg/types"
)

// EventType names a change notification.
type EventType string

const (
	EventCreated  EventType = "memory_created"
	EventUpdated  EventType = "memory_updated"
	EventArchived EventType = "memory_archived"
	EventDeleted  EventType = "memory_deleted"
	EventCleanup  EventType = "cleanup_completed"
)

// Event is delivered to OnEvent listeners after a successful mutation.
type Event struct {
	Type     EventType `json:"type"`
	UserID   string    `json:"userId"`
	MemoryID string    `json:"memoryId,omitempty"`
	Count    int       `json:"count,omitempty"`
	At       time.Time `json:"at"`
}

// Options carries the engine's collaborators.
type Options struct {
	Config Config

	// Importance scores new memories that arrive without an importance.
	// Default: scoring.NewRuleScorer().
	Importance scoring.ImportanceScorer

	// Similarity scores search candidates against a free-text query.
	// Default: scoring.LexicalSimilarity guarded by a timeout.
	Similarity scoring.SimilarityProvider

	// Embedder, when set, computes an embedding for new and edited content so
	// embedding similarity can reuse it. Failures never block a write.
	Embedder llm.EmbeddingGenerator

	Observer *observe.Observer

	// Now overrides the clock. Tests only.
	Now func() time.Time
}

// Engine coordinates the store, scorers and lifecycle rules.
type Engine struct {
	store      storage.MemoryStore
	cfg        Config
	importance scoring.ImportanceScorer
	similarity scoring.SimilarityProvider
	embedder   llm.EmbeddingGenerator
	obs        *observe.Observer
	now        func() time.Time
	locks      *keyedMutex

	mu        sync.RWMutex
	listeners []func(Event)
}

// New creates an Engine over store.
func New(store storage.MemoryStore, opts Options) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("memory store is required")
	}

	cfg := opts.Config
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	e := &Engine{
		store:      store,
		cfg:        cfg,
		importance: opts.Importance,
		similarity: opts.Similarity,
		embedder:   opts.Embedder,
		obs:        opts.Observer,
		now:        opts.Now,
		locks:      newKeyedMutex(),
	}
	if e.importance == nil {
		e.importance = scoring.NewRuleScorer()
	}
	if e.similarity == nil {
		e.similarity = scoring.NewGuard(scoring.LexicalSimilarity{}, cfg.SearchTimeout, nil)
	}
	if e.obs == nil {
		e.obs = observe.Nop()
	}
	if e.now == nil {
		e.now = time.Now
	}

	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Store returns the underlying memory store.
func (e *Engine) Store() storage.MemoryStore {
	return e.store
}

// OnEvent registers a listener called synchronously after each mutation.
// Listeners must not block.
func (e *Engine) OnEvent(fn func(Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

func (e *Engine) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = e.now()
	}
	e.mu.RLock()
	listeners := e.listeners
	e.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// Ping checks the store.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

// CreateRequest describes a new memory.
type CreateRequest struct {
	UserID         string
	ConversationID string
	Content        string
	MemoryType     string

	// Importance, when nil, is computed by the importance scorer.
	// Supplied values are clamped to [0,1].
	Importance *float64

	Tags []string

	// ExpiresAt, when nil, defaults from the tier's TTL.
	ExpiresAt *time.Time
}

// Create validates, scores and persists a new memory.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*types.Memory, error) {
	ctx, span := e.obs.StartSpan(ctx, "engine.Create")
	defer span.End()

	content := strings.TrimSpace(req.Content)
	switch {
	case strings.TrimSpace(req.UserID) == "":
		return nil, invalid("userId", "is required")
	case content == "":
		return nil, invalid("content", "is required")
	case strings.TrimSpace(req.MemoryType) == "":
		return nil, invalid("memoryType", "is required")
	}

	memType := types.NormalizeMemoryType(req.MemoryType)
	if !memType.Valid() {
		return nil, invalid("memoryType", "unknown memory type %q", req.MemoryType)
	}

	now := e.now()
	m := &types.Memory{
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Content:        content,
		MemoryType:     memType,
		Tags:           normalizeTags(req.Tags),
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      req.ExpiresAt,
	}

	if req.Importance != nil {
		m.Importance = types.ClampUnit(*req.Importance)
	} else {
		score, err := e.importance.Score(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("failed to score importance: %w", err)
		}
		m.Importance = types.ClampUnit(score)
	}

	if m.ExpiresAt == nil {
		m.ExpiresAt = e.defaultExpiry(memType, now)
	}

	e.attachEmbedding(ctx, m)

	if err := e.store.Create(ctx, m); err != nil {
		span.RecordError(err)
		return nil, asValidation(err)
	}

	e.obs.Log().Info().Str("user_id", m.UserID).Str("memory_id", m.ID).Str("memory_type", string(m.MemoryType)).Msg("memory created")
	e.emit(Event{Type: EventCreated, UserID: m.UserID, MemoryID: m.ID})
	return m, nil
}

// Get returns one memory of userID.
func (e *Engine) Get(ctx context.Context, userID, id string) (*types.Memory, error) {
	if userID == "" {
		return nil, invalid("userId", "is required")
	}
	if id == "" {
		return nil, invalid("id", "is required")
	}
	m, err := e.store.Get(ctx, userID, id)
	if err != nil {
		return nil, asValidation(err)
	}
	return m, nil
}

// Edit replaces the content of a memory and refreshes its embedding.
func (e *Engine) Edit(ctx context.Context, userID, id, content string) (*types.Memory, error) {
	ctx, span := e.obs.StartSpan(ctx, "engine.Edit")
	defer span.End()

	content = strings.TrimSpace(content)
	if userID == "" {
		return nil, invalid("userId", "is required")
	}
	if content == "" {
		return nil, invalid("content", "is required")
	}

	unlock := e.locks.Lock(userID + "/" + id)
	defer unlock()

	patch := storage.Patch{Content: &content}
	if e.embedder != nil {
		scratch := &types.Memory{Content: content}
		e.attachEmbedding(ctx, scratch)
		if scratch.EmbeddingModel != "" {
			patch.Embedding = scratch.Embedding
			patch.EmbeddingModel = &scratch.EmbeddingModel
		}
	}

	m, err := e.store.Update(ctx, userID, id, patch)
	if err != nil {
		span.RecordError(err)
		return nil, asValidation(err)
	}

	e.emit(Event{Type: EventUpdated, UserID: userID, MemoryID: id})
	return m, nil
}

// Delete permanently removes a memory. A second delete fails with NotFound.
func (e *Engine) Delete(ctx context.Context, userID, id string) error {
	ctx, span := e.obs.StartSpan(ctx, "engine.Delete")
	defer span.End()

	if userID == "" {
		return invalid("userId", "is required")
	}

	unlock := e.locks.Lock(userID + "/" + id)
	defer unlock()

	if err := e.store.Delete(ctx, userID, id); err != nil {
		span.RecordError(err)
		return asValidation(err)
	}

	e.obs.Log().Info().Str("user_id", userID).Str("memory_id", id).Msg("memory deleted")
	e.emit(Event{Type: EventDeleted, UserID: userID, MemoryID: id})
	return nil
}

func (e *Engine) defaultExpiry(t types.MemoryType, now time.Time) *time.Time {
	var ttl time.Duration
	switch t {
	case types.MemoryTypeImmediate:
		ttl = e.cfg.ImmediateTTL
	case types.MemoryTypeShortTerm:
		ttl = e.cfg.ShortTermTTL
	}
	if ttl <= 0 {
		return nil
	}
	exp := now.Add(ttl)
	return &exp
}

// attachEmbedding fills m.Embedding when an embedder is configured. It is
// best effort: a slow or failing provider is logged and skipped.
func (e *Engine) attachEmbedding(ctx context.Context, m *types.Memory) {
	if e.embedder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.EmbedTimeout)
	defer cancel()

	vec, err := e.embedder.Embed(ctx, m.Content)
	if err != nil {
		e.obs.Log().Warn().Err(err).Str("model", e.embedder.GetModel()).Msg("embedding skipped")
		return
	}
	m.Embedding = vec
	m.EmbeddingModel = e.embedder.GetModel()
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
