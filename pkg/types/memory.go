package types

import "time"

// Memory is a single unit of conversational context owned by one user.
type Memory struct {
	// Identification
	ID             string `json:"id"`
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId,omitempty"`

	Content    string     `json:"content"`
	Importance float64    `json:"importance"`
	MemoryType MemoryType `json:"memoryType"`
	Tags       []string   `json:"tags,omitempty"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"` // nil means the memory never expires

	// Set when the memory was promoted to long_term by Archive.
	ArchivedAt    *time.Time `json:"archivedAt,omitempty"`
	ArchiveReason string     `json:"archiveReason,omitempty"`

	// Embedding fields. The vector itself is never serialized.
	Embedding      []float32 `json:"-"`
	EmbeddingModel string    `json:"embeddingModel,omitempty"`

	// Similarity is only populated on search results for a free-text query.
	Similarity *float64 `json:"similarity,omitempty"`
}

// Expired reports whether the memory has an expiry at or before now.
func (m *Memory) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// Clone returns a deep copy of m.
func (m *Memory) Clone() *Memory {
	if m == nil {
		return nil
	}
	c := *m
	if m.Tags != nil {
		c.Tags = append([]string(nil), m.Tags...)
	}
	if m.Embedding != nil {
		c.Embedding = append([]float32(nil), m.Embedding...)
	}
	if m.ExpiresAt != nil {
		t := *m.ExpiresAt
		c.ExpiresAt = &t
	}
	if m.ArchivedAt != nil {
		t := *m.ArchivedAt
		c.ArchivedAt = &t
	}
	if m.Similarity != nil {
		s := *m.Similarity
		c.Similarity = &s
	}
	return &c
}
