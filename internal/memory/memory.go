// Package memory stores durable per-user facts with vector embeddings,
// supporting similarity search with expiry-aware filtering.
package memory

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for memory operations.
var (
	ErrNotFound          = errors.New("memory not found")
	ErrInvalidImportance = errors.New("importance must be between 0 and 1")
	ErrInvalidExpiry     = errors.New("expiry must be after creation time")
	ErrEmptyContent      = errors.New("content is required")
	ErrEmptyUserID       = errors.New("user ID is required")
)

const (
	// DefaultImportance is used when AddOpts.Importance is unset.
	DefaultImportance = 0.5

	// MaxContentLength caps memory content size.
	MaxContentLength = 4096

	// MaxTopK caps search result counts.
	MaxTopK = 50

	// SweepInterval is how often the Scheduler removes expired memories.
	SweepInterval = 1 * time.Hour
)

// Memory is one durable fact about a user.
type Memory struct {
	ID             uuid.UUID
	UserID         string
	ConversationID string
	Content        string
	Importance     float32
	CreatedAt      time.Time
	ExpiresAt      *time.Time

	// Similarity is populated by Search results only.
	Similarity float64
}

// Expired reports whether the memory is past its retention horizon at t.
func (m *Memory) Expired(t time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(t)
}

// AddOpts carries optional fields for Store.Add.
type AddOpts struct {
	// ConversationID links the memory to the conversation it came from.
	ConversationID string

	// Importance scores the memory in [0, 1]. Negative means default.
	Importance float32

	// TTL sets the retention horizon relative to creation time.
	// Zero means the memory never expires.
	TTL time.Duration
}
