package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/koopa0/corpus/internal/embed"
)

const queryTimeout = 10 * time.Second

// querier is the subset of *pgxpool.Pool the store needs. Satisfied by
// both a pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const memoryCols = `id, user_id, conversation_id, content, importance, created_at, expires_at`

// Store manages durable user memories backed by PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db       querier
	embedder *embed.Client
	logger   *slog.Logger
}

// NewStore creates a memory Store.
func NewStore(db querier, embedder *embed.Client, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, embedder: embedder, logger: logger}, nil
}

// Add embeds and persists a new memory for the given user.
// Importance outside [0, 1] and a non-positive TTL are rejected.
func (s *Store) Add(ctx context.Context, userID, content string, opts AddOpts) (*Memory, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	if content == "" {
		return nil, ErrEmptyContent
	}
	if len(content) > MaxContentLength {
		return nil, fmt.Errorf("content length %d exceeds maximum %d", len(content), MaxContentLength)
	}

	importance := opts.Importance
	if importance < 0 {
		importance = DefaultImportance
	}
	if importance > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidImportance, importance)
	}
	if opts.TTL < 0 {
		return nil, fmt.Errorf("%w: negative TTL %v", ErrInvalidExpiry, opts.TTL)
	}

	vec, err := s.embedder.EmbedOne(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("embedding memory content: %w", err)
	}

	m := &Memory{
		ID:             uuid.New(),
		UserID:         userID,
		ConversationID: opts.ConversationID,
		Content:        content,
		Importance:     importance,
		CreatedAt:      time.Now().UTC(),
	}
	if opts.TTL > 0 {
		t := m.CreatedAt.Add(opts.TTL)
		m.ExpiresAt = &t
	}

	execCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err = s.db.Exec(execCtx,
		`INSERT INTO memories (id, user_id, conversation_id, content, importance, embedding, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.UserID, m.ConversationID, m.Content, m.Importance,
		pgvector.NewVector(vec), m.CreatedAt, m.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting memory: %w", err)
	}

	s.logger.Debug("memory added",
		"id", m.ID, "user_id", userID, "importance", importance, "expires", m.ExpiresAt != nil)
	return m, nil
}

// Search finds memories similar to the query for the given user, ordered
// by cosine similarity descending. Expired memories are excluded.
func (s *Store) Search(ctx context.Context, userID, query string, topK int) ([]*Memory, error) {
	if userID == "" || query == "" {
		return []*Memory{}, nil
	}
	if topK <= 0 {
		topK = 5
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}

	vec, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding memory query: %w", err)
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.Query(queryCtx,
		`SELECT `+memoryCols+`, 1 - (embedding <=> $1) AS similarity
		 FROM memories
		 WHERE user_id = $2
		   AND (expires_at IS NULL OR expires_at > now())
		 ORDER BY embedding <=> $1, id ASC
		 LIMIT $3`,
		pgvector.NewVector(vec), userID, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("searching memories: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows, true)
}

// List returns all unexpired memories for a user, newest first.
func (s *Store) List(ctx context.Context, userID string) ([]*Memory, error) {
	if userID == "" {
		return []*Memory{}, nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.Query(queryCtx,
		`SELECT `+memoryCols+`
		 FROM memories
		 WHERE user_id = $1
		   AND (expires_at IS NULL OR expires_at > now())
		 ORDER BY created_at DESC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows, false)
}

// Forget deletes a single memory. Returns ErrNotFound when no row matched
// both the id and the user.
func (s *Store) Forget(ctx context.Context, userID string, id uuid.UUID) error {
	execCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.db.Exec(execCtx,
		`DELETE FROM memories WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("deleting memory %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Sweep physically deletes memories past their retention horizon.
// Operates globally across users. Returns the number of rows removed.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	execCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.db.Exec(execCtx,
		`DELETE FROM memories
		 WHERE expires_at IS NOT NULL AND expires_at <= now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("sweeping expired memories: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// scanMemories reads Memory rows; withSimilarity expects a trailing
// similarity column.
func scanMemories(rows pgx.Rows, withSimilarity bool) ([]*Memory, error) {
	memories := []*Memory{}
	for rows.Next() {
		m := &Memory{}
		dest := []any{&m.ID, &m.UserID, &m.ConversationID, &m.Content, &m.Importance, &m.CreatedAt, &m.ExpiresAt}
		if withSimilarity {
			dest = append(dest, &m.Similarity)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating memories: %w", err)
	}
	return memories, nil
}

// Get fetches a memory by id regardless of expiry. Returns ErrNotFound
// when the row does not exist.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Memory, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	m := &Memory{}
	err := s.db.QueryRow(queryCtx,
		`SELECT `+memoryCols+` FROM memories WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.UserID, &m.ConversationID, &m.Content, &m.Importance, &m.CreatedAt, &m.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching memory %s: %w", id, err)
	}
	return m, nil
}
