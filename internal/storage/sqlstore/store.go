package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/memvault/internal/storage"
	"github.com/scrypster/memvault/pkg/types"
)

const memoryColumns = `id, user_id, conversation_id, content, importance, memory_type, tags,
	created_at, updated_at, expires_at, archived_at, archive_reason, embedding, embedding_model`

// Store implements storage.MemoryStore for any database/sql backend
// described by a Dialect.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// New wraps an open database. Call Migrate before first use.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect, now: time.Now}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the dialect the store was built with.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Migrate applies pending schema migrations and returns how many ran.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	mgr, err := storage.NewMigrationManager(s.db, s.dialect.Migrations, s.dialect.Rebind)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", s.dialect.Name, err)
	}
	n, err := mgr.Up(ctx)
	if err != nil {
		return n, fmt.Errorf("%s: %w", s.dialect.Name, err)
	}
	return n, nil
}

// Create persists a new memory.
func (s *Store) Create(ctx context.Context, memory *types.Memory) error {
	if err := storage.ValidateNew(memory); err != nil {
		return err
	}

	memory.MemoryType = types.NormalizeMemoryType(string(memory.MemoryType))
	if memory.ID == "" {
		memory.ID = uuid.New().String()
	}
	now := s.now()
	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = now
	}
	if memory.UpdatedAt.IsZero() {
		memory.UpdatedAt = memory.CreatedAt
	}
	memory.CreatedAt = normTime(memory.CreatedAt)
	memory.UpdatedAt = normTime(memory.UpdatedAt)
	if memory.ExpiresAt != nil {
		t := normTime(*memory.ExpiresAt)
		memory.ExpiresAt = &t
	}
	if memory.ArchivedAt != nil {
		t := normTime(*memory.ArchivedAt)
		memory.ArchivedAt = &t
	}

	tagsJSON, err := marshalTags(memory.Tags)
	if err != nil {
		return err
	}
	emb, err := embeddingValue(memory.Embedding)
	if err != nil {
		return fmt.Errorf("%s: failed to encode embedding: %w", s.dialect.Name, err)
	}

	cols := memoryColumns
	args := []interface{}{
		memory.ID, memory.UserID, memory.ConversationID, memory.Content, memory.Importance,
		string(memory.MemoryType), tagsJSON,
		toMicros(memory.CreatedAt), toMicros(memory.UpdatedAt),
		nullableMicros(memory.ExpiresAt), nullableMicros(memory.ArchivedAt),
		memory.ArchiveReason, emb, memory.EmbeddingModel,
	}
	if s.dialect.VectorColumn != "" {
		cols += ", " + s.dialect.VectorColumn
		args = append(args, emb)
	}

	query := fmt.Sprintf("INSERT INTO memories (%s) VALUES (%s)", cols, placeholders(len(args)))
	if _, err := s.db.ExecContext(ctx, s.dialect.Rebind(query), args...); err != nil {
		return fmt.Errorf("%s: failed to create memory: %w", s.dialect.Name, err)
	}

	return nil
}

// Get retrieves a memory owned by userID.
func (s *Store) Get(ctx context.Context, userID, id string) (*types.Memory, error) {
	if userID == "" || id == "" {
		return nil, fmt.Errorf("%w: userId and id are required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx,
		s.dialect.Rebind("SELECT "+memoryColumns+" FROM memories WHERE user_id = ? AND id = ?"),
		userID, id)

	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get memory: %w", s.dialect.Name, err)
	}
	return m, nil
}

// Update applies patch inside a transaction that locks the row first, so
// concurrent archive/delete/edit of the same record cannot lose updates.
func (s *Store) Update(ctx context.Context, userID, id string, patch storage.Patch) (*types.Memory, error) {
	if userID == "" || id == "" {
		return nil, fmt.Errorf("%w: userId and id are required", storage.ErrInvalidInput)
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", s.dialect.Name, err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		s.dialect.Rebind("SELECT "+memoryColumns+" FROM memories WHERE user_id = ? AND id = ?"+s.dialect.LockClause),
		userID, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: failed to load memory for update: %w", s.dialect.Name, err)
	}

	if patch.Empty() {
		return m, tx.Commit()
	}
	patch.Apply(m, normTime(s.now()))
	if m.ExpiresAt != nil {
		t := normTime(*m.ExpiresAt)
		m.ExpiresAt = &t
	}
	if m.ArchivedAt != nil {
		t := normTime(*m.ArchivedAt)
		m.ArchivedAt = &t
	}

	emb, err := embeddingValue(m.Embedding)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to encode embedding: %w", s.dialect.Name, err)
	}

	set := `content = ?, importance = ?, memory_type = ?, updated_at = ?, expires_at = ?,
		archived_at = ?, archive_reason = ?, embedding = ?, embedding_model = ?`
	args := []interface{}{
		m.Content, m.Importance, string(m.MemoryType), toMicros(m.UpdatedAt),
		nullableMicros(m.ExpiresAt), nullableMicros(m.ArchivedAt), m.ArchiveReason,
		emb, m.EmbeddingModel,
	}
	if s.dialect.VectorColumn != "" {
		set += ", " + s.dialect.VectorColumn + " = ?"
		args = append(args, emb)
	}
	args = append(args, userID, id)

	result, err := tx.ExecContext(ctx, s.dialect.Rebind("UPDATE memories SET "+set+" WHERE user_id = ? AND id = ?"), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to update memory: %w", s.dialect.Name, err)
	}
	// MySQL reports 0 affected rows when values are unchanged, so only trust
	// RowsAffected as a not-found signal on the other backends.
	if n, err := result.RowsAffected(); err == nil && n == 0 && s.dialect.Name != "mysql" {
		return nil, storage.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: failed to commit update: %w", s.dialect.Name, err)
	}
	return m, nil
}

// Delete permanently removes a memory.
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	if userID == "" || id == "" {
		return fmt.Errorf("%w: userId and id are required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, s.dialect.Rebind("DELETE FROM memories WHERE user_id = ? AND id = ?"), userID, id)
	if err != nil {
		return fmt.Errorf("%s: failed to delete memory: %w", s.dialect.Name, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to check rows affected: %w", s.dialect.Name, err)
	}
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListByUser returns every memory of userID that matches filter.
func (s *Store) ListByUser(ctx context.Context, userID string, filter storage.ListFilter) ([]*types.Memory, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", storage.ErrInvalidInput)
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	where, args := buildWhere(userID, filter)
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind("SELECT "+memoryColumns+" FROM memories WHERE "+where), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list memories: %w", s.dialect.Name, err)
	}
	defer rows.Close()

	memories := make([]*types.Memory, 0)
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to scan memory: %w", s.dialect.Name, err)
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: failed to iterate memories: %w", s.dialect.Name, err)
	}
	return memories, nil
}

// ListUsers returns the distinct owners of stored memories.
func (s *Store) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT user_id FROM memories ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list users: %w", s.dialect.Name, err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("%s: failed to scan user: %w", s.dialect.Name, err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// buildWhere translates a ListFilter into a WHERE clause with "?" placeholders.
func buildWhere(userID string, f storage.ListFilter) (string, []interface{}) {
	clauses := []string{"user_id = ?"}
	args := []interface{}{userID}

	if f.MemoryType != "" {
		clauses = append(clauses, "memory_type = ?")
		args = append(args, string(types.NormalizeMemoryType(string(f.MemoryType))))
	}
	if f.MinImportance != nil {
		clauses = append(clauses, "importance >= ?")
		args = append(args, *f.MinImportance)
	}
	if !f.CreatedFrom.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, toMicros(f.CreatedFrom))
	}
	if !f.CreatedTo.IsZero() {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, toMicros(f.CreatedTo))
	}

	switch {
	case !f.CreatedBefore.IsZero() && !f.ExpiredBefore.IsZero():
		clauses = append(clauses, "(created_at < ? OR (expires_at IS NOT NULL AND expires_at <= ?))")
		args = append(args, toMicros(f.CreatedBefore), toMicros(f.ExpiredBefore))
	case !f.CreatedBefore.IsZero():
		clauses = append(clauses, "created_at < ?")
		args = append(args, toMicros(f.CreatedBefore))
	case !f.ExpiredBefore.IsZero():
		clauses = append(clauses, "expires_at IS NOT NULL AND expires_at <= ?")
		args = append(args, toMicros(f.ExpiredBefore))
	}

	return strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row rowScanner) (*types.Memory, error) {
	var (
		m          types.Memory
		memType    string
		tags       sql.NullString
		createdAt  int64
		updatedAt  int64
		expiresAt  sql.NullInt64
		archivedAt sql.NullInt64
		embedding  nullVector
	)

	err := row.Scan(&m.ID, &m.UserID, &m.ConversationID, &m.Content, &m.Importance, &memType, &tags,
		&createdAt, &updatedAt, &expiresAt, &archivedAt, &m.ArchiveReason, &embedding, &m.EmbeddingModel)
	if err != nil {
		return nil, err
	}

	m.MemoryType = types.MemoryType(memType)
	m.CreatedAt = fromMicros(createdAt)
	m.UpdatedAt = fromMicros(updatedAt)
	m.ExpiresAt = nullableFromMicros(expiresAt)
	m.ArchivedAt = nullableFromMicros(archivedAt)
	m.Embedding = embedding.Slice()

	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &m.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}

	return &m, nil
}

func marshalTags(tags []string) (sql.NullString, error) {
	if len(tags) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal tags: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Timestamps are stored as UTC unix microseconds.
func normTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func toMicros(t time.Time) int64 {
	return t.UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

func nullableMicros(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMicro(), Valid: true}
}

func nullableFromMicros(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMicros(v.Int64)
	return &t
}
