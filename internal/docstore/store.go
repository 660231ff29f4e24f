// Package docstore is a small document store over a single Postgres JSONB
// table. Documents are addressed by (collection, id) where collection is a
// slash separated path such as "users/u1/notifications".
package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"recruit-notifier/internal/common/logger"
)

// MaxBatchSize is the largest number of writes CommitBatch accepts.
const MaxBatchSize = 500

var (
	ErrNotFound      = errors.New("DOCUMENT_NOT_FOUND")
	ErrBatchTooLarge = errors.New("BATCH_TOO_LARGE")
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (collection, id)
	)`,
	`CREATE INDEX IF NOT EXISTS documents_status_created_idx
		ON documents (collection, (data->>'status'), created_at)`,
	`CREATE INDEX IF NOT EXISTS documents_data_gin_idx
		ON documents USING GIN (data jsonb_path_ops)`,
}

// Write is one document of a batch.
type Write struct {
	Collection string
	ID         string
	Value      interface{}
}

// Match selects documents whose top level field equals Value (compared as text).
type Match struct {
	Field string
	Value string
}

// Query narrows List. Zero values mean "no constraint".
type Query struct {
	Where         *Match
	CreatedBefore time.Time
	Limit         int
}

type Store struct {
	db      *sql.DB
	timeout time.Duration
	logger  logger.Logger
}

func New(db *sql.DB, timeout time.Duration, log logger.Logger) *Store {
	return &Store{
		db:      db,
		timeout: timeout,
		logger:  logger.Component(log, "docstore"),
	}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// EnsureSchema creates the documents table and its indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Create inserts the document unless (collection, id) already exists. It
// reports whether a row was written.
func (s *Store) Create(ctx context.Context, collection, id string, value interface{}) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO NOTHING`,
		collection, id, data)
	if err != nil {
		return false, fmt.Errorf("create %s/%s: %w", collection, id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	return n == 1, nil
}

// Get decodes the document into out or returns ErrNotFound.
func (s *Store) Get(ctx context.Context, collection, id string, out interface{}) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM documents
		WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	if err != nil {
		return fmt.Errorf("get %s/%s: %w", collection, id, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return nil
}

// CommitBatch writes all documents in one transaction: either every write
// lands or none does. Existing documents are left untouched.
func (s *Store) CommitBatch(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}
	if len(writes) > MaxBatchSize {
		return fmt.Errorf("%w: %d writes, limit %d", ErrBatchTooLarge, len(writes), MaxBatchSize)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}

	for _, w := range writes {
		data, err := json.Marshal(w.Value)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("encode %s/%s: %w", w.Collection, w.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, data)
			VALUES ($1, $2, $3)
			ON CONFLICT (collection, id) DO NOTHING`,
			w.Collection, w.ID, data); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("batch write %s/%s: %w", w.Collection, w.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	s.logger.Debug("batch committed", map[string]interface{}{"writes": len(writes)})
	return nil
}

// UpdateIf merges patch into the document only while cond holds. It reports
// whether the document was updated, which makes it a compare-and-set.
func (s *Store) UpdateIf(ctx context.Context, collection, id string, cond Match, patch map[string]interface{}) (bool, error) {
	data, err := json.Marshal(patch)
	if err != nil {
		return false, fmt.Errorf("encode patch: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET data = data || $3::jsonb, updated_at = now()
		WHERE collection = $1 AND id = $2 AND data->>$4::text = $5`,
		collection, id, data, cond.Field, cond.Value)
	if err != nil {
		return false, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return n == 1, nil
}

// UpdateWhere merges patch into every document of the collection matching cond.
func (s *Store) UpdateWhere(ctx context.Context, collection string, cond Match, patch map[string]interface{}) (int64, error) {
	data, err := json.Marshal(patch)
	if err != nil {
		return 0, fmt.Errorf("encode patch: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET data = data || $2::jsonb, updated_at = now()
		WHERE collection = $1 AND data->>$3::text = $4`,
		collection, data, cond.Field, cond.Value)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", collection, err)
	}
	return res.RowsAffected()
}

// DeleteWhere removes every document of the collection matching cond.
func (s *Store) DeleteWhere(ctx context.Context, collection string, cond Match) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM documents
		WHERE collection = $1 AND data->>$2::text = $3`,
		collection, cond.Field, cond.Value)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", collection, err)
	}
	return res.RowsAffected()
}

// List returns raw documents of a collection in creation order.
func (s *Store) List(ctx context.Context, collection string, q Query) ([]json.RawMessage, error) {
	var sb strings.Builder
	args := []interface{}{collection}

	sb.WriteString("SELECT data FROM documents WHERE collection = $1")
	if q.Where != nil {
		args = append(args, q.Where.Field, q.Where.Value)
		fmt.Fprintf(&sb, " AND data->>$%d::text = $%d", len(args)-1, len(args))
	}
	if !q.CreatedBefore.IsZero() {
		args = append(args, q.CreatedBefore)
		fmt.Fprintf(&sb, " AND created_at < $%d", len(args))
	}
	sb.WriteString(" ORDER BY created_at")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("list %s: %w", collection, err)
		}
		out = append(out, json.RawMessage(data))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return out, nil
}

// CountBy groups a collection by a top level field.
func (s *Store) CountBy(ctx context.Context, collection, field string) (map[string]int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(data->>$2::text, ''), COUNT(*) FROM documents
		WHERE collection = $1
		GROUP BY 1`,
		collection, field)
	if err != nil {
		return nil, fmt.Errorf("count %s by %s: %w", collection, field, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("count %s by %s: %w", collection, field, err)
		}
		counts[key] = n
	}
	return counts, rows.Err()
}
