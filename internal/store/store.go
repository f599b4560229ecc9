package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/applypilot/api/schemas"
)

// json is the serializer for structured columns. jsoniter matches
// encoding/json semantics and handles the error-context payloads cheaply.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Store provides a PostgreSQL implementation of the target repository.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.TargetRepository = (*Store)(nil)

// New creates a store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// HasCompleted reports whether the target already reached the applied status.
func (s *Store) HasCompleted(ctx context.Context, id string) (bool, error) {
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM targets WHERE id = $1;`, id,
	).Scan(&status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to query target status: %w", err)
	}
	return schemas.TargetStatus(status) == schemas.StatusApplied, nil
}

// MarkApplied records the success terminal status.
func (s *Store) MarkApplied(ctx context.Context, id string) error {
	return s.setStatus(ctx, id,
		`UPDATE targets SET status = $2, updated_at = $3, skip_reason = NULL, last_error = NULL WHERE id = $1;`,
		schemas.StatusApplied)
}

// MarkSkipped records a skip with its human-readable reason.
func (s *Store) MarkSkipped(ctx context.Context, id string, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE targets SET status = $2, skip_reason = $3, updated_at = $4 WHERE id = $1;`,
		id, string(schemas.StatusSkipped), reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark target skipped: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no target with id '%s'", id)
	}
	return nil
}

// MarkError records the error terminal status with a bare message.
func (s *Store) MarkError(ctx context.Context, id string, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE targets SET status = $2, last_error = $3, updated_at = $4 WHERE id = $1;`,
		id, string(schemas.StatusError), errorPayload(schemas.ErrorContext{Message: message}), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark target errored: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no target with id '%s'", id)
	}
	return nil
}

// MarkErrorContext records the error terminal status together with the full
// classified context as JSONB.
func (s *Store) MarkErrorContext(ctx context.Context, id string, ec schemas.ErrorContext) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE targets SET status = $2, last_error = $3, updated_at = $4 WHERE id = $1;`,
		id, string(schemas.StatusError), errorPayload(ec), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record error context: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no target with id '%s'", id)
	}
	return nil
}

// ListPending returns targets still in the found status, oldest first.
func (s *Store) ListPending(ctx context.Context, limit int) ([]schemas.Target, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, title, company, location, url, status
        FROM targets
        WHERE status = $1
        ORDER BY created_at ASC
        LIMIT $2;
    `, string(schemas.StatusFound), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending targets: %w", err)
	}
	defer rows.Close()

	var targets []schemas.Target
	for rows.Next() {
		var t schemas.Target
		var status string
		if err := rows.Scan(&t.ID, &t.Title, &t.Company, &t.Location, &t.URL, &status); err != nil {
			return nil, fmt.Errorf("failed to scan target row: %w", err)
		}
		t.Status = schemas.TargetStatus(status)
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return targets, nil
}

// setStatus applies a status update and enforces that exactly one row changed.
func (s *Store) setStatus(ctx context.Context, id, sql string, status schemas.TargetStatus) error {
	tag, err := s.pool.Exec(ctx, sql, id, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update target status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no target with id '%s'", id)
	}
	return nil
}

// errorPayload serializes an error context for the last_error column,
// falling back to an empty object rather than inserting null.
func errorPayload(ec schemas.ErrorContext) []byte {
	if ec.OccurredAt.IsZero() {
		ec.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(ec)
	if err != nil || len(data) == 0 {
		return []byte("{}")
	}
	return data
}
