package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agriveille/prefecture-crawler/internal/store"
)

// RunStore records orchestrator runs in Postgres. It assumes a schema like:
//
//	CREATE TABLE runs (
//		id UUID PRIMARY KEY,
//		started_at TIMESTAMPTZ NOT NULL,
//		finished_at TIMESTAMPTZ,
//		status TEXT NOT NULL,
//		steps BIGINT NOT NULL DEFAULT 0,
//		changes BIGINT NOT NULL DEFAULT 0,
//		skips BIGINT NOT NULL DEFAULT 0,
//		failures BIGINT NOT NULL DEFAULT 0,
//		error_message TEXT
//	);
type RunStore struct {
	pool querier
}

// NewRunStore creates a Postgres-backed RunStore.
func NewRunStore(ctx context.Context, dsn string) (*RunStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RunStore{pool: pool}, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(pool querier) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StartRun inserts (or idempotently re-marks) a run in running status.
func (s *RunStore) StartRun(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	query := `
		INSERT INTO runs (id, started_at, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET started_at = EXCLUDED.started_at, status = EXCLUDED.status;
	`
	if _, err := s.pool.Exec(ctx, query, id, startedAt, store.RunRunning); err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// CompleteRun marks a run as finished with its status, totals and optional
// error message.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	totals store.RunTotals,
	errMsg *string,
) error {
	query := `
		UPDATE runs
		SET finished_at = $1, status = $2, steps = $3, changes = $4,
			skips = $5, failures = $6, error_message = $7
		WHERE id = $8;
	`
	tag, err := s.pool.Exec(ctx, query,
		finishedAt, status, totals.Steps, totals.Changes, totals.Skips, totals.Failures, errMsg, id)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (store.Run, error) {
	query := `
		SELECT id, started_at, finished_at, status, steps, changes, skips, failures, error_message
		FROM runs
		WHERE id = $1;
	`
	var run store.Run
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.Totals.Steps,
		&run.Totals.Changes,
		&run.Totals.Skips,
		&run.Totals.Failures,
		&run.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, with optional status filtering.
func (s *RunStore) ListRuns(
	ctx context.Context,
	status *store.RunStatus,
	limit,
	offset int,
) ([]store.Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `
		SELECT id, started_at, finished_at, status, steps, changes, skips, failures, error_message
		FROM runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		var run store.Run
		err := rows.Scan(
			&run.ID,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Status,
			&run.Totals.Steps,
			&run.Totals.Changes,
			&run.Totals.Skips,
			&run.Totals.Failures,
			&run.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}
