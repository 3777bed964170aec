package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunStatus mirrors the runs status column.
type RunStatus string

// Run statuses persisted in runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// RunTotals aggregates per-item outcomes over one run. Changes counts
// created+updated+deleted documents; Skips and Failures are kept separate so
// a zero-result run is distinguishable from a broken one.
type RunTotals struct {
	Steps    int64
	Changes  int64
	Skips    int64
	Failures int64
}

// Run models one orchestrator invocation.
type Run struct {
	// ID is the run identifier (UUIDv7).
	ID uuid.UUID
	// StartedAt captures when the run was first marked running.
	StartedAt time.Time
	// FinishedAt is nil until the run is marked success/error.
	FinishedAt *time.Time
	// Status is running/success/error.
	Status RunStatus
	// Totals hold the aggregate counters written at completion.
	Totals RunTotals
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
}

// RunStore records orchestrator invocations.
type RunStore interface {
	// StartRun inserts a new run in running status.
	StartRun(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	// CompleteRun marks the run finished with the provided status and totals.
	CompleteRun(
		ctx context.Context,
		id uuid.UUID,
		finishedAt time.Time,
		status RunStatus,
		totals RunTotals,
		errMsg *string,
	) error
	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)
	// ListRuns returns runs filtered by optional status plus limit/offset.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
	// Close releases the underlying connection resources.
	Close()
}
