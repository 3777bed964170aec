// Package progress defines the event structures emitted during crawl runs.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages. A run walks the source-by-keyword grid; each
// finished cell emits one STEP event, and the run itself is bracketed by
// RUN_START and RUN_DONE or RUN_ERROR.
const (
	StageRunStart Stage = "RUN_START"
	StageStep     Stage = "STEP"
	StageRunDone  Stage = "RUN_DONE"
	StageRunError Stage = "RUN_ERROR"
)

// Event captures a single milestone of crawler progress.
type Event struct {
	// RunID uniquely identifies a crawl run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// Source is the prefecture portal domain, set on STEP events.
	Source string
	// Keyword is the search term the step crawled, set on STEP events.
	Keyword string
	// Step is the 1-based position in the source-by-keyword grid.
	Step int64
	// Total is the grid size the run will walk.
	Total int64
	// Steps counts completed grid cells; set on run completion events.
	Steps int64
	// Changes counts documents created, updated, or deleted.
	Changes int64
	// Skips counts candidates dropped before persistence.
	Skips int64
	// Failures counts candidates abandoned after errors.
	Failures int64
	// Dur captures execution latency for steps and run completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageStep:
		if e.Source == "" {
			return errors.New("step requires source")
		}
		if e.Keyword == "" {
			return errors.New("step requires keyword")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
