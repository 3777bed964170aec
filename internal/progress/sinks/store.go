package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agriveille/prefecture-crawler/internal/progress"
	"github.com/agriveille/prefecture-crawler/internal/store"
)

// StoreSink persists run lifecycle events via a store.RunStore so every
// orchestrator invocation leaves an auditable row. Step events are not
// persisted individually; their counters arrive aggregated on the completion
// event.
type StoreSink struct {
	runs   store.RunStore
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided run store.
func NewStoreSink(runs store.RunStore, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{runs: runs, logger: logger}
}

// Consume forwards run lifecycle transitions to the store. It respects ctx
// deadlines and returns any store errors verbatim.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.runs == nil {
		return nil
	}
	for _, evt := range batch {
		runID := evt.RunUUID()
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.runs.StartRun(ctx, runID, evt.TS); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case progress.StageRunDone:
			if err := s.runs.CompleteRun(ctx, runID, evt.TS, store.RunSuccess, eventTotals(evt), nil); err != nil {
				return fmt.Errorf("complete run: %w", err)
			}
		case progress.StageRunError:
			var note *string
			if evt.Note != "" {
				note = &evt.Note
			}
			if err := s.runs.CompleteRun(ctx, runID, evt.TS, store.RunError, eventTotals(evt), note); err != nil {
				return fmt.Errorf("complete run: %w", err)
			}
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

func eventTotals(evt progress.Event) store.RunTotals {
	return store.RunTotals{
		Steps:    evt.Steps,
		Changes:  evt.Changes,
		Skips:    evt.Skips,
		Failures: evt.Failures,
	}
}
