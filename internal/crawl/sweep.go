package crawl

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agriveille/prefecture-crawler/internal/store"
)

// SweepStats tallies one archive sweep.
type SweepStats struct {
	Scanned int64
	Deleted int64
	Failed  int64
}

// Sweeper streams the whole archive and deletes every document whose title
// or description matches a negative keyword. The crawl pipeline applies the
// same exclusion per candidate; the sweep catches documents persisted before
// a keyword was added.
type Sweeper struct {
	docs   store.DocumentStore
	neg    *NegativeKeywords
	syncer *Syncer
	logger *zap.Logger
}

// NewSweeper wires a Sweeper over the same syncer the pipeline uses, so
// sweep deletions publish the same change events.
func NewSweeper(docs store.DocumentStore, neg *NegativeKeywords, syncer *Syncer, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{docs: docs, neg: neg, syncer: syncer, logger: logger}
}

// Sweep walks every persisted document once. Per-document failures are
// counted and logged, never fatal; the only errors returned are a broken
// stream or context cancellation.
func (s *Sweeper) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	it, err := s.docs.StreamAll(ctx)
	if err != nil {
		return stats, fmt.Errorf("stream documents: %w", err)
	}
	defer it.Close()

	for it.Next() {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		doc := it.Document()
		stats.Scanned++

		keyword, matched, err := s.neg.Match(ctx, doc.Title+" "+doc.Description)
		if err != nil {
			return stats, fmt.Errorf("load negative keywords: %w", err)
		}
		if !matched {
			continue
		}

		outcome := s.syncer.Delete(ctx, doc)
		if outcome.Status == StatusFailed {
			stats.Failed++
			s.logger.Warn("sweep delete failed",
				zap.String("link", doc.Link),
				zap.Error(outcome.Err),
			)
			continue
		}
		stats.Deleted++
		s.logger.Info("swept document",
			zap.String("link", doc.Link),
			zap.String("keyword", keyword),
		)
	}
	if err := it.Err(); err != nil {
		return stats, fmt.Errorf("stream documents: %w", err)
	}
	return stats, nil
}
