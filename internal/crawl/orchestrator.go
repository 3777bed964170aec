package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/agriveille/prefecture-crawler/internal/catalog"
	"github.com/agriveille/prefecture-crawler/internal/progress"
	"github.com/agriveille/prefecture-crawler/internal/telemetry"
)

// ErrEmptyWorkingSet rejects a crawl with no sources or no keywords.
var ErrEmptyWorkingSet = errors.New("crawl requires at least one source and one keyword")

// Runner executes a single cell of the sources-by-keywords grid: it drives
// the pager, expands index pages back onto the worklist, and feeds every
// candidate through the pipeline.
type Runner struct {
	fetcher  Fetcher
	pipeline *Pipeline
	resolver *Resolver
	pagerCfg PagerConfig
	logger   *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRunner builds a Runner. resolver may be nil to disable index handling.
func NewRunner(fetcher Fetcher, pipeline *Pipeline, resolver *Resolver, pagerCfg PagerConfig, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		fetcher:  fetcher,
		pipeline: pipeline,
		resolver: resolver,
		pagerCfg: pagerCfg,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

// sourceLock serializes crawls against one portal so concurrent keywords
// never interleave requests to the same domain.
func (r *Runner) sourceLock(domain string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[domain]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[domain] = lock
	}
	return lock
}

// Run crawls one source for one keyword. Candidate failures are tallied in
// the stats, never returned; the only error Run reports is context
// cancellation.
func (r *Runner) Run(ctx context.Context, source catalog.Prefecture, keyword string, lookbackDays int) (RunStats, error) {
	lock := r.sourceLock(source.Domain)
	lock.Lock()
	defer lock.Unlock()

	telemetry.IncActiveSources()
	defer telemetry.DecActiveSources()

	r.logger.Info("crawling source",
		zap.String("source", source.Domain),
		zap.String("keyword", keyword),
	)

	var stats RunStats
	expanded := make(map[string]bool)
	pager := NewPager(r.fetcher, source, keyword, r.pagerCfg, r.logger)

	for pager.Next(ctx) {
		worklist := pager.Batch()
		for len(worklist) > 0 {
			if ctx.Err() != nil {
				stats.Pages = pager.Pages()
				return stats, ctx.Err()
			}
			cand := worklist[0]
			worklist = worklist[1:]
			stats.Candidates++

			if r.resolver != nil && r.resolver.IsIndex(cand.Title) {
				outcome, subs := r.expandIndex(ctx, cand, expanded)
				worklist = append(worklist, subs...)
				stats.observe(outcome)
				continue
			}

			stats.observe(r.pipeline.Process(ctx, cand, source, lookbackDays))
		}
	}
	stats.Pages = pager.Pages()

	if err := pager.Err(); err != nil {
		// The pager stopping early ends this cell, not the whole run.
		stats.Failed++
		telemetry.ObserveOutcome(string(StatusFailed))
		r.logger.Warn("pager stopped on error",
			zap.String("source", source.Domain),
			zap.String("keyword", keyword),
			zap.Error(err),
		)
	}
	return stats, ctx.Err()
}

// expandIndex resolves an index card into its sub-documents. The index page
// itself is never persisted; its sub-documents rejoin the worklist. Each
// index link expands at most once per run so cyclic references terminate.
func (r *Runner) expandIndex(ctx context.Context, cand Candidate, expanded map[string]bool) (Outcome, []Candidate) {
	outcome, subs := r.resolveIndex(ctx, cand, expanded)
	telemetry.ObserveOutcome(string(outcome.Status))
	if outcome.Status == StatusFailed {
		r.logger.Warn("index expansion failed",
			zap.String("link", cand.Link),
			zap.Error(outcome.Err),
		)
	}
	return outcome, subs
}

func (r *Runner) resolveIndex(ctx context.Context, cand Candidate, expanded map[string]bool) (Outcome, []Candidate) {
	if cand.Link == "" {
		return Outcome{Status: StatusSkipped, Reason: ReasonNoLink}, nil
	}
	if expanded[cand.Link] {
		return Outcome{Status: StatusSkipped, Reason: ReasonIndexRevisited}, nil
	}
	expanded[cand.Link] = true

	subs, err := r.resolver.Expand(ctx, cand)
	if err != nil {
		return Outcome{Status: StatusFailed, Err: fmt.Errorf("expand index %q: %w", cand.Link, err)}, nil
	}
	if len(subs) == 0 {
		return Outcome{Status: StatusSkipped, Reason: ReasonIndexExhausted}, nil
	}
	return Outcome{Status: StatusSkipped, Reason: ReasonIndexExpanded}, subs
}

// CellRunner is the orchestrator's view of a Runner.
type CellRunner interface {
	Run(ctx context.Context, source catalog.Prefecture, keyword string, lookbackDays int) (RunStats, error)
}

const defaultWorkers = 4

// Orchestrator walks the sources-by-keywords grid, one worker goroutine per
// source, and emits a progress event for each completed cell.
type Orchestrator struct {
	runner  CellRunner
	emitter progress.Emitter
	ids     IDGenerator
	workers int
	logger  *zap.Logger
}

// NewOrchestrator builds an Orchestrator. workers <= 0 selects the default
// of 4 concurrent sources; emitter may be nil to disable progress events.
func NewOrchestrator(runner CellRunner, emitter progress.Emitter, ids IDGenerator, workers int, logger *zap.Logger) *Orchestrator {
	if emitter == nil {
		emitter = nopEmitter{}
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		runner:  runner,
		emitter: emitter,
		ids:     ids,
		workers: workers,
		logger:  logger,
	}
}

type nopEmitter struct{}

func (nopEmitter) Emit(progress.Event) {}

// Crawl runs every source against every keyword and returns the aggregated
// stats. A fresh run ID is minted and carried through ctx so downstream
// change events attribute to this run.
func (o *Orchestrator) Crawl(ctx context.Context, sources []catalog.Prefecture, keywords []string, lookbackDays int) (RunStats, error) {
	if len(sources) == 0 || len(keywords) == 0 {
		return RunStats{}, ErrEmptyWorkingSet
	}
	runID, err := o.ids.NewRawID()
	if err != nil {
		return RunStats{}, fmt.Errorf("generate run id: %w", err)
	}
	ctx = WithRunID(ctx, runID)

	total := int64(len(sources)) * int64(len(keywords))
	started := time.Now()
	o.emitter.Emit(progress.Event{
		RunID: progress.UUIDToBytes(runID),
		TS:    started.UTC(),
		Stage: progress.StageRunStart,
		Total: total,
	})
	o.logger.Info("crawl run started",
		zap.String("run_id", runID.String()),
		zap.Int("sources", len(sources)),
		zap.Int("keywords", len(keywords)),
		zap.Int("lookback_days", lookbackDays),
	)

	var (
		mu      sync.Mutex
		overall RunStats
		step    atomic.Int64
		wg      sync.WaitGroup
	)
	sem := make(chan struct{}, o.workers)

	for _, source := range sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			for _, keyword := range keywords {
				if ctx.Err() != nil {
					return
				}
				cellStart := time.Now()
				stats, runErr := o.runner.Run(ctx, source, keyword, lookbackDays)

				mu.Lock()
				overall.merge(stats)
				mu.Unlock()

				o.emitter.Emit(progress.Event{
					RunID:    progress.UUIDToBytes(runID),
					TS:       time.Now().UTC(),
					Stage:    progress.StageStep,
					Source:   source.Domain,
					Keyword:  keyword,
					Step:     step.Add(1),
					Total:    total,
					Changes:  stats.Changes(),
					Skips:    stats.Skipped,
					Failures: stats.Failed,
					Dur:      time.Since(cellStart),
				})
				if runErr != nil {
					return
				}
			}
		}()
	}
	wg.Wait()

	evt := progress.Event{
		RunID:    progress.UUIDToBytes(runID),
		TS:       time.Now().UTC(),
		Stage:    progress.StageRunDone,
		Total:    total,
		Steps:    step.Load(),
		Changes:  overall.Changes(),
		Skips:    overall.Skipped,
		Failures: overall.Failed,
		Dur:      time.Since(started),
	}
	if err := ctx.Err(); err != nil {
		evt.Stage = progress.StageRunError
		evt.Note = err.Error()
	}
	o.emitter.Emit(evt)

	o.logger.Info("crawl run finished",
		zap.String("run_id", runID.String()),
		zap.String("stage", string(evt.Stage)),
		zap.Int64("steps", evt.Steps),
		zap.Int64("changes", overall.Changes()),
		zap.Int64("skips", overall.Skipped),
		zap.Int64("failures", overall.Failed),
		zap.Duration("dur", evt.Dur),
	)
	return overall, ctx.Err()
}
