package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agriveille/prefecture-crawler/internal/progress"
)

// PrometheusSink exports run lifecycle metrics via Prometheus. It owns all
// collectors for runs started/completed/running and per-source step counters;
// fetch-level metrics live in internal/telemetry and are recorded inline.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runRuntime    *prometheus.HistogramVec

	stepsTotal   *prometheus.CounterVec
	stepOutcomes *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prefcrawler_runs_started_total",
			Help: "Total crawl runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prefcrawler_runs_completed_total",
			Help: "Total crawl runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "prefcrawler_runs_running",
			Help: "Current number of running crawl runs.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prefcrawler_run_runtime_seconds",
			Help:    "Wall time per completed crawl run.",
			Buckets: []float64{30, 60, 300, 600, 1800, 3600, 7200, 14400},
		}, []string{"result"}),
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prefcrawler_steps_total",
			Help: "Completed source-by-keyword steps partitioned by source.",
		}, []string{"source"}),
		stepOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prefcrawler_step_outcomes_total",
			Help: "Per-step document outcomes partitioned by source and outcome.",
		}, []string{"source", "outcome"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prefcrawler_step_duration_seconds",
			Help:    "Step duration partitioned by source.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"source"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.stepsTotal,
		s.stepOutcomes,
		s.stepDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart, progress.StageRunDone, progress.StageRunError:
		s.handleRunEvent(evt)
	case progress.StageStep:
		s.handleStepEvent(evt)
	}
}

func (s *PrometheusSink) handleRunEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRunDone:
		s.runsCompleted.WithLabelValues("success").Inc()
		s.observeRuntime(evt, "success")
	case progress.StageRunError:
		s.runsCompleted.WithLabelValues("error").Inc()
		s.observeRuntime(evt, "error")
	}
	if evt.Stage != progress.StageRunStart && s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.runRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleStepEvent(evt progress.Event) {
	source := evt.Source
	if source == "" {
		source = "unknown"
	}
	s.stepsTotal.WithLabelValues(source).Inc()
	if evt.Changes > 0 {
		s.stepOutcomes.WithLabelValues(source, "changes").Add(float64(evt.Changes))
	}
	if evt.Skips > 0 {
		s.stepOutcomes.WithLabelValues(source, "skips").Add(float64(evt.Skips))
	}
	if evt.Failures > 0 {
		s.stepOutcomes.WithLabelValues(source, "failures").Add(float64(evt.Failures))
	}
	if evt.Dur > 0 {
		s.stepDuration.WithLabelValues(source).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
