package crawl

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agriveille/prefecture-crawler/internal/catalog"
	idgen "github.com/agriveille/prefecture-crawler/internal/id/uuid"
	"github.com/agriveille/prefecture-crawler/internal/progress"
	"github.com/agriveille/prefecture-crawler/internal/store"
)

const gridResultsPage = `<html><body>
<div class="fr-card">
  <h3>Arrêté portant autorisation d'un élevage porcin</h3>
  <a href="/publications/arrete-elevage-porcin">Consulter</a>
  <time>Mis à jour le 12/03/2026</time>
</div>
<div class="fr-card">
  <h3>2026</h3>
  <a href="/raa/2026">Voir le recueil</a>
</div>
<div class="fr-card">
  <h3>2026</h3>
  <a href="/raa/2026">Recueil (lien identique)</a>
</div>
</body></html>`

const subDocumentPage = `<html><body>
<main><p>Recueil des arrêtés préfectoraux du Morbihan.</p></main>
</body></html>`

func TestRunnerCrawlsSourceKeywordCell(t *testing.T) {
	fix := newPipelineFixture(t)
	ctx := context.Background()

	fix.fetcher.pages[pageZero] = gridResultsPage
	fix.fetcher.pages[pageTen] = emptyResultsPage
	fix.fetcher.pages[noticeURL] = noticePage
	fix.fetcher.pages["https://www.morbihan.gouv.fr/raa/2026"] = indexPage
	fix.fetcher.pages["https://www.morbihan.gouv.fr/raa/recueil-mars-2026"] = subDocumentPage
	fix.fetcher.pages["https://www.morbihan.gouv.fr/raa/recueil-avril-2026"] = subDocumentPage
	fix.oracle.answer("document_info",
		`{"summary":"Arrêté préfectoral.","is_animal_project":false,"animal_type":"","animal_number":null}`)

	resolver := NewResolver(fix.fetcher, fix.oracle, DefaultIndexRules(), zap.NewNop())
	runner := NewRunner(fix.fetcher, fix.pipe, resolver, PagerConfig{}, zap.NewNop())

	stats, err := runner.Run(ctx, testSource(), "elevage", 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Pages)
	require.Equal(t, int64(5), stats.Candidates, "three cards plus two recovered sub-documents")
	require.Equal(t, int64(3), stats.Created)
	require.Equal(t, int64(2), stats.Skipped, "index expansion and the revisited index")
	require.Zero(t, stats.Failed)
	require.Equal(t, int64(3), stats.Changes())

	// The index page itself is never persisted.
	_, err = fix.docs.FindByLink(ctx, "https://www.morbihan.gouv.fr/raa/2026")
	require.ErrorIs(t, err, store.ErrNotFound)

	count, err := fix.docs.Count(ctx, store.DocumentFilter{})
	require.NoError(t, err)
	require.Equal(t, int64(3), count)

	// Re-running over identical portal content writes nothing.
	again, err := runner.Run(ctx, testSource(), "elevage", 0)
	require.NoError(t, err)
	require.Zero(t, again.Created)
	require.Equal(t, int64(3), again.Unchanged)
	require.Equal(t, int64(2), again.Skipped)
	require.Len(t, fix.pub.Messages(), 3, "only the first run publishes changes")
}

func TestRunnerCountsPagerFailure(t *testing.T) {
	fix := newPipelineFixture(t)

	runner := NewRunner(fix.fetcher, fix.pipe, nil, PagerConfig{}, zap.NewNop())
	stats, err := runner.Run(context.Background(), testSource(), "elevage", 0)
	require.NoError(t, err, "a failing portal must not abort the run")
	require.Equal(t, int64(1), stats.Failed)
	require.Zero(t, stats.Candidates)
}

type fakeCellRunner struct {
	mu     sync.Mutex
	cells  []string
	runIDs []uuid.UUID
	stats  RunStats
	err    error
}

func (f *fakeCellRunner) Run(ctx context.Context, source catalog.Prefecture, keyword string, _ int) (RunStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cells = append(f.cells, source.Domain+"|"+keyword)
	f.runIDs = append(f.runIDs, RunIDFrom(ctx))
	return f.stats, f.err
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) all() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Event, len(r.events))
	copy(out, r.events)
	return out
}

func TestOrchestratorWalksGrid(t *testing.T) {
	runner := &fakeCellRunner{stats: RunStats{Created: 2, Skipped: 1}}
	emitter := &recordingEmitter{}
	o := NewOrchestrator(runner, emitter, idgen.New(), 2, zap.NewNop())

	sources := []catalog.Prefecture{
		{Name: "Morbihan", Region: "Bretagne", Domain: "morbihan.gouv.fr", Code: "56"},
		{Name: "Ain", Region: "Auvergne-Rhône-Alpes", Domain: "ain.gouv.fr", Code: "01"},
	}
	keywords := []string{"elevage", "porcherie"}

	stats, err := o.Crawl(context.Background(), sources, keywords, 30)
	require.NoError(t, err)
	require.Equal(t, int64(8), stats.Created, "four cells, two creates each")
	require.Equal(t, int64(4), stats.Skipped)
	require.Len(t, runner.cells, 4)

	events := emitter.all()
	require.Len(t, events, 6, "start, four steps, done")
	require.Equal(t, progress.StageRunStart, events[0].Stage)
	require.Equal(t, progress.StageRunDone, events[len(events)-1].Stage)

	done := events[len(events)-1]
	require.Equal(t, int64(4), done.Steps)
	require.Equal(t, int64(4), done.Total)
	require.Equal(t, int64(8), done.Changes)
	require.Equal(t, int64(4), done.Skips)

	var steps []progress.Event
	for _, evt := range events {
		require.Equal(t, events[0].RunID, evt.RunID, "every event carries the run id")
		if evt.Stage == progress.StageStep {
			steps = append(steps, evt)
		}
	}
	require.Len(t, steps, 4)
	for _, evt := range steps {
		require.Equal(t, int64(4), evt.Total)
		require.Equal(t, int64(2), evt.Changes)
		require.NotEmpty(t, evt.Source)
		require.NotEmpty(t, evt.Keyword)
		require.Positive(t, evt.Step)
	}

	// The run id in the context matches the emitted events.
	wantID := uuid.UUID(events[0].RunID)
	for _, id := range runner.runIDs {
		require.Equal(t, wantID, id)
	}
}

func TestOrchestratorRejectsEmptyWorkingSet(t *testing.T) {
	emitter := &recordingEmitter{}
	o := NewOrchestrator(&fakeCellRunner{}, emitter, idgen.New(), 0, zap.NewNop())

	_, err := o.Crawl(context.Background(), nil, []string{"elevage"}, 0)
	require.ErrorIs(t, err, ErrEmptyWorkingSet)

	_, err = o.Crawl(context.Background(), []catalog.Prefecture{testSource()}, nil, 0)
	require.ErrorIs(t, err, ErrEmptyWorkingSet)

	require.Empty(t, emitter.all())
}

func TestOrchestratorCancelledRun(t *testing.T) {
	runner := &fakeCellRunner{}
	emitter := &recordingEmitter{}
	o := NewOrchestrator(runner, emitter, idgen.New(), 1, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Crawl(ctx, []catalog.Prefecture{testSource()}, []string{"elevage"}, 0)
	require.ErrorIs(t, err, context.Canceled)

	events := emitter.all()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, progress.StageRunError, last.Stage)
	require.Equal(t, context.Canceled.Error(), last.Note)
	require.Zero(t, last.Steps)
	require.Empty(t, runner.cells)
}
