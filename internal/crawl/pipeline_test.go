package crawl

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	archivememory "github.com/agriveille/prefecture-crawler/internal/archive/memory"
	"github.com/agriveille/prefecture-crawler/internal/cache"
	idgen "github.com/agriveille/prefecture-crawler/internal/id/uuid"
	notifymemory "github.com/agriveille/prefecture-crawler/internal/notify/memory"
	"github.com/agriveille/prefecture-crawler/internal/storage/memory"
	"github.com/agriveille/prefecture-crawler/internal/store"
)

// fixedNow keeps freshness checks deterministic: three days after the
// sample card's publication date.
var fixedNow = time.Date(2026, time.March, 15, 9, 0, 0, 0, time.UTC)

const noticeURL = "https://www.morbihan.gouv.fr/publications/arrete-elevage-porcin"

const noticePage = `<html><head><title>Arrêté élevage porcin</title></head><body>
<main>
<h1>Arrêté portant autorisation d'un élevage porcin</h1>
<p>Le préfet du Morbihan autorise l'extension d'un élevage de 2 400 porcs sur la commune de Plouray.</p>
</main>
</body></html>`

const animalInfoJSON = `{"summary":"Extension d'un élevage porcin de 2 400 animaux à Plouray.","is_animal_project":true,"animal_type":"porcin","animal_number":2400}`

func freshCandidate() Candidate {
	return Candidate{
		Title:       "Arrêté portant autorisation d'un élevage porcin",
		Link:        noticeURL,
		Description: "Extension d'un élevage de 2 400 porcs à Plouray.",
		DateLabel:   "Mis à jour le 12/03/2026",
		RawHTML:     `<div class="fr-card"><h3>Arrêté portant autorisation d'un élevage porcin</h3></div>`,
	}
}

type pipelineFixture struct {
	fetcher *stubFetcher
	oracle  *scriptedOracle
	texts   *cache.Cache[string]
	docs    *memory.DocumentStore
	pub     *notifymemory.Publisher
	blobs   *archivememory.BlobStore
	pipe    *Pipeline
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	return newPipelineFixtureWithConfig(t, PipelineConfig{})
}

func newPipelineFixtureWithConfig(t *testing.T, cfg PipelineConfig) *pipelineFixture {
	t.Helper()
	texts, err := cache.New[string](cache.Options[string]{})
	require.NoError(t, err)

	fix := &pipelineFixture{
		fetcher: newStubFetcher(),
		oracle:  newScriptedOracle(),
		texts:   texts,
		docs:    memory.NewDocumentStore(),
		pub:     notifymemory.New(),
		blobs:   archivememory.NewBlobStore(),
	}
	fix.pipe = NewPipeline(cfg, PipelineDeps{
		Fetcher:  fix.fetcher,
		Texts:    texts,
		Oracle:   fix.oracle,
		Docs:     fix.docs,
		Keywords: NewNegativeKeywords(fix.docs, time.Minute),
		Syncer:   NewSyncer(fix.docs, fix.pub, "doc-changes", idgen.New(), zap.NewNop()),
		Blobs:    fix.blobs,
		Logger:   zap.NewNop(),
	})
	fix.pipe.now = func() time.Time { return fixedNow }
	return fix
}

func TestPipelineCreatesClassifiedDocument(t *testing.T) {
	fix := newPipelineFixture(t)
	fix.fetcher.pages[noticeURL] = noticePage
	fix.oracle.answer("document_info", animalInfoJSON)
	fix.oracle.answer("intensive_farming", `{"is_intensive_farming":false}`)

	out := fix.pipe.Process(context.Background(), freshCandidate(), testSource(), 0)
	require.Equal(t, StatusCreated, out.Status)
	require.NoError(t, out.Err)

	stored, err := fix.docs.FindByLink(context.Background(), noticeURL)
	require.NoError(t, err)
	require.True(t, stored.IsAnimalProject)
	require.Equal(t, "porcin", stored.AnimalType)
	require.NotNil(t, stored.AnimalNumber)
	require.Equal(t, 2400, *stored.AnimalNumber)
	require.False(t, stored.IsIntensiveFarming)
	require.True(t, stored.DateUpdated.Equal(time.Date(2026, time.March, 12, 0, 0, 0, 0, time.UTC)))
	require.Contains(t, stored.FullText, "extension d'un élevage de 2 400 porcs")
	require.Equal(t, "Morbihan", stored.PrefectureName)

	require.Equal(t, 1, fix.fetcher.requested(noticeURL), "non-intensive projects skip enrichment")
	require.Equal(t, 1, fix.oracle.kindCalls("document_info"))
	require.Equal(t, 1, fix.oracle.kindCalls("intensive_farming"))
	require.Equal(t, 1, fix.blobs.Len(), "card snapshot archived")
	require.Len(t, fix.pub.Messages(), 1)
}

func TestPipelineSkipsNegativeKeywordCandidate(t *testing.T) {
	fix := newPipelineFixture(t)
	require.NoError(t, fix.docs.AddNegativeKeyword(context.Background(), "éolien"))

	cand := freshCandidate()
	cand.Title = "Projet de parc éolien en mer"

	out := fix.pipe.Process(context.Background(), cand, testSource(), 0)
	require.Equal(t, StatusSkipped, out.Status)
	require.Equal(t, ReasonNegativeKeyword, out.Reason)

	require.Zero(t, fix.fetcher.requestCount(), "excluded candidates are never fetched")
	_, err := fix.docs.FindByLink(context.Background(), cand.Link)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Empty(t, fix.pub.Messages())
}

func TestPipelineDeletesPersistedNegativeMatch(t *testing.T) {
	fix := newPipelineFixture(t)
	ctx := context.Background()
	require.NoError(t, fix.docs.Create(ctx, store.Document{
		Title: "Ancien titre",
		Link:  noticeURL,
	}))
	require.NoError(t, fix.docs.AddNegativeKeyword(ctx, "éolien"))

	cand := freshCandidate()
	cand.Title = "Reconversion du site en parc éolien"

	out := fix.pipe.Process(ctx, cand, testSource(), 0)
	require.Equal(t, StatusDeleted, out.Status)
	require.Equal(t, ReasonNegativeKeyword, out.Reason)

	_, err := fix.docs.FindByLink(ctx, noticeURL)
	require.ErrorIs(t, err, store.ErrNotFound)

	msgs := fix.pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, string(StatusDeleted), msgs[0].Payload.(ChangeEvent).Action)
}

func TestPipelineSkipsStaleCandidate(t *testing.T) {
	fix := newPipelineFixture(t)
	cand := freshCandidate()
	cand.DateLabel = "Mis à jour le 12/03/2025"

	out := fix.pipe.Process(context.Background(), cand, testSource(), 30)
	require.Equal(t, StatusSkipped, out.Status)
	require.Equal(t, ReasonStale, out.Reason)
	require.Zero(t, fix.fetcher.requestCount())
}

func TestPipelineUnchangedShortCircuit(t *testing.T) {
	fix := newPipelineFixture(t)
	ctx := context.Background()
	require.NoError(t, fix.docs.Create(ctx, store.Document{
		Title:       "Arrêté portant autorisation d'un élevage porcin",
		Link:        noticeURL,
		DateUpdated: time.Date(2026, time.March, 12, 0, 0, 0, 0, time.UTC),
	}))

	out := fix.pipe.Process(ctx, freshCandidate(), testSource(), 0)
	require.Equal(t, StatusUnchanged, out.Status)
	require.Zero(t, fix.fetcher.requestCount(), "same publication date means no fetch")
	require.Zero(t, fix.oracle.kindCalls("document_info"))
	require.Empty(t, fix.pub.Messages())
}

func TestPipelineUpdatesOnNewPublicationDate(t *testing.T) {
	fix := newPipelineFixture(t)
	ctx := context.Background()
	fix.fetcher.pages[noticeURL] = noticePage
	fix.oracle.answer("document_info", animalInfoJSON)
	fix.oracle.answer("intensive_farming", `{"is_intensive_farming":false}`)

	require.Equal(t, StatusCreated, fix.pipe.Process(ctx, freshCandidate(), testSource(), 0).Status)

	bumped := freshCandidate()
	bumped.DateLabel = "Mis à jour le 14/03/2026"
	out := fix.pipe.Process(ctx, bumped, testSource(), 0)
	require.Equal(t, StatusUpdated, out.Status)

	stored, err := fix.docs.FindByLink(ctx, noticeURL)
	require.NoError(t, err)
	require.True(t, stored.DateUpdated.Equal(time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC)))

	require.Equal(t, 1, fix.fetcher.requested(noticeURL), "text comes from the cache on re-classification")

	actions := make([]string, 0, 2)
	for _, m := range fix.pub.Messages() {
		actions = append(actions, m.Payload.(ChangeEvent).Action)
	}
	require.Equal(t, []string{"created", "updated"}, actions)
}

func TestPipelineIntensiveEnrichmentKeepsPrimaryOnUnreadablePDF(t *testing.T) {
	fix := newPipelineFixture(t)
	pageWithPDF := `<html><body>
<main>
<h1>Arrêté portant autorisation d'un élevage porcin</h1>
<p>Le dossier complet est téléchargeable ci-dessous.</p>
<a class="fr-download__link" href="/docs/dossier-complet.pdf">Dossier complet</a>
</main>
</body></html>`
	pdfURL := "https://www.morbihan.gouv.fr/docs/dossier-complet.pdf"
	fix.fetcher.pages[noticeURL] = pageWithPDF
	fix.fetcher.pages[pdfURL] = "%PDF-1.4 not really a pdf"
	fix.oracle.answer("document_info", animalInfoJSON)
	fix.oracle.answer("intensive_farming", `{"is_intensive_farming":true}`)

	out := fix.pipe.Process(context.Background(), freshCandidate(), testSource(), 0)
	require.Equal(t, StatusCreated, out.Status)

	stored, err := fix.docs.FindByLink(context.Background(), noticeURL)
	require.NoError(t, err)
	require.True(t, stored.IsIntensiveFarming)
	require.Equal(t, "Extension d'un élevage porcin de 2 400 animaux à Plouray.", stored.Summary)

	require.Equal(t, 2, fix.fetcher.requested(noticeURL), "enrichment refetches the page for its links")
	require.Equal(t, 1, fix.fetcher.requested(pdfURL))
	require.Equal(t, 1, fix.oracle.kindCalls("document_info"), "unreadable PDFs leave the primary classification")
}

func TestPipelineEnrichmentLeavesCachedPDFTextUntruncated(t *testing.T) {
	fix := newPipelineFixtureWithConfig(t, PipelineConfig{PerPDFCharLimit: 64})
	pageWithPDF := `<html><body>
<main>
<h1>Arrêté portant autorisation d'un élevage porcin</h1>
<p>Le dossier complet est téléchargeable ci-dessous.</p>
<a class="fr-download__link" href="/docs/dossier-complet.pdf">Dossier complet</a>
</main>
</body></html>`
	pdfURL := "https://www.morbihan.gouv.fr/docs/dossier-complet.pdf"
	fullPDFText := strings.Repeat("p", 500)
	fix.fetcher.pages[noticeURL] = pageWithPDF
	fix.texts.Set(pdfURL, fullPDFText)
	fix.oracle.answer("document_info", animalInfoJSON)
	fix.oracle.answer("intensive_farming", `{"is_intensive_farming":true}`)

	out := fix.pipe.Process(context.Background(), freshCandidate(), testSource(), 0)
	require.Equal(t, StatusCreated, out.Status)

	infoTexts := fix.oracle.kindTexts("document_info")
	require.Len(t, infoTexts, 2, "enrichment re-runs the primary classification")
	corpus := infoTexts[1]
	require.Contains(t, corpus, strings.Repeat("p", 64))
	require.NotContains(t, corpus, strings.Repeat("p", 65), "corpus clipped to the per-PDF limit")
	require.Equal(t, 0, fix.fetcher.requested(pdfURL), "cached pdf text skips the fetch")

	cached, ok := fix.texts.Get(pdfURL)
	require.True(t, ok)
	require.Equal(t, fullPDFText, cached, "the cache keeps the untruncated extraction")

	// The same PDF classified as its own candidate reads the full text.
	pdfCand := freshCandidate()
	pdfCand.Link = pdfURL
	out = fix.pipe.Process(context.Background(), pdfCand, testSource(), 0)
	require.Equal(t, StatusCreated, out.Status)
	stored, err := fix.docs.FindByLink(context.Background(), pdfURL)
	require.NoError(t, err)
	require.Equal(t, fullPDFText, stored.FullText)
}

func TestPipelineEnrichmentRespectsCharBudgets(t *testing.T) {
	fix := newPipelineFixtureWithConfig(t, PipelineConfig{
		PerPDFCharLimit:      100,
		TotalEnrichCharLimit: 150,
	})
	pageWithPDFs := `<html><body>
<main>
<h1>Arrêté portant autorisation d'un élevage porcin</h1>
<p>Pièces du dossier ci-dessous.</p>
<a href="/docs/rapport.pdf">Rapport</a>
<a href="/docs/annexe.pdf">Annexe</a>
<a href="/docs/avis.pdf">Avis</a>
</main>
</body></html>`
	rapportURL := "https://www.morbihan.gouv.fr/docs/rapport.pdf"
	annexeURL := "https://www.morbihan.gouv.fr/docs/annexe.pdf"
	avisURL := "https://www.morbihan.gouv.fr/docs/avis.pdf"
	fix.fetcher.pages[noticeURL] = pageWithPDFs
	fix.texts.Set(rapportURL, strings.Repeat("r", 300))
	fix.texts.Set(annexeURL, strings.Repeat("x", 300))
	fix.oracle.answer("document_info", animalInfoJSON)
	fix.oracle.answer("intensive_farming", `{"is_intensive_farming":true}`)

	out := fix.pipe.Process(context.Background(), freshCandidate(), testSource(), 0)
	require.Equal(t, StatusCreated, out.Status)

	infoTexts := fix.oracle.kindTexts("document_info")
	require.Len(t, infoTexts, 2)
	corpus := infoTexts[1]
	require.Contains(t, corpus, strings.Repeat("r", 100))
	require.NotContains(t, corpus, strings.Repeat("r", 101), "first pdf clipped to the per-PDF limit")
	require.Contains(t, corpus, strings.Repeat("x", 50))
	require.NotContains(t, corpus, strings.Repeat("x", 51), "second pdf clipped to the remaining budget")
	require.Equal(t, 0, fix.fetcher.requested(avisURL), "a spent budget stops pdf consumption")
}

func TestPipelineOracleFailureFailsCandidate(t *testing.T) {
	fix := newPipelineFixture(t)
	fix.fetcher.pages[noticeURL] = noticePage
	fix.oracle.errs["document_info"] = errors.New("oracle unavailable")

	out := fix.pipe.Process(context.Background(), freshCandidate(), testSource(), 0)
	require.Equal(t, StatusFailed, out.Status)
	require.Error(t, out.Err)

	_, err := fix.docs.FindByLink(context.Background(), noticeURL)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Empty(t, fix.pub.Messages())
}

func TestPipelineNonAnimalProjectPersistedWithoutIntensiveCheck(t *testing.T) {
	fix := newPipelineFixture(t)
	fix.fetcher.pages[noticeURL] = noticePage
	fix.oracle.answer("document_info",
		`{"summary":"Travaux de voirie sur la RD 768.","is_animal_project":false,"animal_type":"","animal_number":null}`)

	out := fix.pipe.Process(context.Background(), freshCandidate(), testSource(), 0)
	require.Equal(t, StatusCreated, out.Status)

	stored, err := fix.docs.FindByLink(context.Background(), noticeURL)
	require.NoError(t, err)
	require.False(t, stored.IsAnimalProject)
	require.False(t, stored.IsIntensiveFarming)
	require.Zero(t, fix.oracle.kindCalls("intensive_farming"))
}

func TestPipelineSkipsOnCancelledContext(t *testing.T) {
	fix := newPipelineFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := fix.pipe.Process(ctx, freshCandidate(), testSource(), 0)
	require.Equal(t, StatusSkipped, out.Status)
	require.Equal(t, ReasonCancelled, out.Reason)
	require.Zero(t, fix.fetcher.requestCount())
}

func TestPipelineSkipsLinklessCandidate(t *testing.T) {
	fix := newPipelineFixture(t)
	cand := freshCandidate()
	cand.Link = ""

	out := fix.pipe.Process(context.Background(), cand, testSource(), 0)
	require.Equal(t, StatusSkipped, out.Status)
	require.Equal(t, ReasonNoLink, out.Reason)
}

func TestPipelineClearCacheEvery(t *testing.T) {
	fix := newPipelineFixtureWithConfig(t, PipelineConfig{ClearCacheEvery: 1})
	ctx := context.Background()
	fix.fetcher.pages[noticeURL] = noticePage
	fix.oracle.answer("document_info", animalInfoJSON)
	fix.oracle.answer("intensive_farming", `{"is_intensive_farming":false}`)

	require.Equal(t, StatusCreated, fix.pipe.Process(ctx, freshCandidate(), testSource(), 0).Status)

	bumped := freshCandidate()
	bumped.DateLabel = "Mis à jour le 14/03/2026"
	require.Equal(t, StatusUpdated, fix.pipe.Process(ctx, bumped, testSource(), 0).Status)

	require.Equal(t, 2, fix.fetcher.requested(noticeURL), "cleared cache forces a refetch")
}

func TestEnrichedCorpusLayout(t *testing.T) {
	corpus := enrichedCorpus("texte de la page", []string{"premier pdf", "second pdf"})
	want := "==== PAGE TEXT START ====\n\n" +
		"texte de la page\n\n" +
		"==== PAGE TEXT END ====\n\n" +
		"==== LINKED PDF TEXT START ====\n\n" +
		"premier pdf\n\n==== NEXT PDF ====\n\nsecond pdf\n\n" +
		"==== LINKED PDF TEXT END ===="
	require.Equal(t, want, corpus)
}

func TestHarvestPDFLinks(t *testing.T) {
	page := `<html><body>
<a href="/docs/a.pdf">Annexe A</a>
<a href="/docs/b.PDF?version=2">Annexe B</a>
<a href="/docs/a.pdf">Annexe A (doublon)</a>
<a href="/page.html">Page HTML</a>
<a href="https://www.morbihan.gouv.fr/self.pdf">La page elle-même</a>
</body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)
	base, err := url.Parse("https://www.morbihan.gouv.fr/self.pdf")
	require.NoError(t, err)

	links := harvestPDFLinks(doc, base, "https://www.morbihan.gouv.fr/self.pdf", 5)
	require.Equal(t, []string{
		"https://www.morbihan.gouv.fr/docs/a.pdf",
		"https://www.morbihan.gouv.fr/docs/b.PDF?version=2",
	}, links)

	capped := harvestPDFLinks(doc, base, "https://www.morbihan.gouv.fr/self.pdf", 1)
	require.Len(t, capped, 1)
}

func TestIsPDFLink(t *testing.T) {
	tests := []struct {
		link string
		want bool
	}{
		{"https://www.morbihan.gouv.fr/doc.pdf", true},
		{"https://www.morbihan.gouv.fr/doc.PDF?v=1", true},
		{"https://www.morbihan.gouv.fr/doc.pdf#page=3", true},
		{"https://www.morbihan.gouv.fr/doc.html", false},
		{"dossier.pdf", true},
		{"https://www.morbihan.gouv.fr/pdf-guide", false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, isPDFLink(tt.link), "link %q", tt.link)
	}
}
