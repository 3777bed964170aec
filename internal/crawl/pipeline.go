package crawl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/agriveille/prefecture-crawler/internal/archive"
	"github.com/agriveille/prefecture-crawler/internal/cache"
	"github.com/agriveille/prefecture-crawler/internal/catalog"
	"github.com/agriveille/prefecture-crawler/internal/fetch"
	"github.com/agriveille/prefecture-crawler/internal/hash/sha256"
	"github.com/agriveille/prefecture-crawler/internal/oracle"
	"github.com/agriveille/prefecture-crawler/internal/store"
	"github.com/agriveille/prefecture-crawler/internal/telemetry"
	"github.com/agriveille/prefecture-crawler/internal/textextract"
)

// PipelineConfig tunes the classification filters. Zero values take the
// defaults; the lookback passed to Process overrides LookbackDays per run.
type PipelineConfig struct {
	// LookbackDays bounds the freshness window.
	LookbackDays int
	// MaxEnrichPDFs caps how many linked PDFs enrichment reads.
	MaxEnrichPDFs int
	// PerPDFCharLimit truncates each extracted enrichment PDF.
	PerPDFCharLimit int
	// TotalEnrichCharLimit bounds all enrichment PDF text combined.
	TotalEnrichCharLimit int
	// MaxOracleChars trims the text sent to the oracle.
	MaxOracleChars int
	// ClearCacheEvery drops the text cache every N processed candidates;
	// 0 disables.
	ClearCacheEvery int
}

const (
	defaultLookbackDays    = 30
	defaultMaxEnrichPDFs   = 5
	defaultPerPDFChars     = 200_000
	defaultTotalEnrichChar = 400_000
	defaultMaxOracleChars  = 200_000
)

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.LookbackDays <= 0 {
		c.LookbackDays = defaultLookbackDays
	}
	if c.MaxEnrichPDFs <= 0 {
		c.MaxEnrichPDFs = defaultMaxEnrichPDFs
	}
	if c.PerPDFCharLimit <= 0 {
		c.PerPDFCharLimit = defaultPerPDFChars
	}
	if c.TotalEnrichCharLimit <= 0 {
		c.TotalEnrichCharLimit = defaultTotalEnrichChar
	}
	if c.MaxOracleChars <= 0 {
		c.MaxOracleChars = defaultMaxOracleChars
	}
	return c
}

// PipelineDeps collects the pipeline's collaborators.
type PipelineDeps struct {
	Fetcher  Fetcher
	Texts    *cache.Cache[string]
	Oracle   oracle.Oracle
	Docs     store.DocumentStore
	Keywords *NegativeKeywords
	Syncer   *Syncer
	// Blobs archives raw card snapshots; nil disables archiving.
	Blobs  archive.BlobStore
	Logger *zap.Logger
}

// Pipeline runs one candidate through the ordered filters: negative
// keywords, freshness, identity short-circuit, full-text fetch, oracle
// classification, conditional enrichment, then the sync engine. The first
// short-circuit wins and every candidate yields exactly one Outcome.
type Pipeline struct {
	cfg      PipelineConfig
	fetcher  Fetcher
	texts    *cache.Cache[string]
	oracle   oracle.Oracle
	docs     store.DocumentStore
	neg      *NegativeKeywords
	syncer   *Syncer
	blobs    archive.BlobStore
	hasher   *sha256.Hasher
	now      func() time.Time
	logger   *zap.Logger
	processed atomic.Int64
}

// NewPipeline wires the filters.
func NewPipeline(cfg PipelineConfig, deps PipelineDeps) *Pipeline {
	blobs := deps.Blobs
	if blobs == nil {
		blobs = archive.Noop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:     cfg.withDefaults(),
		fetcher: deps.Fetcher,
		texts:   deps.Texts,
		oracle:  deps.Oracle,
		docs:    deps.Docs,
		neg:     deps.Keywords,
		syncer:  deps.Syncer,
		blobs:   blobs,
		hasher:  sha256.New(),
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger,
	}
}

// Process runs one candidate end to end. lookbackDays overrides the
// configured freshness window when positive.
func (p *Pipeline) Process(ctx context.Context, cand Candidate, source catalog.Prefecture, lookbackDays int) Outcome {
	outcome := p.process(ctx, cand, source, lookbackDays)
	telemetry.ObserveOutcome(string(outcome.Status))
	switch outcome.Status {
	case StatusFailed:
		p.logger.Warn("candidate failed",
			zap.String("link", cand.Link),
			zap.String("source", source.Domain),
			zap.Error(outcome.Err),
		)
	case StatusSkipped:
		p.logger.Debug("candidate skipped",
			zap.String("link", cand.Link),
			zap.String("reason", outcome.Reason),
		)
	}
	p.afterItem()
	return outcome
}

func (p *Pipeline) process(ctx context.Context, cand Candidate, source catalog.Prefecture, lookbackDays int) Outcome {
	if ctx.Err() != nil {
		return Outcome{Status: StatusSkipped, Reason: ReasonCancelled}
	}
	if cand.Link == "" {
		return Outcome{Status: StatusSkipped, Reason: ReasonNoLink}
	}

	keyword, matched, err := p.neg.Match(ctx, cand.Title+" "+cand.Description)
	if err != nil {
		return Outcome{Status: StatusFailed, Err: err}
	}
	if matched {
		existing, err := p.docs.FindByLink(ctx, cand.Link)
		switch {
		case err == nil:
			p.logger.Info("deleting persisted document on negative keyword",
				zap.String("link", cand.Link),
				zap.String("keyword", keyword),
			)
			outcome := p.syncer.Delete(ctx, existing)
			if outcome.Status == StatusDeleted {
				outcome.Reason = ReasonNegativeKeyword
			}
			return outcome
		case errors.Is(err, store.ErrNotFound):
			return Outcome{Status: StatusSkipped, Reason: ReasonNegativeKeyword}
		default:
			return Outcome{Status: StatusFailed, Err: fmt.Errorf("find by link: %w", err)}
		}
	}

	now := p.now()
	dateUpdated := ParseCardDate(cand.dateTexts(), now)
	lookback := lookbackDays
	if lookback <= 0 {
		lookback = p.cfg.LookbackDays
	}
	if dateUpdated.Before(now.AddDate(0, 0, -lookback)) {
		return Outcome{Status: StatusSkipped, Reason: ReasonStale}
	}

	var existing *store.Document
	found, err := p.docs.FindByLink(ctx, cand.Link)
	switch {
	case err == nil:
		if found.DateUpdated.Equal(dateUpdated) {
			return Outcome{Status: StatusUnchanged}
		}
		existing = &found
	case errors.Is(err, store.ErrNotFound):
	default:
		return Outcome{Status: StatusFailed, Err: fmt.Errorf("find by link: %w", err)}
	}

	text, err := p.fullText(ctx, cand.Link)
	if err != nil {
		return Outcome{Status: StatusFailed, Err: fmt.Errorf("full text %q: %w", cand.Link, err)}
	}

	info, intensive, err := p.classify(ctx, text)
	if err != nil {
		return Outcome{Status: StatusFailed, Err: err}
	}

	if intensive {
		refined, err := p.enrich(ctx, cand.Link, text)
		switch {
		case err != nil:
			p.logger.Warn("enrichment failed, keeping primary classification",
				zap.String("link", cand.Link),
				zap.Error(err),
			)
		case refined != nil:
			info = *refined
		}
	}

	p.archiveSnapshot(ctx, cand)

	doc := Document{
		Candidate:          cand,
		DateUpdated:        dateUpdated,
		FullText:           text,
		Summary:            info.Summary,
		IsAnimalProject:    info.IsAnimalProject,
		AnimalType:         info.AnimalType,
		AnimalNumber:       info.AnimalNumber,
		IsIntensiveFarming: intensive,
	}
	return p.syncer.Sync(ctx, existing, doc, source)
}

// fullText fetches and extracts the candidate's text through the cache; the
// cache stores extracted text, never raw bytes.
func (p *Pipeline) fullText(ctx context.Context, link string) (string, error) {
	computed := false
	text, err := p.texts.GetOrCompute(link, func() (string, error) {
		computed = true
		res, err := p.fetcher.Fetch(ctx, fetch.Request{URL: link})
		if err != nil {
			return "", err
		}
		if isPDFLink(link) || textextract.IsPDF(res.Body) {
			return textextract.PDF(res.Body, 0)
		}
		return textextract.HTML(res.Body)
	})
	telemetry.ObserveCacheRequest("text", !computed)
	return text, err
}

// classify runs the primary classification and, for animal projects, the
// intensive-farming check on the summary.
func (p *Pipeline) classify(ctx context.Context, text string) (oracle.DocumentInfo, bool, error) {
	trimmed := textextract.Truncate(text, p.cfg.MaxOracleChars)
	info, err := oracle.RequestDocumentInfo(ctx, p.oracle, trimmed)
	if err != nil {
		return oracle.DocumentInfo{}, false, fmt.Errorf("classify document: %w", err)
	}
	if !info.IsAnimalProject {
		return info, false, nil
	}
	intensive, err := oracle.RequestIntensiveFarming(ctx, p.oracle, info.Summary)
	if err != nil {
		return oracle.DocumentInfo{}, false, fmt.Errorf("intensive farming check: %w", err)
	}
	return info, intensive, nil
}

// enrich gathers the page's linked PDFs under the configured caps, builds
// the marked-up corpus, and re-runs the primary classification. A nil
// result with nil error means there was nothing to enrich with.
func (p *Pipeline) enrich(ctx context.Context, link, pageText string) (*oracle.DocumentInfo, error) {
	if isPDFLink(link) {
		return nil, nil
	}
	res, err := p.fetcher.Fetch(ctx, fetch.Request{URL: link})
	if err != nil {
		return nil, fmt.Errorf("refetch page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	base, err := url.Parse(res.URL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	pdfLinks := harvestPDFLinks(doc, base, link, p.cfg.MaxEnrichPDFs)
	if len(pdfLinks) == 0 {
		return nil, nil
	}

	budget := p.cfg.TotalEnrichCharLimit
	var pdfTexts []string
	for _, pdfURL := range pdfLinks {
		if budget <= 0 {
			break
		}
		text, err := p.pdfText(ctx, pdfURL)
		if err != nil {
			p.logger.Debug("enrichment pdf skipped",
				zap.String("pdf", pdfURL),
				zap.Error(err),
			)
			continue
		}
		limit := p.cfg.PerPDFCharLimit
		if budget < limit {
			limit = budget
		}
		text = textextract.Truncate(text, limit)
		if text == "" {
			continue
		}
		budget -= len(text)
		pdfTexts = append(pdfTexts, text)
	}
	if len(pdfTexts) == 0 {
		return nil, nil
	}

	corpus := enrichedCorpus(textextract.Truncate(pageText, p.cfg.MaxOracleChars), pdfTexts)
	info, err := oracle.RequestDocumentInfo(ctx, p.oracle, corpus)
	if err != nil {
		return nil, fmt.Errorf("re-classify enriched corpus: %w", err)
	}
	return &info, nil
}

// pdfText fetches and extracts one enrichment PDF through the cache. The
// cache always holds the untruncated extraction, so an entry seeded here
// serves the candidate path unclipped; enrichment's caps apply at the
// call site.
func (p *Pipeline) pdfText(ctx context.Context, pdfURL string) (string, error) {
	computed := false
	text, err := p.texts.GetOrCompute(pdfURL, func() (string, error) {
		computed = true
		res, err := p.fetcher.Fetch(ctx, fetch.Request{URL: pdfURL})
		if err != nil {
			return "", err
		}
		return textextract.PDF(res.Body, 0)
	})
	telemetry.ObserveCacheRequest("text", !computed)
	return text, err
}

// archiveSnapshot saves the raw card HTML keyed by content hash; failures
// are logged and never affect the outcome.
func (p *Pipeline) archiveSnapshot(ctx context.Context, cand Candidate) {
	if cand.RawHTML == "" {
		return
	}
	digest, err := p.hasher.Hash([]byte(cand.RawHTML))
	if err != nil {
		p.logger.Warn("snapshot hash failed", zap.String("link", cand.Link), zap.Error(err))
		return
	}
	objectName := fmt.Sprintf("cards/%s/%s.html", digest[:2], digest)
	if _, err := p.blobs.Save(ctx, objectName, "text/html", []byte(cand.RawHTML)); err != nil {
		p.logger.Warn("snapshot archive failed",
			zap.String("link", cand.Link),
			zap.String("object", objectName),
			zap.Error(err),
		)
	}
}

func (p *Pipeline) afterItem() {
	if p.cfg.ClearCacheEvery <= 0 {
		return
	}
	if p.processed.Add(1)%int64(p.cfg.ClearCacheEvery) == 0 {
		p.texts.Clear()
	}
}

// Corpus markers delimit page text from linked PDF text for the oracle.
const (
	markPageStart = "==== PAGE TEXT START ===="
	markPageEnd   = "==== PAGE TEXT END ===="
	markPDFStart  = "==== LINKED PDF TEXT START ===="
	markPDFNext   = "==== NEXT PDF ===="
	markPDFEnd    = "==== LINKED PDF TEXT END ===="
)

func enrichedCorpus(pageText string, pdfTexts []string) string {
	segments := []string{
		markPageStart,
		pageText,
		markPageEnd,
		markPDFStart,
		strings.Join(pdfTexts, "\n\n"+markPDFNext+"\n\n"),
		markPDFEnd,
	}
	return strings.Join(segments, "\n\n")
}

// harvestPDFLinks collects distinct absolute PDF URLs from the page,
// excluding the page itself, capped at limit.
func harvestPDFLinks(doc *goquery.Document, base *url.URL, pageURL string, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		abs := absoluteURL(base, href)
		if abs == "" || abs == pageURL || seen[abs] || !isPDFLink(abs) {
			return true
		}
		seen[abs] = true
		out = append(out, abs)
		return len(out) < limit
	})
	return out
}

// isPDFLink decides extraction strategy by the URL path suffix.
func isPDFLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(link), ".pdf")
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}
