package crawl

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/agriveille/prefecture-crawler/internal/catalog"
	"github.com/agriveille/prefecture-crawler/internal/fetch"
	"github.com/agriveille/prefecture-crawler/internal/telemetry"
)

// Fetcher is the slice of the fetch client the crawl package depends on.
// *fetch.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) (fetch.Result, error)
	ResetIdentity()
}

// PagerConfig tunes pagination. Zero values take the defaults.
type PagerConfig struct {
	// Step is the offset advance per page.
	Step int
	// MaxOffset is the safety ceiling; crossing it ends iteration normally.
	MaxOffset int
	// ResetEvery triggers a fetch-client identity reset every N pages.
	ResetEvery int
}

const (
	defaultPageStep   = 10
	defaultMaxOffset  = 1000
	defaultResetEvery = 5
)

func (c PagerConfig) withDefaults() PagerConfig {
	if c.Step <= 0 {
		c.Step = defaultPageStep
	}
	if c.MaxOffset <= 0 {
		c.MaxOffset = defaultMaxOffset
	}
	if c.ResetEvery <= 0 {
		c.ResetEvery = defaultResetEvery
	}
	return c
}

// Pager walks the search results for one (source, keyword): fetch a page,
// extract its cards, advance the offset, stop on the first empty page or at
// the safety ceiling. Finite and not restartable. Offsets depend on prior
// pages, so a pager must never run concurrently for the same source; the
// runner serializes per source.
type Pager struct {
	fetcher Fetcher
	source  catalog.Prefecture
	keyword string
	cfg     PagerConfig
	logger  *zap.Logger

	offset int
	pages  int64
	batch  []Candidate
	err    error
	done   bool
}

// NewPager prepares iteration; no fetch happens until Next.
func NewPager(fetcher Fetcher, source catalog.Prefecture, keyword string, cfg PagerConfig, logger *zap.Logger) *Pager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pager{
		fetcher: fetcher,
		source:  source,
		keyword: keyword,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

// Next fetches the next results page and reports whether a batch is
// available. After Next returns false, Err distinguishes a fetch failure
// from normal exhaustion.
func (p *Pager) Next(ctx context.Context) bool {
	if p.done {
		return false
	}
	if p.offset > p.cfg.MaxOffset {
		p.logger.Info("pagination safety ceiling reached",
			zap.String("source", p.source.Domain),
			zap.String("keyword", p.keyword),
			zap.Int("offset", p.offset),
		)
		p.done = true
		return false
	}

	pageURL := p.pageURL()
	res, err := p.fetcher.Fetch(ctx, fetch.Request{URL: pageURL})
	if err != nil {
		p.err = fmt.Errorf("fetch results page %q: %w", pageURL, err)
		p.done = true
		return false
	}

	cards, err := ExtractCards(res.Body, res.URL)
	if err != nil {
		// Parse failures end pagination like an empty page; the shape of the
		// portal is not a contract.
		p.logger.Warn("results page did not parse, ending pagination",
			zap.String("source", p.source.Domain),
			zap.String("keyword", p.keyword),
			zap.String("url", pageURL),
			zap.Error(err),
		)
		p.done = true
		return false
	}

	telemetry.ObserveResultPage(p.source.Domain)
	telemetry.ObserveCandidates(p.source.Domain, len(cards))

	if len(cards) == 0 {
		p.done = true
		return false
	}

	p.batch = cards
	p.pages++
	if p.pages%int64(p.cfg.ResetEvery) == 0 {
		p.fetcher.ResetIdentity()
	}
	p.offset += p.cfg.Step
	return true
}

// Batch returns the candidates of the page produced by the last Next.
func (p *Pager) Batch() []Candidate {
	return p.batch
}

// Err reports the fetch failure that ended iteration, or nil on normal
// exhaustion.
func (p *Pager) Err() error {
	return p.err
}

// Pages reports how many result pages were consumed.
func (p *Pager) Pages() int64 {
	return p.pages
}

// pageURL builds the portal search URL for the current offset. The catalog
// stores bare domains; portals serve under the www host.
func (p *Pager) pageURL() string {
	kw := url.PathEscape(p.keyword)
	query := url.QueryEscape(p.keyword)
	if p.offset == 0 {
		return fmt.Sprintf("https://www.%s/contenu/recherche/(searchtext)/%s?SearchText=%s",
			p.source.Domain, kw, query)
	}
	return fmt.Sprintf("https://www.%s/contenu/recherche/(offset)/%d/(searchtext)/%s?SearchText=%s",
		p.source.Domain, p.offset, kw, query)
}
