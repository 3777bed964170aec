package crawl

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/agriveille/prefecture-crawler/internal/fetch"
	"github.com/agriveille/prefecture-crawler/internal/oracle"
	"github.com/agriveille/prefecture-crawler/internal/textextract"
)

// IndexRules configures index-page detection. A candidate whose title
// matches is a container of documents, not a document.
type IndexRules struct {
	// Labels match the trimmed title exactly, case-insensitively.
	Labels []string
	// Contains match anywhere in the title, case-insensitively.
	Contains []string
}

// yearPattern catches bundle pages titled with a bare year ("2024").
var yearPattern = regexp.MustCompile(`^(19|20)\d{2}$`)

// DefaultIndexRules returns the patterns observed on the prefecture portals.
func DefaultIndexRules() IndexRules {
	return IndexRules{
		Labels:   []string{"Recueil des actes administratifs", "Liste des documents"},
		Contains: []string{"recueil des actes"},
	}
}

// IsIndex reports whether a card title denotes an index page.
func (r IndexRules) IsIndex(title string) bool {
	title = strings.TrimSpace(title)
	if title == "" {
		return false
	}
	for _, label := range r.Labels {
		if strings.EqualFold(title, strings.TrimSpace(label)) {
			return true
		}
	}
	lower := strings.ToLower(title)
	for _, sub := range r.Contains {
		if sub != "" && strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return yearPattern.MatchString(title)
}

// downloadSelectors are the structural download-link shapes scanned by the
// deterministic pass, most specific first.
var downloadSelectors = []string{
	"a.fr-download__link",
	".fr-downloads-group a",
	"a[download]",
	"a.fr-link--download",
}

// Limits for the AI-assisted fallback prompt.
const (
	fallbackTextLimit = 20000
	fallbackLinkLimit = 200
)

// Resolver expands index candidates into their sub-documents: a
// deterministic scan of the page's download links, then an oracle-assisted
// fallback over the page text and harvested anchors when the scan finds
// nothing.
type Resolver struct {
	fetcher Fetcher
	oracle  oracle.Oracle
	rules   IndexRules
	logger  *zap.Logger
}

// NewResolver wires the resolver; a nil oracle disables the fallback pass.
func NewResolver(fetcher Fetcher, o oracle.Oracle, rules IndexRules, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{fetcher: fetcher, oracle: o, rules: rules, logger: logger}
}

// IsIndex exposes the detection rules to the runner.
func (r *Resolver) IsIndex(title string) bool {
	return r.rules.IsIndex(title)
}

// Expand fetches the index target and recovers its sub-documents as fresh
// candidates for the caller's worklist. An empty slice with a nil error
// means the index yielded nothing and is skipped; the index page itself is
// never persisted.
func (r *Resolver) Expand(ctx context.Context, cand Candidate) ([]Candidate, error) {
	res, err := r.fetcher.Fetch(ctx, fetch.Request{URL: cand.Link})
	if err != nil {
		return nil, fmt.Errorf("fetch index page %q: %w", cand.Link, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("parse index page %q: %w", cand.Link, err)
	}
	base, err := url.Parse(res.URL)
	if err != nil {
		return nil, fmt.Errorf("parse index url %q: %w", res.URL, err)
	}

	subs := r.deterministic(doc, base)
	if len(subs) > 0 {
		r.logger.Debug("index expanded deterministically",
			zap.String("index", cand.Link),
			zap.Int("sub_documents", len(subs)),
		)
		return subs, nil
	}

	subs, err = r.fallback(ctx, res.Body, doc, base, res.URL)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		r.logger.Info("index page yielded no sub-documents",
			zap.String("index", cand.Link),
			zap.String("title", cand.Title),
		)
	}
	return subs, nil
}

// deterministic scans the structural download-link elements. Each valid
// link becomes one candidate: anchor text as title (detail spans stripped),
// the surrounding text as the raw date label.
func (r *Resolver) deterministic(doc *goquery.Document, base *url.URL) []Candidate {
	seen := make(map[string]bool)
	var out []Candidate
	for _, selector := range downloadSelectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			href, ok := sel.Attr("href")
			if !ok {
				return
			}
			abs := absoluteURL(base, href)
			if abs == "" || seen[abs] {
				return
			}
			seen[abs] = true
			out = append(out, Candidate{
				Title:     downloadTitle(sel, abs),
				Link:      abs,
				DateLabel: cleanText(sel.Parent().Text()),
			})
		})
	}
	return out
}

// downloadTitle prefers the anchor text without its DSFR detail span
// ("PDF – 1,2 Mo"), then the full anchor text, then the target's filename.
func downloadTitle(sel *goquery.Selection, absURL string) string {
	clone := sel.Clone()
	clone.Find("span").Remove()
	if title := cleanText(clone.Text()); title != "" {
		return title
	}
	if title := cleanText(sel.Text()); title != "" {
		return title
	}
	if u, err := url.Parse(absURL); err == nil {
		return path.Base(u.Path)
	}
	return ""
}

// fallback asks the oracle to pick document entries out of the page text
// and harvested anchors, then validates each returned triple.
func (r *Resolver) fallback(
	ctx context.Context,
	body []byte,
	doc *goquery.Document,
	base *url.URL,
	pageURL string,
) ([]Candidate, error) {
	if r.oracle == nil {
		return nil, nil
	}

	pageText, err := textextract.HTML(body)
	if err != nil {
		return nil, fmt.Errorf("extract index text: %w", err)
	}
	pageText = textextract.Truncate(pageText, fallbackTextLimit)
	// Lead with the <title>: it names the prefecture and topic and must
	// survive truncation of a long page body.
	if title := textextract.Title(body); title != "" {
		pageText = title + "\n\n" + pageText
	}

	links := harvestLinks(doc, base, pageURL)
	if len(links) == 0 {
		return nil, nil
	}

	subs, err := oracle.RequestSubDocuments(ctx, r.oracle, pageText, links)
	if err != nil {
		return nil, fmt.Errorf("oracle sub-documents: %w", err)
	}

	seen := make(map[string]bool)
	var out []Candidate
	for _, sub := range subs {
		title := cleanText(sub.Title)
		link := strings.TrimSpace(sub.Link)
		if title == "" || link == "" || link == pageURL {
			continue
		}
		abs := absoluteURL(base, link)
		if abs == "" || abs == pageURL || seen[abs] {
			continue
		}
		seen[abs] = true
		out = append(out, Candidate{
			Title:     title,
			Link:      abs,
			DateLabel: strings.TrimSpace(sub.Date),
		})
	}
	return out, nil
}

// harvestLinks collects (anchor text, absolute URL) pairs for the fallback
// prompt, skipping fragments, mail and script pseudo-links, and the page
// itself.
func harvestLinks(doc *goquery.Document, base *url.URL, pageURL string) []oracle.LinkPair {
	seen := make(map[string]bool)
	var pairs []oracle.LinkPair
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
			return true
		}
		abs := absoluteURL(base, href)
		if abs == "" || abs == pageURL || seen[abs] {
			return true
		}
		seen[abs] = true
		pairs = append(pairs, oracle.LinkPair{Text: cleanText(sel.Text()), Href: abs})
		return len(pairs) < fallbackLinkLimit
	})
	return pairs
}
