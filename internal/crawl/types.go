// Package crawl implements the crawl-extract-classify-persist pipeline: the
// pager walks a portal's search results, the extractor turns result pages
// into candidates, the resolver expands index pages into their real
// sub-documents, the pipeline filters and classifies each candidate, and the
// sync engine reconciles the outcome against the document store. The
// orchestrator drives all of it across the sources-by-keywords grid.
package crawl

import (
	"time"
)

// Candidate is one result card lifted off a search results page, or one
// sub-document recovered from an index page. Ephemeral; Link is the natural
// identity once a candidate enters classification.
type Candidate struct {
	Title       string
	Link        string
	Description string
	// DateLabel is the raw French date text as published ("Mis à jour le …").
	DateLabel string
	// Metadata holds the known card buckets in document order.
	Metadata map[string][]string
	// RawHTML is the card's outer HTML, archived for later re-examination.
	RawHTML string
}

// Metadata bucket names produced by the extractor.
const (
	BucketCardTitle   = "fr-card__title"
	BucketCardContent = "fr-card__content"
	BucketCardDetail  = "fr-card__detail"
)

// dateTexts returns the texts scanned for a publication date, label first.
func (c Candidate) dateTexts() []string {
	texts := make([]string, 0, 1+len(c.Metadata[BucketCardDetail]))
	if c.DateLabel != "" {
		texts = append(texts, c.DateLabel)
	}
	texts = append(texts, c.Metadata[BucketCardDetail]...)
	return texts
}

// Document is a classified candidate ready for the sync engine.
type Document struct {
	Candidate
	DateUpdated time.Time
	FullText    string

	Summary            string
	IsAnimalProject    bool
	AnimalType         string
	AnimalNumber       *int
	IsIntensiveFarming bool
}

// Status classifies the disposition of one processed candidate.
type Status string

// Candidate dispositions.
const (
	StatusCreated   Status = "created"
	StatusUpdated   Status = "updated"
	StatusUnchanged Status = "unchanged"
	StatusSkipped   Status = "skipped"
	StatusDeleted   Status = "deleted"
	StatusFailed    Status = "failed"
)

// Outcome is the per-candidate result the runner aggregates. Exactly one is
// produced per candidate; errors never unwind the source-by-keyword loop.
type Outcome struct {
	Status Status
	// Reason explains skips ("negative keyword", "stale", "cancelled").
	Reason string
	// Err carries the failure when Status is StatusFailed.
	Err error
}

// Skip reasons reported in Outcome.Reason.
const (
	ReasonNegativeKeyword = "negative keyword"
	ReasonStale           = "stale"
	ReasonNoLink          = "no link"
	ReasonCancelled       = "cancelled"
	ReasonIndexExpanded   = "index expanded"
	ReasonIndexExhausted  = "index yielded no sub-documents"
	ReasonIndexRevisited  = "index already expanded"
)

// RunStats aggregates outcomes over one source-by-keyword run.
type RunStats struct {
	Pages      int64
	Candidates int64
	Created    int64
	Updated    int64
	Deleted    int64
	Unchanged  int64
	Skipped    int64
	Failed     int64
}

// Changes counts the store mutations: creates, updates, and deletes.
func (s RunStats) Changes() int64 {
	return s.Created + s.Updated + s.Deleted
}

// observe tallies one outcome.
func (s *RunStats) observe(o Outcome) {
	switch o.Status {
	case StatusCreated:
		s.Created++
	case StatusUpdated:
		s.Updated++
	case StatusDeleted:
		s.Deleted++
	case StatusUnchanged:
		s.Unchanged++
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
	}
}

// merge folds another run's counters into s.
func (s *RunStats) merge(other RunStats) {
	s.Pages += other.Pages
	s.Candidates += other.Candidates
	s.Created += other.Created
	s.Updated += other.Updated
	s.Deleted += other.Deleted
	s.Unchanged += other.Unchanged
	s.Skipped += other.Skipped
	s.Failed += other.Failed
}
