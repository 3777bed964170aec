package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Document is one archived prefecture notice, keyed uniquely by Link.
type Document struct {
	// ID is the primary key (UUIDv7, assigned at creation).
	ID uuid.UUID
	// Title is the card title as published on the portal.
	Title string
	// Link is the absolute URL of the notice and its natural identity.
	Link string
	// Description is the short card text under the title.
	Description string
	// DateUpdated is the publication/update date parsed from the card.
	DateUpdated time.Time
	// FullText is the extracted text of the linked page or PDF.
	FullText string

	// Summary is the oracle's French abstract of the notice.
	Summary string
	// IsAnimalProject reports whether the notice concerns a livestock project.
	IsAnimalProject bool
	// AnimalType is one of ovin, caprin, bovin, porcin, volaille, or empty.
	AnimalType string
	// AnimalNumber is the herd/flock size when the notice states one.
	AnimalNumber *int
	// IsIntensiveFarming reports the second-stage oracle verdict.
	IsIntensiveFarming bool

	// PrefectureName, PrefectureCode and RegionName attribute the notice to
	// the portal it was crawled from.
	PrefectureName string
	PrefectureCode string
	RegionName     string

	// CreatedAt and UpdatedAt are store-owned row timestamps.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentFilter narrows List and Count. Zero values mean "no constraint".
type DocumentFilter struct {
	Region        string
	AnimalType    string
	IntensiveOnly bool
	Limit         int
	Offset        int
}

// AttributionCount aggregates documents per source prefecture.
type AttributionCount struct {
	PrefectureName string
	PrefectureCode string
	RegionName     string
	Documents      int64
	LastUpdated    time.Time
}

// DocumentIterator walks a result set one document at a time. Close must be
// called regardless of how iteration ends.
type DocumentIterator interface {
	Next() bool
	Document() Document
	Err() error
	Close()
}

// DocumentStore persists notices and the negative-keyword exclusion list.
type DocumentStore interface {
	// FindByLink loads the document with the given link or returns ErrNotFound.
	FindByLink(ctx context.Context, link string) (Document, error)
	// GetByID loads a document by primary key or returns ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (Document, error)
	// Create inserts a new document. The link must not already exist.
	Create(ctx context.Context, doc Document) error
	// Update rewrites the document identified by doc.Link.
	Update(ctx context.Context, doc Document) error
	// Delete removes the document with the given link.
	Delete(ctx context.Context, link string) error

	// List returns documents matching the filter, newest first.
	List(ctx context.Context, filter DocumentFilter) ([]Document, error)
	// Count returns the number of documents matching the filter.
	Count(ctx context.Context, filter DocumentFilter) (int64, error)
	// StreamAll iterates every document, for sweeps over the whole archive.
	StreamAll(ctx context.Context) (DocumentIterator, error)
	// CountByAttribution counts documents attributed to one prefecture.
	CountByAttribution(ctx context.Context, prefectureName string) (int64, error)
	// AttributionCounts aggregates document counts per prefecture.
	AttributionCounts(ctx context.Context) ([]AttributionCount, error)

	// ListNegativeKeywords returns the exclusion terms, lowercased.
	ListNegativeKeywords(ctx context.Context) ([]string, error)
	// AddNegativeKeyword inserts an exclusion term (idempotent).
	AddNegativeKeyword(ctx context.Context, keyword string) error
	// RemoveNegativeKeyword deletes an exclusion term.
	RemoveNegativeKeyword(ctx context.Context, keyword string) error

	// Close releases the underlying connection resources.
	Close()
}
