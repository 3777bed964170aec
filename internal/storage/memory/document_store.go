package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agriveille/prefecture-crawler/internal/store"
)

const defaultListLimit = 50

// DocumentStore provides an in-memory implementation for development/testing.
type DocumentStore struct {
	mu       sync.RWMutex
	byLink   map[string]store.Document
	keywords map[string]struct{}
}

// NewDocumentStore constructs a DocumentStore.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		byLink:   make(map[string]store.Document),
		keywords: make(map[string]struct{}),
	}
}

// FindByLink loads the document with the given link.
func (s *DocumentStore) FindByLink(_ context.Context, link string) (store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.byLink[link]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return cloneDocument(doc), nil
}

// GetByID loads a document by primary key.
func (s *DocumentStore) GetByID(_ context.Context, id uuid.UUID) (store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.byLink {
		if doc.ID == id {
			return cloneDocument(doc), nil
		}
	}
	return store.Document{}, store.ErrNotFound
}

// Create stores a new document.
func (s *DocumentStore) Create(_ context.Context, doc store.Document) error {
	if doc.Link == "" {
		return errors.New("document link is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byLink[doc.Link]; exists {
		return errors.New("document already exists")
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	s.byLink[doc.Link] = cloneDocument(doc)
	return nil
}

// Update rewrites the document identified by doc.Link.
func (s *DocumentStore) Update(_ context.Context, doc store.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byLink[doc.Link]
	if !ok {
		return store.ErrNotFound
	}
	doc.ID = existing.ID
	doc.CreatedAt = existing.CreatedAt
	doc.UpdatedAt = time.Now().UTC()
	s.byLink[doc.Link] = cloneDocument(doc)
	return nil
}

// Delete removes the document with the given link.
func (s *DocumentStore) Delete(_ context.Context, link string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byLink[link]; !ok {
		return store.ErrNotFound
	}
	delete(s.byLink, link)
	return nil
}

// List returns documents matching the filter, newest first.
func (s *DocumentStore) List(_ context.Context, filter store.DocumentFilter) ([]store.Document, error) {
	s.mu.RLock()
	docs := make([]store.Document, 0, len(s.byLink))
	for _, doc := range s.byLink {
		if matchesFilter(doc, filter) {
			docs = append(docs, cloneDocument(doc))
		}
	}
	s.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].DateUpdated.Equal(docs[j].DateUpdated) {
			return docs[i].DateUpdated.After(docs[j].DateUpdated)
		}
		return docs[i].Link < docs[j].Link
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if filter.Offset >= len(docs) {
		return nil, nil
	}
	docs = docs[filter.Offset:]
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// Count returns the number of documents matching the filter.
func (s *DocumentStore) Count(_ context.Context, filter store.DocumentFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, doc := range s.byLink {
		if matchesFilter(doc, filter) {
			count++
		}
	}
	return count, nil
}

// StreamAll iterates a snapshot of every document in creation order.
func (s *DocumentStore) StreamAll(_ context.Context) (store.DocumentIterator, error) {
	s.mu.RLock()
	docs := make([]store.Document, 0, len(s.byLink))
	for _, doc := range s.byLink {
		docs = append(docs, cloneDocument(doc))
	}
	s.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		}
		return docs[i].Link < docs[j].Link
	})
	return &sliceIterator{docs: docs}, nil
}

// CountByAttribution counts documents attributed to one prefecture.
func (s *DocumentStore) CountByAttribution(_ context.Context, prefectureName string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, doc := range s.byLink {
		if doc.PrefectureName == prefectureName {
			count++
		}
	}
	return count, nil
}

// AttributionCounts aggregates document counts per prefecture, busiest first.
func (s *DocumentStore) AttributionCounts(_ context.Context) ([]store.AttributionCount, error) {
	s.mu.RLock()
	grouped := make(map[string]store.AttributionCount)
	for _, doc := range s.byLink {
		c := grouped[doc.PrefectureName]
		c.PrefectureName = doc.PrefectureName
		c.PrefectureCode = doc.PrefectureCode
		c.RegionName = doc.RegionName
		c.Documents++
		if doc.UpdatedAt.After(c.LastUpdated) {
			c.LastUpdated = doc.UpdatedAt
		}
		grouped[doc.PrefectureName] = c
	}
	s.mu.RUnlock()

	counts := make([]store.AttributionCount, 0, len(grouped))
	for _, c := range grouped {
		counts = append(counts, c)
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Documents != counts[j].Documents {
			return counts[i].Documents > counts[j].Documents
		}
		return counts[i].PrefectureName < counts[j].PrefectureName
	})
	return counts, nil
}

// ListNegativeKeywords returns the exclusion terms in alphabetical order.
func (s *DocumentStore) ListNegativeKeywords(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keywords := make([]string, 0, len(s.keywords))
	for kw := range s.keywords {
		keywords = append(keywords, kw)
	}
	sort.Strings(keywords)
	return keywords, nil
}

// AddNegativeKeyword inserts an exclusion term (idempotent, lowercased).
func (s *DocumentStore) AddNegativeKeyword(_ context.Context, keyword string) error {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	if kw == "" {
		return errors.New("keyword is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keywords[kw] = struct{}{}
	return nil
}

// RemoveNegativeKeyword deletes an exclusion term.
func (s *DocumentStore) RemoveNegativeKeyword(_ context.Context, keyword string) error {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keywords[kw]; !ok {
		return store.ErrNotFound
	}
	delete(s.keywords, kw)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *DocumentStore) Close() {}

func matchesFilter(doc store.Document, filter store.DocumentFilter) bool {
	if filter.Region != "" && doc.RegionName != filter.Region {
		return false
	}
	if filter.AnimalType != "" && doc.AnimalType != filter.AnimalType {
		return false
	}
	if filter.IntensiveOnly && !doc.IsIntensiveFarming {
		return false
	}
	return true
}

func cloneDocument(doc store.Document) store.Document {
	out := doc
	if doc.AnimalNumber != nil {
		n := *doc.AnimalNumber
		out.AnimalNumber = &n
	}
	return out
}

type sliceIterator struct {
	docs []store.Document
	cur  store.Document
}

func (it *sliceIterator) Next() bool {
	if len(it.docs) == 0 {
		return false
	}
	it.cur = it.docs[0]
	it.docs = it.docs[1:]
	return true
}

func (it *sliceIterator) Document() store.Document { return it.cur }

func (it *sliceIterator) Err() error { return nil }

func (it *sliceIterator) Close() {}
