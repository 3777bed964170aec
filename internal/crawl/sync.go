package crawl

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agriveille/prefecture-crawler/internal/catalog"
	"github.com/agriveille/prefecture-crawler/internal/notify"
	"github.com/agriveille/prefecture-crawler/internal/store"
)

type runIDKey struct{}

// WithRunID stamps the orchestrator's run ID on the context so change
// events can reference the run that produced them.
func WithRunID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFrom extracts the run ID, or uuid.Nil outside a run.
func RunIDFrom(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(runIDKey{}).(uuid.UUID)
	return id
}

// ChangeEvent is the payload published after any store mutation.
type ChangeEvent struct {
	Action         string `json:"action"`
	Link           string `json:"link"`
	Title          string `json:"title,omitempty"`
	PrefectureCode string `json:"prefecture_code,omitempty"`
	RunID          string `json:"run_id,omitempty"`
}

// IDGenerator mints primary keys for new documents.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Syncer reconciles classified documents against the store: create when the
// link is new, update when any tracked field changed, no-op otherwise.
// Stateless and idempotent; re-running on identical input writes nothing.
type Syncer struct {
	docs      store.DocumentStore
	publisher notify.Publisher
	topic     string
	ids       IDGenerator
	logger    *zap.Logger
}

// NewSyncer wires the sync engine. A nil publisher disables change events.
func NewSyncer(docs store.DocumentStore, publisher notify.Publisher, topic string, ids IDGenerator, logger *zap.Logger) *Syncer {
	if publisher == nil {
		publisher = notify.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{docs: docs, publisher: publisher, topic: topic, ids: ids, logger: logger}
}

// Sync writes one classified document. existing carries the stored row for
// the same link when there is one; nil means the link is new. The full
// payload is computed before the single store call, so cancellation can
// never leave a half-written record.
func (s *Syncer) Sync(ctx context.Context, existing *store.Document, doc Document, source catalog.Prefecture) Outcome {
	if existing == nil {
		record, err := s.newRecord(doc, source)
		if err != nil {
			return Outcome{Status: StatusFailed, Err: err}
		}
		if err := s.docs.Create(ctx, record); err != nil {
			return Outcome{Status: StatusFailed, Err: fmt.Errorf("create document: %w", err)}
		}
		s.publish(ctx, string(StatusCreated), record)
		return Outcome{Status: StatusCreated}
	}

	next := mergeRecord(*existing, doc, source)
	if documentsEqual(*existing, next) {
		return Outcome{Status: StatusUnchanged}
	}
	if err := s.docs.Update(ctx, next); err != nil {
		return Outcome{Status: StatusFailed, Err: fmt.Errorf("update document: %w", err)}
	}
	s.publish(ctx, string(StatusUpdated), next)
	return Outcome{Status: StatusUpdated}
}

// Delete removes a persisted document that now matches a negative keyword.
func (s *Syncer) Delete(ctx context.Context, existing store.Document) Outcome {
	if err := s.docs.Delete(ctx, existing.Link); err != nil {
		return Outcome{Status: StatusFailed, Err: fmt.Errorf("delete document: %w", err)}
	}
	s.publish(ctx, string(StatusDeleted), existing)
	return Outcome{Status: StatusDeleted}
}

func (s *Syncer) newRecord(doc Document, source catalog.Prefecture) (store.Document, error) {
	id, err := s.ids.NewRawID()
	if err != nil {
		return store.Document{}, fmt.Errorf("assign document id: %w", err)
	}
	return store.Document{
		ID:                 id,
		Title:              doc.Title,
		Link:               doc.Link,
		Description:        doc.Description,
		DateUpdated:        doc.DateUpdated,
		FullText:           doc.FullText,
		Summary:            doc.Summary,
		IsAnimalProject:    doc.IsAnimalProject,
		AnimalType:         doc.AnimalType,
		AnimalNumber:       doc.AnimalNumber,
		IsIntensiveFarming: doc.IsIntensiveFarming,
		PrefectureName:     source.Name,
		PrefectureCode:     source.Code,
		RegionName:         source.Region,
	}, nil
}

// mergeRecord lays the classified fields over the stored row. Attribution
// only overwrites when the new value is non-empty, so a source temporarily
// crawled without catalog data cannot blank prior attribution.
func mergeRecord(existing store.Document, doc Document, source catalog.Prefecture) store.Document {
	next := existing
	next.Title = doc.Title
	next.Description = doc.Description
	next.DateUpdated = doc.DateUpdated
	next.FullText = doc.FullText
	next.Summary = doc.Summary
	next.IsAnimalProject = doc.IsAnimalProject
	next.AnimalType = doc.AnimalType
	next.AnimalNumber = doc.AnimalNumber
	next.IsIntensiveFarming = doc.IsIntensiveFarming
	if source.Name != "" {
		next.PrefectureName = source.Name
	}
	if source.Code != "" {
		next.PrefectureCode = source.Code
	}
	if source.Region != "" {
		next.RegionName = source.Region
	}
	return next
}

// documentsEqual compares the synced fields; store-owned timestamps and the
// primary key are excluded.
func documentsEqual(a, b store.Document) bool {
	if a.Title != b.Title ||
		a.Description != b.Description ||
		!a.DateUpdated.Equal(b.DateUpdated) ||
		a.FullText != b.FullText ||
		a.Summary != b.Summary ||
		a.IsAnimalProject != b.IsAnimalProject ||
		a.AnimalType != b.AnimalType ||
		a.IsIntensiveFarming != b.IsIntensiveFarming ||
		a.PrefectureName != b.PrefectureName ||
		a.PrefectureCode != b.PrefectureCode ||
		a.RegionName != b.RegionName {
		return false
	}
	switch {
	case a.AnimalNumber == nil && b.AnimalNumber == nil:
		return true
	case a.AnimalNumber == nil || b.AnimalNumber == nil:
		return false
	default:
		return *a.AnimalNumber == *b.AnimalNumber
	}
}

// publish emits a change event; failures are logged, never fatal.
func (s *Syncer) publish(ctx context.Context, action string, record store.Document) {
	event := ChangeEvent{
		Action:         action,
		Link:           record.Link,
		Title:          record.Title,
		PrefectureCode: record.PrefectureCode,
	}
	if runID := RunIDFrom(ctx); runID != uuid.Nil {
		event.RunID = runID.String()
	}
	if _, err := s.publisher.Publish(ctx, s.topic, event); err != nil {
		s.logger.Warn("change event publish failed",
			zap.String("action", action),
			zap.String("link", record.Link),
			zap.Error(err),
		)
	}
}
