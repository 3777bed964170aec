package crawl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	idgen "github.com/agriveille/prefecture-crawler/internal/id/uuid"
	notifymemory "github.com/agriveille/prefecture-crawler/internal/notify/memory"
	"github.com/agriveille/prefecture-crawler/internal/storage/memory"
	"github.com/agriveille/prefecture-crawler/internal/store"
)

func seedSweepDoc(t *testing.T, docs *memory.DocumentStore, link, title string) {
	t.Helper()
	id, err := idgen.New().NewRawID()
	require.NoError(t, err)
	require.NoError(t, docs.Create(context.Background(), store.Document{
		ID:          id,
		Title:       title,
		Link:        link,
		DateUpdated: time.Now().UTC(),
	}))
}

func TestSweeperDeletesMatchingDocuments(t *testing.T) {
	ctx := context.Background()
	docs := memory.NewDocumentStore()
	pub := notifymemory.New()
	require.NoError(t, docs.AddNegativeKeyword(ctx, "formation"))

	seedSweepDoc(t, docs, "https://www.morbihan.gouv.fr/a", "Formation des éleveurs bovins")
	seedSweepDoc(t, docs, "https://www.morbihan.gouv.fr/b", "Arrêté élevage porcin")
	seedSweepDoc(t, docs, "https://www.morbihan.gouv.fr/c", "Arrêté élevage de volailles")

	syncer := NewSyncer(docs, pub, "doc-changes", idgen.New(), zap.NewNop())
	sweeper := NewSweeper(docs, NewNegativeKeywords(docs, time.Minute), syncer, zap.NewNop())

	stats, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.Scanned)
	require.Equal(t, int64(1), stats.Deleted)
	require.Equal(t, int64(0), stats.Failed)

	_, err = docs.FindByLink(ctx, "https://www.morbihan.gouv.fr/a")
	require.ErrorIs(t, err, store.ErrNotFound)
	remaining, err := docs.Count(ctx, store.DocumentFilter{})
	require.NoError(t, err)
	require.Equal(t, int64(2), remaining)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	evt, ok := msgs[0].Payload.(ChangeEvent)
	require.True(t, ok)
	require.Equal(t, string(StatusDeleted), evt.Action)
	require.Equal(t, "https://www.morbihan.gouv.fr/a", evt.Link)
}

func TestSweeperNoKeywordsIsNoOp(t *testing.T) {
	ctx := context.Background()
	docs := memory.NewDocumentStore()
	seedSweepDoc(t, docs, "https://www.morbihan.gouv.fr/a", "Arrêté élevage porcin")

	syncer := NewSyncer(docs, nil, "", idgen.New(), zap.NewNop())
	sweeper := NewSweeper(docs, NewNegativeKeywords(docs, time.Minute), syncer, zap.NewNop())

	stats, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Scanned)
	require.Equal(t, int64(0), stats.Deleted)

	remaining, err := docs.Count(ctx, store.DocumentFilter{})
	require.NoError(t, err)
	require.Equal(t, int64(1), remaining)
}

func TestSweeperStopsOnCancellation(t *testing.T) {
	docs := memory.NewDocumentStore()
	require.NoError(t, docs.AddNegativeKeyword(context.Background(), "formation"))
	seedSweepDoc(t, docs, "https://www.morbihan.gouv.fr/a", "Formation bovine")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	syncer := NewSyncer(docs, nil, "", idgen.New(), zap.NewNop())
	sweeper := NewSweeper(docs, NewNegativeKeywords(docs, time.Minute), syncer, zap.NewNop())

	_, err := sweeper.Sweep(ctx)
	require.ErrorIs(t, err, context.Canceled)

	remaining, err := docs.Count(context.Background(), store.DocumentFilter{})
	require.NoError(t, err)
	require.Equal(t, int64(1), remaining)
}
