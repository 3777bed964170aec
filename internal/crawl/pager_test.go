package crawl

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	pageZero   = "https://www.morbihan.gouv.fr/contenu/recherche/(searchtext)/elevage?SearchText=elevage"
	pageTen    = "https://www.morbihan.gouv.fr/contenu/recherche/(offset)/10/(searchtext)/elevage?SearchText=elevage"
	pageTwenty = "https://www.morbihan.gouv.fr/contenu/recherche/(offset)/20/(searchtext)/elevage?SearchText=elevage"

	emptyResultsPage = `<html><body><p>Aucun résultat</p></body></html>`
)

// onePage renders a results page holding a single card.
func onePage(title, href string) string {
	return fmt.Sprintf(`<html><body>
<div class="fr-card">
  <h3>%s</h3>
  <a href="%s">Consulter</a>
  <time>Mis à jour le 12/03/2026</time>
</div>
</body></html>`, title, href)
}

func TestPagerWalksUntilEmptyPage(t *testing.T) {
	f := newStubFetcher()
	f.pages[pageZero] = onePage("Premier arrêté", "/doc/1")
	f.pages[pageTen] = onePage("Deuxième arrêté", "/doc/2")
	f.pages[pageTwenty] = emptyResultsPage

	pager := NewPager(f, testSource(), "elevage", PagerConfig{}, zap.NewNop())

	var titles []string
	for pager.Next(context.Background()) {
		for _, c := range pager.Batch() {
			titles = append(titles, c.Title)
		}
	}

	require.NoError(t, pager.Err())
	require.Equal(t, int64(2), pager.Pages())
	require.Equal(t, []string{"Premier arrêté", "Deuxième arrêté"}, titles)
	require.Equal(t, []string{pageZero, pageTen, pageTwenty}, f.requests)
}

func TestPagerEscapesKeyword(t *testing.T) {
	f := newStubFetcher()
	want := "https://www.morbihan.gouv.fr/contenu/recherche/(searchtext)/%C3%A9levage%20porcin?SearchText=%C3%A9levage+porcin"
	f.pages[want] = emptyResultsPage

	pager := NewPager(f, testSource(), "élevage porcin", PagerConfig{}, zap.NewNop())

	require.False(t, pager.Next(context.Background()))
	require.NoError(t, pager.Err())
	require.Equal(t, []string{want}, f.requests)
}

func TestPagerReportsFetchFailure(t *testing.T) {
	f := newStubFetcher()

	pager := NewPager(f, testSource(), "elevage", PagerConfig{}, zap.NewNop())

	require.False(t, pager.Next(context.Background()))
	require.Error(t, pager.Err())
	require.Zero(t, pager.Pages())
}

func TestPagerStopsAtSafetyCeiling(t *testing.T) {
	f := newStubFetcher()
	f.defaultBody = onePage("Arrêté répété", "/doc/loop")

	pager := NewPager(f, testSource(), "elevage", PagerConfig{MaxOffset: 30}, zap.NewNop())

	pages := 0
	for pager.Next(context.Background()) {
		pages++
	}

	require.NoError(t, pager.Err())
	require.Equal(t, 4, pages, "offsets 0, 10, 20, 30 and then the ceiling")
}

func TestPagerResetsIdentityPeriodically(t *testing.T) {
	f := newStubFetcher()
	f.defaultBody = onePage("Arrêté répété", "/doc/loop")

	pager := NewPager(f, testSource(), "elevage", PagerConfig{MaxOffset: 50, ResetEvery: 2}, zap.NewNop())
	for pager.Next(context.Background()) {
	}

	require.NoError(t, pager.Err())
	require.Equal(t, int64(6), pager.Pages())
	require.Equal(t, 3, f.resets)
}

func TestPagerFetchErrorMidIteration(t *testing.T) {
	f := newStubFetcher()
	f.pages[pageZero] = onePage("Premier arrêté", "/doc/1")
	f.pages[pageTen] = onePage("Deuxième arrêté", "/doc/2")
	f.errs[pageTwenty] = fmt.Errorf("connection reset")

	pager := NewPager(f, testSource(), "elevage", PagerConfig{}, zap.NewNop())
	for pager.Next(context.Background()) {
	}

	require.Error(t, pager.Err())
	require.Equal(t, int64(2), pager.Pages())
}
