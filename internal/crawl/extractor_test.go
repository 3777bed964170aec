package crawl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const resultsPage = `<!DOCTYPE html>
<html><body>
<div class="fr-card">
  <div class="fr-card__title"><h3>Arrêté portant autorisation d'un élevage porcin</h3></div>
  <div class="fr-card__content">
    <a href="/publications/arrete-elevage-porcin">Consulter</a>
    <p>Extension d'un élevage de 2 400 porcs à Plouray.</p>
  </div>
  <div class="fr-card__detail"><time>Mis à jour le 12/03/2026</time></div>
</div>
<div class="fr-card">
  <h2>Recueil des actes administratifs</h2>
  <a href="https://www.morbihan.gouv.fr/raa/2026">Voir le recueil</a>
  <span class="date">Publié le 02/01/2026</span>
</div>
<div class="fr-card"><div class="fr-card__content"></div></div>
</body></html>`

func TestExtractCards(t *testing.T) {
	pageURL := "https://www.morbihan.gouv.fr/contenu/recherche/(searchtext)/elevage?SearchText=elevage"
	cards, err := ExtractCards([]byte(resultsPage), pageURL)
	require.NoError(t, err)
	require.Len(t, cards, 2, "the card with neither title nor link is dropped")

	first := cards[0]
	require.Equal(t, "Arrêté portant autorisation d'un élevage porcin", first.Title)
	require.Equal(t, "https://www.morbihan.gouv.fr/publications/arrete-elevage-porcin", first.Link)
	require.Equal(t, "Extension d'un élevage de 2 400 porcs à Plouray.", first.Description)
	require.Equal(t, "Mis à jour le 12/03/2026", first.DateLabel)
	require.Equal(t,
		[]string{"Arrêté portant autorisation d'un élevage porcin"},
		first.Metadata[BucketCardTitle],
	)
	require.Equal(t, []string{"Mis à jour le 12/03/2026"}, first.Metadata[BucketCardDetail])
	require.Contains(t, first.RawHTML, "fr-card")

	second := cards[1]
	require.Equal(t, "Recueil des actes administratifs", second.Title)
	require.Equal(t, "https://www.morbihan.gouv.fr/raa/2026", second.Link)
	require.Equal(t, "Publié le 02/01/2026", second.DateLabel)
	require.Empty(t, second.Metadata)
}

func TestExtractCardsEmptyPage(t *testing.T) {
	cards, err := ExtractCards(
		[]byte("<html><body><p>Aucun résultat ne correspond à votre recherche.</p></body></html>"),
		"https://www.ain.gouv.fr/contenu/recherche/(searchtext)/elevage?SearchText=elevage",
	)
	require.NoError(t, err)
	require.Empty(t, cards)
}

func TestExtractCardsBadPageURL(t *testing.T) {
	_, err := ExtractCards([]byte("<html></html>"), "://not-a-url")
	require.Error(t, err)
}

func TestCandidateDateTexts(t *testing.T) {
	cand := Candidate{
		DateLabel: "Mis à jour le 12/03/2026",
		Metadata: map[string][]string{
			BucketCardDetail: {"Publié le 02/01/2026"},
		},
	}
	require.Equal(t,
		[]string{"Mis à jour le 12/03/2026", "Publié le 02/01/2026"},
		cand.dateTexts(),
	)

	require.Empty(t, Candidate{}.dateTexts())
}
