package textextract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const noticePage = `<!DOCTYPE html>
<html lang="fr">
<head>
  <title>Élevage de volailles - Les services de l'État</title>
  <style>body { color: red; }</style>
  <script>console.log("tracking");</script>
</head>
<body>
  <nav><a href="/">Accueil</a><a href="/recherche">Recherche</a></nav>
  <header>Préfecture du Morbihan</header>
  <main>
    <h1>Consultation du public</h1>
    <p>Demande d'enregistrement pour un   élevage de
       volailles à Plumelec.</p>
    <div>Arrêté préfectoral du 12 mars 2025.</div>
  </main>
  <aside>Liens utiles</aside>
  <footer>Mentions légales</footer>
</body>
</html>`

func TestHTMLSkipsChrome(t *testing.T) {
	t.Parallel()

	text, err := HTML([]byte(noticePage))
	require.NoError(t, err)

	assert.Contains(t, text, "Consultation du public")
	assert.Contains(t, text, "Demande d'enregistrement pour un élevage de volailles à Plumelec.")
	assert.Contains(t, text, "Arrêté préfectoral du 12 mars 2025.")

	assert.NotContains(t, text, "tracking")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "Accueil")
	assert.NotContains(t, text, "Mentions légales")
	assert.NotContains(t, text, "Liens utiles")
	assert.NotContains(t, text, "Préfecture du Morbihan", "header chrome is skipped")
}

func TestHTMLBlockBoundaries(t *testing.T) {
	t.Parallel()

	text, err := HTML([]byte("<p>un</p><p>deux</p>"))
	require.NoError(t, err)
	assert.Equal(t, "un\ndeux", text)
}

func TestHTMLCollapsesWhitespace(t *testing.T) {
	t.Parallel()

	text, err := HTML([]byte("<p>mot    \n\t  suivant</p>"))
	require.NoError(t, err)
	assert.Equal(t, "mot suivant", text)
}

func TestHTMLToleratesBrokenMarkup(t *testing.T) {
	t.Parallel()

	// x/net/html repairs rather than rejects.
	text, err := HTML([]byte("<div><p>ouvert mais jamais fermé"))
	require.NoError(t, err)
	assert.Contains(t, text, "ouvert mais jamais fermé")
}

func TestTitle(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Élevage de volailles - Les services de l'État", Title([]byte(noticePage)))
	assert.Equal(t, "", Title([]byte("<p>sans titre</p>")))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "abcdef", Truncate("abcdef", 0))

	// é is two bytes; cutting at 3 must not split it.
	s := "aaé"
	got := Truncate(s, 3)
	assert.Equal(t, "aa", got)
	assert.True(t, strings.HasPrefix(s, got))
}
