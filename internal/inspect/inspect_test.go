package inspect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/marketscrape/internal/sites"
	"github.com/IshaanNene/marketscrape/internal/types"
)

const savedPage = `<html><body>
<ul>
<li data-testid="ad-list-item"><a href="/item/1#fotos">x</a>
  <h2 class="olx-ad-card__title">Bicicleta</h2><h3 class="olx-ad-card__price">R$ 850</h3></li>
<li data-testid="ad-list-item"><a href="https://sp.olx.com.br/item/2">y</a>
  <h2 class="olx-ad-card__title">Patinete</h2><h3 class="olx-ad-card__price">R$ 300</h3></li>
</ul>
<a href="/item/1">dup</a><a href="mailto:a@b.c">mail</a><a href="#top">top</a>
</body></html>`

func TestSelect(t *testing.T) {
	got, err := Select(savedPage, Rule{Selector: "h2.olx-ad-card__title"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bicicleta", "Patinete"}, got)

	got, err = Select(savedPage, Rule{Selector: `li[data-testid="ad-list-item"] a`, Attribute: "href"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/item/1#fotos", "https://sp.olx.com.br/item/2"}, got)

	got, err = Select(savedPage, Rule{Selector: "h3", Attribute: "outerHTML"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, `<h3 class="olx-ad-card__price">R$ 850</h3>`, got[0])
}

func TestSelectInvalidSelector(t *testing.T) {
	_, err := Select(savedPage, Rule{Selector: "h2[[["})
	assert.Error(t, err)
}

func TestXPath(t *testing.T) {
	got, err := XPath(savedPage, Rule{Selector: `//h3[contains(@class,"olx-ad-card__price")]`})
	require.NoError(t, err)
	assert.Equal(t, []string{"R$ 850", "R$ 300"}, got)

	got, err = XPath(savedPage, Rule{Selector: `//li[@data-testid="ad-list-item"]/a`, Attribute: "href"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = XPath(savedPage, Rule{Selector: "//h3[@class="})
	assert.Error(t, err)
}

func TestExtract(t *testing.T) {
	got, err := Extract(sites.OLX, savedPage, "https://www.olx.com.br")
	require.NoError(t, err)
	assert.Equal(t, []types.Listing{
		{Title: "Bicicleta", Price: "R$ 850", URL: "/item/1#fotos"},
		{Title: "Patinete", Price: "R$ 300", URL: "https://sp.olx.com.br/item/2"},
	}, got)

	_, err = Extract("Foo", savedPage, "")
	assert.ErrorIs(t, err, types.ErrUnknownSite)
}

func TestLinks(t *testing.T) {
	got, err := Links(savedPage, "https://www.olx.com.br/brasil")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.olx.com.br/item/1",
		"https://sp.olx.com.br/item/2",
	}, got)
}

func TestLoadPage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "olx_debug_page.html")
	require.NoError(t, os.WriteFile(path, []byte(savedPage), 0o644))

	page, err := LoadPage(path)
	require.NoError(t, err)
	assert.Equal(t, savedPage, page)

	_, err = LoadPage(filepath.Join(t.TempDir(), "missing.html"))
	assert.Error(t, err)
}
