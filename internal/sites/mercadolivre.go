package sites

import (
	"golang.org/x/net/html"

	"github.com/IshaanNene/marketscrape/internal/parser"
	"github.com/IshaanNene/marketscrape/internal/types"
)

var (
	mlCard  = parser.Query{Tag: "h3", Attr: "class", Value: "poly-component__title-wrapper"}
	mlLink  = parser.Query{Tag: "a", Attr: "class", Value: "poly-component__title"}
	mlPrice = parser.Query{Tag: "span", Attr: "class", Value: "andes-money-amount__fraction"}
)

// ExtractMercadoLivre reads Mercado Livre result cards. Each card is the
// title heading; the price lives in a sibling subtree, so it is searched
// under the heading's parent.
//
// The parent lookup depends on the current poly-card nesting. If the price
// ever moves one level further out, every listing silently loses its price.
//
// A card without a title link still yields a listing with "N/A" title and
// URL, so the gap shows up in the output instead of vanishing.
func ExtractMercadoLivre(root *html.Node, _ string) []types.Listing {
	var listings []types.Listing

	for _, card := range parser.FindAll(root, mlCard) {
		var l types.Listing

		if link := parser.FindFirst(card, mlLink); link != nil {
			l.Title = clean(parser.DirectText(link))
			if href, ok := parser.Attr(link, "href"); ok {
				l.URL = href
			} else {
				l.URL = types.NotAvailable
			}
		} else {
			l.Title = types.NotAvailable
			l.URL = types.NotAvailable
		}

		scope := card.Parent
		if scope == nil {
			scope = card
		}
		if price := parser.FindFirst(scope, mlPrice); price != nil {
			l.Price = clean(parser.DirectText(price))
		}

		if l.Useful() {
			listings = append(listings, l)
		}
	}

	return listings
}
