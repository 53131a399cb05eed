package sites

import (
	"golang.org/x/net/html"

	"github.com/IshaanNene/marketscrape/internal/parser"
	"github.com/IshaanNene/marketscrape/internal/types"
)

var (
	olxCard  = parser.Query{Tag: "li", Attr: "data-testid", Value: "ad-list-item"}
	olxLink  = parser.Query{Tag: "a"}
	olxTitle = parser.Query{Tag: "h2", Attr: "class", Value: "olx-ad-card__title"}
	olxPrice = parser.Query{Tag: "h3", Attr: "class", Value: "olx-ad-card__price"}
)

// ExtractOLX reads OLX ad cards. Only ads with both a title and a price are
// kept.
func ExtractOLX(root *html.Node, _ string) []types.Listing {
	var listings []types.Listing

	for _, card := range parser.FindAll(root, olxCard) {
		var l types.Listing

		if a := parser.FindFirst(card, olxLink); a != nil {
			l.URL, _ = parser.Attr(a, "href")
		}
		l.Title = clean(parser.FirstText(parser.FindFirst(card, olxTitle)))
		l.Price = clean(parser.FirstText(parser.FindFirst(card, olxPrice)))

		if l.Title != "" && l.Price != "" {
			listings = append(listings, l)
		}
	}

	return listings
}
