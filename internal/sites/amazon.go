package sites

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/IshaanNene/marketscrape/internal/parser"
	"github.com/IshaanNene/marketscrape/internal/types"
)

var (
	amzCard  = parser.Query{Tag: "div", Attr: "data-component-type", Value: "s-search-result"}
	amzTitle = parser.Query{Tag: "h2", Attr: "class", Value: "a-size-base-plus"}
	amzLink  = parser.Query{Tag: "a", Attr: "class", Value: "a-link-normal"}
	amzPrice = parser.Query{Tag: "span", Attr: "class", Value: "a-offscreen"}
)

// reviewMarkers appear in rating spans that share the title heading's
// markup ("4,5 de 5 estrelas, 1.234 avaliações").
var reviewMarkers = []string{"avaliação", "avaliações"}

// ExtractAmazon reads Amazon search results. Cards without a title are
// dropped.
func ExtractAmazon(root *html.Node, origin string) []types.Listing {
	var listings []types.Listing

	for _, card := range parser.FindAll(root, amzCard) {
		l := types.Listing{Title: amazonTitle(card)}
		if l.Title == "" {
			continue
		}

		for _, a := range parser.FindAll(card, amzLink) {
			if href, ok := parser.Attr(a, "href"); ok {
				l.URL = absolutize(origin, href)
				break
			}
		}

		l.Price = amazonPrice(card)
		listings = append(listings, l)
	}

	return listings
}

// amazonTitle returns the first span directly under a title heading whose
// leading text is not a review counter.
func amazonTitle(card *html.Node) string {
	for _, h2 := range parser.FindAll(card, amzTitle) {
		for _, span := range parser.Children(h2, "span") {
			text := clean(parser.FirstText(span))
			if text != "" && !isReviewCount(text) {
				return text
			}
		}
	}
	return ""
}

func isReviewCount(text string) bool {
	for _, m := range reviewMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

func amazonPrice(card *html.Node) string {
	for _, span := range parser.FindAll(card, amzPrice) {
		if span.FirstChild == nil || span.FirstChild.Type != html.TextNode {
			continue
		}
		// prices are rendered as "R$\u00a0199,90"
		return strings.ReplaceAll(clean(span.FirstChild.Data), "\u00a0", " ")
	}
	return ""
}

// absolutize resolves href against origin. Absolute and protocol-relative
// hrefs keep their own host.
func absolutize(origin, href string) string {
	if origin == "" {
		return href
	}
	base, err := url.Parse(origin)
	if err != nil {
		return href
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
