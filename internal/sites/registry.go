// Package sites holds one extraction strategy per marketplace and the
// name-keyed registry the run orchestrator dispatches through.
package sites

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/IshaanNene/marketscrape/internal/types"
)

// ExtractFunc turns a parsed results page into listings. origin is the
// scheme and host of the site's base URL (e.g. "https://www.amazon.com.br")
// for strategies that have to absolutize relative links.
type ExtractFunc func(root *html.Node, origin string) []types.Listing

// URLFunc composes the search URL for a term from a site's base URL.
type URLFunc func(baseURL, term string) string

// Site binds a source name to its extractor and search URL rule.
type Site struct {
	Name      string
	Extract   ExtractFunc
	SearchURL URLFunc
}

// Names of the registered marketplaces, as used in configuration.
const (
	MercadoLivre = "Mercado Livre"
	Amazon       = "Amazon"
	OLX          = "OLX"
)

var registry = []Site{
	{Name: MercadoLivre, Extract: ExtractMercadoLivre, SearchURL: mercadoLivreURL},
	{Name: OLX, Extract: ExtractOLX, SearchURL: olxURL},
	{Name: Amazon, Extract: ExtractAmazon, SearchURL: amazonURL},
}

// Lookup returns the site registered under name.
func Lookup(name string) (Site, bool) {
	for _, s := range registry {
		if s.Name == name {
			return s, true
		}
	}
	return Site{}, false
}

// Names returns the registered site names in registration order.
func Names() []string {
	names := make([]string, len(registry))
	for i, s := range registry {
		names[i] = s.Name
	}
	return names
}

// Origin returns scheme://host of rawURL, or "" when it does not parse.
func Origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// BuildURL returns the URL to fetch for a site. An empty term fetches the
// base URL as configured.
func (s Site) BuildURL(baseURL, term string) string {
	term = strings.TrimSpace(term)
	if term == "" || s.SearchURL == nil {
		return baseURL
	}
	return s.SearchURL(baseURL, term)
}

// mercadoLivreURL appends the term as a path segment, words joined by '-'.
func mercadoLivreURL(baseURL, term string) string {
	return baseURL + url.PathEscape(strings.ReplaceAll(term, " ", "-"))
}

func olxURL(baseURL, term string) string {
	return baseURL + "?q=" + url.QueryEscape(term)
}

func amazonURL(baseURL, term string) string {
	return baseURL + "?k=" + url.QueryEscape(term)
}

// clean trims the whitespace the markup leaves around text nodes.
func clean(s string) string {
	return strings.TrimSpace(s)
}
