// Package parser builds document trees from fetched HTML and answers
// tag/attribute queries against them.
package parser

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Parse reads HTML from r and returns the document root. The HTML5
// algorithm recovers from malformed markup, so a broken page yields a
// partial tree rather than an error; errors only come from r itself.
func Parse(r io.Reader) (*html.Node, error) {
	return html.Parse(r)
}

// ParseString is Parse for an in-memory page.
func ParseString(s string) (*html.Node, error) {
	return html.Parse(strings.NewReader(s))
}
