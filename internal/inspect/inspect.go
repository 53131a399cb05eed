// Package inspect re-analyses saved result pages offline, so a site's
// markup can be studied with CSS or XPath selectors, or run through an
// extractor again, without fetching it.
package inspect

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"

	"github.com/IshaanNene/marketscrape/internal/parser"
	"github.com/IshaanNene/marketscrape/internal/sites"
	"github.com/IshaanNene/marketscrape/internal/types"
)

// Rule picks values out of a page. Attribute chooses what is read from each
// matched element: "" or "text" for its trimmed text, "html" for its inner
// HTML, "outerHTML" for the element itself, anything else for that
// attribute's value.
type Rule struct {
	Selector  string
	Attribute string
}

// LoadPage reads a saved page from disk.
func LoadPage(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read page: %w", err)
	}
	return string(data), nil
}

// Select applies a CSS selector with goquery.
func Select(page string, rule Rule) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, &types.ParseError{Err: err}
	}

	matcher, err := cascadia.Compile(rule.Selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", rule.Selector, err)
	}

	var values []string
	doc.FindMatcher(matcher).Each(func(i int, sel *goquery.Selection) {
		var val string
		switch rule.Attribute {
		case "", "text":
			val = strings.TrimSpace(sel.Text())
		case "html", "innerHTML":
			val, _ = sel.Html()
		case "outerHTML":
			val, _ = goquery.OuterHtml(sel)
		default:
			val, _ = sel.Attr(rule.Attribute)
		}
		if val != "" {
			values = append(values, val)
		}
	})
	return values, nil
}

// XPath evaluates an XPath expression with htmlquery.
func XPath(page string, rule Rule) ([]string, error) {
	doc, err := htmlquery.Parse(strings.NewReader(page))
	if err != nil {
		return nil, &types.ParseError{Err: err}
	}

	nodes, err := htmlquery.QueryAll(doc, rule.Selector)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", rule.Selector, err)
	}

	var values []string
	for _, node := range nodes {
		var val string
		switch rule.Attribute {
		case "", "text":
			val = strings.TrimSpace(htmlquery.InnerText(node))
		case "html", "innerHTML":
			val = htmlquery.OutputHTML(node, false)
		case "outerHTML":
			val = htmlquery.OutputHTML(node, true)
		default:
			val = htmlquery.SelectAttr(node, rule.Attribute)
		}
		if val != "" {
			values = append(values, val)
		}
	}
	return values, nil
}

// Extract runs the registered extractor for site against a saved page.
// origin absolutizes relative links the way a live run would.
func Extract(site, page, origin string) ([]types.Listing, error) {
	s, ok := sites.Lookup(site)
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownSite, site)
	}
	root, err := parser.ParseString(page)
	if err != nil {
		return nil, &types.ParseError{Site: site, Err: err}
	}
	return s.Extract(root, origin), nil
}

// Links lists the distinct http(s) links of a page, resolved against base
// and stripped of fragments, in document order.
func Links(page, base string) ([]string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, &types.ParseError{URL: base, Err: err}
	}

	seen := make(map[string]bool)
	var links []string

	doc.Find("a[href]").Each(func(i int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" ||
			strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") ||
			strings.HasPrefix(href, "mailto:") {
			return
		}

		parsed, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := baseURL.ResolveReference(parsed)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		resolved.Fragment = ""

		abs := resolved.String()
		if !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
	})

	return links, nil
}
