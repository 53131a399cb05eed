package parser

import (
	"strings"

	"golang.org/x/net/html"
)

// Query selects element nodes by tag and, optionally, by attribute.
//
// Attr == "" disables the attribute filter. With Attr set, the node must
// carry that attribute, and when Value is non-empty the attribute value must
// contain Value as a substring. Substring matching lets a single class name
// match a multi-class attribute such as class="a b c".
type Query struct {
	Tag   string
	Attr  string
	Value string
}

// Matches reports whether n satisfies the query.
func (q Query) Matches(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode || n.Data != q.Tag {
		return false
	}
	if q.Attr == "" {
		return true
	}
	val, ok := Attr(n, q.Attr)
	if !ok {
		return false
	}
	return q.Value == "" || strings.Contains(val, q.Value)
}

// FindAll walks the tree rooted at root in pre-order and returns every
// element matching q, in document order. The walk continues below a match,
// so nested matches are returned too. root itself is a candidate.
func FindAll(root *html.Node, q Query) []*html.Node {
	var results []*html.Node
	walk(root, q, &results)
	return results
}

// FindFirst returns the first match of q under root in document order, or
// nil.
func FindFirst(root *html.Node, q Query) *html.Node {
	if nodes := FindAll(root, q); len(nodes) > 0 {
		return nodes[0]
	}
	return nil
}

func walk(n *html.Node, q Query, results *[]*html.Node) {
	if n == nil {
		return
	}
	if q.Matches(n) {
		*results = append(*results, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, q, results)
	}
}

// Attr returns the value of the named attribute on n.
func Attr(n *html.Node, name string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// DirectText concatenates the text nodes that are immediate children of n.
// Text inside nested elements is ignored.
func DirectText(n *html.Node) string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

// FirstText returns the data of n's first child when that child is a text
// node, and "" otherwise.
func FirstText(n *html.Node) string {
	if n == nil || n.FirstChild == nil || n.FirstChild.Type != html.TextNode {
		return ""
	}
	return n.FirstChild.Data
}

// Children returns the element children of n whose tag is tag.
func Children(n *html.Node, tag string) []*html.Node {
	if n == nil {
		return nil
	}
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			out = append(out, c)
		}
	}
	return out
}
