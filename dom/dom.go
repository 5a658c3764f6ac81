// Package dom provides the small tree vocabulary the patch engine is built
// on: fragment parsing and rendering over golang.org/x/net/html, structural
// node classification, and the marker-bracketed Region type that gives every
// applied patch a stable identity inside a live, externally-mutable tree.
package dom

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseFragment parses markup in body context and returns the resulting
// top-level nodes, detached from any document.
func ParseFragment(markup string) ([]*html.Node, error) {
	body := &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), body)
	if err != nil {
		return nil, fmt.Errorf("dom: parse fragment: %w", err)
	}
	for _, n := range nodes {
		n.Parent = nil
		n.PrevSibling = nil
		n.NextSibling = nil
	}
	return nodes, nil
}

// RenderNode serialises a node subtree back to a string.
func RenderNode(n *html.Node) string {
	var buf bytes.Buffer
	html.Render(&buf, n)
	return buf.String()
}

// RenderNodes serialises a node list in order.
func RenderNodes(nodes []*html.Node) string {
	var buf bytes.Buffer
	for _, n := range nodes {
		html.Render(&buf, n)
	}
	return buf.String()
}

// RenderChildren serialises the children of n in order, without n itself.
func RenderChildren(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		html.Render(&buf, c)
	}
	return buf.String()
}

// IsStructural reports whether n is an element node. Marker comments, text
// and other non-element nodes never count as structural content.
func IsStructural(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

// FirstStructural returns the first element node in nodes, or nil.
func FirstStructural(nodes []*html.Node) *html.Node {
	for _, n := range nodes {
		if IsStructural(n) {
			return n
		}
	}
	return nil
}

// StripLeadingNoise drops leading non-structural nodes (whitespace text,
// comments, stray prose) so the resulting list starts at the first element.
// Everything from the first element onward is kept unchanged.
func StripLeadingNoise(nodes []*html.Node) []*html.Node {
	for i, n := range nodes {
		if IsStructural(n) {
			return nodes[i:]
		}
	}
	return nil
}

// IsAttached reports whether n is still reachable from root by walking
// parents. A node that has been removed from the tree is not attached.
func IsAttached(n, root *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

// Detach removes n from its parent. No-op for already-detached nodes.
func Detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// FindBody returns the <body> element of a parsed document, or nil.
func FindBody(doc *html.Node) *html.Node {
	var body *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if body != nil {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Body {
			body = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return body
}

// Walk visits every node in the subtree rooted at n in document order.
// Returning false from fn stops descent into that node's children.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, fn)
	}
}

// Attr returns the value of the named attribute and whether it exists.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or replaces the named attribute.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes the named attribute if present.
func RemoveAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}
