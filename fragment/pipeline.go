// Package fragment converts raw generator output into markup that is safe to
// splice into a live document.
//
// The pipeline runs in both directions. Outbound, the targeted markup is
// prepared for generation: subtrees a generator cannot faithfully reproduce
// (vector graphics) are swapped for minimal stable placeholders, and a
// markdown digest of the markup is produced for prompt context. Inbound, the
// generator's text is searched for a markup fragment, sanitised, the
// placeholders are substituted back, and leading non-structural noise is
// stripped.
//
// Everything here operates on strings and detached trees only; the live
// document is never touched by this package.
package fragment

import (
	"fmt"
	"log/slog"
	"regexp"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/sunmer/checkra/dom"
)

// placeholderAttr tags the stand-in element with the id used to find the
// original subtree again in generator output.
const placeholderAttr = "data-id"

// placeholderRe matches a placeholder element in generator output, tolerating
// self-closed and empty-element spellings.
var placeholderRe = regexp.MustCompile(`<svg[^>]*\bdata-id="([^"]*)"[^>]*?(?:/>|>\s*</svg>)`)

// Pipeline transforms markup between the live document and the generator.
// Placeholder state is scoped to one selection cycle: each call to
// PrepareForGeneration starts a fresh mapping. Not safe for concurrent use;
// the engine runs one cycle at a time.
type Pipeline struct {
	logger *slog.Logger

	placeholders map[string]string // placeholder id → original subtree markup
	nextID       int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		logger:       slog.Default(),
		placeholders: make(map[string]string),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// PrepareForGeneration scans markup for non-reproducible subtrees, replaces
// each with a stable placeholder, and returns the serialised result. The
// placeholder mapping recorded here lives until the next call. The output
// mirrors the shape of the input: a single rooted element stays single, a
// multi-node fragment stays multi-node.
func (p *Pipeline) PrepareForGeneration(markup string) (string, error) {
	p.placeholders = make(map[string]string)
	p.nextID = 0

	nodes, err := dom.ParseFragment(markup)
	if err != nil {
		return "", fmt.Errorf("fragment: prepare: %w", err)
	}

	for i, n := range nodes {
		if isNonReproducible(n) {
			nodes[i] = p.substitute(n)
			continue
		}
		p.substituteWithin(n)
	}

	return dom.RenderNodes(nodes), nil
}

// RestoreAfterGeneration finds placeholder occurrences by id and substitutes
// the recorded original subtree. A placeholder with no recorded mapping is
// left untouched, never dropped silently, and a warning is logged.
func (p *Pipeline) RestoreAfterGeneration(generated string) string {
	return placeholderRe.ReplaceAllStringFunc(generated, func(match string) string {
		sub := placeholderRe.FindStringSubmatch(match)
		id := sub[1]
		original, ok := p.placeholders[id]
		if !ok {
			p.logger.Warn("fragment: placeholder with no recorded mapping, leaving in place",
				"placeholder_id", id)
			return match
		}
		return original
	})
}

// substituteWithin walks n's subtree and swaps every non-reproducible child
// for a placeholder.
func (p *Pipeline) substituteWithin(root *html.Node) {
	for c := root.FirstChild; c != nil; {
		next := c.NextSibling
		if isNonReproducible(c) {
			ph := p.substitute(c)
			root.InsertBefore(ph, c)
			root.RemoveChild(c)
		} else {
			p.substituteWithin(c)
		}
		c = next
	}
}

// substitute records n's markup under a fresh placeholder id and returns the
// placeholder element. The caller is responsible for putting the placeholder
// where n was.
func (p *Pipeline) substitute(n *html.Node) *html.Node {
	id := fmt.Sprintf("p-%d", p.nextID)
	p.nextID++
	p.placeholders[id] = dom.RenderNode(n)
	return &html.Node{
		Type:     html.ElementNode,
		Data:     "svg",
		DataAtom: atom.Svg,
		Attr:     []html.Attribute{{Key: placeholderAttr, Val: id}},
	}
}

// isNonReproducible reports whether n is a subtree the generator cannot be
// trusted to regenerate faithfully.
func isNonReproducible(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if _, isPlaceholder := dom.Attr(n, placeholderAttr); isPlaceholder && n.DataAtom == atom.Svg {
		// Already a placeholder (e.g. prepare called twice on the same
		// markup); leave it alone.
		return false
	}
	return n.DataAtom == atom.Svg
}
