package selection

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/sunmer/checkra/dom"
)

// defaultBackground is assumed when no ancestor declares a colour.
const defaultBackground = "#ffffff"

var backgroundRe = regexp.MustCompile(`(?i)background(?:-color)?\s*:\s*([^;]+)`)

// resolveBackground walks from the target up through its ancestors looking
// for an inline background declaration, falling back to the legacy bgcolor
// attribute, and finally to white. Stylesheet-computed colours are not
// visible in a serialised tree, so inline styles are the best available
// sample.
func (m *Manager) resolveBackground(target *html.Node) string {
	start := target
	if start == nil {
		start = m.body
	}
	for n := start; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if style, ok := dom.Attr(n, "style"); ok {
			if sub := backgroundRe.FindStringSubmatch(style); sub != nil {
				if c := strings.TrimSpace(sub[1]); c != "" && !strings.EqualFold(c, "transparent") {
					return c
				}
			}
		}
		if c, ok := dom.Attr(n, "bgcolor"); ok && c != "" {
			return c
		}
	}
	return defaultBackground
}
