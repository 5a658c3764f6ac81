package fragment

import (
	"github.com/microcosm-cc/bluemonday"
)

// sanitizePolicy accepts the layout and content markup a generator is
// allowed to produce while stripping anything executable: scripts, inline
// event handlers, javascript: URLs. Placeholder elements and restored vector
// graphics containers must survive, so the svg element family is allowed
// alongside the usual content tags.
var sanitizePolicy = newPolicy()

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()

	p.AllowAttrs("class", "id", "style", "title", "role").Globally()
	p.AllowDataAttributes()

	// Core document structure. Most of this is already in the UGC set;
	// listed explicitly so the contract does not depend on policy defaults.
	p.AllowElements(
		"div", "span", "section", "article", "main", "header", "footer",
		"nav", "aside", "p", "h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "li", "a", "img", "figure", "figcaption",
		"blockquote", "pre", "code", "em", "strong", "small", "br", "hr",
		"table", "thead", "tbody", "tfoot", "tr", "td", "th", "picture", "source",
	)

	// Vector graphics: placeholders are <svg data-id="..."> and restored
	// subtrees carry the full element family.
	p.AllowElements(
		"svg", "g", "path", "circle", "ellipse", "rect", "line",
		"polyline", "polygon", "defs", "use", "symbol", "text", "tspan",
		"lineargradient", "radialgradient", "stop", "clippath", "mask",
	)
	p.AllowAttrs(
		"viewbox", "xmlns", "width", "height", "fill", "stroke",
		"stroke-width", "stroke-linecap", "stroke-linejoin", "d", "cx",
		"cy", "r", "rx", "ry", "x", "y", "x1", "y1", "x2", "y2",
		"points", "transform", "opacity", "offset", "stop-color",
		"gradientunits", "href", "clip-path", "preserveaspectratio",
	).OnElements(
		"svg", "g", "path", "circle", "ellipse", "rect", "line",
		"polyline", "polygon", "defs", "use", "symbol", "text", "tspan",
		"lineargradient", "radialgradient", "stop", "clippath", "mask",
	)

	// Form chrome generators commonly emit.
	p.AllowElements("button", "label", "form", "input", "select", "option", "textarea")
	p.AllowAttrs("type", "name", "value", "placeholder", "for", "disabled", "checked", "selected").
		OnElements("button", "label", "input", "select", "option", "textarea")

	return p
}

// Sanitize scrubs generator-produced markup before it goes anywhere near the
// live tree. Structure and styling pass through; script vectors do not.
func Sanitize(markup string) string {
	return sanitizePolicy.Sanitize(markup)
}
