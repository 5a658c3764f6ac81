package fragment

import (
	"regexp"
	"strings"

	"github.com/sunmer/checkra/dom"
)

// Extraction is the outcome of pulling a markup fragment out of generator
// text. When Found is false the whole response was prose: Fragment is empty
// and Analysis holds the entire input.
type Extraction struct {
	Fragment string
	Analysis string
	Found    bool
}

var (
	// fixHeadingRe matches a markdown heading announcing the fixed markup
	// ("## Fixed HTML", "### The fix", ...). The fence right after such a
	// heading wins over any earlier fence.
	fixHeadingRe = regexp.MustCompile(`(?mi)^#{1,6}[^\n]*\bfix(?:ed)?\b[^\n]*$`)

	// fenceRe matches a fenced code block and captures its body.
	fenceRe = regexp.MustCompile("(?s)```[a-zA-Z0-9]*[ \t]*\r?\n(.*?)```")

	// tagStartRe finds the first thing that looks like an opening tag.
	tagStartRe = regexp.MustCompile(`<[a-zA-Z]`)
)

// ExtractFragment locates the markup fragment inside free-form generator
// text. Search order: a fenced block under a fix heading, then any fenced
// block, then the first recognisable tag onward. Whatever precedes the
// detected region is treated as analysis prose. The candidate is sanitised,
// placeholders are restored, and leading non-structural nodes are stripped;
// a candidate with zero structural nodes is a miss, not an error.
func (p *Pipeline) ExtractFragment(responseText string) Extraction {
	candidate, analysis, ok := locateFragment(responseText)
	if !ok {
		return Extraction{Analysis: responseText}
	}

	final, ok := p.finalize(candidate)
	if !ok {
		return Extraction{Analysis: responseText}
	}
	return Extraction{
		Fragment: final,
		Analysis: strings.TrimSpace(analysis),
		Found:    true,
	}
}

// ProcessDirectFragment is the lighter-weight inbound path for structured
// replace operations, where the caller already knows the value is markup
// rather than free text. Leading non-markup characters are trimmed up to the
// first tag, then the same restore/sanitise/strip treatment as
// ExtractFragment applies. Returns "" when no structural content remains.
func (p *Pipeline) ProcessDirectFragment(markup string) string {
	loc := tagStartRe.FindStringIndex(markup)
	if loc == nil {
		return ""
	}
	final, ok := p.finalize(markup[loc[0]:])
	if !ok {
		return ""
	}
	return final
}

// locateFragment finds the candidate markup region and the prose before it.
func locateFragment(text string) (candidate, analysis string, ok bool) {
	// Fence under a fix heading first.
	if h := fixHeadingRe.FindStringIndex(text); h != nil {
		if f := fenceRe.FindStringSubmatchIndex(text[h[1]:]); f != nil {
			return text[h[1]:][f[2]:f[3]], text[:h[0]], true
		}
	}

	// Then any fence.
	if f := fenceRe.FindStringSubmatchIndex(text); f != nil {
		return text[f[2]:f[3]], text[:f[0]], true
	}

	// No fence: first recognisable tag onward.
	if loc := tagStartRe.FindStringIndex(text); loc != nil {
		return text[loc[0]:], text[:loc[0]], true
	}

	return "", "", false
}

// finalize runs the inbound post-processing common to both extraction paths:
// sanitise the raw candidate, substitute recorded placeholder subtrees back
// (after sanitisation, so restored originals are preserved byte for byte),
// drop leading noise, and re-serialise. ok is false when nothing structural
// survives.
func (p *Pipeline) finalize(candidate string) (string, bool) {
	clean := Sanitize(strings.TrimSpace(candidate))
	restored := p.RestoreAfterGeneration(clean)

	nodes, err := dom.ParseFragment(restored)
	if err != nil {
		p.logger.Warn("fragment: candidate did not parse", "error", err)
		return "", false
	}
	nodes = dom.StripLeadingNoise(nodes)
	if dom.FirstStructural(nodes) == nil {
		return "", false
	}
	return dom.RenderNodes(nodes), true
}
