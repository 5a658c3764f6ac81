package pageload

import (
	"bytes"
	"strings"
)

// spaShells are markers of client-rendered pages whose HTTP body is an
// empty mount point.
var spaShells = []string{
	`<div id="root"></div>`,
	`<div id="app"></div>`,
	`<div id="__next"></div>`,
	`<noscript>you need to enable javascript`,
	`<noscript>enable javascript`,
}

// IsSufficient reports whether an HTTP body carries enough visible text,
// relative to markup, to patch without rendering it in a browser first.
func IsSufficient(html []byte) bool {
	if len(html) < 256 {
		return false
	}

	text, markup := textMarkupRatio(html)
	total := text + markup
	if total == 0 {
		return false
	}

	// Under 10% text it is almost certainly a script shell; under 200
	// visible characters there is nothing worth patching either way.
	if float64(text)/float64(total) < 0.10 || text < 200 {
		return false
	}

	lower := bytes.ToLower(html)
	for _, shell := range spaShells {
		if bytes.Contains(lower, []byte(shell)) {
			return false
		}
	}
	return true
}

// textMarkupRatio approximates the byte split between visible text and
// markup. Script and style bodies count as markup.
func textMarkupRatio(html []byte) (text, markup int) {
	s := string(html)
	inTag := false

	for i := 0; i < len(s); {
		ch := s[i]
		switch {
		case ch == '<':
			rest := strings.ToLower(s[i:])
			if strings.HasPrefix(rest, "<script") {
				i = skipRawText(s, i, "</script", &markup)
				continue
			}
			if strings.HasPrefix(rest, "<style") {
				i = skipRawText(s, i, "</style", &markup)
				continue
			}
			inTag = true
			markup++
			i++
		case ch == '>':
			inTag = false
			markup++
			i++
		case inTag:
			markup++
			i++
		default:
			if ch != ' ' && ch != '\t' && ch != '\n' && ch != '\r' {
				text++
			}
			i++
		}
	}
	return text, markup
}

// skipRawText advances past a raw-text element (script/style) starting at i,
// counting everything up to and including its close tag as markup. Returns
// the new position, or len(s) if the element never closes.
func skipRawText(s string, i int, closeTag string, markup *int) int {
	idx := strings.Index(strings.ToLower(s[i:]), closeTag)
	if idx == -1 {
		*markup += len(s) - i
		return len(s)
	}
	end := i + idx + len(closeTag)
	if gt := strings.IndexByte(s[end:], '>'); gt >= 0 {
		end += gt + 1
	}
	*markup += end - i
	return end
}
