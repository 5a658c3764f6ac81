package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// PathSelector builds a stable CSS-ish selector for an attached element:
// the nearest ancestor with an id anchors the path, and each step below it
// is tag:nth-of-type. Consumers treat the result as an opaque string; two
// calls on the same unmoved node return the same value.
func PathSelector(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	var parts []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if id, _ := Attr(cur, "id"); id != "" {
			parts = append(parts, "#"+id)
			break
		}
		parts = append(parts, fmt.Sprintf("%s:nth-of-type(%d)", cur.Data, nthOfType(cur)))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ">")
}

func nthOfType(n *html.Node) int {
	nth := 1
	for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == html.ElementNode && sib.Data == n.Data {
			nth++
		}
	}
	return nth
}
