package dom

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func TestPathSelectorAnchorsOnID(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(
		`<html><body><div id="main"><p>one</p><p>two</p></div></body></html>`))
	if err != nil {
		t.Fatal(err)
	}

	var second *html.Node
	Walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "p" {
			second = n // last p wins
		}
		return true
	})

	sel := PathSelector(second)
	if sel != "#main>p:nth-of-type(2)" {
		t.Fatalf("selector = %q", sel)
	}
	if again := PathSelector(second); again != sel {
		t.Fatalf("selector not stable: %q vs %q", again, sel)
	}
}

func TestPathSelectorWithoutIDsUsesFullPath(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(
		`<html><body><section><p>x</p></section></body></html>`))
	if err != nil {
		t.Fatal(err)
	}

	var p *html.Node
	Walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "p" {
			p = n
			return false
		}
		return true
	})

	sel := PathSelector(p)
	if !strings.HasPrefix(sel, "html:nth-of-type(1)>body:nth-of-type(1)>") ||
		!strings.HasSuffix(sel, "p:nth-of-type(1)") {
		t.Fatalf("selector = %q", sel)
	}
	if PathSelector(nil) != "" {
		t.Fatal("nil node should yield empty selector")
	}
}
