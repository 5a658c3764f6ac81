package dom

import (
	"testing"
)

func TestRegionInsertBeforeBracketsAnchor(t *testing.T) {
	doc := parseDoc(t, `<p id="a">one</p><p id="b">two</p>`)
	body := FindBody(doc)
	anchor := body.FirstChild

	r := NewRegion("fix-1")
	if err := r.InsertBefore(anchor); err != nil {
		t.Fatal(err)
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	got := RenderChildren(body)
	want := `<!--checkra:start:fix-1--><!--checkra:end:fix-1--><p id="a">one</p><p id="b">two</p>`
	if got != want {
		t.Errorf("tree: got %q, want %q", got, want)
	}
}

func TestRegionInsertAfterLastChild(t *testing.T) {
	doc := parseDoc(t, `<p id="a">one</p>`)
	body := FindBody(doc)

	r := NewRegion("fix-1")
	if err := r.InsertAfter(body.FirstChild); err != nil {
		t.Fatal(err)
	}

	got := RenderChildren(body)
	want := `<p id="a">one</p><!--checkra:start:fix-1--><!--checkra:end:fix-1-->`
	if got != want {
		t.Errorf("tree: got %q, want %q", got, want)
	}
}

func TestRegionAppendAndContents(t *testing.T) {
	doc := parseDoc(t, `<p id="a">one</p>`)
	body := FindBody(doc)

	r := NewRegion("fix-1")
	r.InsertBefore(body.FirstChild)

	nodes, _ := ParseFragment(`<div>new</div>trailing`)
	if err := r.AppendNodes(nodes); err != nil {
		t.Fatal(err)
	}

	if got := RenderNodes(r.Contents()); got != `<div>new</div>trailing` {
		t.Errorf("contents: got %q", got)
	}
	if fs := r.FirstStructural(); fs == nil || fs.Data != "div" {
		t.Errorf("first structural: got %v", fs)
	}
}

func TestRegionReplaceContentsRoundTrip(t *testing.T) {
	doc := parseDoc(t, `<p>anchor</p>`)
	body := FindBody(doc)

	r := NewRegion("fix-1")
	r.InsertBefore(body.FirstChild)

	first, _ := ParseFragment(`<div class="v1">a</div>`)
	second, _ := ParseFragment(`<span class="v2">b</span>`)

	r.AppendNodes(first)
	before := RenderNodes(r.Contents())

	if err := r.ReplaceContents(second); err != nil {
		t.Fatal(err)
	}
	restored, _ := ParseFragment(before)
	if err := r.ReplaceContents(restored); err != nil {
		t.Fatal(err)
	}

	if got := RenderNodes(r.Contents()); got != before {
		t.Errorf("double swap: got %q, want %q", got, before)
	}
}

func TestRegionRemoveLeavesTreeClean(t *testing.T) {
	doc := parseDoc(t, `<p id="a">one</p>`)
	body := FindBody(doc)
	original := RenderChildren(body)

	r := NewRegion("fix-1")
	r.InsertBefore(body.FirstChild)
	nodes, _ := ParseFragment(`<div>gone</div>`)
	r.AppendNodes(nodes)

	r.Remove()

	if got := RenderChildren(body); got != original {
		t.Errorf("after remove: got %q, want %q", got, original)
	}
	if r.Attached() {
		t.Error("markers still attached after remove")
	}
}

func TestRegionUnwrapKeepsContents(t *testing.T) {
	doc := parseDoc(t, `<p>anchor</p>`)
	body := FindBody(doc)

	r := NewRegion("fix-1")
	r.InsertBefore(body.FirstChild)
	nodes, _ := ParseFragment(`<div>stay</div>`)
	r.AppendNodes(nodes)

	r.Unwrap()

	got := RenderChildren(body)
	if got != `<div>stay</div><p>anchor</p>` {
		t.Errorf("after unwrap: got %q", got)
	}
}

func TestRegionWrapChildren(t *testing.T) {
	doc := parseDoc(t, `<p>a</p><p>b</p>`)
	body := FindBody(doc)

	r := NewRegion("doc")
	r.WrapChildren(body)

	got := RenderChildren(body)
	want := `<!--checkra:start:doc--><p>a</p><p>b</p><!--checkra:end:doc-->`
	if got != want {
		t.Errorf("tree: got %q, want %q", got, want)
	}
	if got := RenderNodes(r.Contents()); got != `<p>a</p><p>b</p>` {
		t.Errorf("contents: got %q", got)
	}
}

func TestRegionValidateDetectsInterleaving(t *testing.T) {
	doc := parseDoc(t, `<p>a</p>`)
	body := FindBody(doc)

	r1 := NewRegion("fix-1")
	r1.InsertBefore(body.FirstChild)

	// Move r1's end marker before its start marker.
	Detach(r1.End)
	body.InsertBefore(r1.End, r1.Start)

	if err := r1.Validate(); err != ErrRegionInvalid {
		t.Errorf("validate: got %v, want ErrRegionInvalid", err)
	}
}

func TestMarkerOwner(t *testing.T) {
	r := NewRegion("fix-42")
	if !IsMarker(r.Start) || !IsMarker(r.End) {
		t.Fatal("markers not recognised")
	}
	if got := MarkerOwner(r.Start); got != "fix-42" {
		t.Errorf("owner: got %q", got)
	}
	if got := MarkerOwner(r.End); got != "fix-42" {
		t.Errorf("owner: got %q", got)
	}
	nodes, _ := ParseFragment("<!-- plain comment -->")
	if IsMarker(nodes[0]) {
		t.Error("plain comment mistaken for marker")
	}
}
