package patch

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/sunmer/checkra/dom"
	"github.com/sunmer/checkra/selection"
)

func parseDoc(t *testing.T, bodyMarkup string) (*html.Node, *html.Node) {
	t.Helper()
	doc, err := html.Parse(strings.NewReader("<html><head></head><body>" + bodyMarkup + "</body></html>"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	body := dom.FindBody(doc)
	if body == nil {
		t.Fatal("no body")
	}
	return doc, body
}

func findByID(root *html.Node, id string) *html.Node {
	var found *html.Node
	dom.Walk(root, func(n *html.Node) bool {
		if v, _ := dom.Attr(n, "id"); n.Type == html.ElementNode && v == id {
			found = n
			return false
		}
		return true
	})
	return found
}

func replaceContext(target *html.Node) *selection.Context {
	id, _ := dom.Attr(target, "id")
	return &selection.Context{
		TargetNode:     target,
		Mode:           selection.ModeReplace,
		OriginalMarkup: dom.RenderNode(target),
		StableSelector: "#" + id,
	}
}

// fakeControls records the notifications the applier sends.
type fakeControls struct {
	shown   []string
	hidden  []string
	toggled []string
}

func (f *fakeControls) ShowControls(rec *Record) { f.shown = append(f.shown, rec.ID) }

func (f *fakeControls) HideControls(id string) { f.hidden = append(f.hidden, id) }

func (f *fakeControls) UpdateToggleVisuals(id string, _ bool) {
	f.toggled = append(f.toggled, id)
}

func TestApplyReplaceSwapsTarget(t *testing.T) {
	doc, body := parseDoc(t, `<p id="a">old text</p>`)
	controls := &fakeControls{}
	ap := NewApplier(doc, NewStore(), controls)

	ctx := replaceContext(findByID(body, "a"))
	rec, err := ap.Apply(ctx, `<p id="a">new text</p>`, "fix_1", nil, "")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	got := dom.RenderChildren(body)
	if !strings.Contains(got, "new text") || strings.Contains(got, "old text") {
		t.Fatalf("replace did not swap content: %q", got)
	}
	if !strings.Contains(got, "checkra:start:fix_1") || !strings.Contains(got, "checkra:end:fix_1") {
		t.Fatalf("markers missing: %q", got)
	}
	if !rec.CurrentlyFixed {
		t.Fatal("record should start in fixed state")
	}
	if rec.AppliedNode == nil || rec.AppliedNode.Data != "p" {
		t.Fatalf("applied node = %+v", rec.AppliedNode)
	}
	if len(controls.shown) != 1 || controls.shown[0] != "fix_1" {
		t.Fatalf("controls not shown: %v", controls.shown)
	}
}

func TestCloseReplaceRestoresOriginalBytes(t *testing.T) {
	doc, body := parseDoc(t, `<div id="wrap"><p id="a">old</p><p id="b">kept</p></div>`)
	before := dom.RenderChildren(body)
	ap := NewApplier(doc, NewStore(), nil)

	ctx := replaceContext(findByID(body, "a"))
	if _, err := ap.Apply(ctx, `<p>new</p>`, "fix_1", nil, ""); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := ap.Close("fix_1"); err != nil {
		t.Fatalf("close: %v", err)
	}

	after := dom.RenderChildren(body)
	if after != before {
		t.Fatalf("close not byte-identical:\n before %q\n after  %q", before, after)
	}
	if strings.Contains(after, "checkra:") {
		t.Fatalf("markers survived close: %q", after)
	}
}

func TestCloseInsertModeRemovesFragmentOnly(t *testing.T) {
	doc, body := parseDoc(t, `<p id="a">anchor</p>`)
	before := dom.RenderChildren(body)
	ap := NewApplier(doc, NewStore(), nil)

	anchor := findByID(body, "a")
	ctx := &selection.Context{
		TargetNode:     anchor,
		Mode:           selection.ModeInsertAfter,
		OriginalMarkup: dom.RenderNode(anchor),
	}
	if _, err := ap.Apply(ctx, `<aside>note</aside>`, "fix_1", nil, ""); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !strings.Contains(dom.RenderChildren(body), "<aside>") {
		t.Fatal("fragment not inserted")
	}
	if err := ap.Close("fix_1"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := dom.RenderChildren(body); got != before {
		t.Fatalf("close left residue: %q", got)
	}
}

func TestInsertBeforePlacesFragmentAheadOfAnchor(t *testing.T) {
	doc, body := parseDoc(t, `<p id="a">anchor</p>`)
	ap := NewApplier(doc, NewStore(), nil)

	anchor := findByID(body, "a")
	ctx := &selection.Context{
		TargetNode:     anchor,
		Mode:           selection.ModeInsertBefore,
		OriginalMarkup: dom.RenderNode(anchor),
	}
	if _, err := ap.Apply(ctx, `<h2>title</h2>`, "fix_1", nil, ""); err != nil {
		t.Fatalf("apply: %v", err)
	}
	got := dom.RenderChildren(body)
	if strings.Index(got, "<h2>") > strings.Index(got, `<p id="a">`) {
		t.Fatalf("fragment not before anchor: %q", got)
	}
	if !strings.Contains(got, "anchor") {
		t.Fatal("anchor content lost")
	}
}

func TestDoubleToggleByteIdentical(t *testing.T) {
	doc, body := parseDoc(t, `<p id="a">old</p>`)
	ap := NewApplier(doc, NewStore(), nil)

	ctx := replaceContext(findByID(body, "a"))
	if _, err := ap.Apply(ctx, `<p class="fixed">new</p>`, "fix_1", nil, ""); err != nil {
		t.Fatalf("apply: %v", err)
	}
	applied := dom.RenderChildren(body)

	rec, err := ap.Toggle("fix_1")
	if err != nil {
		t.Fatalf("toggle 1: %v", err)
	}
	if rec.CurrentlyFixed {
		t.Fatal("first toggle should show the original")
	}
	if got := dom.RenderChildren(body); !strings.Contains(got, "old") || strings.Contains(got, "new") {
		t.Fatalf("toggle did not restore original: %q", got)
	}

	if rec, err = ap.Toggle("fix_1"); err != nil {
		t.Fatalf("toggle 2: %v", err)
	}
	if !rec.CurrentlyFixed {
		t.Fatal("second toggle should show the fix again")
	}
	if got := dom.RenderChildren(body); got != applied {
		t.Fatalf("double toggle not byte-identical:\n want %q\n got  %q", applied, got)
	}
}

func TestToggleReparentsControls(t *testing.T) {
	doc, body := parseDoc(t, `<p id="a">old</p>`)
	controls := &fakeControls{}
	ap := NewApplier(doc, NewStore(), controls)

	ctx := replaceContext(findByID(body, "a"))
	if _, err := ap.Apply(ctx, `<p>new</p>`, "fix_1", nil, ""); err != nil {
		t.Fatalf("apply: %v", err)
	}
	rec, err := ap.Toggle("fix_1")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}

	// The old applied node went away with ReplaceContents, so the cluster
	// must be shown again on the new one.
	if len(controls.shown) != 2 || controls.shown[1] != "fix_1" {
		t.Fatalf("toggle did not re-show controls: %v", controls.shown)
	}
	if len(controls.toggled) != 1 {
		t.Fatalf("toggle visuals not updated: %v", controls.toggled)
	}
	if rec.AppliedNode == nil || !dom.IsAttached(rec.AppliedNode, body) {
		t.Fatal("applied node must be live after toggle")
	}
}

func TestApplyDetachedAnchorAbortsUntouched(t *testing.T) {
	doc, body := parseDoc(t, `<p id="a">old</p>`)
	before := dom.RenderChildren(body)
	ap := NewApplier(doc, NewStore(), nil)

	anchor := findByID(body, "a")
	ctx := replaceContext(anchor)
	dom.Detach(anchor)

	_, err := ap.Apply(ctx, `<p>new</p>`, "fix_1", nil, "")
	if !errors.Is(err, ErrMissingAnchor) {
		t.Fatalf("err = %v, want ErrMissingAnchor", err)
	}
	// The anchor was detached before the apply, so the tree is just empty
	// of it; the point is the applier added nothing.
	if got := dom.RenderChildren(body); strings.Contains(got, "checkra:") || strings.Contains(got, "new") {
		t.Fatalf("tree mutated on abort: %q (before %q)", got, before)
	}
}

func TestApplyNoStructuralContentRollsBack(t *testing.T) {
	doc, body := parseDoc(t, `<p id="a">old</p>`)
	before := dom.RenderChildren(body)
	store := NewStore()
	ap := NewApplier(doc, store, nil)

	ctx := replaceContext(findByID(body, "a"))
	_, err := ap.Apply(ctx, "just loose text, no elements", "fix_1", nil, "")
	if !errors.Is(err, ErrInvalidFragment) {
		t.Fatalf("err = %v, want ErrInvalidFragment", err)
	}
	if got := dom.RenderChildren(body); got != before {
		t.Fatalf("rollback not byte-identical:\n before %q\n after  %q", before, got)
	}
	if store.Size() != 0 {
		t.Fatal("failed apply must not register a record")
	}
}

func TestTwoPatchesKeepDisjointRegions(t *testing.T) {
	doc, body := parseDoc(t, `<p id="a">one</p><p id="b">two</p>`)
	ap := NewApplier(doc, NewStore(), nil)

	recA, err := ap.Apply(replaceContext(findByID(body, "a")), `<p>ONE</p>`, "fix_a", nil, "")
	if err != nil {
		t.Fatalf("apply a: %v", err)
	}
	recB, err := ap.Apply(replaceContext(findByID(body, "b")), `<p>TWO</p>`, "fix_b", nil, "")
	if err != nil {
		t.Fatalf("apply b: %v", err)
	}

	if err := recA.Region.Validate(); err != nil {
		t.Fatalf("region a invalid: %v", err)
	}
	if err := recB.Region.Validate(); err != nil {
		t.Fatalf("region b invalid: %v", err)
	}
	got := dom.RenderChildren(body)
	endA := strings.Index(got, "checkra:end:fix_a")
	startB := strings.Index(got, "checkra:start:fix_b")
	if endA < 0 || startB < 0 || endA > startB {
		t.Fatalf("regions interleaved: %q", got)
	}
}

func TestApplyWholeDocumentReplace(t *testing.T) {
	doc, body := parseDoc(t, `<p>first</p><p>second</p>`)
	ap := NewApplier(doc, NewStore(), nil)

	ctx := &selection.Context{
		Mode:           selection.ModeReplace,
		OriginalMarkup: dom.RenderChildren(body),
	}
	if _, err := ap.Apply(ctx, `<main>everything</main>`, "fix_1", nil, ""); err != nil {
		t.Fatalf("apply: %v", err)
	}
	got := dom.RenderChildren(body)
	if strings.Contains(got, "first") || !strings.Contains(got, "<main>") {
		t.Fatalf("whole-document replace wrong: %q", got)
	}

	if err := ap.Close("fix_1"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := dom.RenderChildren(body); got != ctx.OriginalMarkup {
		t.Fatalf("whole-document close not restored: %q", got)
	}
}

func TestToggleRevertFailurePurges(t *testing.T) {
	doc, body := parseDoc(t, `<p id="a">old</p>`)
	store := NewStore()
	controls := &fakeControls{}
	ap := NewApplier(doc, store, controls)

	rec, err := ap.Apply(replaceContext(findByID(body, "a")), `<p>new</p>`, "fix_1", nil, "")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	// Simulate an external script ripping out the end marker.
	dom.Detach(rec.Region.End)

	if _, err := ap.Toggle("fix_1"); !errors.Is(err, ErrRevertFailed) {
		t.Fatalf("err = %v, want ErrRevertFailed", err)
	}
	if store.Size() != 0 {
		t.Fatal("purge must drop the record")
	}
	if len(controls.hidden) != 1 {
		t.Fatalf("purge must hide controls: %v", controls.hidden)
	}
	if got := dom.RenderChildren(body); strings.Contains(got, "checkra:") {
		t.Fatalf("markers survived purge: %q", got)
	}
}

func TestOperationsOnUnknownFix(t *testing.T) {
	doc, _ := parseDoc(t, `<p>x</p>`)
	ap := NewApplier(doc, NewStore(), nil)

	if _, err := ap.Toggle("nope"); !errors.Is(err, ErrUnknownFix) {
		t.Fatalf("toggle err = %v", err)
	}
	if err := ap.Close("nope"); !errors.Is(err, ErrUnknownFix) {
		t.Fatalf("close err = %v", err)
	}
}
