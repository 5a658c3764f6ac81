package fragment

import (
	"strings"
	"testing"
)

const svgSubtree = `<svg width="10" height="10"><path d="M0 0L10 10"></path></svg>`

func TestPrepareSubstitutesVectorSubtree(t *testing.T) {
	p := New()

	got, err := p.PrepareForGeneration(`<div class="a">` + svgSubtree + `Hello</div>`)
	if err != nil {
		t.Fatal(err)
	}
	want := `<div class="a"><svg data-id="p-0"></svg>Hello</div>`
	if got != want {
		t.Errorf("prepare: got %q, want %q", got, want)
	}
}

func TestPrepareRestoreRoundTrip(t *testing.T) {
	p := New()
	original := `<div class="a">` + svgSubtree + `Hello</div>`

	prepared, err := p.PrepareForGeneration(original)
	if err != nil {
		t.Fatal(err)
	}
	restored := p.RestoreAfterGeneration(prepared)
	if restored != original {
		t.Errorf("round trip: got %q, want %q", restored, original)
	}
}

func TestPrepareNumbersMultipleSubtrees(t *testing.T) {
	p := New()
	markup := `<div>` + svgSubtree + `<p>mid</p>` + svgSubtree + `</div>`

	prepared, err := p.PrepareForGeneration(markup)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(prepared, `data-id="p-0"`) || !strings.Contains(prepared, `data-id="p-1"`) {
		t.Fatalf("prepared: %q", prepared)
	}

	// Generator reorders the placeholders; both must restore.
	reordered := `<div><svg data-id="p-1"></svg><svg data-id="p-0"></svg></div>`
	restored := p.RestoreAfterGeneration(reordered)
	if strings.Count(restored, `<path d="M0 0L10 10">`) != 2 {
		t.Errorf("restore after reorder: %q", restored)
	}
}

func TestPrepareRootLevelVector(t *testing.T) {
	p := New()
	prepared, err := p.PrepareForGeneration(svgSubtree)
	if err != nil {
		t.Fatal(err)
	}
	if prepared != `<svg data-id="p-0"></svg>` {
		t.Errorf("prepared: got %q", prepared)
	}
	if got := p.RestoreAfterGeneration(prepared); got != svgSubtree {
		t.Errorf("restored: got %q, want %q", got, svgSubtree)
	}
}

func TestPrepareResetsMappingPerCycle(t *testing.T) {
	p := New()
	if _, err := p.PrepareForGeneration(`<div>` + svgSubtree + `</div>`); err != nil {
		t.Fatal(err)
	}
	// Second cycle with no vector content: the old mapping must be gone.
	if _, err := p.PrepareForGeneration(`<div>plain</div>`); err != nil {
		t.Fatal(err)
	}
	got := p.RestoreAfterGeneration(`<svg data-id="p-0"></svg>`)
	if got != `<svg data-id="p-0"></svg>` {
		t.Errorf("stale mapping used: %q", got)
	}
}

func TestRestoreLeavesUnmappedPlaceholderUntouched(t *testing.T) {
	p := New()
	in := `<div><svg data-id="p-7"></svg></div>`
	if got := p.RestoreAfterGeneration(in); got != in {
		t.Errorf("unmapped placeholder altered: got %q, want %q", got, in)
	}
}

func TestRestoreHandlesSelfClosedPlaceholder(t *testing.T) {
	p := New()
	if _, err := p.PrepareForGeneration(svgSubtree); err != nil {
		t.Fatal(err)
	}
	got := p.RestoreAfterGeneration(`before <svg data-id="p-0"/> after`)
	if !strings.Contains(got, svgSubtree) {
		t.Errorf("self-closed placeholder not restored: %q", got)
	}
}

func TestSanitizeStripsScriptVectors(t *testing.T) {
	tests := []struct {
		in      string
		mustNot string
	}{
		{`<div><script>alert(1)</script>ok</div>`, "<script"},
		{`<p onclick="evil()">x</p>`, "onclick"},
		{`<a href="javascript:evil()">x</a>`, "javascript:"},
	}
	for _, tt := range tests {
		got := Sanitize(tt.in)
		if strings.Contains(got, tt.mustNot) {
			t.Errorf("Sanitize(%q) = %q, still contains %q", tt.in, got, tt.mustNot)
		}
	}
}

func TestSanitizeKeepsStructureAndClasses(t *testing.T) {
	in := `<section class="hero"><h1 id="t">Hi</h1><p>text</p></section>`
	got := Sanitize(in)
	for _, want := range []string{"<section", `class="hero"`, "<h1", `id="t"`, "<p>"} {
		if !strings.Contains(got, want) {
			t.Errorf("Sanitize dropped %q: %q", want, got)
		}
	}
}

func TestContextDigest(t *testing.T) {
	p := New()
	md := p.ContextDigest(`<h1>Title</h1><p>Some <strong>bold</strong> text.</p>`)
	if !strings.Contains(md, "Title") || !strings.Contains(md, "bold") {
		t.Errorf("digest: %q", md)
	}
}
