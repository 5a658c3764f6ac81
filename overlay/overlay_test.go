package overlay

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/sunmer/checkra/dom"
)

// fakeLayout hands out a fixed rect per node and a fixed viewport.
type fakeLayout struct {
	rects    map[*html.Node]Rect
	viewport Rect
}

func (f *fakeLayout) NodeRect(n *html.Node) (Rect, bool) {
	r, ok := f.rects[n]
	return r, ok
}

func (f *fakeLayout) Viewport() Rect { return f.viewport }

func fixture(t *testing.T) (*html.Node, *html.Node) {
	t.Helper()
	frag, err := dom.ParseFragment(`<div id="wrap"><p>content</p></div>`)
	if err != nil || len(frag) == 0 {
		t.Fatalf("fixture: %v", err)
	}
	wrapper := frag[0]
	return wrapper, wrapper.FirstChild
}

func TestShowBuildsClusterInsideWrapper(t *testing.T) {
	wrapper, target := fixture(t)
	layout := &fakeLayout{
		rects:    map[*html.Node]Rect{target: {X: 100, Y: 200, W: 300, H: 50}},
		viewport: Rect{X: 0, Y: 0, W: 1280, H: 800},
	}
	m := NewManager(layout)

	m.Show("fix_1", target, wrapper, Callbacks{OnClose: func(string) {}})

	cluster := m.Cluster("fix_1")
	if cluster == nil || cluster.Parent != wrapper {
		t.Fatal("cluster not parented to wrapper")
	}
	markup := dom.RenderNode(cluster)
	for _, action := range []string{"close", "toggle", "copy"} {
		if !strings.Contains(markup, `data-action="`+action+`"`) {
			t.Fatalf("missing %s control: %q", action, markup)
		}
	}
	if strings.Contains(markup, `data-action="rate"`) {
		t.Fatal("rate control present without OnRate")
	}
}

func TestRateControlOnlyWhenWired(t *testing.T) {
	wrapper, target := fixture(t)
	m := NewManager(&fakeLayout{viewport: Rect{W: 1280, H: 800}})

	m.Show("fix_1", target, wrapper, Callbacks{OnRate: func(string) {}})
	if !strings.Contains(dom.RenderNode(m.Cluster("fix_1")), `data-action="rate"`) {
		t.Fatal("rate control missing despite OnRate")
	}
}

func TestPlacementAboveWhenRoomBelowOtherwise(t *testing.T) {
	wrapper, target := fixture(t)
	layout := &fakeLayout{
		rects:    map[*html.Node]Rect{target: {X: 500, Y: 300, W: 200, H: 40}},
		viewport: Rect{X: 0, Y: 0, W: 1280, H: 800},
	}
	m := NewManager(layout)
	m.Show("fix_1", target, wrapper, Callbacks{})

	style, _ := dom.Attr(m.Cluster("fix_1"), "style")
	if !strings.Contains(style, "top:260px") { // 300 - 34 - 6
		t.Fatalf("expected placement above, got %q", style)
	}

	// Target flush with the top edge: no room above, go below.
	layout.rects[target] = Rect{X: 500, Y: 10, W: 200, H: 40}
	m.Reposition("fix_1")
	style, _ = dom.Attr(m.Cluster("fix_1"), "style")
	if !strings.Contains(style, "top:56px") { // 10 + 40 + 6
		t.Fatalf("expected placement below, got %q", style)
	}
}

func TestPlacementClampsToViewport(t *testing.T) {
	wrapper, target := fixture(t)
	layout := &fakeLayout{
		rects:    map[*html.Node]Rect{target: {X: 1250, Y: 300, W: 60, H: 40}},
		viewport: Rect{X: 0, Y: 0, W: 1280, H: 800},
	}
	m := NewManager(layout)
	m.Show("fix_1", target, wrapper, Callbacks{})

	style, _ := dom.Attr(m.Cluster("fix_1"), "style")
	if !strings.Contains(style, "left:1162px") { // 1280 - 118
		t.Fatalf("expected right clamp, got %q", style)
	}

	layout.rects[target] = Rect{X: 0, Y: 300, W: 20, H: 40}
	m.Reposition("fix_1")
	if style, _ = dom.Attr(m.Cluster("fix_1"), "style"); !strings.Contains(style, "left:0px") {
		t.Fatalf("expected left clamp, got %q", style)
	}
}

func TestClickDispatchesExactlyOneCallback(t *testing.T) {
	wrapper, target := fixture(t)
	m := NewManager(&fakeLayout{viewport: Rect{W: 1280, H: 800}})

	var closed, toggled int
	m.Show("fix_1", target, wrapper, Callbacks{
		OnClose:  func(id string) { closed++ },
		OnToggle: func(id string) { toggled++ },
	})

	if err := m.Click("fix_1", ActionToggle); err != nil {
		t.Fatalf("click: %v", err)
	}
	if toggled != 1 || closed != 0 {
		t.Fatalf("toggled=%d closed=%d", toggled, closed)
	}

	if err := m.Click("fix_1", ActionRate); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("unwired rate click err = %v", err)
	}
	if err := m.Click("nope", ActionClose); !errors.Is(err, ErrUnknownCluster) {
		t.Fatalf("unknown id err = %v", err)
	}
}

func TestReShowRetargetsExistingCluster(t *testing.T) {
	wrapper, target := fixture(t)
	other, otherTarget := fixture(t)
	m := NewManager(&fakeLayout{viewport: Rect{W: 1280, H: 800}})

	m.Show("fix_1", target, wrapper, Callbacks{})
	first := m.Cluster("fix_1")
	m.Show("fix_1", otherTarget, other, Callbacks{})

	if m.Size() != 1 {
		t.Fatalf("re-show duplicated cluster: %d", m.Size())
	}
	if got := m.Cluster("fix_1"); got != first || got.Parent != other {
		t.Fatal("cluster not re-parented to new wrapper")
	}
}

func TestToggleVisualsSwapState(t *testing.T) {
	wrapper, target := fixture(t)
	m := NewManager(&fakeLayout{viewport: Rect{W: 1280, H: 800}})
	m.Show("fix_1", target, wrapper, Callbacks{})

	m.UpdateToggleVisuals("fix_1", false)
	if !strings.Contains(dom.RenderNode(m.Cluster("fix_1")), `title="Show fix"`) {
		t.Fatal("toggle visuals not in original state")
	}
	m.UpdateToggleVisuals("fix_1", true)
	if !strings.Contains(dom.RenderNode(m.Cluster("fix_1")), `title="Show original"`) {
		t.Fatal("toggle visuals not in fixed state")
	}
	m.UpdateToggleVisuals("nope", true) // no-op
}

func TestHideAndRemoveAll(t *testing.T) {
	wrapper, target := fixture(t)
	m := NewManager(&fakeLayout{viewport: Rect{W: 1280, H: 800}})

	m.Show("fix_1", target, wrapper, Callbacks{})
	m.Show("fix_2", target, wrapper, Callbacks{})

	m.Hide("fix_1")
	if m.Size() != 1 || m.Cluster("fix_1") != nil {
		t.Fatal("hide did not remove cluster")
	}
	if strings.Contains(dom.RenderNode(wrapper), `data-fix-id="fix_1"`) {
		t.Fatal("hidden cluster still in tree")
	}
	m.Hide("fix_1") // unknown id is a no-op

	m.RemoveAll()
	if m.Size() != 0 || strings.Contains(dom.RenderNode(wrapper), "checkra-fix-controls") {
		t.Fatal("RemoveAll left clusters behind")
	}
}

func TestStylesheetEmbedded(t *testing.T) {
	css := string(Stylesheet())
	if !strings.Contains(css, ".checkra-fix-controls") {
		t.Fatal("stylesheet missing cluster rules")
	}
}
