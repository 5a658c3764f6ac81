// Package overlay renders the floating control cluster attached to each
// applied fix: close, toggle, copy, and optionally rate. Clusters are real
// elements parented to the fix's own content so they scroll and reflow with
// it; placement is computed once per show/re-show/toggle, never per frame.
package overlay

import (
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/sunmer/checkra/dom"
)

// Action identifies one control in a cluster.
type Action string

const (
	ActionClose  Action = "close"
	ActionToggle Action = "toggle"
	ActionCopy   Action = "copy"
	ActionRate   Action = "rate"
)

var (
	// ErrUnknownCluster is returned by Click for an id the manager does
	// not track.
	ErrUnknownCluster = errors.New("overlay: no controls for fix")

	// ErrUnknownAction is returned by Click for an action with no wired
	// callback.
	ErrUnknownAction = errors.New("overlay: no such control")
)

// Rect is a viewport-relative rectangle.
type Rect struct {
	X, Y float64
	W, H float64
}

// Layout supplies geometry for placement. Injected so the placement math is
// testable without a rendering engine; in the live path an adapter over the
// page session implements it.
type Layout interface {
	// NodeRect returns the bounding rect of a live node, false when the
	// node has no box (detached, display:none).
	NodeRect(n *html.Node) (Rect, bool)
	// Viewport returns the current visible area.
	Viewport() Rect
}

// Callbacks carries the handlers wired to one cluster's controls. OnRate is
// optional: the rate control only exists when it is non-nil.
type Callbacks struct {
	OnClose  func(patchID string)
	OnToggle func(patchID string)
	OnCopy   func(patchID string)
	OnRate   func(patchID string)
}

// Estimated cluster box, used for above/below and clamping decisions. The
// cluster has a fixed height and a width that only varies with the optional
// rate control, so constants are close enough for placement.
const (
	clusterHeight = 34.0
	clusterWidth  = 118.0
	clusterGap    = 6.0
)

const (
	clusterClass = "checkra-fix-controls"
	buttonClass  = "checkra-fix-btn"
)

type cluster struct {
	node      *html.Node
	toggleBtn *html.Node
	target    *html.Node
	callbacks Callbacks
}

// Manager tracks one control cluster per applied fix.
type Manager struct {
	layout   Layout
	logger   *slog.Logger
	clusters map[string]*cluster
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager placing clusters with the given layout.
func NewManager(layout Layout, opts ...Option) *Manager {
	m := &Manager{
		layout:   layout,
		logger:   slog.Default(),
		clusters: make(map[string]*cluster),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Show creates the control cluster for patchID, or re-targets the existing
// one if the fix is already tracked. wrapper is the fix's own content node
// the cluster is parented to; target is the node placement is computed
// against (usually the same node).
func (m *Manager) Show(patchID string, target, wrapper *html.Node, cb Callbacks) {
	if wrapper == nil {
		m.logger.Warn("overlay: show without wrapper", "id", patchID)
		return
	}
	c, ok := m.clusters[patchID]
	if !ok {
		c = &cluster{}
		c.node, c.toggleBtn = buildCluster(patchID, cb.OnRate != nil)
		m.clusters[patchID] = c
	}
	c.target = target
	c.callbacks = cb

	dom.Detach(c.node)
	wrapper.AppendChild(c.node)
	m.position(c)
}

// Reposition recomputes placement for a tracked fix. No-op for unknown ids.
func (m *Manager) Reposition(patchID string) {
	if c, ok := m.clusters[patchID]; ok {
		m.position(c)
	}
}

// position computes the cluster's offset once and writes it to the style
// attribute: above the target when there is room, otherwise below,
// horizontally centred and clamped to the viewport.
func (m *Manager) position(c *cluster) {
	if m.layout == nil || c.target == nil {
		return
	}
	r, ok := m.layout.NodeRect(c.target)
	if !ok {
		return
	}
	vp := m.layout.Viewport()

	top := r.Y - clusterHeight - clusterGap
	if top < vp.Y {
		top = r.Y + r.H + clusterGap
	}
	left := r.X + r.W/2 - clusterWidth/2
	if left < vp.X {
		left = vp.X
	}
	if max := vp.X + vp.W - clusterWidth; left > max {
		left = max
	}

	dom.SetAttr(c.node, "style", fmt.Sprintf("left:%.0fpx;top:%.0fpx", left, top))
}

// Click routes a control activation to exactly one callback. The host event
// router consumes the event before calling here, so a control click never
// reaches the underlying page.
func (m *Manager) Click(patchID string, action Action) error {
	c, ok := m.clusters[patchID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCluster, patchID)
	}
	var fn func(string)
	switch action {
	case ActionClose:
		fn = c.callbacks.OnClose
	case ActionToggle:
		fn = c.callbacks.OnToggle
	case ActionCopy:
		fn = c.callbacks.OnCopy
	case ActionRate:
		fn = c.callbacks.OnRate
	}
	if fn == nil {
		return fmt.Errorf("%w: %s on %s", ErrUnknownAction, action, patchID)
	}
	fn(patchID)
	return nil
}

// UpdateToggleVisuals swaps the toggle control's label and title between the
// "showing fixed" and "showing original" states. Presentation only.
func (m *Manager) UpdateToggleVisuals(patchID string, currentlyFixed bool) {
	c, ok := m.clusters[patchID]
	if !ok || c.toggleBtn == nil {
		return
	}
	if currentlyFixed {
		dom.SetAttr(c.toggleBtn, "title", "Show original")
		setText(c.toggleBtn, "↺")
	} else {
		dom.SetAttr(c.toggleBtn, "title", "Show fix")
		setText(c.toggleBtn, "✓")
	}
}

// Hide removes the cluster for patchID and forgets it. Unknown ids are a
// no-op.
func (m *Manager) Hide(patchID string) {
	c, ok := m.clusters[patchID]
	if !ok {
		return
	}
	dom.Detach(c.node)
	delete(m.clusters, patchID)
}

// RemoveAll tears down every tracked cluster.
func (m *Manager) RemoveAll() {
	for id := range m.clusters {
		m.Hide(id)
	}
}

// Size returns the number of tracked clusters.
func (m *Manager) Size() int { return len(m.clusters) }

// Cluster returns the live cluster element for a fix, or nil. Exposed for
// the host surfaces that serialise the document with controls attached.
func (m *Manager) Cluster(patchID string) *html.Node {
	if c, ok := m.clusters[patchID]; ok {
		return c.node
	}
	return nil
}

func buildCluster(patchID string, withRate bool) (root, toggleBtn *html.Node) {
	root = element(atom.Div, "div")
	dom.SetAttr(root, "class", clusterClass)
	dom.SetAttr(root, "data-fix-id", patchID)

	root.AppendChild(button(patchID, ActionToggle, "Show original", "↺"))
	toggleBtn = root.LastChild
	root.AppendChild(button(patchID, ActionCopy, "Copy fixed markup", "⧉"))
	if withRate {
		root.AppendChild(button(patchID, ActionRate, "Rate this fix", "★"))
	}
	root.AppendChild(button(patchID, ActionClose, "Remove this fix", "×"))
	return root, toggleBtn
}

func button(patchID string, action Action, title, label string) *html.Node {
	b := element(atom.Button, "button")
	dom.SetAttr(b, "class", buttonClass)
	dom.SetAttr(b, "type", "button")
	dom.SetAttr(b, "data-fix-id", patchID)
	dom.SetAttr(b, "data-action", string(action))
	dom.SetAttr(b, "title", title)
	setText(b, label)
	return b
}

func element(a atom.Atom, name string) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: name}
}

func setText(n *html.Node, text string) {
	for n.FirstChild != nil {
		n.RemoveChild(n.FirstChild)
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}
