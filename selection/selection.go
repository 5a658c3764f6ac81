// Package selection captures the target of a fix request on the live tree.
//
// A selection cycle is host-driven: StartSelection arms the picker, Hover
// moves the transient highlight between candidate nodes, and Confirm resolves
// a Context and hands it to the callback registered at start. Only one pick
// is ever active; starting a new one silently cancels the previous cycle and
// removes every visual it added, leaving the document byte-identical to its
// pre-cycle state.
package selection

import (
	"log/slog"

	"golang.org/x/net/html"

	"github.com/sunmer/checkra/dom"
)

// Mode is the spatial relationship between generated content and the target.
type Mode string

const (
	ModeReplace      Mode = "replace"
	ModeInsertBefore Mode = "insertBefore"
	ModeInsertAfter  Mode = "insertAfter"
)

// Transient class/element names used for picking visuals. All of them are
// removed again before a Context is snapshotted, so they never leak into
// originalMarkup.
const (
	selectedClass        = "checkra-selected"
	insertionMarkerClass = "checkra-insertion-marker"
	loadingClass         = "checkra-loading"
)

// Context is the resolved outcome of one selection gesture.
type Context struct {
	// TargetNode is the selected node. Nil means "whole document": the
	// operation applies to the body's entire content.
	TargetNode *html.Node

	Mode           Mode
	StableSelector string
	OriginalMarkup string

	// BackgroundSample is the resolved ambient colour behind the target,
	// for generators that want to blend replacement content in.
	BackgroundSample string

	// CapturedImage optionally holds a rendering of the target, when a
	// capture collaborator is configured.
	CapturedImage []byte
}

// WholeDocument reports whether the context targets the entire document.
func (c *Context) WholeDocument() bool {
	return c.TargetNode == nil
}

// SelectorFunc produces an opaque, assumed-unique selector string for a live
// node. Supplied by the selector-generation collaborator and treated as a
// black box here.
type SelectorFunc func(*html.Node) string

// CaptureFunc optionally renders a node to an image.
type CaptureFunc func(*html.Node) []byte

// Callback receives the resolved Context. Invoked exactly once per completed
// pick; never invoked for cancelled or superseded picks.
type Callback func(*Context)

// Manager owns the picking state machine and every transient affordance it
// paints onto the tree.
type Manager struct {
	doc    *html.Node
	body   *html.Node
	logger *slog.Logger

	selectorFor SelectorFunc
	capture     CaptureFunc

	pending *pick

	candidate         *html.Node
	savedClass        string
	savedClassPresent bool
	insertionMarker   *html.Node
	spinner           *html.Node
}

type pick struct {
	mode Mode
	cb   Callback
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithCapture sets the optional image capture collaborator.
func WithCapture(fn CaptureFunc) Option {
	return func(m *Manager) { m.capture = fn }
}

// NewManager creates a Manager for a parsed document. selectorFor may be nil,
// in which case contexts carry an empty stable selector.
func NewManager(doc *html.Node, selectorFor SelectorFunc, opts ...Option) *Manager {
	m := &Manager{
		doc:         doc,
		body:        dom.FindBody(doc),
		selectorFor: selectorFor,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// StartSelection enters picking mode. A pick already in progress is
// implicitly cancelled: its visuals are cleared and its callback will never
// fire.
func (m *Manager) StartSelection(mode Mode, cb Callback) {
	if m.pending != nil {
		m.logger.Debug("selection: new pick supersedes pending pick")
		m.ResetState()
	}
	m.pending = &pick{mode: mode, cb: cb}
}

// Picking reports whether a pick is in progress.
func (m *Manager) Picking() bool {
	return m.pending != nil
}

// Hover moves the candidate highlight. Outside picking mode it is a no-op.
func (m *Manager) Hover(node *html.Node) {
	if m.pending == nil {
		return
	}
	m.UpdateVisuals(node, m.pending.mode)
}

// UpdateVisuals applies transient highlighting for the current candidate.
// Idempotent: any previous candidate's visuals are fully cleared first, and
// passing nil just clears.
func (m *Manager) UpdateVisuals(node *html.Node, mode Mode) {
	m.clearCandidate()
	if node == nil {
		return
	}

	m.candidate = node
	if v, ok := dom.Attr(node, "class"); ok {
		m.savedClass, m.savedClassPresent = v, true
		dom.SetAttr(node, "class", v+" "+selectedClass)
	} else {
		m.savedClassPresent = false
		dom.SetAttr(node, "class", selectedClass)
	}

	switch mode {
	case ModeInsertBefore, ModeInsertAfter:
		marker := &html.Node{
			Type: html.ElementNode,
			Data: "div",
			Attr: []html.Attribute{{Key: "class", Val: insertionMarkerClass}},
		}
		if node.Parent != nil {
			if mode == ModeInsertBefore {
				node.Parent.InsertBefore(marker, node)
			} else if node.NextSibling != nil {
				node.Parent.InsertBefore(marker, node.NextSibling)
			} else {
				node.Parent.AppendChild(marker)
			}
			m.insertionMarker = marker
		}
	}
}

// Confirm resolves the pending pick into a Context and invokes the callback
// exactly once. A candidate that has left the tree since it was highlighted
// degrades to whole-document context rather than failing. Returns false when
// no pick is in progress.
func (m *Manager) Confirm() bool {
	if m.pending == nil {
		return false
	}
	p := m.pending
	m.pending = nil

	target := m.candidate
	// Visuals off before the markup snapshot, so transient classes and
	// markers never appear in originalMarkup.
	m.clearCandidate()
	m.HideLoading()

	if target != nil && !dom.IsAttached(target, m.doc) {
		m.logger.Warn("selection: target detached before confirm, degrading to whole document")
		target = nil
	}

	ctx := &Context{
		TargetNode:       target,
		Mode:             p.mode,
		BackgroundSample: m.resolveBackground(target),
	}
	if target != nil {
		ctx.OriginalMarkup = dom.RenderNode(target)
		if m.selectorFor != nil {
			ctx.StableSelector = m.selectorFor(target)
		}
	} else if m.body != nil {
		ctx.OriginalMarkup = dom.RenderChildren(m.body)
	}
	if m.capture != nil && target != nil {
		ctx.CapturedImage = m.capture(target)
	}

	p.cb(ctx)
	return true
}

// Cancel abandons the pending pick and clears its visuals. The callback is
// never invoked.
func (m *Manager) Cancel() {
	m.pending = nil
	m.clearCandidate()
	m.HideLoading()
}

// ShowLoading places a transient busy indicator relative to the target. Safe
// to call with no active target: a nil or detached node is a no-op. For
// whole-document generation, pass the body element.
func (m *Manager) ShowLoading(mode Mode, node *html.Node) {
	m.HideLoading()
	if node == nil || (node.Parent == nil && node != m.body) {
		return
	}

	spinner := &html.Node{
		Type: html.ElementNode,
		Data: "div",
		Attr: []html.Attribute{{Key: "class", Val: loadingClass}},
	}

	switch {
	case node == m.body:
		m.body.AppendChild(spinner)
	case mode == ModeInsertBefore:
		node.Parent.InsertBefore(spinner, node)
	case node.NextSibling != nil:
		node.Parent.InsertBefore(spinner, node.NextSibling)
	default:
		node.Parent.AppendChild(spinner)
	}
	m.spinner = spinner
}

// HideLoading removes the busy indicator. No-op when none is shown.
func (m *Manager) HideLoading() {
	if m.spinner != nil {
		dom.Detach(m.spinner)
		m.spinner = nil
	}
}

// ResetState clears every transient visual and releases picking state. After
// reset the document is byte-identical to its state before the cycle began.
func (m *Manager) ResetState() {
	m.pending = nil
	m.clearCandidate()
	m.HideLoading()
}

func (m *Manager) clearCandidate() {
	if m.candidate != nil {
		if m.savedClassPresent {
			dom.SetAttr(m.candidate, "class", m.savedClass)
		} else {
			dom.RemoveAttr(m.candidate, "class")
		}
		m.candidate = nil
	}
	if m.insertionMarker != nil {
		dom.Detach(m.insertionMarker)
		m.insertionMarker = nil
	}
}
