// Package engine wires the whole fix workflow together: selection on the
// live tree, fragment preparation and extraction, patch application,
// overlay controls, and the conversation history. All cross-component
// signalling is explicit callback wiring owned by the Engine; there is no
// ambient event bus.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/sunmer/checkra/dom"
	"github.com/sunmer/checkra/fragment"
	"github.com/sunmer/checkra/history"
	"github.com/sunmer/checkra/idgen"
	"github.com/sunmer/checkra/overlay"
	"github.com/sunmer/checkra/patch"
	"github.com/sunmer/checkra/selection"
)

// Request is what the engine hands the generation collaborator for one fix
// cycle.
type Request struct {
	Instruction      string
	TargetMarkup     string // selection markup with vector subtrees substituted
	ContextDigest    string // markdown digest of the selection
	BackgroundSample string
	Mode             selection.Mode
	CapturedImage    []byte
}

// Callbacks is how the generator streams results back. OnChunk delivers
// incremental response text (ordered, no gaps); OnReplace hands over a
// complete fragment that bypasses extraction; OnDone signals the end of the
// stream.
type Callbacks struct {
	OnChunk   func(text string)
	OnReplace func(markup string)
	OnDone    func()
}

// Generator produces fix content. Implementations call the callbacks from
// the goroutine running Generate and return once the stream is finished.
type Generator interface {
	Generate(ctx context.Context, req Request, cb Callbacks) error
}

// ClipboardFunc receives markup the user asked to copy.
type ClipboardFunc func(text string)

// RatingFunc receives the snapshot of a fix the user rated.
type RatingFunc func(snap patch.Snapshot)

// NotifyFunc surfaces user-visible errors (missing anchor, revert failure).
type NotifyFunc func(msg string, err error)

// Engine coordinates one live document session.
type Engine struct {
	logger *slog.Logger

	// mu guards the tree and everything whose state follows it.
	mu   sync.Mutex
	doc  *html.Node
	body *html.Node

	pipeline *fragment.Pipeline
	sel      *selection.Manager
	store    *patch.Store
	applier  *patch.Applier
	controls *overlay.Manager
	log      *history.Log
	gen      Generator

	newFixID    idgen.Generator
	selectorFor selection.SelectorFunc

	clipboard ClipboardFunc
	rate      RatingFunc
	notify    NotifyFunc

	// cycle identifies the live fix cycle; chunks and applies for stale
	// cycles are dropped rather than cancelled.
	cycle int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithHistory sets the conversation log (e.g. one backed by SQLite).
func WithHistory(h *history.Log) Option {
	return func(e *Engine) { e.log = h }
}

// WithClipboard wires the copy control.
func WithClipboard(fn ClipboardFunc) Option {
	return func(e *Engine) { e.clipboard = fn }
}

// WithRating wires the optional rate control. Without it no rate control is
// rendered.
func WithRating(fn RatingFunc) Option {
	return func(e *Engine) { e.rate = fn }
}

// WithNotify sets the user-visible error sink.
func WithNotify(fn NotifyFunc) Option {
	return func(e *Engine) { e.notify = fn }
}

// WithFixIDs overrides the patch id generator.
func WithFixIDs(g idgen.Generator) Option {
	return func(e *Engine) { e.newFixID = g }
}

// Deps carries the collaborators the engine cannot default: the parsed
// document, the generator, the selector generator, and the layout used for
// control placement (nil layouts skip positioning).
type Deps struct {
	Doc       *html.Node
	Generator Generator
	Selector  selection.SelectorFunc
	Layout    overlay.Layout
	Capture   selection.CaptureFunc
}

// New builds a fully wired Engine.
func New(deps Deps, opts ...Option) (*Engine, error) {
	if deps.Doc == nil {
		return nil, fmt.Errorf("engine: nil document")
	}
	if deps.Generator == nil {
		return nil, fmt.Errorf("engine: nil generator")
	}

	e := &Engine{
		logger:      slog.Default(),
		doc:         deps.Doc,
		body:        dom.FindBody(deps.Doc),
		gen:         deps.Generator,
		newFixID:    idgen.Prefixed("fix_", idgen.Default),
		selectorFor: deps.Selector,
	}
	for _, o := range opts {
		o(e)
	}
	if e.log == nil {
		e.log = history.New(history.WithLogger(e.logger))
	}
	if e.notify == nil {
		e.notify = func(msg string, err error) {
			e.logger.Error("engine: "+msg, "error", err)
		}
	}

	e.pipeline = fragment.New(fragment.WithLogger(e.logger))
	e.store = patch.NewStore()
	e.controls = overlay.NewManager(deps.Layout, overlay.WithLogger(e.logger))
	e.applier = patch.NewApplier(deps.Doc, e.store, (*controlsAdapter)(e),
		patch.WithLogger(e.logger))

	selOpts := []selection.Option{selection.WithLogger(e.logger)}
	if deps.Capture != nil {
		selOpts = append(selOpts, selection.WithCapture(deps.Capture))
	}
	e.sel = selection.NewManager(deps.Doc, deps.Selector, selOpts...)

	return e, nil
}

// Selection exposes the selection manager so the host event router can
// forward hover/confirm/cancel gestures.
func (e *Engine) Selection() *selection.Manager { return e.sel }

// History exposes the conversation log.
func (e *Engine) History() *history.Log { return e.log }

// RequestFix starts a fix cycle: the next confirmed selection gesture is
// prepared, sent to the generator, and the resulting fragment applied as a
// patch. Starting a new cycle abandons the previous one; late chunks for an
// abandoned cycle are ignored.
func (e *Engine) RequestFix(ctx context.Context, mode selection.Mode, instruction string) {
	e.mu.Lock()
	e.cycle++
	cycle := e.cycle
	e.mu.Unlock()

	e.sel.StartSelection(mode, func(selCtx *selection.Context) {
		if err := e.runCycle(ctx, cycle, selCtx, instruction); err != nil {
			e.log.AddError(ctx, err.Error())
			e.notify("fix cycle failed", err)
		}
	})
}

// runCycle executes the confirmed half of a fix cycle.
func (e *Engine) runCycle(ctx context.Context, cycle int64, selCtx *selection.Context, instruction string) error {
	if e.stale(cycle) {
		return nil
	}

	loadTarget := selCtx.TargetNode
	if loadTarget == nil {
		loadTarget = e.body
	}
	e.sel.ShowLoading(selCtx.Mode, loadTarget)
	defer e.sel.HideLoading()

	e.log.AddUser(ctx, instruction)
	e.log.AddAssistant(ctx, "")

	prepared, err := e.pipeline.PrepareForGeneration(selCtx.OriginalMarkup)
	if err != nil {
		e.log.FinalizeLast(ctx, nil)
		return fmt.Errorf("engine: prepare: %w", err)
	}

	req := Request{
		Instruction:      instruction,
		TargetMarkup:     prepared,
		ContextDigest:    e.pipeline.ContextDigest(selCtx.OriginalMarkup),
		BackgroundSample: selCtx.BackgroundSample,
		Mode:             selCtx.Mode,
		CapturedImage:    selCtx.CapturedImage,
	}

	var (
		buf    strings.Builder
		direct string
	)
	cb := Callbacks{
		OnChunk: func(text string) {
			if e.stale(cycle) {
				return
			}
			buf.WriteString(text)
			e.log.UpdateStreaming(ctx, buf.String(), true)
		},
		OnReplace: func(markup string) {
			if e.stale(cycle) {
				return
			}
			if processed := e.pipeline.ProcessDirectFragment(markup); processed != "" {
				direct = processed
			}
		},
		OnDone: func() {},
	}

	if err := e.gen.Generate(ctx, req, cb); err != nil {
		e.log.FinalizeLast(ctx, nil)
		return fmt.Errorf("engine: generate: %w", err)
	}
	if e.stale(cycle) {
		return nil
	}

	frag := direct
	analysis := buf.String()
	if frag == "" {
		ext := e.pipeline.ExtractFragment(buf.String())
		if !ext.Found {
			// Extraction miss: the turn stays as prose, no patch.
			e.log.UpdateStreaming(ctx, ext.Analysis, true)
			e.log.FinalizeLast(ctx, nil)
			e.logger.Info("engine: no fragment in response, text-only turn")
			return nil
		}
		frag = ext.Fragment
		analysis = ext.Analysis
	}

	patchID := e.newFixID()

	e.mu.Lock()
	rec, err := e.applier.Apply(selCtx, frag, patchID, nil, selCtx.BackgroundSample)
	e.mu.Unlock()
	if err != nil {
		e.log.UpdateStreaming(ctx, analysis, true)
		e.log.FinalizeLast(ctx, nil)
		return fmt.Errorf("engine: apply: %w", err)
	}

	snap := rec.Snapshot()
	e.log.UpdateStreaming(ctx, analysis, true)
	e.log.FinalizeLast(ctx, &snap)
	return nil
}

func (e *Engine) stale(cycle int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cycle != e.cycle
}

// ClosePatch removes a fix, restoring the original content for replace-mode
// patches.
func (e *Engine) ClosePatch(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applier.Close(id)
}

// TogglePatch swaps a fix between its fixed and original variants.
func (e *Engine) TogglePatch(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.applier.Toggle(id)
	return err
}

// CopyPatch puts the fix's markup on the wired clipboard.
func (e *Engine) CopyPatch(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.store.Get(id)
	if rec == nil {
		return fmt.Errorf("%w: %s", patch.ErrUnknownFix, id)
	}
	if e.clipboard != nil {
		e.clipboard(rec.FixedMarkup)
	}
	return nil
}

// RatePatch marks a fix rated and forwards its snapshot to the rating
// collaborator. Rating is once-only; the engine lock makes the rated check
// and the flag flip one step, so concurrent calls rate at most once.
func (e *Engine) RatePatch(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.store.Get(id)
	if rec == nil {
		return fmt.Errorf("%w: %s", patch.ErrUnknownFix, id)
	}
	if rec.Rated || e.rate == nil {
		return nil
	}
	rec.Rated = true
	e.rate(rec.Snapshot())
	return nil
}

// ApplyDirect applies caller-supplied markup as a patch without running a
// generation cycle. The target is addressed by its stable selector; an
// empty selector targets the whole document.
func (e *Engine) ApplyDirect(sel string, mode selection.Mode, markup string) (patch.Snapshot, error) {
	processed := e.pipeline.ProcessDirectFragment(markup)
	if processed == "" {
		return patch.Snapshot{}, fmt.Errorf("%w: direct apply", patch.ErrInvalidFragment)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var target *html.Node
	if sel != "" {
		target = e.resolveSelector(sel)
		if target == nil {
			return patch.Snapshot{}, fmt.Errorf("%w: selector %q", patch.ErrMissingAnchor, sel)
		}
	}

	selCtx := &selection.Context{
		TargetNode:     target,
		Mode:           mode,
		StableSelector: sel,
	}
	if target != nil {
		selCtx.OriginalMarkup = dom.RenderNode(target)
	} else if e.body != nil {
		selCtx.OriginalMarkup = dom.RenderChildren(e.body)
	}

	rec, err := e.applier.Apply(selCtx, processed, e.newFixID(), nil, "")
	if err != nil {
		return patch.Snapshot{}, err
	}
	return rec.Snapshot(), nil
}

// resolveSelector finds the node whose generated selector matches sel.
// Selectors are opaque strings; matching against the generator keeps this
// core agnostic of their shape.
func (e *Engine) resolveSelector(sel string) *html.Node {
	if e.selectorFor == nil {
		return nil
	}
	var found *html.Node
	dom.Walk(e.doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && e.selectorFor(n) == sel {
			found = n
			return false
		}
		return true
	})
	return found
}

// Patches returns serialisable snapshots of every applied fix, ordered by
// id. This is the read surface "publish all" builds on. Record fields are
// written under the engine lock, so snapshotting takes it too.
func (e *Engine) Patches() []patch.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	recs := e.store.All()
	out := make([]patch.Snapshot, len(recs))
	for i, r := range recs {
		out[i] = r.Snapshot()
	}
	return out
}

// Document serialises the current live tree, markers and patches included.
func (e *Engine) Document() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return dom.RenderNode(e.doc)
}

// Teardown removes every control cluster and cancels any pending pick. The
// patched tree is left as-is.
func (e *Engine) Teardown() {
	e.sel.Cancel()
	e.controls.RemoveAll()
}

// controlsAdapter lets the applier drive the overlay without the patch
// package importing it.
type controlsAdapter Engine

func (a *controlsAdapter) engine() *Engine { return (*Engine)(a) }

func (a *controlsAdapter) ShowControls(rec *patch.Record) {
	e := a.engine()
	cb := overlay.Callbacks{
		OnClose: func(id string) {
			if err := e.ClosePatch(id); err != nil {
				e.notify("close failed", err)
			}
		},
		OnToggle: func(id string) {
			if err := e.TogglePatch(id); err != nil {
				e.notify("toggle failed", err)
			}
		},
		OnCopy: func(id string) {
			if err := e.CopyPatch(id); err != nil {
				e.notify("copy failed", err)
			}
		},
	}
	if e.rate != nil {
		cb.OnRate = func(id string) {
			if err := e.RatePatch(id); err != nil {
				e.notify("rate failed", err)
			}
		}
	}
	e.controls.Show(rec.ID, rec.AppliedNode, rec.AppliedNode, cb)
}

func (a *controlsAdapter) HideControls(id string) {
	a.engine().controls.Hide(id)
}

func (a *controlsAdapter) UpdateToggleVisuals(id string, currentlyFixed bool) {
	a.engine().controls.UpdateToggleVisuals(id, currentlyFixed)
}
