package patch

import (
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/net/html"

	"github.com/sunmer/checkra/dom"
	"github.com/sunmer/checkra/selection"
)

var (
	// ErrMissingAnchor means the selection's target left the tree before
	// apply time. Nothing was mutated.
	ErrMissingAnchor = errors.New("patch: selection target no longer in tree")

	// ErrInvalidFragment means the fragment contained no structural
	// content. Any partially-inserted markers were rolled back.
	ErrInvalidFragment = errors.New("patch: fragment has no structural content")

	// ErrUnknownFix is returned for operations on an id the store does not
	// track.
	ErrUnknownFix = errors.New("patch: no such fix")

	// ErrRevertFailed means the stored markup could not be restored; the
	// markers were forcibly removed and the record purged, trading lossy
	// cleanup for a tree that is never left half-patched.
	ErrRevertFailed = errors.New("patch: revert failed, fix purged")
)

// Controls is the overlay surface the applier notifies. The coordinator
// wires an adapter over the overlay manager; tests plug in a fake.
// ShowControls is called again after every toggle: the cluster lives inside
// the fix's content and must be re-parented onto the new applied node.
type Controls interface {
	ShowControls(rec *Record)
	HideControls(id string)
	UpdateToggleVisuals(id string, currentlyFixed bool)
}

// NopControls ignores every notification.
type NopControls struct{}

func (NopControls) ShowControls(*Record) {}

func (NopControls) HideControls(string) {}

func (NopControls) UpdateToggleVisuals(string, bool) {}

// Applier performs the marker-based tree surgery for one live document.
type Applier struct {
	doc      *html.Node
	body     *html.Node
	store    *Store
	controls Controls
	logger   *slog.Logger
}

// Option configures an Applier.
type Option func(*Applier)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Applier) { a.logger = l }
}

// NewApplier creates an Applier over a parsed document. controls may be nil.
func NewApplier(doc *html.Node, store *Store, controls Controls, opts ...Option) *Applier {
	a := &Applier{
		doc:      doc,
		body:     dom.FindBody(doc),
		store:    store,
		controls: controls,
		logger:   slog.Default(),
	}
	if a.controls == nil {
		a.controls = NopControls{}
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Apply splices fragmentMarkup into the document at the location described
// by selCtx and registers the resulting Record under patchID.
//
// The operation is atomic with respect to the tree: either the markers and
// the fragment are fully in place (and, in replace mode, the anchor removed),
// or every partial step has been rolled back before Apply returns.
func (a *Applier) Apply(selCtx *selection.Context, fragmentMarkup, patchID string, requestContext any, colorInfo string) (*Record, error) {
	anchor := selCtx.TargetNode
	if anchor != nil && !dom.IsAttached(anchor, a.doc) {
		return nil, fmt.Errorf("%w (id %s)", ErrMissingAnchor, patchID)
	}
	if anchor == nil && a.body == nil {
		return nil, fmt.Errorf("%w: document has no body (id %s)", ErrMissingAnchor, patchID)
	}

	nodes, err := dom.ParseFragment(fragmentMarkup)
	if err != nil {
		return nil, fmt.Errorf("patch: apply %s: %w", patchID, err)
	}

	region := dom.NewRegion(patchID)
	var removed []*html.Node // nodes taken out of the tree, for rollback

	if anchor == nil {
		removed, err = a.placeWholeDocument(region, selCtx.Mode, nodes)
	} else {
		removed, err = a.placeAtAnchor(region, anchor, selCtx.Mode, nodes)
	}
	if err != nil {
		return nil, fmt.Errorf("patch: apply %s: %w", patchID, err)
	}

	appliedNode := region.FirstStructural()
	if appliedNode == nil {
		// A patch with no visible structural content is a failed apply,
		// not a valid empty patch: undo everything.
		a.rollback(region, removed)
		return nil, fmt.Errorf("%w (id %s)", ErrInvalidFragment, patchID)
	}

	rec := &Record{
		ID:             patchID,
		OriginalMarkup: selCtx.OriginalMarkup,
		FixedMarkup:    dom.RenderNodes(region.Contents()),
		Region:         region,
		AppliedNode:    appliedNode,
		CurrentlyFixed: true,
		Mode:           selCtx.Mode,
		StableSelector: selCtx.StableSelector,
		RequestContext: requestContext,
		ColorInfo:      colorInfo,
	}
	a.store.Add(rec)
	a.controls.ShowControls(rec)

	a.logger.Info("patch: applied", "id", patchID, "mode", selCtx.Mode,
		"selector", selCtx.StableSelector)
	return rec, nil
}

// placeAtAnchor positions the region relative to a live anchor node and
// fills it. In replace mode the anchor is removed and returned for rollback.
func (a *Applier) placeAtAnchor(region *dom.Region, anchor *html.Node, mode selection.Mode, nodes []*html.Node) ([]*html.Node, error) {
	switch mode {
	case selection.ModeInsertAfter:
		if err := region.InsertAfter(anchor); err != nil {
			return nil, err
		}
		return nil, region.AppendNodes(nodes)

	case selection.ModeInsertBefore:
		if err := region.InsertBefore(anchor); err != nil {
			return nil, err
		}
		return nil, region.AppendNodes(nodes)

	default: // replace
		if err := region.InsertBefore(anchor); err != nil {
			return nil, err
		}
		if err := region.AppendNodes(nodes); err != nil {
			return nil, err
		}
		dom.Detach(anchor)
		return []*html.Node{anchor}, nil
	}
}

// placeWholeDocument positions the region over the body for "whole document"
// contexts. Replace swaps out every existing child; the insert modes bracket
// the start or end of the body.
func (a *Applier) placeWholeDocument(region *dom.Region, mode selection.Mode, nodes []*html.Node) ([]*html.Node, error) {
	switch mode {
	case selection.ModeInsertBefore:
		if first := a.body.FirstChild; first != nil {
			if err := region.InsertBefore(first); err != nil {
				return nil, err
			}
		} else {
			region.WrapChildren(a.body)
		}
		return nil, region.AppendNodes(nodes)

	case selection.ModeInsertAfter:
		a.body.AppendChild(region.Start)
		a.body.AppendChild(region.End)
		return nil, region.AppendNodes(nodes)

	default: // replace
		var prev []*html.Node
		for c := a.body.FirstChild; c != nil; c = c.NextSibling {
			prev = append(prev, c)
		}
		for _, n := range prev {
			a.body.RemoveChild(n)
		}
		a.body.AppendChild(region.Start)
		a.body.AppendChild(region.End)
		if err := region.AppendNodes(nodes); err != nil {
			return prev, err
		}
		return prev, nil
	}
}

// rollback undoes a partial apply: removed nodes go back where the region
// sits, then the region and its contents disappear.
func (a *Applier) rollback(region *dom.Region, removed []*html.Node) {
	if region.Attached() {
		parent := region.Start.Parent
		for _, n := range removed {
			parent.InsertBefore(n, region.Start)
		}
	}
	region.Remove()
}

// Toggle swaps the content between the markers for the other variant,
// recomputes the applied node, and flips CurrentlyFixed. Toggling twice
// reproduces byte-identical markup. ReplaceContents tears the control
// cluster down with the old variant, so the controls are re-shown against
// the new applied node afterwards.
func (a *Applier) Toggle(patchID string) (*Record, error) {
	rec := a.store.Get(patchID)
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFix, patchID)
	}

	target := rec.FixedMarkup
	if rec.CurrentlyFixed {
		target = rec.OriginalMarkup
	}

	nodes, err := dom.ParseFragment(target)
	if err != nil {
		return nil, a.purge(rec, fmt.Errorf("toggle: parse variant: %w", err))
	}
	if err := rec.Region.ReplaceContents(nodes); err != nil {
		return nil, a.purge(rec, fmt.Errorf("toggle: %w", err))
	}

	rec.AppliedNode = rec.Region.FirstStructural()
	rec.CurrentlyFixed = !rec.CurrentlyFixed
	a.controls.ShowControls(rec)
	a.controls.UpdateToggleVisuals(rec.ID, rec.CurrentlyFixed)
	return rec, nil
}

// Close removes the fix: in replace mode the original markup is re-inserted
// between the markers before they are removed; in the insert modes the
// fragment and markers simply disappear since the anchor was never touched.
// The registry entry and the fix's controls are removed even on partial
// failure.
func (a *Applier) Close(patchID string) error {
	rec := a.store.Get(patchID)
	if rec == nil {
		return fmt.Errorf("%w: %s", ErrUnknownFix, patchID)
	}
	defer func() {
		a.store.Delete(patchID)
		a.controls.HideControls(patchID)
	}()

	if rec.Mode != selection.ModeReplace {
		rec.Region.Remove()
		a.logger.Info("patch: closed", "id", patchID, "mode", rec.Mode)
		return nil
	}

	orig, err := dom.ParseFragment(rec.OriginalMarkup)
	if err != nil {
		rec.Region.Remove()
		return fmt.Errorf("%w: close %s: %v", ErrRevertFailed, patchID, err)
	}
	if err := rec.Region.ReplaceContents(orig); err != nil {
		rec.Region.Remove()
		return fmt.Errorf("%w: close %s: %v", ErrRevertFailed, patchID, err)
	}
	rec.Region.Unwrap()
	a.logger.Info("patch: closed", "id", patchID, "mode", rec.Mode)
	return nil
}

// purge is the RevertFailure path shared by toggle: forcibly remove the
// markers, drop the record, hide the controls, surface the error.
func (a *Applier) purge(rec *Record, cause error) error {
	rec.Region.Remove()
	a.store.Delete(rec.ID)
	a.controls.HideControls(rec.ID)
	a.logger.Error("patch: revert failed, fix purged", "id", rec.ID, "error", cause)
	return fmt.Errorf("%w: %s: %v", ErrRevertFailed, rec.ID, cause)
}
