// Package patch performs the tree surgery at the heart of the engine: it
// splices generated markup into the live document between invisible boundary
// markers, tracks every applied fix in a keyed registry, and supports
// toggling back and forth between original and fixed content with perfect
// reversibility.
package patch

import (
	"golang.org/x/net/html"

	"github.com/sunmer/checkra/dom"
	"github.com/sunmer/checkra/selection"
)

// Record is the bookkeeping for one applied fix.
//
// Invariants: exactly one Record per ID; the record exclusively owns its
// marker pair; the region strictly between the markers contains exactly the
// currently displayed variant and nothing else; OriginalMarkup never changes
// after creation.
type Record struct {
	ID string

	// OriginalMarkup is the immutable snapshot of what the fix replaced
	// (or, for insert modes, of the anchor it flanks).
	OriginalMarkup string

	// FixedMarkup is the canonical serialisation of the applied fragment.
	FixedMarkup string

	// Region owns the boundary markers bracketing the visible variant.
	Region *dom.Region

	// AppliedNode is the first structural node currently between the
	// markers — a weak reference recomputed on every toggle, nil when the
	// visible variant has no structural content.
	AppliedNode *html.Node

	// CurrentlyFixed is true when the fixed content is shown, false when
	// the original is.
	CurrentlyFixed bool

	Mode           selection.Mode
	StableSelector string

	// RequestContext is supplied by the caller at apply time and echoed
	// back unmodified; the engine stores conversation references here.
	RequestContext any

	// Rated is set once by the rating collaborator.
	Rated bool

	// ColorInfo is opaque resolved colour information, if the caller
	// captured any.
	ColorInfo string
}

// Snapshot is the serialisable view of a Record, used for listing current
// patches and for attaching a fix reference to a conversation turn.
type Snapshot struct {
	ID             string `json:"id"`
	OriginalMarkup string `json:"original_markup"`
	FixedMarkup    string `json:"fixed_markup"`
	CurrentlyFixed bool   `json:"currently_fixed"`
	Mode           string `json:"mode"`
	StableSelector string `json:"stable_selector,omitempty"`
	Rated          bool   `json:"rated"`
}

// Snapshot returns the serialisable view of r.
func (r *Record) Snapshot() Snapshot {
	return Snapshot{
		ID:             r.ID,
		OriginalMarkup: r.OriginalMarkup,
		FixedMarkup:    r.FixedMarkup,
		CurrentlyFixed: r.CurrentlyFixed,
		Mode:           string(r.Mode),
		StableSelector: r.StableSelector,
		Rated:          r.Rated,
	}
}
