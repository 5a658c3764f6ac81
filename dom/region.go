package dom

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Marker comment prefixes. Markers render as HTML comments, so they are
// invisible in the page while surviving serialisation round trips.
const (
	markerStartPrefix = "checkra:start:"
	markerEndPrefix   = "checkra:end:"
)

var (
	// ErrRegionDetached is returned by operations that need the region's
	// markers to be present in a tree.
	ErrRegionDetached = errors.New("dom: region markers not attached")

	// ErrRegionInvalid means the markers no longer bracket a well-formed
	// sibling range (reordered, reparented, or one marker missing).
	ErrRegionInvalid = errors.New("dom: region markers out of order")
)

// Region is a pair of invisible boundary markers bracketing the currently
// visible content of one patch. The document is the arena; the marker pair is
// the index. Holding a Region lets the engine relocate, swap, or remove the
// bracketed content without keeping references to the nodes in between.
type Region struct {
	Start   *html.Node
	End     *html.Node
	OwnerID string
}

// NewRegion creates the marker pair for ownerID. The markers are detached
// until one of the insert methods places them in a tree.
func NewRegion(ownerID string) *Region {
	return &Region{
		Start:   &html.Node{Type: html.CommentNode, Data: markerStartPrefix + ownerID},
		End:     &html.Node{Type: html.CommentNode, Data: markerEndPrefix + ownerID},
		OwnerID: ownerID,
	}
}

// IsMarker reports whether n is any region's boundary marker.
func IsMarker(n *html.Node) bool {
	if n == nil || n.Type != html.CommentNode {
		return false
	}
	return strings.HasPrefix(n.Data, markerStartPrefix) ||
		strings.HasPrefix(n.Data, markerEndPrefix)
}

// MarkerOwner returns the owner id of a marker node, or "".
func MarkerOwner(n *html.Node) string {
	if n == nil || n.Type != html.CommentNode {
		return ""
	}
	if rest, ok := strings.CutPrefix(n.Data, markerStartPrefix); ok {
		return rest
	}
	if rest, ok := strings.CutPrefix(n.Data, markerEndPrefix); ok {
		return rest
	}
	return ""
}

// InsertBefore places both markers, adjacent and empty, immediately before
// anchor. The anchor must be attached to a tree.
func (r *Region) InsertBefore(anchor *html.Node) error {
	if anchor == nil || anchor.Parent == nil {
		return fmt.Errorf("dom: region %s: insert before detached anchor", r.OwnerID)
	}
	anchor.Parent.InsertBefore(r.Start, anchor)
	anchor.Parent.InsertBefore(r.End, anchor)
	return nil
}

// InsertAfter places both markers, adjacent and empty, immediately after
// anchor. The anchor itself is left untouched.
func (r *Region) InsertAfter(anchor *html.Node) error {
	if anchor == nil || anchor.Parent == nil {
		return fmt.Errorf("dom: region %s: insert after detached anchor", r.OwnerID)
	}
	next := anchor.NextSibling
	if next != nil {
		return r.InsertBefore(next)
	}
	anchor.Parent.AppendChild(r.Start)
	anchor.Parent.AppendChild(r.End)
	return nil
}

// WrapChildren brackets every existing child of parent: the start marker
// becomes the first child and the end marker the last.
func (r *Region) WrapChildren(parent *html.Node) {
	if parent.FirstChild != nil {
		parent.InsertBefore(r.Start, parent.FirstChild)
	} else {
		parent.AppendChild(r.Start)
	}
	parent.AppendChild(r.End)
}

// Attached reports whether both markers are currently in a tree.
func (r *Region) Attached() bool {
	return r.Start.Parent != nil && r.End.Parent != nil
}

// Validate checks the structural invariant: both markers attached, same
// parent, start preceding end.
func (r *Region) Validate() error {
	if !r.Attached() {
		return ErrRegionDetached
	}
	if r.Start.Parent != r.End.Parent {
		return ErrRegionInvalid
	}
	for n := r.Start.NextSibling; n != nil; n = n.NextSibling {
		if n == r.End {
			return nil
		}
	}
	return ErrRegionInvalid
}

// Contents returns the nodes strictly between the markers, in order.
func (r *Region) Contents() []*html.Node {
	if r.Validate() != nil {
		return nil
	}
	var nodes []*html.Node
	for n := r.Start.NextSibling; n != nil && n != r.End; n = n.NextSibling {
		nodes = append(nodes, n)
	}
	return nodes
}

// FirstStructural returns the first element node between the markers, or nil
// if the bracketed range holds no structural content.
func (r *Region) FirstStructural() *html.Node {
	return FirstStructural(r.Contents())
}

// AppendNodes inserts nodes immediately before the end marker, preserving
// their order.
func (r *Region) AppendNodes(nodes []*html.Node) error {
	if err := r.Validate(); err != nil {
		return err
	}
	parent := r.End.Parent
	for _, n := range nodes {
		Detach(n)
		parent.InsertBefore(n, r.End)
	}
	return nil
}

// Clear removes every node strictly between the markers.
func (r *Region) Clear() error {
	if err := r.Validate(); err != nil {
		return err
	}
	parent := r.Start.Parent
	for n := r.Start.NextSibling; n != nil && n != r.End; {
		next := n.NextSibling
		parent.RemoveChild(n)
		n = next
	}
	return nil
}

// ReplaceContents swaps the bracketed content for nodes.
func (r *Region) ReplaceContents(nodes []*html.Node) error {
	if err := r.Clear(); err != nil {
		return err
	}
	return r.AppendNodes(nodes)
}

// Remove deletes the markers and everything between them from the tree.
func (r *Region) Remove() {
	if r.Validate() == nil {
		r.Clear()
	}
	Detach(r.Start)
	Detach(r.End)
}

// Unwrap removes only the marker nodes, leaving the bracketed content in
// place. Used when a close operation has already restored the original
// markup between the markers.
func (r *Region) Unwrap() {
	Detach(r.Start)
	Detach(r.End)
}
