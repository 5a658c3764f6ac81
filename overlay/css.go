package overlay

import _ "embed"

//go:embed overlay.css
var stylesheet []byte

// Stylesheet returns the embedded CSS for the control clusters and the
// selection visuals. Served by the host's HTTP surface.
func Stylesheet() []byte { return stylesheet }
