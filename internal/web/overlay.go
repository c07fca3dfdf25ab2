package web

import (
	_ "embed"
	"net/http"
)

//go:embed overlay.html
var overlayHTML []byte

// ServeOverlay serves a page that shows each cleaned line as it arrives on
// the WebSocket event stream. Browser sources of streaming tools can load
// it directly.
func ServeOverlay(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(overlayHTML)
}
