package engine

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sunmer/checkra/overlay"
	"github.com/sunmer/checkra/patch"
	"github.com/sunmer/checkra/selection"
)

// Routes returns the HTTP surface for one engine session.
func (e *Engine) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/fixes", e.handleListFixes)
	r.Post("/fixes", e.handleApplyFix)
	r.Post("/fixes/{id}/toggle", e.handleToggleFix)
	r.Post("/fixes/{id}/rate", e.handleRateFix)
	r.Delete("/fixes/{id}", e.handleCloseFix)
	r.Get("/document", e.handleDocument)
	r.Get("/history", e.handleHistory)
	r.Get("/overlay.css", e.handleStylesheet)

	return r
}

func (e *Engine) handleListFixes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"fixes": e.Patches()})
}

// handleApplyFix applies a caller-supplied fragment directly, without a
// generation cycle. The target is addressed by stable selector; an empty
// selector means the whole document.
func (e *Engine) handleApplyFix(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req struct {
		Selector string `json:"selector"`
		Mode     string `json:"mode"`
		Markup   string `json:"markup"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Markup == "" {
		jsonErr(w, "markup is required", http.StatusBadRequest)
		return
	}
	mode := selection.Mode(req.Mode)
	if mode == "" {
		mode = selection.ModeReplace
	}

	snap, err := e.ApplyDirect(req.Selector, mode, req.Markup)
	if err != nil {
		jsonErr(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (e *Engine) handleToggleFix(w http.ResponseWriter, r *http.Request) {
	if err := e.TogglePatch(chi.URLParam(r, "id")); err != nil {
		jsonErr(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "toggled"})
}

func (e *Engine) handleCloseFix(w http.ResponseWriter, r *http.Request) {
	if err := e.ClosePatch(chi.URLParam(r, "id")); err != nil {
		jsonErr(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (e *Engine) handleRateFix(w http.ResponseWriter, r *http.Request) {
	if err := e.RatePatch(chi.URLParam(r, "id")); err != nil {
		jsonErr(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rated"})
}

func (e *Engine) handleDocument(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(e.Document()))
}

func (e *Engine) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": e.log.Items()})
}

func (e *Engine) handleStylesheet(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(overlay.Stylesheet())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, patch.ErrUnknownFix):
		return http.StatusNotFound
	case errors.Is(err, patch.ErrMissingAnchor),
		errors.Is(err, patch.ErrInvalidFragment):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
