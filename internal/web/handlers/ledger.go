package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-align/internal/ledger"
)

// LedgerHandler exposes the recorded, not yet integrated transforms.
type LedgerHandler struct {
	ledger *ledger.Ledger
}

// NewLedgerHandler creates a ledger handler.
func NewLedgerHandler(l *ledger.Ledger) *LedgerHandler {
	return &LedgerHandler{ledger: l}
}

// RecordResponse is one recorded inverse transform.
type RecordResponse struct {
	Key        string    `json:"key"`
	Matrix     []float64 `json:"matrix"`
	RecordedAt string    `json:"recorded_at,omitempty"`
}

// List returns the pending keys in integration order.
func (h *LedgerHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.ledger.Pending(r.Context())
	if err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}
	if keys == nil {
		keys = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"keys":  keys,
		"count": len(keys),
	})
}

// Get returns the record for {id}.
func (h *LedgerHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.ledger.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}
	resp := RecordResponse{Key: rec.Key, Matrix: rec.Matrix.Flat()}
	if !rec.RecordedAt.IsZero() {
		resp.RecordedAt = rec.RecordedAt.UTC().Format(time.RFC3339)
	}
	respondJSON(w, http.StatusOK, resp)
}
