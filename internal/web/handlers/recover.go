package handlers

import (
	"bytes"
	"encoding/json"
	"image"
	"net/http"
	"strconv"

	"github.com/kozaktomas/face-align/internal/constants"
	"github.com/kozaktomas/face-align/internal/imageio"
	"github.com/kozaktomas/face-align/internal/ledger"
	"github.com/kozaktomas/face-align/internal/transform"
	"github.com/kozaktomas/face-align/internal/warp"
)

// RecoverHandler maps generated images back into their original frame.
type RecoverHandler struct {
	engine *warp.Engine
	ledger *ledger.Ledger
}

// NewRecoverHandler creates a recover handler. l is optional and only used
// for requests that name a recorded id instead of passing a matrix.
func NewRecoverHandler(e *warp.Engine, l *ledger.Ledger) *RecoverHandler {
	return &RecoverHandler{engine: e, ledger: l}
}

// Recover handles POST /api/v1/recover with multipart fields image, matrix
// (JSON array of 6 or 9 numbers) or id, width and height. It responds with a PNG.
func (h *RecoverHandler) Recover(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	img, err := formImage(r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, status, err := h.matrix(r)
	if err != nil {
		respondError(w, status, err.Error())
		return
	}

	width, err := formDimension(r, "width", constants.DefaultRecoverWidth, constants.MaxOutputSize)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	height, err := formDimension(r, "height", constants.DefaultRecoverHeight, constants.MaxOutputSize)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := h.engine.Apply(img, m, image.Pt(width, height))
	if err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}

	var buf bytes.Buffer
	if err := imageio.Encode(&buf, out, "png", 0); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode recovered image")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (h *RecoverHandler) matrix(r *http.Request) (transform.Matrix, int, error) {
	if id := r.FormValue("id"); id != "" && r.FormValue("matrix") == "" {
		if h.ledger == nil {
			return transform.Matrix{}, http.StatusBadRequest, errNoLedger
		}
		rec, err := h.ledger.Get(r.Context(), id)
		if err != nil {
			return transform.Matrix{}, statusForError(err), err
		}
		return rec.Matrix, 0, nil
	}

	data, err := formBytes(r, "matrix", constants.MaxLandmarksSize)
	if err != nil {
		return transform.Matrix{}, http.StatusBadRequest, err
	}
	var coeffs []float64
	if err := json.Unmarshal(data, &coeffs); err != nil {
		return transform.Matrix{}, http.StatusBadRequest, errInvalidMatrix
	}
	m, err := transform.FromFlat(coeffs)
	if err != nil {
		return transform.Matrix{}, http.StatusBadRequest, err
	}
	return m, 0, nil
}
