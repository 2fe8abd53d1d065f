package handlers

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"log"
	"net/http"

	"github.com/kozaktomas/face-align/internal/aligner"
	"github.com/kozaktomas/face-align/internal/constants"
	"github.com/kozaktomas/face-align/internal/landmark"
	"github.com/kozaktomas/face-align/internal/ledger"
)

// AlignHandler aligns single uploaded images.
type AlignHandler struct {
	aligner *aligner.Aligner
	ledger  *ledger.Ledger
}

// NewAlignHandler creates an align handler. When l is non-nil, requests
// carrying an id have their inverse recorded in it.
func NewAlignHandler(a *aligner.Aligner, l *ledger.Ledger) *AlignHandler {
	return &AlignHandler{aligner: a, ledger: l}
}

// AlignResponse is the result of one alignment.
type AlignResponse struct {
	Image    string    `json:"image"` // base64 PNG
	Size     int       `json:"size"`
	Forward  []float64 `json:"forward"`
	Inverse  []float64 `json:"inverse"`
	Residual float64   `json:"residual"`
	Extended bool      `json:"extended"`
	Shrink   int       `json:"shrink"`
	Crop     [4]int    `json:"crop"`
	Key      string    `json:"key,omitempty"`
}

// Align handles POST /api/v1/align with multipart fields image, landmarks
// (JSON, as file or value) and an optional id.
func (h *AlignHandler) Align(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	img, err := formImage(r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, err := formBytes(r, "landmarks", constants.MaxLandmarksSize)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	lms, err := landmark.Parse(data, false)
	if err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}

	res, err := h.aligner.Align(img, lms)
	if err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}

	var key string
	if id := r.FormValue("id"); id != "" && h.ledger != nil {
		key, err = h.ledger.Record(r.Context(), id, res.Inverse)
		if err != nil {
			log.Printf("WARNING: recording transform for %s: %v", sanitizeForLog(id), err)
			respondError(w, statusForError(err), err.Error())
			return
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, res.Image); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode aligned image")
		return
	}

	crop := res.Geometry.Crop
	respondJSON(w, http.StatusOK, AlignResponse{
		Image:    base64.StdEncoding.EncodeToString(buf.Bytes()),
		Size:     h.aligner.OutputSize(),
		Forward:  res.Forward.Flat(),
		Inverse:  res.Inverse.Flat(),
		Residual: res.Residual,
		Extended: res.Geometry.Extended,
		Shrink:   res.Geometry.Shrink,
		Crop:     [4]int{crop.Min.X, crop.Min.Y, crop.Max.X, crop.Max.Y},
		Key:      key,
	})
}
