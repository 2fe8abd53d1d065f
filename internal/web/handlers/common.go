package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/kozaktomas/face-align/internal/imageio"
	"github.com/kozaktomas/face-align/internal/landmark"
	"github.com/kozaktomas/face-align/internal/ledger"
	"github.com/kozaktomas/face-align/internal/transform"
)

var (
	errNoLedger      = errors.New("no transform ledger configured")
	errInvalidMatrix = errors.New("matrix must be a JSON array of 6 or 9 numbers")
)

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusForError maps pipeline errors to HTTP status codes. Input the
// pipeline cannot work with is 422, everything else is a server error.
func statusForError(err error) int {
	switch {
	case errors.Is(err, landmark.ErrInvalidLandmarkSet),
		errors.Is(err, transform.ErrDegenerateTransform),
		errors.Is(err, transform.ErrSingularTransform),
		errors.Is(err, ledger.ErrInvalidKey):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrRecordNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// formImage decodes the image uploaded in field.
func formImage(r *http.Request, field string) (image.Image, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("%s is required", field)
	}
	defer file.Close()

	img, _, err := imageio.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", field, err)
	}
	return img, nil
}

// formBytes returns field either from an uploaded file or a plain form value.
func formBytes(r *http.Request, field string, limit int64) ([]byte, error) {
	if file, _, err := r.FormFile(field); err == nil {
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, limit+1))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", field, err)
		}
		if int64(len(data)) > limit {
			return nil, fmt.Errorf("%s exceeds %d bytes", field, limit)
		}
		return data, nil
	}
	value := r.FormValue(field)
	if value == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	return []byte(value), nil
}

// formDimension parses a positive integer form value, returning def when absent.
func formDimension(r *http.Request, field string, def, limit int) (int, error) {
	s := r.FormValue(field)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > limit {
		return 0, fmt.Errorf("%s must be an integer between 1 and %d", field, limit)
	}
	return n, nil
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
