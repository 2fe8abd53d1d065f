package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/face-align/internal/ledger"
)

var gray = color.RGBA{R: 128, G: 128, B: 128, A: 255}

func TestAlignHandler_Align_Success(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())
	handler := NewAlignHandler(testAligner(t), l)

	req := multipartRequest(t, "/api/v1/align", pngBytes(t, 256, 256, gray), map[string]string{
		"landmarks": mustJSON(t, map[string]any{"landmarks": faceLandmarks()}),
		"id":        "photos/face_001.png",
	})
	recorder := httptest.NewRecorder()
	handler.Align(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}

	var resp AlignResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Size != 64 || len(resp.Inverse) != 9 || len(resp.Forward) != 9 {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Key != "face_001" {
		t.Errorf("expected key 'face_001', got '%s'", resp.Key)
	}

	raw, err := base64.StdEncoding.DecodeString(resp.Image)
	if err != nil {
		t.Fatalf("image is not base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("image is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 64 {
		t.Errorf("aligned image is %v", img.Bounds())
	}

	rec, err := l.Get(context.Background(), "face_001")
	if err != nil {
		t.Fatalf("inverse was not recorded: %v", err)
	}
	for i, v := range rec.Matrix.Flat() {
		if v != resp.Inverse[i] {
			t.Errorf("recorded coefficient %d = %f, response has %f", i, v, resp.Inverse[i])
		}
	}
}

func TestAlignHandler_Align_BareLandmarkList(t *testing.T) {
	handler := NewAlignHandler(testAligner(t), nil)

	req := multipartRequest(t, "/api/v1/align", pngBytes(t, 256, 256, gray), map[string]string{
		"landmarks": mustJSON(t, faceLandmarks()),
		"id":        "ignored.png",
	})
	recorder := httptest.NewRecorder()
	handler.Align(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}
	var resp AlignResponse
	json.Unmarshal(recorder.Body.Bytes(), &resp)
	if resp.Key != "" {
		t.Errorf("nothing should be recorded without a ledger, got key %q", resp.Key)
	}
}

func TestAlignHandler_Align_Errors(t *testing.T) {
	img := pngBytes(t, 256, 256, gray)
	short := faceLandmarks()[:20]
	collapsed := make([][]float64, 68)
	for i := range collapsed {
		collapsed[i] = []float64{10, 10}
	}

	tests := []struct {
		name       string
		img        []byte
		fields     map[string]string
		wantStatus int
	}{
		{"missing image", nil, map[string]string{"landmarks": mustJSON(t, faceLandmarks())}, http.StatusBadRequest},
		{"invalid image", []byte("not an image"), map[string]string{"landmarks": mustJSON(t, faceLandmarks())}, http.StatusBadRequest},
		{"missing landmarks", img, nil, http.StatusBadRequest},
		{"short landmarks", img, map[string]string{"landmarks": mustJSON(t, short)}, http.StatusUnprocessableEntity},
		{"malformed landmarks", img, map[string]string{"landmarks": "{"}, http.StatusUnprocessableEntity},
		{"coincident landmarks", img, map[string]string{"landmarks": mustJSON(t, collapsed)}, http.StatusUnprocessableEntity},
	}

	handler := NewAlignHandler(testAligner(t), nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.Align(recorder, multipartRequest(t, "/api/v1/align", tc.img, tc.fields))
			if recorder.Code != tc.wantStatus {
				t.Errorf("expected status %d, got %d: %s", tc.wantStatus, recorder.Code, recorder.Body.String())
			}
		})
	}
}

func TestAlignHandler_Align_NotMultipart(t *testing.T) {
	handler := NewAlignHandler(testAligner(t), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/align", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.Align(recorder, req)

	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, recorder.Code)
	}
}
