package handlers

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-align/internal/ledger"
	"github.com/kozaktomas/face-align/internal/transform"
	"github.com/kozaktomas/face-align/internal/warp"
)

var red = color.RGBA{R: 255, A: 255}

func testEngine(t *testing.T) *warp.Engine {
	t.Helper()
	e, err := warp.New("")
	if err != nil {
		t.Fatalf("warp.New() failed: %v", err)
	}
	return e
}

func decodePNG(t *testing.T, recorder *httptest.ResponseRecorder) *image.RGBA {
	t.Helper()
	if ct := recorder.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected Content-Type 'image/png', got '%s'", ct)
	}
	img, err := png.Decode(recorder.Body)
	if err != nil {
		t.Fatalf("response is not a PNG: %v", err)
	}
	rgba, ok := img.(*image.RGBA)
	if !ok {
		b := img.Bounds()
		rgba = image.NewRGBA(b)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				rgba.Set(x, y, img.At(x, y))
			}
		}
	}
	return rgba
}

func TestRecoverHandler_Recover_WithMatrix(t *testing.T) {
	handler := NewRecoverHandler(testEngine(t), nil)

	req := multipartRequest(t, "/api/v1/recover", pngBytes(t, 8, 8, red), map[string]string{
		"matrix": "[1, 0, 4, 0, 1, 2]",
		"width":  "32",
		"height": "16",
	})
	recorder := httptest.NewRecorder()
	handler.Recover(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}
	img := decodePNG(t, recorder)
	if img.Bounds() != image.Rect(0, 0, 32, 16) {
		t.Fatalf("recovered image is %v", img.Bounds())
	}
	if got := img.RGBAAt(6, 5); got != red {
		t.Errorf("pixel inside the warped image = %v, want red", got)
	}
	if got := img.RGBAAt(1, 1); got != (color.RGBA{A: 255}) {
		t.Errorf("pixel outside the warped image = %v, want border", got)
	}
}

func TestRecoverHandler_Recover_DefaultSize(t *testing.T) {
	handler := NewRecoverHandler(testEngine(t), nil)

	req := multipartRequest(t, "/api/v1/recover", pngBytes(t, 8, 8, red), map[string]string{
		"matrix": "[1, 0, 0, 0, 1, 0, 0, 0, 1]",
	})
	recorder := httptest.NewRecorder()
	handler.Recover(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}
	if b := decodePNG(t, recorder).Bounds(); b.Dx() != 720 || b.Dy() != 1280 {
		t.Errorf("recovered image is %v, want 720x1280", b)
	}
}

func TestRecoverHandler_Recover_FromLedger(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())
	if _, err := l.Record(context.Background(), "face_007.jpg", transform.Translation(4, 4)); err != nil {
		t.Fatal(err)
	}
	handler := NewRecoverHandler(testEngine(t), l)

	req := multipartRequest(t, "/api/v1/recover", pngBytes(t, 8, 8, red), map[string]string{
		"id":     "face_007.png",
		"width":  "16",
		"height": "16",
	})
	recorder := httptest.NewRecorder()
	handler.Recover(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}
	img := decodePNG(t, recorder)
	if got := img.RGBAAt(8, 8); got != red {
		t.Errorf("pixel (8,8) = %v, want red", got)
	}
	if got := img.RGBAAt(2, 2); got == red {
		t.Error("pixel (2,2) should be outside the translated image")
	}
}

func TestRecoverHandler_Recover_Errors(t *testing.T) {
	img := pngBytes(t, 8, 8, red)
	l := ledger.New(ledger.NewMemoryStore())

	tests := []struct {
		name       string
		ledger     *ledger.Ledger
		img        []byte
		fields     map[string]string
		wantStatus int
	}{
		{"missing image", nil, nil, map[string]string{"matrix": "[1,0,0,0,1,0]"}, http.StatusBadRequest},
		{"missing matrix", nil, img, nil, http.StatusBadRequest},
		{"matrix not json", nil, img, map[string]string{"matrix": "identity"}, http.StatusBadRequest},
		{"matrix wrong length", nil, img, map[string]string{"matrix": "[1,0,0,1]"}, http.StatusBadRequest},
		{"singular matrix", nil, img, map[string]string{"matrix": "[0,0,0,0,0,0]"}, http.StatusUnprocessableEntity},
		{"invalid width", nil, img, map[string]string{"matrix": "[1,0,0,0,1,0]", "width": "-3"}, http.StatusBadRequest},
		{"oversized height", nil, img, map[string]string{"matrix": "[1,0,0,0,1,0]", "height": "100000"}, http.StatusBadRequest},
		{"id without ledger", nil, img, map[string]string{"id": "a.jpg"}, http.StatusBadRequest},
		{"unknown id", l, img, map[string]string{"id": "a.jpg"}, http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewRecoverHandler(testEngine(t), tc.ledger)
			recorder := httptest.NewRecorder()
			handler.Recover(recorder, multipartRequest(t, "/api/v1/recover", tc.img, tc.fields))
			if recorder.Code != tc.wantStatus {
				t.Errorf("expected status %d, got %d: %s", tc.wantStatus, recorder.Code, recorder.Body.String())
			}
		})
	}
}
