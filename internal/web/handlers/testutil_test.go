package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-align/internal/aligner"
	"github.com/kozaktomas/face-align/internal/landmark"
	"github.com/kozaktomas/face-align/internal/warp"
)

// testAligner returns an aligner producing 64x64 faces.
func testAligner(t *testing.T) *aligner.Aligner {
	t.Helper()
	engine, err := warp.New("")
	if err != nil {
		t.Fatalf("warp.New() failed: %v", err)
	}
	a, err := aligner.New(engine, aligner.Options{OutputSize: 64})
	if err != nil {
		t.Fatalf("aligner.New() failed: %v", err)
	}
	return a
}

// faceLandmarks returns a 68-point set whose anchors are the reference layout
// scaled to a 256 pixel image.
func faceLandmarks() [][]float64 {
	anchors := landmark.FFHQ1024.ForSize(256)
	pairs := make([][]float64, landmark.SetSize)
	center := anchors.EyeCenter()
	for i := range pairs {
		pairs[i] = []float64{center.X, center.Y}
	}
	set := func(r landmark.Range, a int) {
		for i := r.Start; i < r.End; i++ {
			pairs[i] = []float64{anchors[a].X, anchors[a].Y}
		}
	}
	set(landmark.EyeLeft, landmark.LeftEye)
	set(landmark.EyeRight, landmark.RightEye)
	set(landmark.Range{Start: 30, End: 31}, landmark.Nose)
	set(landmark.Range{Start: 48, End: 49}, landmark.MouthLeft)
	set(landmark.Range{Start: 54, End: 55}, landmark.MouthRight)
	return pairs
}

func pngBytes(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return buf.Bytes()
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal failed: %v", err)
	}
	return string(data)
}

// multipartRequest builds a POST request with an optional image part and plain fields.
func multipartRequest(t *testing.T, path string, img []byte, fields map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if img != nil {
		part, err := writer.CreateFormFile("image", "face.png")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		part.Write(img)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
