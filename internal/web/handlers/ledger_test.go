package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/face-align/internal/ledger"
	"github.com/kozaktomas/face-align/internal/transform"
)

func TestLedgerHandler(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())
	ctx := context.Background()
	for _, id := range []string{"b.jpg", "a.jpg"} {
		if _, err := l.Record(ctx, id, transform.Translation(3, -2)); err != nil {
			t.Fatal(err)
		}
	}
	handler := NewLedgerHandler(l)

	t.Run("list", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.List(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/ledger", nil))

		var result struct {
			Keys  []string `json:"keys"`
			Count int      `json:"count"`
		}
		if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
		if result.Count != 2 || result.Keys[0] != "a" || result.Keys[1] != "b" {
			t.Errorf("unexpected listing %+v", result)
		}
	})

	t.Run("get", func(t *testing.T) {
		req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/api/v1/ledger/a", nil), map[string]string{"id": "a"})
		recorder := httptest.NewRecorder()
		handler.Get(recorder, req)

		if recorder.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
		}
		var resp RecordResponse
		if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
		if resp.Key != "a" || len(resp.Matrix) != 9 || resp.Matrix[2] != 3 || resp.Matrix[5] != -2 {
			t.Errorf("unexpected record %+v", resp)
		}
		if _, err := time.Parse(time.RFC3339, resp.RecordedAt); err != nil {
			t.Errorf("recorded_at %q is not RFC 3339", resp.RecordedAt)
		}
	})

	t.Run("get unknown", func(t *testing.T) {
		req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/api/v1/ledger/zzz", nil), map[string]string{"id": "zzz"})
		recorder := httptest.NewRecorder()
		handler.Get(recorder, req)

		if recorder.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, recorder.Code)
		}
	})
}
