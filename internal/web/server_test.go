package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-align/internal/aligner"
	"github.com/kozaktomas/face-align/internal/config"
	"github.com/kozaktomas/face-align/internal/ledger"
	"github.com/kozaktomas/face-align/internal/warp"
)

func newTestServer(t *testing.T, l *ledger.Ledger) *Server {
	t.Helper()
	cfg := config.Defaults()
	engine, err := warp.New(cfg.Align.WarpBackend)
	if err != nil {
		t.Fatalf("warp.New() failed: %v", err)
	}
	opts, err := aligner.OptionsFromConfig(cfg.Align)
	if err != nil {
		t.Fatalf("OptionsFromConfig() failed: %v", err)
	}
	a, err := aligner.New(engine, opts)
	if err != nil {
		t.Fatalf("aligner.New() failed: %v", err)
	}
	return NewServer(cfg, 0, "127.0.0.1", a, l)
}

func TestServer_Routes(t *testing.T) {
	tests := []struct {
		name       string
		withLedger bool
		method     string
		path       string
		wantStatus int
	}{
		{"health", false, http.MethodGet, "/api/v1/health", http.StatusOK},
		{"config", false, http.MethodGet, "/api/v1/config", http.StatusOK},
		{"align requires multipart", false, http.MethodPost, "/api/v1/align", http.StatusBadRequest},
		{"recover requires multipart", false, http.MethodPost, "/api/v1/recover", http.StatusBadRequest},
		{"align is POST only", false, http.MethodGet, "/api/v1/align", http.StatusMethodNotAllowed},
		{"ledger not mounted", false, http.MethodGet, "/api/v1/ledger", http.StatusNotFound},
		{"ledger mounted", true, http.MethodGet, "/api/v1/ledger", http.StatusOK},
		{"preflight", false, http.MethodOptions, "/api/v1/align", http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var l *ledger.Ledger
			if tc.withLedger {
				l = ledger.New(ledger.NewMemoryStore())
			}
			s := newTestServer(t, l)

			recorder := httptest.NewRecorder()
			s.Router().ServeHTTP(recorder, httptest.NewRequest(tc.method, tc.path, nil))
			if recorder.Code != tc.wantStatus {
				t.Errorf("%s %s: expected status %d, got %d", tc.method, tc.path, tc.wantStatus, recorder.Code)
			}
		})
	}
}

func TestServer_Config(t *testing.T) {
	s := newTestServer(t, nil)

	recorder := httptest.NewRecorder()
	s.Router().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/config", nil))

	var resp map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp["output_size"] != float64(1024) {
		t.Errorf("output_size = %v", resp["output_size"])
	}
	if resp["warp_backend"] != warp.DefaultBackend {
		t.Errorf("warp_backend = %v", resp["warp_backend"])
	}
}

func TestServer_CORS(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	recorder := httptest.NewRecorder()
	s.Router().ServeHTTP(recorder, req)
	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("localhost origin not allowed: %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "https://example.com")
	recorder = httptest.NewRecorder()
	s.Router().ServeHTTP(recorder, req)
	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected allowed origin %q", got)
	}
}
