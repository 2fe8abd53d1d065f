package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// clearEnv blanks every variable Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ALIGN_OUTPUT_SIZE", "ALIGN_ENABLE_PADDING", "ALIGN_SHRINK", "ALIGN_REFERENCE",
		"ALIGN_WARP_BACKEND", "ALIGN_WORKERS", "LEDGER_BACKEND", "LEDGER_DIR",
		"LEDGER_BATCH_NAME", "DATABASE_URL", "DATABASE_MAX_OPEN_CONNS",
		"DATABASE_MAX_IDLE_CONNS", "IMAGE_FORMAT", "JPEG_QUALITY", "DETECTOR_URL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Align.OutputSize != 1024 {
		t.Errorf("expected output size 1024, got %d", cfg.Align.OutputSize)
	}
	if !cfg.Align.EnablePadding || !cfg.Align.Shrink {
		t.Error("expected padding and shrink enabled by default")
	}
	if cfg.Align.Reference != "ffhq" {
		t.Errorf("expected reference 'ffhq', got '%s'", cfg.Align.Reference)
	}
	if cfg.Align.WarpBackend != "draw" {
		t.Errorf("expected warp backend 'draw', got '%s'", cfg.Align.WarpBackend)
	}
	if cfg.Align.Workers != runtime.NumCPU() {
		t.Errorf("expected %d workers, got %d", runtime.NumCPU(), cfg.Align.Workers)
	}
	if cfg.Ledger.Backend != "file" || cfg.Ledger.Dir != "result/npy" || cfg.Ledger.BatchName != "integrated_affine" {
		t.Errorf("unexpected ledger defaults: %+v", cfg.Ledger)
	}
	if cfg.Database.MaxOpenConns != 25 || cfg.Database.MaxIdleConns != 5 {
		t.Errorf("unexpected database defaults: %+v", cfg.Database)
	}
	if cfg.Output.Format != "jpeg" || cfg.Output.JPEGQuality != 95 {
		t.Errorf("unexpected output defaults: %+v", cfg.Output)
	}
	if cfg.Detector.URL != "" {
		t.Errorf("expected no detector by default, got '%s'", cfg.Detector.URL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should be valid, got %v", err)
	}
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("ALIGN_OUTPUT_SIZE", "256")
	t.Setenv("ALIGN_ENABLE_PADDING", "false")
	t.Setenv("ALIGN_REFERENCE", "Normalized")
	t.Setenv("ALIGN_WORKERS", "3")
	t.Setenv("LEDGER_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/db")
	t.Setenv("IMAGE_FORMAT", "JPG")
	t.Setenv("DETECTOR_URL", "http://detector:8000")

	cfg := Load()

	if cfg.Detector.URL != "http://detector:8000" {
		t.Errorf("unexpected detector URL '%s'", cfg.Detector.URL)
	}

	if cfg.Align.OutputSize != 256 {
		t.Errorf("expected output size 256, got %d", cfg.Align.OutputSize)
	}
	if cfg.Align.EnablePadding {
		t.Error("expected padding disabled")
	}
	if cfg.Align.Reference != "normalized" {
		t.Errorf("expected reference 'normalized', got '%s'", cfg.Align.Reference)
	}
	if cfg.Align.Workers != 3 {
		t.Errorf("expected 3 workers, got %d", cfg.Align.Workers)
	}
	if cfg.Ledger.Backend != "postgres" || cfg.Database.URL != "postgres://u:p@localhost/db" {
		t.Errorf("unexpected ledger/database config: %+v %+v", cfg.Ledger, cfg.Database)
	}
	if cfg.Output.Format != "jpeg" {
		t.Errorf("expected 'jpg' to normalize to 'jpeg', got '%s'", cfg.Output.Format)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoad_InvalidEnvFallsBack(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric size", "ALIGN_OUTPUT_SIZE", "big"},
		{"negative size", "ALIGN_OUTPUT_SIZE", "-100"},
		{"zero size", "ALIGN_OUTPUT_SIZE", "0"},
		{"bad bool", "ALIGN_ENABLE_PADDING", "sometimes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			cfg := Load()

			if cfg.Align.OutputSize != 1024 {
				t.Errorf("expected default output size 1024, got %d", cfg.Align.OutputSize)
			}
			if !cfg.Align.EnablePadding {
				t.Error("expected default padding true")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("ALIGN_OUTPUT_SIZE", "512")

	path := filepath.Join(t.TempDir(), "align.yaml")
	content := "align:\n  reference: normalized\n  workers: 2\nledger:\n  dir: /tmp/ledger\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Load()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Align.Reference != "normalized" || cfg.Align.Workers != 2 {
		t.Errorf("file values not applied: %+v", cfg.Align)
	}
	if cfg.Align.OutputSize != 512 {
		t.Errorf("keys missing from the file should keep env values, got %d", cfg.Align.OutputSize)
	}
	if cfg.Ledger.Dir != "/tmp/ledger" || cfg.Ledger.Backend != "file" {
		t.Errorf("unexpected ledger config: %+v", cfg.Ledger)
	}

	if err := cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero size", func(c *Config) { c.Align.OutputSize = 0 }, "output_size"},
		{"huge size", func(c *Config) { c.Align.OutputSize = 100000 }, "output_size"},
		{"unknown reference", func(c *Config) { c.Align.Reference = "arcface" }, "align.reference"},
		{"unknown backend", func(c *Config) { c.Ledger.Backend = "redis" }, "unknown ledger backend"},
		{"postgres without url", func(c *Config) { c.Ledger.Backend = "postgres" }, "DATABASE_URL"},
		{"file without dir", func(c *Config) { c.Ledger.Dir = "" }, "ledger.dir"},
		{"unknown format", func(c *Config) { c.Output.Format = "tiff" }, "unknown image format"},
		{"bad quality", func(c *Config) { c.Output.JPEGQuality = 0 }, "jpeg_quality"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.normalize()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
