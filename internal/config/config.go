package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/face-align/internal/constants"
	"github.com/kozaktomas/face-align/internal/landmark"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Align    AlignConfig    `yaml:"align"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Database DatabaseConfig `yaml:"database"`
	Output   OutputConfig   `yaml:"output"`
	Detector DetectorConfig `yaml:"detector"`
}

type AlignConfig struct {
	OutputSize    int    `yaml:"output_size"`
	EnablePadding bool   `yaml:"enable_padding"`
	Shrink        bool   `yaml:"shrink"`
	Reference     string `yaml:"reference"`    // ffhq or normalized
	WarpBackend   string `yaml:"warp_backend"` // draw, or opencv when built with -tags gocv
	Workers       int    `yaml:"workers"`
}

type LedgerConfig struct {
	Backend   string `yaml:"backend"` // file, memory or postgres
	Dir       string `yaml:"dir"`
	BatchName string `yaml:"batch_name"`
}

type DatabaseConfig struct {
	URL          string `yaml:"url"`            // PostgreSQL connection URL
	MaxOpenConns int    `yaml:"max_open_conns"` // Maximum open connections (default 25)
	MaxIdleConns int    `yaml:"max_idle_conns"` // Maximum idle connections (default 5)
}

type OutputConfig struct {
	Format      string `yaml:"format"` // jpeg, png or webp
	JPEGQuality int    `yaml:"jpeg_quality"`
}

type DetectorConfig struct {
	URL string `yaml:"url"` // landmark detection server, used for images without a sidecar
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envBool reads an environment variable as a boolean.
// Returns the default value if the env var is unset, empty, or invalid.
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

// Load returns the built-in defaults overridden by environment variables.
func Load() *Config {
	d := Defaults()

	cfg := &Config{
		Align: AlignConfig{
			OutputSize:    envInt("ALIGN_OUTPUT_SIZE", d.Align.OutputSize),
			EnablePadding: envBool("ALIGN_ENABLE_PADDING", d.Align.EnablePadding),
			Shrink:        envBool("ALIGN_SHRINK", d.Align.Shrink),
			Reference:     envString("ALIGN_REFERENCE", d.Align.Reference),
			WarpBackend:   envString("ALIGN_WARP_BACKEND", d.Align.WarpBackend),
			Workers:       envInt("ALIGN_WORKERS", d.Align.Workers),
		},
		Ledger: LedgerConfig{
			Backend:   envString("LEDGER_BACKEND", d.Ledger.Backend),
			Dir:       envString("LEDGER_DIR", d.Ledger.Dir),
			BatchName: envString("LEDGER_BATCH_NAME", d.Ledger.BatchName),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", d.Database.MaxOpenConns),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", d.Database.MaxIdleConns),
		},
		Output: OutputConfig{
			Format:      envString("IMAGE_FORMAT", d.Output.Format),
			JPEGQuality: envInt("JPEG_QUALITY", d.Output.JPEGQuality),
		},
		Detector: DetectorConfig{
			URL: envString("DETECTOR_URL", d.Detector.URL),
		},
	}
	cfg.normalize()
	return cfg
}

// LoadFile overlays the YAML file at path onto c. Keys missing from the file
// keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	c.normalize()
	return nil
}

func (c *Config) normalize() {
	if c.Align.Workers <= 0 {
		c.Align.Workers = runtime.NumCPU()
	}
	c.Align.Reference = strings.ToLower(strings.TrimSpace(c.Align.Reference))
	c.Align.WarpBackend = strings.ToLower(strings.TrimSpace(c.Align.WarpBackend))
	c.Ledger.Backend = strings.ToLower(strings.TrimSpace(c.Ledger.Backend))
	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))
	if c.Output.Format == "jpg" {
		c.Output.Format = "jpeg"
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Align.OutputSize <= 0 || c.Align.OutputSize > constants.MaxOutputSize {
		errs = append(errs, fmt.Errorf("align.output_size must be in 1..%d, got %d", constants.MaxOutputSize, c.Align.OutputSize))
	}
	if _, err := landmark.ReferenceByName(c.Align.Reference); err != nil {
		errs = append(errs, fmt.Errorf("align.reference: %w", err))
	}

	switch c.Ledger.Backend {
	case "file":
		if c.Ledger.Dir == "" {
			errs = append(errs, errors.New("ledger.dir is required for the file backend"))
		}
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend))
	}
	if c.Ledger.BatchName == "" {
		errs = append(errs, errors.New("ledger.batch_name must not be empty"))
	}

	switch c.Output.Format {
	case "jpeg", "png", "webp":
	default:
		errs = append(errs, fmt.Errorf("unknown image format %q", c.Output.Format))
	}
	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("output.jpeg_quality must be in 1..100, got %d", c.Output.JPEGQuality))
	}

	return errors.Join(errs...)
}
