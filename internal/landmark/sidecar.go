package landmark

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/face-align/internal/transform"
)

// Sidecar suffixes tried next to an image, in order.
var sidecarSuffixes = []string{".landmarks.json", ".landmarks.yaml", ".landmarks.yml"}

// sidecarDoc is the on-disk detector output. A bare list of [x, y] pairs is
// accepted as well.
type sidecarDoc struct {
	Landmarks [][]float64 `json:"landmarks" yaml:"landmarks"`
}

// SidecarPath returns the first existing landmark sidecar for imagePath.
func SidecarPath(imagePath string) (string, error) {
	base := strings.TrimSuffix(imagePath, filepath.Ext(imagePath))
	for _, suffix := range sidecarSuffixes {
		p := base + suffix
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: no landmark sidecar for %s", ErrInvalidLandmarkSet, filepath.Base(imagePath))
}

// LoadSidecar reads a landmark set from a JSON or YAML file.
func LoadSidecar(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading landmarks %s: %w", path, err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	return Parse(data, ext == ".yaml" || ext == ".yml")
}

// Parse decodes a landmark set from JSON, or YAML when isYAML is set.
func Parse(data []byte, isYAML bool) (Set, error) {
	unmarshal := json.Unmarshal
	if isYAML {
		unmarshal = yaml.Unmarshal
	}

	var doc sidecarDoc
	if err := unmarshal(data, &doc); err != nil || len(doc.Landmarks) == 0 {
		var pairs [][]float64
		if errList := unmarshal(data, &pairs); errList != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidLandmarkSet, errors.Join(err, errList))
		}
		doc.Landmarks = pairs
	}

	set := make(Set, len(doc.Landmarks))
	for i, pair := range doc.Landmarks {
		if len(pair) != 2 {
			return nil, fmt.Errorf("%w: point %d has %d coordinates", ErrInvalidLandmarkSet, i, len(pair))
		}
		set[i] = transform.Pt(pair[0], pair[1])
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}
