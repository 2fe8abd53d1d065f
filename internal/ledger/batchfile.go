package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sbinet/npyio"
	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/face-align/internal/transform"
)

const manifestExt = ".yaml"

// manifest sits next to a batch array and names the key of every index.
type manifest struct {
	ID        string    `yaml:"id"`
	CreatedAt time.Time `yaml:"created_at"`
	Count     int       `yaml:"count"`
	Keys      []string  `yaml:"keys"`
}

// ManifestPath returns the manifest path for a batch array path.
func ManifestPath(path string) string {
	return strings.TrimSuffix(path, recordExt) + manifestExt
}

// WriteBatchFile stores b as a float64 array of shape (N, 3, 3) at path and
// writes its manifest next to it. An existing batch at path is never
// replaced: the call fails with ErrBatchExists.
func WriteBatchFile(path string, b *Batch) error {
	for _, p := range []string{path, ManifestPath(path)} {
		if _, err := os.Stat(p); err == nil {
			return fmt.Errorf("%w: %s", ErrBatchExists, p)
		}
	}

	if err := createFileAtomic(path, func(w io.Writer) error {
		return npyio.Write(w, b.Matrices)
	}); err != nil {
		return fmt.Errorf("writing batch array: %w", err)
	}

	doc, err := yaml.Marshal(manifest{
		ID:        b.ID.String(),
		CreatedAt: b.CreatedAt,
		Count:     b.Len(),
		Keys:      b.Keys,
	})
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := createFileAtomic(ManifestPath(path), func(w io.Writer) error {
		_, err := w.Write(doc)
		return err
	}); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// ReadBatchFile loads a batch array of shape (N, 3, 3) or (N, 2, 3). The
// manifest is optional; without it the batch has no keys.
func ReadBatchFile(path string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening batch array: %w", err)
	}
	defer f.Close()

	r, err := npyio.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	descr := r.Header.Descr
	if descr.Type != "<f8" || descr.Fortran {
		return nil, fmt.Errorf("reading %s: unsupported array %s, want C-ordered <f8", path, r.Header)
	}

	var n, rows int
	switch shape := descr.Shape; {
	case slices.Equal(shape, []int{0}):
		// an empty batch is written with shape (0,)
	case len(shape) == 3 && shape[2] == 3 && (shape[1] == 2 || shape[1] == 3):
		n, rows = shape[0], shape[1]
	default:
		return nil, fmt.Errorf("reading %s: unexpected shape %v, want (N, 3, 3)", path, shape)
	}

	b := &Batch{Matrices: make([]transform.Matrix, n)}
	if n > 0 {
		data := make([]float64, n*rows*3)
		if err := r.Read(&data); err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		for i := range n {
			m, err := transform.FromFlat(data[i*rows*3 : (i+1)*rows*3])
			if err != nil {
				return nil, fmt.Errorf("matrix %d: %w", i, err)
			}
			b.Matrices[i] = m
		}
	}

	doc, err := os.ReadFile(ManifestPath(path))
	if errors.Is(err, fs.ErrNotExist) {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var man manifest
	if err := yaml.Unmarshal(doc, &man); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if len(man.Keys) != n {
		return nil, fmt.Errorf("%w: manifest lists %d keys for %d matrices", ErrLengthMismatch, len(man.Keys), n)
	}
	if man.ID != "" {
		id, err := uuid.Parse(man.ID)
		if err != nil {
			return nil, fmt.Errorf("parsing batch id: %w", err)
		}
		b.ID = id
	}
	b.CreatedAt = man.CreatedAt
	b.Keys = man.Keys
	return b, nil
}

// createFileAtomic writes a temp file and links it into place, failing with
// ErrBatchExists when path appeared in the meantime.
func createFileAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".batch.*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := write(w); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Link(tmp.Name(), path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrBatchExists, path)
		}
		return err
	}
	return nil
}
