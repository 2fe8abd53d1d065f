package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"github.com/kozaktomas/face-align/internal/transform"
)

const recordExt = ".npy"

// FileStore keeps one <key>.npy file (a 3x3 float64 array) per record in a
// directory. Writes go through a temp file and a rename, so concurrent Puts
// for distinct keys never observe partial files.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store rooted at it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+recordExt)
}

func (s *FileStore) Put(_ context.Context, rec Record) (bool, error) {
	tmp, err := os.CreateTemp(s.dir, "."+rec.Key+".*.tmp")
	if err != nil {
		return false, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := npyio.Write(tmp, rec.Matrix.Dense()); err != nil {
		tmp.Close()
		return false, fmt.Errorf("writing %s: %w", rec.Key, err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("closing %s: %w", rec.Key, err)
	}

	_, statErr := os.Stat(s.path(rec.Key))
	replaced := statErr == nil

	if err := os.Rename(tmp.Name(), s.path(rec.Key)); err != nil {
		return false, fmt.Errorf("storing %s: %w", rec.Key, err)
	}
	if !rec.RecordedAt.IsZero() {
		_ = os.Chtimes(s.path(rec.Key), rec.RecordedAt, rec.RecordedAt)
	}
	return replaced, nil
}

func (s *FileStore) Get(_ context.Context, key string) (Record, error) {
	f, err := os.Open(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, key)
	}
	if err != nil {
		return Record{}, fmt.Errorf("opening %s: %w", key, err)
	}
	defer f.Close()

	var d mat.Dense
	if err := npyio.Read(f, &d); err != nil {
		return Record{}, fmt.Errorf("reading %s: %w", key, err)
	}
	m, err := transform.FromDense(&d)
	if err != nil {
		return Record{}, fmt.Errorf("reading %s: %w", key, err)
	}

	rec := Record{Key: key, Matrix: m}
	if info, err := f.Stat(); err == nil {
		rec.RecordedAt = info.ModTime().UTC()
	}
	return rec, nil
}

func (s *FileStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		if _, err := os.Stat(s.path(key)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%w: %s", ErrRecordNotFound, key)
			}
			return fmt.Errorf("checking %s: %w", key, err)
		}
	}
	for _, key := range keys {
		if err := os.Remove(s.path(key)); err != nil {
			return fmt.Errorf("deleting %s: %w", key, err)
		}
	}
	return nil
}

func (s *FileStore) Keys(_ context.Context) ([]string, error) {
	return SortedKeys(s.dir)
}

// SortedKeys lists the record keys stored in dir in lexicographic order.
// Batch artifacts, recognized by the manifest next to them, are skipped.
func SortedKeys(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != recordExt {
			continue
		}
		key := strings.TrimSuffix(name, recordExt)
		if _, err := os.Stat(filepath.Join(dir, key+manifestExt)); err == nil {
			continue
		}
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys, nil
}
