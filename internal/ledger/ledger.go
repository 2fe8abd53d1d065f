// Package ledger persists the inverse alignment transform of every image and
// stacks them into ordered batches for bulk recovery.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/kozaktomas/face-align/internal/transform"
)

var (
	// ErrRecordNotFound means a requested identifier has no stored transform.
	ErrRecordNotFound = errors.New("transform record not found")
	// ErrLengthMismatch means a batch and its image list differ in length.
	ErrLengthMismatch = errors.New("batch length mismatch")
	// ErrInvalidKey means no key could be derived from an identifier.
	ErrInvalidKey = errors.New("invalid ledger key")
	// ErrBatchExists means a batch artifact is already stored at the target path.
	ErrBatchExists = errors.New("batch file already exists")
)

// Record is one stored inverse transform.
type Record struct {
	Key        string
	Matrix     transform.Matrix
	RecordedAt time.Time
}

// Store is keyed persistence for records. Implementations must allow
// concurrent Put calls for distinct keys.
type Store interface {
	// Put stores rec and reports whether an existing record was replaced.
	Put(ctx context.Context, rec Record) (bool, error)
	// Get returns the record for key or ErrRecordNotFound.
	Get(ctx context.Context, key string) (Record, error)
	// Delete removes all keys, or none when any of them is missing.
	Delete(ctx context.Context, keys ...string) error
	// Keys lists stored keys in lexicographic order.
	Keys(ctx context.Context) ([]string, error)
}

// Key derives the ledger key of an image identifier: the file name up to its
// first dot, in Unicode NFC so differently composed names collide.
func Key(identifier string) (string, error) {
	base := filepath.Base(strings.TrimSpace(identifier))
	stem, _, _ := strings.Cut(base, ".")
	stem = norm.NFC.String(stem)
	if stem == "" || stem == "/" || stem == string(filepath.Separator) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, identifier)
	}
	return stem, nil
}

// Batch is an ordered stack of inverse transforms. Index i belongs to Keys[i].
type Batch struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Keys      []string
	Matrices  []transform.Matrix
}

// Len returns the number of matrices in the batch.
func (b *Batch) Len() int {
	return len(b.Matrices)
}

// Split returns the batch as individual records.
func (b *Batch) Split() []Record {
	records := make([]Record, len(b.Matrices))
	for i, m := range b.Matrices {
		records[i] = Record{Matrix: m, RecordedAt: b.CreatedAt}
		if i < len(b.Keys) {
			records[i].Key = b.Keys[i]
		}
	}
	return records
}

// BatchSink persists a stacked batch before its records are deleted.
type BatchSink func(ctx context.Context, b *Batch) error

// Ledger records per-image transforms and integrates them into batches.
type Ledger struct {
	store Store
	now   func() time.Time
}

// New creates a ledger on top of store.
func New(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// Store returns the underlying store.
func (l *Ledger) Store() Store {
	return l.store
}

// Record stores the inverse transform of the image named by identifier and
// returns its key. Re-recording a key overwrites it with a warning.
func (l *Ledger) Record(ctx context.Context, identifier string, inv transform.Matrix) (string, error) {
	key, err := Key(identifier)
	if err != nil {
		return "", err
	}
	if !inv.IsFinite() {
		return "", fmt.Errorf("recording %s: %w: non-finite matrix", key, transform.ErrSingularTransform)
	}

	replaced, err := l.store.Put(ctx, Record{Key: key, Matrix: inv, RecordedAt: l.now().UTC()})
	if err != nil {
		return "", fmt.Errorf("recording %s: %w", key, err)
	}
	if replaced {
		log.Printf("WARNING: overwriting transform record %q", key)
	}
	return key, nil
}

// Get returns the record of identifier.
func (l *Ledger) Get(ctx context.Context, identifier string) (Record, error) {
	key, err := Key(identifier)
	if err != nil {
		return Record{}, err
	}
	return l.store.Get(ctx, key)
}

// Pending lists the keys waiting for integration, sorted.
func (l *Ledger) Pending(ctx context.Context) ([]string, error) {
	return l.store.Keys(ctx)
}

// Stack reads the records of identifiers in the given order without deleting them.
func (l *Ledger) Stack(ctx context.Context, identifiers []string) (*Batch, error) {
	b := &Batch{
		ID:        uuid.New(),
		CreatedAt: l.now().UTC(),
		Keys:      make([]string, 0, len(identifiers)),
		Matrices:  make([]transform.Matrix, 0, len(identifiers)),
	}
	seen := make(map[string]bool, len(identifiers))
	for i, id := range identifiers {
		key, err := Key(id)
		if err != nil {
			return nil, err
		}
		if seen[key] {
			return nil, fmt.Errorf("%w: identifier %d: key %q listed twice", ErrInvalidKey, i, key)
		}
		seen[key] = true

		rec, err := l.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("identifier %d (%s): %w", i, key, err)
		}
		b.Keys = append(b.Keys, key)
		b.Matrices = append(b.Matrices, rec.Matrix)
	}
	return b, nil
}

// Commit deletes the records consumed by b.
func (l *Ledger) Commit(ctx context.Context, b *Batch) error {
	if len(b.Keys) == 0 {
		return nil
	}
	if err := l.store.Delete(ctx, b.Keys...); err != nil {
		return fmt.Errorf("committing batch %s: %w", b.ID, err)
	}
	return nil
}

// Integrate stacks the records of identifiers and deletes them. It is a
// one-shot compaction: integrating the same identifiers again fails with
// ErrRecordNotFound.
func (l *Ledger) Integrate(ctx context.Context, identifiers []string) (*Batch, error) {
	return l.IntegrateTo(ctx, identifiers, nil)
}

// IntegrateTo stacks the records, hands the batch to sink and deletes the
// records only once sink succeeded. A nil sink behaves like Integrate.
func (l *Ledger) IntegrateTo(ctx context.Context, identifiers []string, sink BatchSink) (*Batch, error) {
	b, err := l.Stack(ctx, identifiers)
	if err != nil {
		return nil, err
	}
	if sink != nil {
		if err := sink(ctx, b); err != nil {
			return nil, fmt.Errorf("persisting batch %s: %w", b.ID, err)
		}
	}
	if err := l.Commit(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// IntegrateAll integrates every pending record in key order.
func (l *Ledger) IntegrateAll(ctx context.Context, sink BatchSink) (*Batch, error) {
	keys, err := l.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return l.IntegrateTo(ctx, keys, sink)
}

// Restore writes every matrix of b back as an individual record.
func (l *Ledger) Restore(ctx context.Context, b *Batch) error {
	if len(b.Keys) != b.Len() {
		return fmt.Errorf("%w: %d keys for %d matrices", ErrLengthMismatch, len(b.Keys), b.Len())
	}
	for _, rec := range b.Split() {
		if _, err := l.Record(ctx, rec.Key, rec.Matrix); err != nil {
			return err
		}
	}
	return nil
}
