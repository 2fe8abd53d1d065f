package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/kozaktomas/face-align/internal/config"
	"github.com/kozaktomas/face-align/internal/ledger"
	"github.com/kozaktomas/face-align/internal/ledger/postgres"
)

// ledgerHandle is an opened ledger together with where integrated batches go.
type ledgerHandle struct {
	*ledger.Ledger
	// Sink persists an integrated batch for the configured backend.
	Sink ledger.BatchSink
	// Location describes where batches end up, for messages.
	Location string
	close    func() error
}

func (h *ledgerHandle) Close() error {
	if h.close == nil {
		return nil
	}
	return h.close()
}

// batchPath returns the batch file of the file and memory backends.
func batchPath(cfg *config.Config, dir string) string {
	return filepath.Join(dir, cfg.Ledger.BatchName+".npy")
}

// openLedger opens the configured backend. dir overrides cfg.Ledger.Dir when set.
func openLedger(ctx context.Context, cfg *config.Config, dir string) (*ledgerHandle, error) {
	if dir == "" {
		dir = cfg.Ledger.Dir
	}

	switch cfg.Ledger.Backend {
	case "file":
		store, err := ledger.NewFileStore(dir)
		if err != nil {
			return nil, err
		}
		path := batchPath(cfg, dir)
		return &ledgerHandle{
			Ledger:   ledger.New(store),
			Sink:     fileSink(path),
			Location: path,
		}, nil

	case "memory":
		path := batchPath(cfg, dir)
		return &ledgerHandle{
			Ledger:   ledger.New(ledger.NewMemoryStore()),
			Sink:     fileSink(path),
			Location: path,
		}, nil

	case "postgres":
		fmt.Printf("Connecting to PostgreSQL database...\n")
		store, err := postgres.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		return &ledgerHandle{
			Ledger:   ledger.New(store),
			Sink:     store.SaveBatch,
			Location: "table transform_batches",
			close:    store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}
}

// fileSink writes batches to path. It refuses to replace an earlier batch,
// whose records are already gone, so the new records stay in the ledger.
func fileSink(path string) ledger.BatchSink {
	return func(_ context.Context, b *ledger.Batch) error {
		err := ledger.WriteBatchFile(path, b)
		if errors.Is(err, ledger.ErrBatchExists) {
			return fmt.Errorf("%w; records were kept, move the old batch away or pass --output to integrate", err)
		}
		return err
	}
}
