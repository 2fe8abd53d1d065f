package cmd

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-align/internal/aligner"
	"github.com/kozaktomas/face-align/internal/constants"
	"github.com/kozaktomas/face-align/internal/imageio"
	"github.com/kozaktomas/face-align/internal/ledger"
	"github.com/kozaktomas/face-align/internal/ledger/postgres"
	"github.com/kozaktomas/face-align/internal/warp"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Map aligned images back into their original frames",
	Long: `Warp every aligned (typically generated) image in --input with the matching
matrix of an integrated batch. With a manifest, images are matched to batch
entries by name; without one they are taken in sorted filename order and the
counts must match.`,
	RunE: runRecover,
}

func init() {
	rootCmd.AddCommand(recoverCmd)

	recoverCmd.Flags().String("input", "", "Directory with aligned images")
	recoverCmd.Flags().String("batch", "", "Integrated batch file (.npy)")
	recoverCmd.Flags().String("batch-id", "", "Integrated batch id (postgres backend)")
	recoverCmd.Flags().String("output", "", "Directory for recovered images (default <input>/recovered)")
	recoverCmd.Flags().Int("width", constants.DefaultRecoverWidth, "Width of recovered images")
	recoverCmd.Flags().Int("height", constants.DefaultRecoverHeight, "Height of recovered images")
	_ = recoverCmd.MarkFlagRequired("input")
}

func runRecover(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	inputDir := mustGetString(cmd, "input")
	outputDir := mustGetString(cmd, "output")
	if outputDir == "" {
		outputDir = filepath.Join(inputDir, "recovered")
	}
	width := mustGetInt(cmd, "width")
	height := mustGetInt(cmd, "height")
	if width <= 0 || height <= 0 || width > constants.MaxOutputSize || height > constants.MaxOutputSize {
		return fmt.Errorf("--width and --height must be in 1..%d", constants.MaxOutputSize)
	}

	ctx, cancel := signalContext()
	defer cancel()

	var batch *ledger.Batch
	switch batchPath, batchID := mustGetString(cmd, "batch"), mustGetString(cmd, "batch-id"); {
	case batchPath != "":
		if batch, err = ledger.ReadBatchFile(batchPath); err != nil {
			return err
		}
	case batchID != "":
		id, err := uuid.Parse(batchID)
		if err != nil {
			return fmt.Errorf("invalid --batch-id: %w", err)
		}
		store, err := postgres.Open(ctx, &cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		defer store.Close()
		if batch, err = store.LoadBatch(ctx, id); err != nil {
			return err
		}
	default:
		return errors.New("either --batch or --batch-id is required")
	}

	paths, err := imageio.ListImages(inputDir)
	if err != nil {
		return err
	}
	paths, err = matchBatch(batch, paths)
	if err != nil {
		return err
	}

	engine, err := warp.New(cfg.Align.WarpBackend)
	if err != nil {
		return err
	}

	fmt.Printf("Recovering %d images to %dx%d\n\n", len(paths), width, height)

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("Loading images"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionFullWidth(),
	)
	images := make([]image.Image, len(paths))
	for i, p := range paths {
		if images[i], err = imageio.Load(p); err != nil {
			return err
		}
		bar.Add(1)
	}
	bar.Finish()
	fmt.Println()

	r := &aligner.Recoverer{Engine: engine}
	recovered, err := r.Recover(ctx, batch, images, image.Pt(width, height))
	if err != nil {
		return err
	}

	ext := imageio.Ext(cfg.Output.Format)
	for i, img := range recovered {
		name := strings.TrimSuffix(filepath.Base(paths[i]), filepath.Ext(paths[i]))
		out := filepath.Join(outputDir, name+ext)
		if err := imageio.Save(out, img, cfg.Output.Format, cfg.Output.JPEGQuality); err != nil {
			return err
		}
	}
	fmt.Printf("Recovered %d images into %s\n", len(recovered), outputDir)
	return nil
}

// matchBatch orders paths like the batch. Batches with keys are matched by
// key; keyless batches take paths in the given (sorted) order.
func matchBatch(b *ledger.Batch, paths []string) ([]string, error) {
	if len(b.Keys) == 0 {
		if len(paths) != b.Len() {
			return nil, fmt.Errorf("%w: %d images for %d matrices", ledger.ErrLengthMismatch, len(paths), b.Len())
		}
		return paths, nil
	}

	byKey := make(map[string]string, len(paths))
	for _, p := range paths {
		key, err := ledger.Key(p)
		if err != nil {
			continue
		}
		if prev, ok := byKey[key]; ok {
			return nil, fmt.Errorf("images %s and %s share key %q", filepath.Base(prev), filepath.Base(p), key)
		}
		byKey[key] = p
	}

	ordered := make([]string, len(b.Keys))
	var missing []string
	for i, key := range b.Keys {
		p, ok := byKey[key]
		if !ok {
			missing = append(missing, key)
			continue
		}
		ordered[i] = p
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: no image for %d batch entries: %s", ledger.ErrLengthMismatch, len(missing), strings.Join(missing, ", "))
	}
	return ordered, nil
}
