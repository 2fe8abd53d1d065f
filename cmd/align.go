package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-align/internal/aligner"
	"github.com/kozaktomas/face-align/internal/config"
	"github.com/kozaktomas/face-align/internal/detector"
	"github.com/kozaktomas/face-align/internal/imageio"
	"github.com/kozaktomas/face-align/internal/landmark"
	"github.com/kozaktomas/face-align/internal/ledger"
	"github.com/kozaktomas/face-align/internal/warp"
)

var alignCmd = &cobra.Command{
	Use:   "align",
	Short: "Align every image of a directory",
	Long: `Align every image in --input to the reference layout and write the aligned
faces to --output. Landmarks are read from a <name>.landmarks.json (or .yaml)
file next to each image, or requested from DETECTOR_URL when there is none. The inverse transform of every aligned image is
recorded in the ledger; images that cannot be aligned are skipped and listed.`,
	RunE: runAlign,
}

func init() {
	rootCmd.AddCommand(alignCmd)

	alignCmd.Flags().String("input", "", "Directory with input images and landmark files")
	alignCmd.Flags().String("output", "", "Directory for aligned images")
	alignCmd.Flags().String("ledger", "", "Ledger directory (default from config)")
	alignCmd.Flags().Int("size", 0, "Aligned image size in pixels (default from config)")
	alignCmd.Flags().Int("workers", 0, "Number of parallel workers (default from config)")
	alignCmd.Flags().String("format", "", "Output format: jpeg, png or webp (default from config)")
	alignCmd.Flags().Bool("integrate", false, "Integrate the recorded transforms into a batch when done")
	_ = alignCmd.MarkFlagRequired("input")
	_ = alignCmd.MarkFlagRequired("output")
}

// newAligner builds the warp engine and aligner from configuration.
func newAligner(cfg *config.Config) (*aligner.Aligner, error) {
	engine, err := warp.New(cfg.Align.WarpBackend)
	if err != nil {
		return nil, err
	}
	opts, err := aligner.OptionsFromConfig(cfg.Align)
	if err != nil {
		return nil, err
	}
	return aligner.New(engine, opts)
}

func runAlign(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Align.OutputSize = intFlagOr(cmd, "size", cfg.Align.OutputSize)
	cfg.Align.Workers = intFlagOr(cmd, "workers", cfg.Align.Workers)
	cfg.Output.Format = stringFlagOr(cmd, "format", cfg.Output.Format)
	if err := cfg.Validate(); err != nil {
		return err
	}

	inputDir := mustGetString(cmd, "input")
	outputDir := mustGetString(cmd, "output")
	integrate := mustGetBool(cmd, "integrate")

	al, err := newAligner(cfg)
	if err != nil {
		return err
	}

	paths, err := imageio.ListImages(inputDir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Printf("No images found in %s\n", inputDir)
		return nil
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	if cfg.Ledger.Backend == "memory" && !integrate {
		log.Printf("WARNING: memory ledger is discarded on exit, pass --integrate to keep a batch")
	}

	ctx, cancel := signalContext()
	defer cancel()

	lh, err := openLedger(ctx, cfg, mustGetString(cmd, "ledger"))
	if err != nil {
		return err
	}
	defer lh.Close()

	fmt.Printf("Aligning %d images to %dx%d (%s reference, %s warp)\n",
		len(paths), al.OutputSize(), al.OutputSize(), cfg.Align.Reference, al.Engine().Name())
	fmt.Printf("Workers: %d\n\n", cfg.Align.Workers)

	jobs := alignJobs(paths, cfg.Detector)

	bar := progressbar.NewOptions(len(jobs),
		progressbar.OptionSetDescription("Aligning faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	start := time.Now()
	report, err := al.AlignBatch(ctx, jobs, aligner.BatchOptions{
		Workers:  cfg.Align.Workers,
		Progress: func() { bar.Add(1) },
	}, saveAligned(lh.Ledger, outputDir, cfg.Output))
	bar.Finish()
	fmt.Println()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("alignment cancelled")
		}
		return fmt.Errorf("alignment aborted: %w", err)
	}

	for _, f := range report.Failures {
		log.Printf("WARNING: skipped %s (%s): %v", filepath.Base(f.ID), f.Kind, f.Err)
	}

	fmt.Printf("\nAligned: %d\n", len(report.Aligned))
	fmt.Printf("Skipped: %d\n", len(report.Failures))
	fmt.Printf("Time:    %s\n", time.Since(start).Round(time.Millisecond))

	if !integrate || len(report.Aligned) == 0 {
		return nil
	}
	batch, err := lh.IntegrateTo(ctx, report.Aligned, lh.Sink)
	if err != nil {
		return fmt.Errorf("integrating transforms: %w", err)
	}
	fmt.Printf("Integrated %d transforms into batch %s (%s)\n", batch.Len(), batch.ID, lh.Location)
	return nil
}

// alignJobs reads landmarks from sidecars, falling back to the detection
// server for images without one when it is configured.
func alignJobs(paths []string, det config.DetectorConfig) []aligner.Job {
	var client *detector.Client
	if det.URL != "" {
		client = detector.NewClient(det.URL)
	}

	jobs := make([]aligner.Job, len(paths))
	for i, p := range paths {
		if _, err := landmark.SidecarPath(p); err != nil && client != nil {
			jobs[i] = aligner.DetectorJob(p, client)
			continue
		}
		jobs[i] = aligner.FileJob(p)
	}
	return jobs
}

// saveAligned writes each aligned image as <key><ext> and records its inverse.
func saveAligned(l *ledger.Ledger, outputDir string, out config.OutputConfig) aligner.Handler {
	return func(ctx context.Context, job aligner.Job, res *aligner.Result) error {
		key, err := ledger.Key(job.ID)
		if err != nil {
			return err
		}
		path := filepath.Join(outputDir, key+imageio.Ext(out.Format))
		if err := imageio.Save(path, res.Image, out.Format, out.JPEGQuality); err != nil {
			return err
		}
		_, err = l.Record(ctx, job.ID, res.Inverse)
		return err
	}
}
