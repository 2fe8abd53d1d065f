package aligner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"

	"github.com/kozaktomas/face-align/internal/imageio"
	"github.com/kozaktomas/face-align/internal/landmark"
	"github.com/kozaktomas/face-align/internal/ledger"
	"github.com/kozaktomas/face-align/internal/transform"
)

// Kind classifies a per-image failure.
type Kind string

const (
	KindInvalidLandmarks Kind = "invalid_landmarks"
	KindDegenerate       Kind = "degenerate_transform"
	KindSingular         Kind = "singular_transform"
	KindDuplicateKey     Kind = "duplicate_key"
	KindInput            Kind = "input"
)

// ErrDuplicateKey means several jobs of one batch derive the same ledger key.
var ErrDuplicateKey = errors.New("duplicate ledger key")

// KindOf maps a pipeline error to its failure kind.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, landmark.ErrInvalidLandmarkSet):
		return KindInvalidLandmarks
	case errors.Is(err, transform.ErrDegenerateTransform):
		return KindDegenerate
	case errors.Is(err, transform.ErrSingularTransform):
		return KindSingular
	case errors.Is(err, ErrDuplicateKey):
		return KindDuplicateKey
	default:
		return KindInput
	}
}

// Failure is an image excluded from a batch.
type Failure struct {
	ID   string
	Kind Kind
	Err  error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %s: %v", f.ID, f.Kind, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// LandmarkDetector produces the 68-point landmark set of an image.
type LandmarkDetector interface {
	Detect(ctx context.Context, img image.Image) (landmark.Set, error)
}

// Job is one image to align. Load is called from a worker goroutine.
type Job struct {
	ID   string
	Load func(ctx context.Context) (image.Image, landmark.Set, error)
}

// FileJob loads the image at path and the landmark sidecar next to it.
func FileJob(path string) Job {
	return Job{
		ID: path,
		Load: func(context.Context) (image.Image, landmark.Set, error) {
			sidecar, err := landmark.SidecarPath(path)
			if err != nil {
				return nil, nil, err
			}
			lms, err := landmark.LoadSidecar(sidecar)
			if err != nil {
				return nil, nil, err
			}
			img, err := imageio.Load(path)
			if err != nil {
				return nil, nil, err
			}
			return img, lms, nil
		},
	}
}

// DetectorJob loads the image at path and runs detector on it.
func DetectorJob(path string, detector LandmarkDetector) Job {
	return Job{
		ID: path,
		Load: func(ctx context.Context) (image.Image, landmark.Set, error) {
			img, err := imageio.Load(path)
			if err != nil {
				return nil, nil, err
			}
			lms, err := detector.Detect(ctx, img)
			if err != nil {
				return nil, nil, err
			}
			return img, lms, nil
		},
	}
}

// Handler consumes one aligned image, typically saving it and recording its
// inverse. A handler error aborts the whole batch.
type Handler func(ctx context.Context, job Job, res *Result) error

// BatchReport lists the outcome of every job in input order.
type BatchReport struct {
	Aligned  []string
	Failures []Failure
}

// BatchOptions controls AlignBatch.
type BatchOptions struct {
	// Workers bounds the number of concurrent alignments; 0 means one per CPU.
	Workers int
	// Progress is called once per finished job.
	Progress func()
}

// AlignBatch aligns jobs concurrently. Per-image failures are collected in
// the report and do not stop the batch; a handler error does. Jobs whose IDs
// map to the same ledger key are all reported as duplicates and not aligned.
func (a *Aligner) AlignBatch(ctx context.Context, jobs []Job, opts BatchOptions, handle Handler) (*BatchReport, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ok := make([]bool, len(jobs))
	failures := make([]*Failure, len(jobs))
	var abortErr error
	var mu sync.Mutex

	for i, err := range keyConflicts(jobs) {
		failures[i] = &Failure{ID: jobs[i].ID, Kind: KindOf(err), Err: err}
		if opts.Progress != nil {
			opts.Progress()
		}
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, job := range jobs {
		if failures[i] != nil {
			continue
		}
		wg.Add(1)
		go func(i int, job Job) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if opts.Progress != nil {
				defer opts.Progress()
			}
			if ctx.Err() != nil {
				return
			}

			res, err := a.alignJob(ctx, job)
			if err != nil {
				mu.Lock()
				failures[i] = &Failure{ID: job.ID, Kind: KindOf(err), Err: err}
				mu.Unlock()
				return
			}

			if handle != nil {
				if err := handle(ctx, job, res); err != nil {
					mu.Lock()
					if abortErr == nil {
						abortErr = fmt.Errorf("%s: %w", job.ID, err)
					}
					mu.Unlock()
					cancel()
					return
				}
			}

			mu.Lock()
			ok[i] = true
			mu.Unlock()
		}(i, job)
	}

	wg.Wait()

	if abortErr != nil {
		return nil, abortErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &BatchReport{}
	for i, job := range jobs {
		switch {
		case ok[i]:
			report.Aligned = append(report.Aligned, job.ID)
		case failures[i] != nil:
			report.Failures = append(report.Failures, *failures[i])
		}
	}
	return report, nil
}

// keyConflicts returns, by job index, the jobs that cannot get a ledger record
// of their own: IDs without a key and IDs sharing a key.
func keyConflicts(jobs []Job) map[int]error {
	conflicts := make(map[int]error)
	byKey := make(map[string][]int, len(jobs))
	for i, job := range jobs {
		key, err := ledger.Key(job.ID)
		if err != nil {
			conflicts[i] = err
			continue
		}
		byKey[key] = append(byKey[key], i)
	}
	for key, idx := range byKey {
		if len(idx) < 2 {
			continue
		}
		for _, i := range idx {
			conflicts[i] = fmt.Errorf("%w: %q is shared by %d images", ErrDuplicateKey, key, len(idx))
		}
	}
	return conflicts
}

func (a *Aligner) alignJob(ctx context.Context, job Job) (*Result, error) {
	img, lms, err := job.Load(ctx)
	if err != nil {
		return nil, err
	}
	return a.Align(img, lms)
}
