package aligner

import (
	"context"
	"fmt"
	"image"

	"github.com/kozaktomas/face-align/internal/ledger"
	"github.com/kozaktomas/face-align/internal/warp"
)

// Generator transforms an aligned face, e.g. an inference model.
type Generator interface {
	Generate(ctx context.Context, aligned image.Image) (image.Image, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, aligned image.Image) (image.Image, error)

func (f GeneratorFunc) Generate(ctx context.Context, aligned image.Image) (image.Image, error) {
	return f(ctx, aligned)
}

// Recoverer maps generated images back into the frames of their originals.
type Recoverer struct {
	Engine *warp.Engine
	// Generator is optional; aligned images are passed through when nil.
	Generator Generator
}

// Recover generates from every aligned image and warps the result with the
// matching batch matrix into a size canvas.
func (r *Recoverer) Recover(ctx context.Context, b *ledger.Batch, aligned []image.Image, size image.Point) ([]*image.RGBA, error) {
	if len(aligned) != b.Len() {
		return nil, fmt.Errorf("%w: %d images for %d matrices", ledger.ErrLengthMismatch, len(aligned), b.Len())
	}

	generated := aligned
	if r.Generator != nil {
		generated = make([]image.Image, len(aligned))
		for i, img := range aligned {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out, err := r.Generator.Generate(ctx, img)
			if err != nil {
				return nil, fmt.Errorf("generate image %d: %w", i, err)
			}
			generated[i] = out
		}
	}

	return ledger.ApplyBatch(r.Engine, b, generated, size)
}
