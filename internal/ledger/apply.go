package ledger

import (
	"fmt"
	"image"

	"github.com/kozaktomas/face-align/internal/warp"
)

// ApplyBatch warps images[i] with b.Matrices[i] into a size canvas. The
// lengths must match; nothing is warped otherwise.
func ApplyBatch(e *warp.Engine, b *Batch, images []image.Image, size image.Point) ([]*image.RGBA, error) {
	if len(images) != b.Len() {
		return nil, fmt.Errorf("%w: %d images for %d matrices", ErrLengthMismatch, len(images), b.Len())
	}

	out := make([]*image.RGBA, len(images))
	for i, img := range images {
		recovered, err := e.Apply(img, b.Matrices[i], size)
		if err != nil {
			return nil, fmt.Errorf("image %d (%s): %w", i, b.keyAt(i), err)
		}
		out[i] = recovered
	}
	return out, nil
}

func (b *Batch) keyAt(i int) string {
	if i < len(b.Keys) {
		return b.Keys[i]
	}
	return fmt.Sprintf("#%d", i)
}
