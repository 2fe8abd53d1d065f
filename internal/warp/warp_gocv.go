//go:build gocv

package warp

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/kozaktomas/face-align/internal/transform"
)

func init() {
	Register("opencv", func() Backend { return opencvBackend{} })
}

// opencvBackend warps with cv::warpAffine, bilinear with a constant border.
type opencvBackend struct{}

func (opencvBackend) Warp(src image.Image, m transform.Matrix, size image.Point, border color.RGBA) (*image.RGBA, error) {
	mat, err := gocv.ImageToMatRGBA(src)
	if err != nil {
		return nil, fmt.Errorf("converting image to mat: %w", err)
	}
	defer mat.Close()

	origin := src.Bounds().Min
	a := m.Mul(transform.Translation(-float64(origin.X), -float64(origin.Y))).Affine()
	M := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	defer M.Close()
	for r := range 2 {
		for c := range 3 {
			M.SetDoubleAt(r, c, a[r][c])
		}
	}

	warped := gocv.NewMat()
	defer warped.Close()
	gocv.WarpAffineWithParams(mat, &warped, M, size, gocv.InterpolationLinear, gocv.BorderConstant, border)

	img, err := warped.ToImage()
	if err != nil {
		return nil, fmt.Errorf("converting mat to image: %w", err)
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	for y := range size.Y {
		for x := range size.X {
			dst.Set(x, y, img.At(x, y))
		}
	}
	return dst, nil
}
