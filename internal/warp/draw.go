package warp

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/kozaktomas/face-align/internal/transform"
)

func init() {
	Register(DefaultBackend, func() Backend { return drawBackend{interp: draw.BiLinear} })
}

// drawBackend is the pure Go backend on top of x/image/draw.
type drawBackend struct {
	interp draw.Transformer
}

func (b drawBackend) Warp(src image.Image, m transform.Matrix, size image.Point, border color.RGBA) (*image.RGBA, error) {
	dst := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(border), image.Point{}, draw.Src)

	// x/image/draw samples at pixel centers (x+0.5) in absolute source
	// coordinates; shift so integer indices of both images are the centers.
	origin := src.Bounds().Min
	s2d := transform.Translation(0.5, 0.5).
		Mul(m).
		Mul(transform.Translation(-0.5-float64(origin.X), -0.5-float64(origin.Y)))

	a := s2d.Affine()
	b.interp.Transform(dst, f64.Aff3{
		a[0][0], a[0][1], a[0][2],
		a[1][0], a[1][1], a[1][2],
	}, src, src.Bounds(), draw.Src, nil)
	return dst, nil
}
