// Package canvas derives the crop/pad geometry of a face from its anchors and
// extends the source image so that the alignment warp never samples outside it.
package canvas

import (
	"image"
	"math"

	"github.com/kozaktomas/face-align/internal/landmark"
	"github.com/kozaktomas/face-align/internal/transform"
)

const (
	borderFactor = 0.1  // border = max(round(qsize*borderFactor), minBorder)
	minBorder    = 3    // smallest border in pixels
	padFactor    = 0.3  // extended pad per side = round(qsize*padFactor)
	blurFactor   = 0.02 // gaussian sigma = qsize*blurFactor
	shrinkFactor = 0.5  // shrink = floor(qsize/outputSize*shrinkFactor)
	padSlack     = 4    // extension triggers when max(pad) > border-padSlack
)

// Pad holds per-side pad amounts in pixels. All values are non-negative.
type Pad struct {
	Left   int `json:"left" yaml:"left"`
	Top    int `json:"top" yaml:"top"`
	Right  int `json:"right" yaml:"right"`
	Bottom int `json:"bottom" yaml:"bottom"`
}

// Max returns the largest side.
func (p Pad) Max() int {
	return max(p.Left, p.Top, p.Right, p.Bottom)
}

// IsZero reports whether no padding is present.
func (p Pad) IsZero() bool {
	return p == Pad{}
}

// Offset returns the translation of the top-left corner caused by the pad.
func (p Pad) Offset() image.Point {
	return image.Pt(p.Left, p.Top)
}

// Grow returns p with every side raised to at least n.
func (p Pad) Grow(n int) Pad {
	return Pad{
		Left:   max(p.Left, n),
		Top:    max(p.Top, n),
		Right:  max(p.Right, n),
		Bottom: max(p.Bottom, n),
	}
}

// Options controls geometry derivation.
type Options struct {
	// OutputSize is the side of the aligned canvas; it drives the shrink factor.
	OutputSize int
	// EnablePadding turns on canvas extension when the quad leaves the image.
	EnablePadding bool
	// Shrink allows downscaling very large faces before extension.
	Shrink bool
}

// Geometry is the oriented crop quad of a face and the crop/pad amounts derived from it.
type Geometry struct {
	// Quad corners in image coordinates: c-x-y, c-x+y, c+x+y, c+x-y.
	Quad [4]transform.Point
	// QSize is twice the quad half-axis length, used as a face size proxy.
	QSize float64
	// Border is the margin added around the quad.
	Border int
	// Crop is the quad bounding box plus border, clamped to the image.
	Crop image.Rectangle
	// Overflow is how far the quad plus border leaves the image on each side.
	Overflow Pad
	// Pad is the padding actually applied; zero unless Extended.
	Pad Pad
	// Extended reports whether the canvas must be extended.
	Extended bool
	// Shrink is the integer downscale factor (1 when the image is used as is).
	Shrink int
	// Size is the image size the geometry refers to, after shrinking.
	Size image.Point
}

// Quad computes the oriented FFHQ crop quad and qsize from the anchors.
func Quad(a landmark.Anchors) ([4]transform.Point, float64) {
	eyeAvg := a.EyeCenter()
	eyeToEye := a[landmark.RightEye].Sub(a[landmark.LeftEye])
	eyeToMouth := a.MouthCenter().Sub(eyeAvg)

	// x = eye_to_eye - rot90(eye_to_mouth)
	x := transform.Pt(eyeToEye.X+eyeToMouth.Y, eyeToEye.Y-eyeToMouth.X)
	if l := x.Len(); l > 0 {
		x = x.Scale(1 / l)
	}
	x = x.Scale(math.Max(eyeToEye.Len()*2.0, eyeToMouth.Len()*1.8))
	y := transform.Pt(-x.Y, x.X)
	c := eyeAvg.Add(eyeToMouth.Scale(0.1))

	quad := [4]transform.Point{
		c.Sub(x).Sub(y),
		c.Sub(x).Add(y),
		c.Add(x).Add(y),
		c.Add(x).Sub(y),
	}
	return quad, x.Len() * 2
}

// ComputeGeometry derives crop and pad amounts for an image of the given size.
// It never fails: degenerate anchors yield a zero-size quad and minimal border.
func ComputeGeometry(a landmark.Anchors, size image.Point, opts Options) Geometry {
	quad, qsize := Quad(a)

	g := Geometry{Shrink: 1, Size: size}

	if opts.Shrink && opts.OutputSize > 0 {
		if shrink := int(math.Floor(qsize / float64(opts.OutputSize) * shrinkFactor)); shrink > 1 {
			g.Shrink = shrink
			g.Size = ShrunkSize(size, shrink)
			for i := range quad {
				quad[i] = quad[i].Scale(1 / float64(shrink))
			}
			qsize /= float64(shrink)
		}
	}
	g.Quad = quad
	g.QSize = qsize
	g.Border = max(int(math.RoundToEven(qsize*borderFactor)), minBorder)

	minX, minY, maxX, maxY := quadBounds(quad)
	w, h := g.Size.X, g.Size.Y

	g.Crop = image.Rect(minX-g.Border, minY-g.Border, maxX+g.Border, maxY+g.Border).
		Intersect(image.Rect(0, 0, w, h))

	g.Overflow = Pad{
		Left:   max(-minX+g.Border, 0),
		Top:    max(-minY+g.Border, 0),
		Right:  max(maxX-w+g.Border, 0),
		Bottom: max(maxY-h+g.Border, 0),
	}

	if opts.EnablePadding && g.Overflow.Max() > g.Border-padSlack {
		g.Pad = g.Overflow.Grow(int(math.RoundToEven(qsize * padFactor)))
		g.Extended = true
	}
	return g
}

// BlurSigma returns the gaussian sigma used to hide pad seams.
func (g Geometry) BlurSigma() float64 {
	return g.QSize * blurFactor
}

// ShrinkScale returns the per-axis factors mapping shrunk coordinates back to
// the original image of the given size.
func (g Geometry) ShrinkScale(original image.Point) (float64, float64) {
	if g.Shrink <= 1 || g.Size.X == 0 || g.Size.Y == 0 {
		return 1, 1
	}
	return float64(original.X) / float64(g.Size.X), float64(original.Y) / float64(g.Size.Y)
}

// ShrinkTransform maps shrunk pixel coordinates to the original image of the
// given size. Pixel indices are pixel centers, matching Shrink's resampling:
// x_orig = s*x_shrunk + (s-1)/2.
func (g Geometry) ShrinkTransform(original image.Point) transform.Matrix {
	sx, sy := g.ShrinkScale(original)
	return transform.Translation((sx-1)/2, (sy-1)/2).Mul(transform.Scaling(sx, sy))
}

// Translated returns the geometry with the quad moved by the applied pad.
func (g Geometry) Translated() Geometry {
	off := transform.Pt(float64(g.Pad.Left), float64(g.Pad.Top))
	for i := range g.Quad {
		g.Quad[i] = g.Quad[i].Add(off)
	}
	return g
}

// ShrunkSize returns round(size/shrink) per axis, at least one pixel.
func ShrunkSize(size image.Point, shrink int) image.Point {
	return image.Pt(
		max(int(math.RoundToEven(float64(size.X)/float64(shrink))), 1),
		max(int(math.RoundToEven(float64(size.Y)/float64(shrink))), 1),
	)
}

// quadBounds returns floor(min) and ceil(max) of the quad coordinates.
func quadBounds(q [4]transform.Point) (minX, minY, maxX, maxY int) {
	lx, ly := q[0].X, q[0].Y
	hx, hy := q[0].X, q[0].Y
	for _, p := range q[1:] {
		lx = math.Min(lx, p.X)
		ly = math.Min(ly, p.Y)
		hx = math.Max(hx, p.X)
		hy = math.Max(hy, p.Y)
	}
	return int(math.Floor(lx)), int(math.Floor(ly)), int(math.Ceil(hx)), int(math.Ceil(hy))
}
