package canvas

import (
	"image"
	"image/color"
	"math"
)

// Channels is the number of color channels held by a Raster.
const Channels = 3

// Raster is a row-major float RGB image. Alpha is dropped on conversion.
type Raster struct {
	W, H int
	Pix  []float32 // len = W*H*Channels
}

// NewRaster allocates a zeroed raster.
func NewRaster(w, h int) *Raster {
	return &Raster{W: w, H: h, Pix: make([]float32, w*h*Channels)}
}

// FromImage converts img to a raster whose origin is img.Bounds().Min.
func FromImage(img image.Image) *Raster {
	b := img.Bounds()
	r := NewRaster(b.Dx(), b.Dy())

	if rgba, ok := img.(*image.RGBA); ok {
		for y := range r.H {
			row := rgba.Pix[y*rgba.Stride : y*rgba.Stride+r.W*4]
			for x := range r.W {
				i := r.offset(x, y)
				r.Pix[i] = float32(row[x*4])
				r.Pix[i+1] = float32(row[x*4+1])
				r.Pix[i+2] = float32(row[x*4+2])
			}
		}
		return r
	}

	for y := range r.H {
		for x := range r.W {
			cr, cg, cb, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := r.offset(x, y)
			r.Pix[i] = float32(cr >> 8)
			r.Pix[i+1] = float32(cg >> 8)
			r.Pix[i+2] = float32(cb >> 8)
		}
	}
	return r
}

// ToRGBA clips to [0,255], rounds half to even and returns an opaque image.
func (r *Raster) ToRGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.W, r.H))
	for y := range r.H {
		for x := range r.W {
			i := r.offset(x, y)
			img.SetRGBA(x, y, color.RGBA{
				R: toByte(r.Pix[i]),
				G: toByte(r.Pix[i+1]),
				B: toByte(r.Pix[i+2]),
				A: 0xff,
			})
		}
	}
	return img
}

// At returns the value of channel c at (x, y).
func (r *Raster) At(x, y, c int) float32 {
	return r.Pix[r.offset(x, y)+c]
}

// Clone returns a deep copy.
func (r *Raster) Clone() *Raster {
	out := &Raster{W: r.W, H: r.H, Pix: make([]float32, len(r.Pix))}
	copy(out.Pix, r.Pix)
	return out
}

func (r *Raster) offset(x, y int) int {
	return (y*r.W + x) * Channels
}

func toByte(v float32) uint8 {
	f := math.RoundToEven(float64(v))
	switch {
	case f <= 0 || math.IsNaN(f):
		return 0
	case f >= 255:
		return 255
	}
	return uint8(f)
}

// ReflectPad mirrors the raster outward by p without repeating the edge
// pixel. Pads larger than the image wrap periodically.
func ReflectPad(r *Raster, p Pad) *Raster {
	out := NewRaster(r.W+p.Left+p.Right, r.H+p.Top+p.Bottom)
	for y := range out.H {
		sy := reflectIndex(y-p.Top, r.H)
		for x := range out.W {
			sx := reflectIndex(x-p.Left, r.W)
			copy(out.Pix[out.offset(x, y):out.offset(x, y)+Channels], r.Pix[r.offset(sx, sy):r.offset(sx, sy)+Channels])
		}
	}
	return out
}

// reflectIndex maps i into [0, n) mirroring about the edge pixels (d c b | a b c d | c b a).
func reflectIndex(i, n int) int {
	if n <= 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}

// symmetricIndex maps i into [0, n) mirroring including the edge pixel (c b a | a b c | c b a).
func symmetricIndex(i, n int) int {
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}
