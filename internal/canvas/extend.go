package canvas

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// BlendMask returns the w*h seam weight of a padded canvas: 0 inside the
// original image, rising towards 1 at the outer edge of each padded side.
// A side without padding contributes nothing.
func BlendMask(w, h int, p Pad) []float32 {
	mask := make([]float32, w*h)
	for y := range h {
		my := 1 - math.Min(ratio(float64(y), p.Top), ratio(float64(h-1-y), p.Bottom))
		for x := range w {
			mx := 1 - math.Min(ratio(float64(x), p.Left), ratio(float64(w-1-x), p.Right))
			mask[y*w+x] = float32(math.Max(mx, my))
		}
	}
	return mask
}

func ratio(dist float64, pad int) float64 {
	if pad <= 0 {
		return math.Inf(1)
	}
	return dist / float64(pad)
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}

// Extend pads img by g.Pad with mirrored content and hides the seams: the
// padded band is blended towards a blurred copy and then towards the
// per-channel median. The returned geometry has its quad moved by the pad.
// When g is not extended the image is returned unchanged as RGBA.
func Extend(img image.Image, g Geometry) (*image.RGBA, Geometry) {
	if !g.Extended {
		return ToRGBA(img), g
	}

	r := ReflectPad(FromImage(img), g.Pad)
	mask := BlendMask(r.W, r.H, g.Pad)

	blurred := GaussianBlur(r, g.BlurSigma())
	for i, m := range mask {
		w := float32(clamp01(float64(m)*3 + 1))
		for c := range Channels {
			k := i*Channels + c
			r.Pix[k] += (blurred.Pix[k] - r.Pix[k]) * w
		}
	}

	med := ChannelMedian(r)
	for i, m := range mask {
		w := float32(clamp01(float64(m)))
		for c := range Channels {
			k := i*Channels + c
			r.Pix[k] += (med[c] - r.Pix[k]) * w
		}
	}

	return r.ToRGBA(), g.Translated()
}

// Shrink downsamples img to g.Size when the geometry asks for it.
func Shrink(img image.Image, g Geometry) image.Image {
	if g.Shrink <= 1 {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, g.Size.X, g.Size.Y))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// ToRGBA returns img as an *image.RGBA anchored at the origin, copying only when needed.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
