package canvas

import (
	"math"
	"slices"
)

// truncate is the kernel radius in standard deviations.
const truncate = 4.0

// gaussianKernel returns normalized weights of radius int(truncate*sigma+0.5).
func gaussianKernel(sigma float64) []float64 {
	radius := int(truncate*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	var sum float64
	for i := -radius; i <= radius; i++ {
		w := math.Exp(-0.5 * float64(i*i) / (sigma * sigma))
		kernel[i+radius] = w
		sum += w
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// GaussianBlur filters every channel separably with a gaussian of the given
// sigma. Samples beyond the edge mirror the edge pixel in. A non-positive
// sigma returns a copy.
func GaussianBlur(r *Raster, sigma float64) *Raster {
	if sigma <= 0 || r.W == 0 || r.H == 0 {
		return r.Clone()
	}
	kernel := gaussianKernel(sigma)
	radius := len(kernel) / 2

	// vertical pass
	tmp := NewRaster(r.W, r.H)
	line := make([]float64, r.H+2*radius)
	for x := range r.W {
		for c := range Channels {
			for i := range line {
				line[i] = float64(r.At(x, symmetricIndex(i-radius, r.H), c))
			}
			for y := range r.H {
				tmp.Pix[tmp.offset(x, y)+c] = float32(convolve(line[y:y+len(kernel)], kernel))
			}
		}
	}

	// horizontal pass
	out := NewRaster(r.W, r.H)
	line = make([]float64, r.W+2*radius)
	for y := range r.H {
		for c := range Channels {
			for i := range line {
				line[i] = float64(tmp.At(symmetricIndex(i-radius, r.W), y, c))
			}
			for x := range r.W {
				out.Pix[out.offset(x, y)+c] = float32(convolve(line[x:x+len(kernel)], kernel))
			}
		}
	}
	return out
}

func convolve(window, kernel []float64) float64 {
	var sum float64
	for i, w := range kernel {
		sum += window[i] * w
	}
	return sum
}

// ChannelMedian returns the per-channel median over all pixels. Even counts
// average the two middle values.
func ChannelMedian(r *Raster) [Channels]float32 {
	var med [Channels]float32
	n := r.W * r.H
	if n == 0 {
		return med
	}
	values := make([]float32, n)
	for c := range Channels {
		for i := range n {
			values[i] = r.Pix[i*Channels+c]
		}
		slices.Sort(values)
		if n%2 == 1 {
			med[c] = values[n/2]
		} else {
			med[c] = float32((float64(values[n/2-1]) + float64(values[n/2])) / 2)
		}
	}
	return med
}
