// Package aligner runs the per-image alignment pipeline: anchors, similarity
// fit, canvas extension and warp. It also drives batch alignment and the
// recovery of generated images back into their original frames.
package aligner

import (
	"fmt"
	"image"

	"github.com/kozaktomas/face-align/internal/canvas"
	"github.com/kozaktomas/face-align/internal/config"
	"github.com/kozaktomas/face-align/internal/landmark"
	"github.com/kozaktomas/face-align/internal/transform"
	"github.com/kozaktomas/face-align/internal/warp"
)

// Options configures an Aligner.
type Options struct {
	OutputSize    int
	EnablePadding bool
	Shrink        bool
	Reference     landmark.Reference
}

// OptionsFromConfig builds options from the align section of the configuration.
func OptionsFromConfig(cfg config.AlignConfig) (Options, error) {
	ref, err := landmark.ReferenceByName(cfg.Reference)
	if err != nil {
		return Options{}, err
	}
	return Options{
		OutputSize:    cfg.OutputSize,
		EnablePadding: cfg.EnablePadding,
		Shrink:        cfg.Shrink,
		Reference:     ref,
	}, nil
}

// Aligner holds no per-image state and is safe for concurrent use.
type Aligner struct {
	engine *warp.Engine
	opts   Options
	target landmark.Anchors
}

// New returns an aligner that warps with engine.
func New(engine *warp.Engine, opts Options) (*Aligner, error) {
	if opts.OutputSize <= 0 {
		return nil, fmt.Errorf("invalid output size %d", opts.OutputSize)
	}
	if opts.Reference.Size == 0 {
		opts.Reference = landmark.FFHQ1024
	}
	return &Aligner{
		engine: engine,
		opts:   opts,
		target: opts.Reference.ForSize(opts.OutputSize),
	}, nil
}

// Engine returns the warp engine.
func (a *Aligner) Engine() *warp.Engine {
	return a.engine
}

// OutputSize returns the side of the aligned canvas.
func (a *Aligner) OutputSize() int {
	return a.opts.OutputSize
}

// Target returns the reference anchors in output pixels.
func (a *Aligner) Target() landmark.Anchors {
	return a.target
}

// Result is one aligned image with its transforms.
type Result struct {
	Image *image.RGBA
	// Forward maps the working canvas (shrunk and extended) onto the aligned image.
	Forward transform.Matrix
	// Inverse maps the aligned image back onto the original image.
	Inverse  transform.Matrix
	Geometry canvas.Geometry
	// Anchors in original image coordinates.
	Anchors  landmark.Anchors
	Residual float64
}

// Align aligns img given its landmark set. Landmarks are relative to
// img.Bounds().Min.
func (a *Aligner) Align(img image.Image, lms landmark.Set) (*Result, error) {
	anchors, err := landmark.ExtractAnchors(lms)
	if err != nil {
		return nil, err
	}

	size := img.Bounds().Size()
	g := canvas.ComputeGeometry(anchors, size, canvas.Options{
		OutputSize:    a.opts.OutputSize,
		EnablePadding: a.opts.EnablePadding,
		Shrink:        a.opts.Shrink,
	})

	// shrink
	src := canvas.Shrink(img, g)
	toOriginal := g.ShrinkTransform(size)
	fromOriginal, err := toOriginal.Inverse()
	if err != nil {
		return nil, err
	}
	work := anchors.Map(fromOriginal)

	// pad
	if g.Extended {
		src, g = canvas.Extend(src, g)
		work = work.Map(transform.Translation(float64(g.Pad.Left), float64(g.Pad.Top)))
	}

	forward, err := transform.EstimateSimilarity(work.Points(), a.target.Points())
	if err != nil {
		return nil, err
	}

	aligned, err := a.engine.Forward(src, forward, image.Pt(a.opts.OutputSize, a.opts.OutputSize))
	if err != nil {
		return nil, err
	}

	inv, err := warp.Inverse(forward, g.Pad.Offset())
	if err != nil {
		return nil, err
	}
	if g.Shrink > 1 {
		inv = toOriginal.Mul(inv)
	}

	return &Result{
		Image:    aligned,
		Forward:  forward,
		Inverse:  inv,
		Geometry: g,
		Anchors:  anchors,
		Residual: transform.Residual(forward, work.Points(), a.target.Points()),
	}, nil
}
