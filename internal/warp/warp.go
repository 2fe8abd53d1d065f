// Package warp resamples images through affine transforms. The forward mode
// aligns a face onto the canonical canvas; the same engine fed an inverse
// matrix maps a generated image back into its original frame.
package warp

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"slices"
	"strings"
	"sync"

	"github.com/kozaktomas/face-align/internal/transform"
)

// ErrSingularTransform is returned for matrices that cannot be inverted.
var ErrSingularTransform = transform.ErrSingularTransform

// DefaultBackend is used when no backend name is configured.
const DefaultBackend = "draw"

// Backend resamples src into a size canvas so that dst = M * src, with
// integer pixel indices at pixel centers. Pixels whose source lies outside
// src keep the border color.
type Backend interface {
	Warp(src image.Image, m transform.Matrix, size image.Point, border color.RGBA) (*image.RGBA, error)
}

var (
	backendsMu sync.RWMutex
	backends   = map[string]func() Backend{}
)

// Register makes a backend available by name. It is meant to be called from init.
func Register(name string, ctor func() Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[strings.ToLower(name)] = ctor
}

// Backends lists the registered backend names.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Engine wraps a backend with matrix validation. It holds no mutable state
// and is safe for concurrent use.
type Engine struct {
	name    string
	backend Backend
	Border  color.RGBA
}

// New returns an engine using the named backend, or the default one when name is empty.
func New(name string) (*Engine, error) {
	if name == "" {
		name = DefaultBackend
	}
	backendsMu.RLock()
	ctor, ok := backends[strings.ToLower(name)]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown warp backend %q (available: %s)", name, strings.Join(Backends(), ", "))
	}
	return &Engine{
		name:    strings.ToLower(name),
		backend: ctor(),
		Border:  color.RGBA{A: 0xff},
	}, nil
}

// Name returns the backend name.
func (e *Engine) Name() string {
	return e.name
}

// Forward warps src by m into a size canvas.
func (e *Engine) Forward(src image.Image, m transform.Matrix, size image.Point) (*image.RGBA, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("invalid output size %dx%d", size.X, size.Y)
	}
	if _, err := m.Inverse(); err != nil {
		return nil, fmt.Errorf("warping with %s backend: %w", e.name, err)
	}
	return e.backend.Warp(src, m, size, e.Border)
}

// Apply warps src by an inverse matrix taken from the ledger, mapping an
// aligned image back into the frame the matrix was recorded for.
func (e *Engine) Apply(src image.Image, inv transform.Matrix, size image.Point) (*image.RGBA, error) {
	return e.Forward(src, inv, size)
}

// Inverse returns the inverse of a forward matrix estimated on a canvas
// extended by padOffset, expressed in the coordinates of the unextended image.
func Inverse(m transform.Matrix, padOffset image.Point) (transform.Matrix, error) {
	inv, err := m.Inverse()
	if err != nil {
		return transform.Matrix{}, err
	}
	inv[0][2] -= float64(padOffset.X)
	inv[1][2] -= float64(padOffset.Y)
	return inv, nil
}

// IsSingular reports whether err was caused by a non-invertible matrix.
func IsSingular(err error) bool {
	return errors.Is(err, ErrSingularTransform)
}
