package landmark

import (
	"fmt"
	"strings"

	"github.com/kozaktomas/face-align/internal/transform"
)

// Reference is a canonical anchor layout defined for a square canvas of Size pixels.
type Reference struct {
	Name   string
	Size   float64
	Points Anchors
}

// FFHQ1024 is the canonical layout in absolute pixels of a 1024x1024 canvas.
var FFHQ1024 = Reference{
	Name: "ffhq",
	Size: 1024,
	Points: Anchors{
		{X: 408.66666667, Y: 450.16666667},
		{X: 638.0, Y: 457.83333333},
		{X: 536.0, Y: 571.0},
		{X: 428.0, Y: 728.0},
		{X: 614.0, Y: 732.0},
	},
}

// Normalized is a symmetric layout in unit-square coordinates.
var Normalized = Reference{
	Name: "normalized",
	Size: 1,
	Points: Anchors{
		{X: 0.31556875000000000, Y: 0.4615741071428571},
		{X: 0.68262291666666670, Y: 0.4615741071428571},
		{X: 0.50026249999999990, Y: 0.6405053571428571},
		{X: 0.34947187500000004, Y: 0.8246919642857142},
		{X: 0.65343645833333330, Y: 0.8246919642857142},
	},
}

// ReferenceByName returns the named layout.
func ReferenceByName(name string) (Reference, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", FFHQ1024.Name:
		return FFHQ1024, nil
	case Normalized.Name:
		return Normalized, nil
	default:
		return Reference{}, fmt.Errorf("unknown reference layout %q (use %q or %q)", name, FFHQ1024.Name, Normalized.Name)
	}
}

// ForSize returns the layout expressed in pixels of a size x size canvas.
func (r Reference) ForSize(size int) Anchors {
	return r.Points.Map(transform.Scaling(float64(size)/r.Size, float64(size)/r.Size))
}
