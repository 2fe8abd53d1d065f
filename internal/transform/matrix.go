package transform

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrSingularTransform is returned when a matrix cannot be inverted.
var ErrSingularTransform = errors.New("singular transform")

// singularTolerance is the smallest |det| accepted as invertible.
const singularTolerance = 1e-10

// Matrix is a homogeneous 3x3 transform in row-major order.
//
//	[a b tx]
//	[c d ty]
//	[0 0 1 ]
type Matrix [3][3]float64

// Identity returns the identity transform.
func Identity() Matrix {
	return Matrix{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Translation returns a translation transform.
func Translation(tx, ty float64) Matrix {
	return Matrix{{1, 0, tx}, {0, 1, ty}, {0, 0, 1}}
}

// Scaling returns an axis-aligned scaling transform.
func Scaling(sx, sy float64) Matrix {
	return Matrix{{sx, 0, 0}, {0, sy, 0}, {0, 0, 1}}
}

// Similarity builds a transform from uniform scale, rotation (radians) and translation.
func Similarity(scale, theta, tx, ty float64) Matrix {
	cos := scale * math.Cos(theta)
	sin := scale * math.Sin(theta)
	return Matrix{{cos, -sin, tx}, {sin, cos, ty}, {0, 0, 1}}
}

// FromAffine lifts a 2x3 affine matrix into homogeneous form.
func FromAffine(a [2][3]float64) Matrix {
	return Matrix{a[0], a[1], {0, 0, 1}}
}

// Affine returns the top two rows.
func (m Matrix) Affine() [2][3]float64 {
	return [2][3]float64{m[0], m[1]}
}

// Apply maps a point through the transform.
func (m Matrix) Apply(p Point) Point {
	x := m[0][0]*p.X + m[0][1]*p.Y + m[0][2]
	y := m[1][0]*p.X + m[1][1]*p.Y + m[1][2]
	w := m[2][0]*p.X + m[2][1]*p.Y + m[2][2]
	if w != 1 && w != 0 {
		x /= w
		y /= w
	}
	return Point{X: x, Y: y}
}

// ApplyAll maps every point through the transform.
func (m Matrix) ApplyAll(pts []Point) []Point {
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = m.Apply(p)
	}
	return out
}

// Mul returns m * n, i.e. n is applied first.
func (m Matrix) Mul(n Matrix) Matrix {
	var out Matrix
	for r := range 3 {
		for c := range 3 {
			for k := range 3 {
				out[r][c] += m[r][k] * n[k][c]
			}
		}
	}
	return out
}

// Det returns the determinant.
func (m Matrix) Det() float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// Inverse returns the algebraic inverse of m.
func (m Matrix) Inverse() (Matrix, error) {
	if !m.IsFinite() {
		return Matrix{}, fmt.Errorf("%w: non-finite coefficients", ErrSingularTransform)
	}
	if det := m.Det(); math.Abs(det) < singularTolerance {
		return Matrix{}, fmt.Errorf("%w: |det| = %g", ErrSingularTransform, math.Abs(det))
	}

	var inv mat.Dense
	if err := inv.Inverse(m.Dense()); err != nil {
		return Matrix{}, fmt.Errorf("%w: %v", ErrSingularTransform, err)
	}

	out, err := FromDense(&inv)
	if err != nil {
		return Matrix{}, err
	}
	return out, nil
}

// Scale returns the uniform scale factor sqrt(|det|) of the linear part.
func (m Matrix) Scale() float64 {
	return math.Sqrt(math.Abs(m[0][0]*m[1][1] - m[0][1]*m[1][0]))
}

// IsFinite reports whether all coefficients are finite.
func (m Matrix) IsFinite() bool {
	for r := range 3 {
		for c := range 3 {
			if math.IsNaN(m[r][c]) || math.IsInf(m[r][c], 0) {
				return false
			}
		}
	}
	return true
}

// ApproxEqual reports whether every coefficient differs by at most tol.
func (m Matrix) ApproxEqual(other Matrix, tol float64) bool {
	for r := range 3 {
		for c := range 3 {
			if math.Abs(m[r][c]-other[r][c]) > tol {
				return false
			}
		}
	}
	return true
}

// Flat returns the coefficients in row-major order.
func (m Matrix) Flat() []float64 {
	out := make([]float64, 0, 9)
	for r := range 3 {
		out = append(out, m[r][:]...)
	}
	return out
}

// FromFlat builds a matrix from 6 (2x3) or 9 (3x3) row-major coefficients.
func FromFlat(vals []float64) (Matrix, error) {
	switch len(vals) {
	case 6:
		return FromAffine([2][3]float64{
			{vals[0], vals[1], vals[2]},
			{vals[3], vals[4], vals[5]},
		}), nil
	case 9:
		return Matrix{
			{vals[0], vals[1], vals[2]},
			{vals[3], vals[4], vals[5]},
			{vals[6], vals[7], vals[8]},
		}, nil
	default:
		return Matrix{}, fmt.Errorf("expected 6 or 9 coefficients, got %d", len(vals))
	}
}

// Dense returns the matrix as a gonum dense matrix.
func (m Matrix) Dense() *mat.Dense {
	return mat.NewDense(3, 3, m.Flat())
}

// FromDense converts a 2x3 or 3x3 gonum matrix.
func FromDense(d mat.Matrix) (Matrix, error) {
	rows, cols := d.Dims()
	if cols != 3 || (rows != 2 && rows != 3) {
		return Matrix{}, fmt.Errorf("expected 2x3 or 3x3 matrix, got %dx%d", rows, cols)
	}
	out := Identity()
	for r := range rows {
		for c := range cols {
			out[r][c] = d.At(r, c)
		}
	}
	return out, nil
}
