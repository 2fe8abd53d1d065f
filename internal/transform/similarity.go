package transform

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrDegenerateTransform is returned when the source points cannot determine
// a similarity transform (coincident or collinear points, vanishing scale).
var ErrDegenerateTransform = errors.New("degenerate transform")

const (
	// minSpread is the smallest RMS distance of the source points from their centroid.
	minSpread = 1e-6
	// minAnisotropy is the smallest ratio between the minor and major axis
	// variance of the source points; below it the points are treated as collinear.
	minAnisotropy = 1e-6
	// minScale is the smallest fitted scale accepted.
	minScale = 1e-9
)

// EstimateSimilarity computes the similarity transform (uniform scale, rotation,
// translation) that maps src onto dst with minimal total squared error.
//
// With a = s*cos(theta) and b = s*sin(theta) the model is linear:
//
//	x' = a*x - b*y + tx
//	y' = b*x + a*y + ty
//
// so the least-squares optimum over all similarities is the QR solution of
// the stacked 2N x 4 system.
func EstimateSimilarity(src, dst []Point) (Matrix, error) {
	if len(src) != len(dst) {
		return Matrix{}, fmt.Errorf("%w: point count mismatch: %d vs %d", ErrDegenerateTransform, len(src), len(dst))
	}
	if len(src) < 2 {
		return Matrix{}, fmt.Errorf("%w: need at least 2 points, got %d", ErrDegenerateTransform, len(src))
	}
	if err := checkSpread(src); err != nil {
		return Matrix{}, err
	}

	n := len(src)
	A := mat.NewDense(n*2, 4, nil)
	B := mat.NewVecDense(n*2, nil)

	for i := range n {
		x, y := src[i].X, src[i].Y

		A.Set(i*2, 0, x)
		A.Set(i*2, 1, -y)
		A.Set(i*2, 2, 1)
		B.SetVec(i*2, dst[i].X)

		A.Set(i*2+1, 0, y)
		A.Set(i*2+1, 1, x)
		A.Set(i*2+1, 3, 1)
		B.SetVec(i*2+1, dst[i].Y)
	}

	var qr mat.QR
	qr.Factorize(A)

	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, B); err != nil {
		return Matrix{}, fmt.Errorf("%w: %v", ErrDegenerateTransform, err)
	}

	a, b := params.AtVec(0), params.AtVec(1)
	tx, ty := params.AtVec(2), params.AtVec(3)

	if scale := math.Hypot(a, b); scale < minScale || math.IsNaN(scale) {
		return Matrix{}, fmt.Errorf("%w: scale %g", ErrDegenerateTransform, scale)
	}

	return Matrix{
		{a, -b, tx},
		{b, a, ty},
		{0, 0, 1},
	}, nil
}

// checkSpread rejects coincident and collinear point sets.
func checkSpread(pts []Point) error {
	c := Mean(pts)

	var sxx, syy, sxy float64
	for _, p := range pts {
		if !p.IsFinite() {
			return fmt.Errorf("%w: non-finite point %v", ErrDegenerateTransform, p)
		}
		d := p.Sub(c)
		sxx += d.X * d.X
		syy += d.Y * d.Y
		sxy += d.X * d.Y
	}
	n := float64(len(pts))
	sxx /= n
	syy /= n
	sxy /= n

	if math.Sqrt(sxx+syy) < minSpread {
		return fmt.Errorf("%w: source points are coincident", ErrDegenerateTransform)
	}

	// Eigenvalues of the 2x2 covariance matrix.
	tr := sxx + syy
	det := sxx*syy - sxy*sxy
	disc := math.Sqrt(math.Max(tr*tr/4-det, 0))
	major := tr/2 + disc
	minor := tr/2 - disc
	if minor/major < minAnisotropy {
		return fmt.Errorf("%w: source points are collinear", ErrDegenerateTransform)
	}
	return nil
}

// Residual returns the sum of squared distances between m(src[i]) and dst[i].
func Residual(m Matrix, src, dst []Point) float64 {
	if len(src) != len(dst) {
		return math.Inf(1)
	}
	var total float64
	for i := range src {
		d := m.Apply(src[i]).Sub(dst[i])
		total += d.X*d.X + d.Y*d.Y
	}
	return total
}
