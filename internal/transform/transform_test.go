package transform

import (
	"errors"
	"math"
	"testing"
)

var ffhqReference = []Point{
	{408.66666667, 450.16666667},
	{638.0, 457.83333333},
	{536.0, 571.0},
	{428.0, 728.0},
	{614.0, 732.0},
}

func TestEstimateSimilarity_IdentityWhenSourceEqualsReference(t *testing.T) {
	m, err := EstimateSimilarity(ffhqReference, ffhqReference)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.ApproxEqual(Identity(), 1e-6) {
		t.Errorf("expected identity, got %v", m)
	}
	if r := Residual(m, ffhqReference, ffhqReference); r > 1e-8 {
		t.Errorf("expected near-zero residual, got %g", r)
	}
}

func TestEstimateSimilarity_RecoversKnownTransform(t *testing.T) {
	tests := []struct {
		name  string
		scale float64
		theta float64
		tx    float64
		ty    float64
	}{
		{name: "pure translation", scale: 1, theta: 0, tx: 15, ty: -7},
		{name: "scale down", scale: 0.25, theta: 0, tx: 100, ty: 40},
		{name: "rotate and scale", scale: 1.7, theta: 0.4, tx: -30, ty: 12},
		{name: "upside down", scale: 0.9, theta: math.Pi, tx: 800, ty: 900},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := Similarity(tt.scale, tt.theta, tt.tx, tt.ty)
			dst := want.ApplyAll(ffhqReference)

			got, err := EstimateSimilarity(ffhqReference, dst)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.ApproxEqual(want, 1e-6) {
				t.Errorf("EstimateSimilarity() = %v, want %v", got, want)
			}
			if math.Abs(got.Scale()-tt.scale) > 1e-6 {
				t.Errorf("Scale() = %v, want %v", got.Scale(), tt.scale)
			}
		})
	}
}

func TestEstimateSimilarity_IsLeastSquaresOptimal(t *testing.T) {
	// Noisy correspondences: no similarity maps them exactly.
	src := []Point{{100, 120}, {180, 118}, {141, 160}, {110, 205}, {172, 207}}
	dst := ffhqReference

	m, err := EstimateSimilarity(src, dst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	best := Residual(m, src, dst)

	perturbations := []Matrix{
		Translation(0.5, 0).Mul(m),
		Translation(0, -0.5).Mul(m),
		m.Mul(Similarity(1.001, 0, 0, 0)),
		m.Mul(Similarity(0.999, 0, 0, 0)),
		m.Mul(Similarity(1, 0.002, 0, 0)),
		m.Mul(Similarity(1, -0.002, 0, 0)),
	}
	for i, p := range perturbations {
		if r := Residual(p, src, dst); r < best {
			t.Errorf("perturbation %d has residual %g < fitted %g", i, r, best)
		}
	}
}

func TestEstimateSimilarity_Degenerate(t *testing.T) {
	tests := []struct {
		name string
		src  []Point
	}{
		{name: "coincident", src: []Point{{5, 5}, {5, 5}, {5, 5}, {5, 5}, {5, 5}}},
		{name: "collinear", src: []Point{{0, 0}, {1, 1}, {2, 2}, {3, 3}, {4, 4}}},
		{name: "too few", src: []Point{{0, 0}}},
		{name: "nan", src: []Point{{math.NaN(), 0}, {1, 2}, {3, 1}, {4, 4}, {0, 5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := ffhqReference[:len(tt.src)]
			_, err := EstimateSimilarity(tt.src, dst)
			if !errors.Is(err, ErrDegenerateTransform) {
				t.Errorf("expected ErrDegenerateTransform, got %v", err)
			}
		})
	}
}

func TestEstimateSimilarity_CountMismatch(t *testing.T) {
	_, err := EstimateSimilarity(ffhqReference, ffhqReference[:4])
	if !errors.Is(err, ErrDegenerateTransform) {
		t.Errorf("expected ErrDegenerateTransform, got %v", err)
	}
}

func TestMatrix_InverseRoundTrip(t *testing.T) {
	matrices := []Matrix{
		Identity(),
		Translation(-12.5, 300),
		Similarity(0.37, 1.1, 512, -40),
		Similarity(4.2, -2.9, -1000, 1000),
		Scaling(2, 3).Mul(Translation(7, 9)),
	}
	points := []Point{{0, 0}, {1023, 1023}, {-50.25, 17.5}, {4000, -3000}}

	for i, m := range matrices {
		inv, err := m.Inverse()
		if err != nil {
			t.Fatalf("matrix %d: unexpected error: %v", i, err)
		}
		for _, p := range points {
			got := inv.Apply(m.Apply(p))
			if got.Distance(p) > 1e-4 {
				t.Errorf("matrix %d: round trip of %v = %v", i, p, got)
			}
		}
		if !m.Mul(inv).ApproxEqual(Identity(), 1e-9) {
			t.Errorf("matrix %d: m * inv != identity: %v", i, m.Mul(inv))
		}
	}
}

func TestMatrix_InverseSingular(t *testing.T) {
	tests := []struct {
		name string
		m    Matrix
	}{
		{name: "zero scale", m: Similarity(0, 0, 10, 10)},
		{name: "rank one", m: Matrix{{1, 2, 0}, {2, 4, 0}, {0, 0, 1}}},
		{name: "nan", m: Matrix{{math.NaN(), 0, 0}, {0, 1, 0}, {0, 0, 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.m.Inverse()
			if !errors.Is(err, ErrSingularTransform) {
				t.Errorf("expected ErrSingularTransform, got %v", err)
			}
		})
	}
}

func TestFromFlat(t *testing.T) {
	m, err := FromFlat([]float64{1, 0, 5, 0, 1, 6})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != Translation(5, 6) {
		t.Errorf("FromFlat(2x3) = %v", m)
	}

	if _, err := FromFlat([]float64{1, 2, 3}); err == nil {
		t.Error("expected error for 3 coefficients")
	}

	back, err := FromFlat(Similarity(2, 0.3, 1, 2).Flat())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back != Similarity(2, 0.3, 1, 2) {
		t.Errorf("Flat/FromFlat round trip mismatch: %v", back)
	}
}

func TestFromDense(t *testing.T) {
	m := Similarity(1.5, 0.2, 3, 4)
	got, err := FromDense(m.Dense())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != m {
		t.Errorf("FromDense(Dense()) = %v, want %v", got, m)
	}
}

func TestMean(t *testing.T) {
	got := Mean([]Point{{0, 0}, {2, 0}, {2, 2}, {0, 2}})
	if got != (Point{1, 1}) {
		t.Errorf("Mean() = %v, want {1 1}", got)
	}
	if Mean(nil) != (Point{}) {
		t.Error("Mean(nil) should be the zero point")
	}
}
