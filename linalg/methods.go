package linalg

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Add returns a new Dense containing the element-wise sum of a and b.
func Add(a, b *Dense) (*Dense, error) {
	if a.Rows() != b.Rows() || a.Cols() != b.Cols() {
		return nil, fmt.Errorf("Add: %dx%d + %dx%d: %w", a.Rows(), a.Cols(), b.Rows(), b.Cols(), ErrDimensionMismatch)
	}
	var out mat.Dense
	out.Add(a.m, b.m)

	return wrap(&out), nil
}

// AddAssign adds b into a in place. Returns ErrDimensionMismatch on shape
// mismatch, leaving a unmodified.
func AddAssign(a, b *Dense) error {
	if a.Rows() != b.Rows() || a.Cols() != b.Cols() {
		return fmt.Errorf("AddAssign: %dx%d + %dx%d: %w", a.Rows(), a.Cols(), b.Rows(), b.Cols(), ErrDimensionMismatch)
	}
	a.m.Add(a.m, b.m)

	return nil
}

// Sub returns a new Dense containing the element-wise difference a - b.
func Sub(a, b *Dense) (*Dense, error) {
	if a.Rows() != b.Rows() || a.Cols() != b.Cols() {
		return nil, fmt.Errorf("Sub: %dx%d - %dx%d: %w", a.Rows(), a.Cols(), b.Rows(), b.Cols(), ErrDimensionMismatch)
	}
	var out mat.Dense
	out.Sub(a.m, b.m)

	return wrap(&out), nil
}

// Scale returns a new Dense equal to a scaled by k.
func Scale(a *Dense, k float64) *Dense {
	var out mat.Dense
	out.Scale(k, a.m)

	return wrap(&out)
}

// Transpose returns a new Dense equal to the transpose of a.
func Transpose(a *Dense) *Dense {
	var out mat.Dense
	out.CloneFrom(a.m.T())

	return wrap(&out)
}

// Mul returns the matrix product a*b.
func Mul(a, b *Dense) (*Dense, error) {
	if a.Cols() != b.Rows() {
		return nil, fmt.Errorf("Mul: %dx%d * %dx%d: %w", a.Rows(), a.Cols(), b.Rows(), b.Cols(), ErrDimensionMismatch)
	}
	var out mat.Dense
	out.Mul(a.m, b.m)

	return wrap(&out), nil
}

// MulVec returns the matrix-vector product a*x.
func MulVec(a *Dense, x []float64) ([]float64, error) {
	if a.Cols() != len(x) {
		return nil, fmt.Errorf("MulVec: %dx%d * %d: %w", a.Rows(), a.Cols(), len(x), ErrDimensionMismatch)
	}
	var out mat.VecDense
	out.MulVec(a.m, mat.NewVecDense(len(x), x))

	result := make([]float64, a.Rows())
	copy(result, out.RawVector().Data)

	return result, nil
}

// VecNorm returns the Euclidean (L2) norm of x.
func VecNorm(x []float64) float64 {
	return floats.Norm(x, 2)
}

// VecSub returns a-b elementwise.
func VecSub(a, b []float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("VecSub: len %d != %d: %w", len(a), len(b), ErrDimensionMismatch)
	}
	out := make([]float64, len(a))
	floats.SubTo(out, a, b)

	return out, nil
}

// Identity returns the n×n identity matrix.
func Identity(n int) (*Dense, error) {
	if n <= 0 {
		return nil, ErrInvalidDimensions
	}
	out := MustDense(n, n)
	for i := 0; i < n; i++ {
		out.m.Set(i, i, 1)
	}

	return out, nil
}
