package linalg

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Solve returns x such that A*x == b, via gonum's pivoted LU factorization,
// without forming A's inverse explicitly. Used by Gaussian.Mean (Λx = η) so
// that the common case of a single right-hand side avoids a full inversion
// when only a solve is needed — Inverse itself is reserved for
// Gaussian.Covariance and for the Schur-complement marginalisation in
// Factor.ComputeMessages, both of which genuinely need the full inverse.
//
// A singular or numerically singular matrix surfaces as ErrSingular;
// callers treat that as a recoverable, caller-visible condition, never a
// panic.
func Solve(a *Dense, b []float64) ([]float64, error) {
	rows, cols := a.Rows(), a.Cols()
	if rows != cols {
		return nil, fmt.Errorf("Solve: non-square %dx%d: %w", rows, cols, ErrNonSquare)
	}
	if len(b) != rows {
		return nil, fmt.Errorf("Solve: rhs length %d != %d: %w", len(b), rows, ErrDimensionMismatch)
	}

	var lu mat.LU
	lu.Factorize(a.m)

	rhs := make([]float64, rows)
	copy(rhs, b)
	x := mat.NewVecDense(rows, nil)
	if err := lu.SolveVecTo(x, false, mat.NewVecDense(rows, rhs)); err != nil {
		return nil, fmt.Errorf("Solve: %w", ErrSingular)
	}

	out := make([]float64, rows)
	copy(out, x.RawVector().Data)

	return out, nil
}

// Inverse returns the inverse of the square matrix m, or ErrSingular if m
// is singular or numerically singular.
func Inverse(m *Dense) (*Dense, error) {
	rows, cols := m.Rows(), m.Cols()
	if rows != cols {
		return nil, fmt.Errorf("Inverse: non-square %dx%d: %w", rows, cols, ErrNonSquare)
	}

	var inv mat.Dense
	if err := inv.Inverse(m.m); err != nil {
		return nil, fmt.Errorf("Inverse: %w", ErrSingular)
	}

	return wrap(&inv), nil
}
