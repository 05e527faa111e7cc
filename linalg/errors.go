// Package linalg provides the dense matrix layer the Gaussian algebra and
// factor-graph Schur complements are built on.
//
// This file defines ONLY package-level sentinel errors. All operations MUST
// return these sentinels (wrapped with context via fmt.Errorf("%s: %w", ...))
// and tests MUST check them via errors.Is. Panics are reserved for
// programmer errors (e.g. constructing a Dense with negative dimensions from
// a trusted internal call site), never for caller-triggered conditions.
package linalg

import "errors"

var (
	// ErrInvalidDimensions is returned when requested matrix dimensions are
	// non-positive.
	ErrInvalidDimensions = errors.New("linalg: dimensions must be > 0")

	// ErrOutOfRange indicates that a row or column index is outside valid
	// bounds. Public indexers (At/Set) return this, never panic.
	ErrOutOfRange = errors.New("linalg: index out of range")

	// ErrDimensionMismatch indicates incompatible shapes between operands,
	// e.g. Add/Sub on differently-shaped matrices, or Mul where a.Cols !=
	// b.Rows.
	ErrDimensionMismatch = errors.New("linalg: dimension mismatch")

	// ErrNonSquare signals that a square matrix was required but the input
	// was not.
	ErrNonSquare = errors.New("linalg: matrix is not square")

	// ErrSingular is returned by Solve and Inverse when the factorization
	// reports a singular or numerically singular matrix. Callers treat it
	// as a recoverable, caller-visible condition.
	ErrSingular = errors.New("linalg: singular matrix")

	// ErrEigenFailed indicates the symmetric eigendecomposition did not
	// converge.
	ErrEigenFailed = errors.New("linalg: eigen decomposition did not converge")

	// ErrNotSymmetric is returned by routines that require a symmetric
	// input (e.g. Eigen) when the asymmetry exceeds the numeric tolerance.
	ErrNotSymmetric = errors.New("linalg: matrix is not symmetric within tolerance")
)
