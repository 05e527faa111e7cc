// Package gaussian implements a multivariate normal distribution in
// information form: φ(x) = exp(-½xᵀΛx + ηᵀx), parameterised by an
// information vector η and a precision matrix Λ = Σ⁻¹.
//
// Information form is closed under Gaussian product (it is simple
// addition), which is exactly the operation Gaussian Belief Propagation
// messages require; it also makes the zero message the identity for
// aggregation, so a variable's "no message received yet" state needs no
// special case anywhere in gbp.Variable.UpdateBelief.
package gaussian

import "errors"

var (
	// ErrDimensionMismatch is returned when two Gaussians (or a Gaussian
	// and a raw vector/matrix) of different dimension are combined. It is
	// a programming error at the call site, not a recoverable runtime
	// condition.
	ErrDimensionMismatch = errors.New("gaussian: dimension mismatch")

	// ErrSingular is returned by Mean/Covariance when Λ is not invertible.
	// Callers (gbp.Factor, gbp.Variable) decide whether to regularise and
	// retry or to skip the affected update for the current iteration.
	ErrSingular = errors.New("gaussian: precision matrix is singular")
)
