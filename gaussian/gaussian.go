package gaussian

import (
	"errors"
	"fmt"

	"github.com/katalvlaran/gbpgo/linalg"
)

// Gaussian is a multivariate normal in information form.
//
//   - Eta is the information vector η (length D).
//   - Lambda is the precision matrix Λ (D×D), symmetric, positive
//     semi-definite whenever Mean or Covariance is queried.
//
// The zero value is not usable; construct with New or From.
type Gaussian struct {
	Eta    []float64
	Lambda *linalg.Dense
	dim    int
}

// New returns the D-dimensional Gaussian with η = 0, Λ = 0 — the identity
// element for AddAssign, and the natural "no information yet" state used
// to zero-initialise incoming message slots.
func New(d int) (*Gaussian, error) {
	if d <= 0 {
		return nil, fmt.Errorf("gaussian.New: dimension %d: %w", d, ErrDimensionMismatch)
	}
	lambda := linalg.MustDense(d, d)

	return &Gaussian{Eta: make([]float64, d), Lambda: lambda, dim: d}, nil
}

// From constructs a Gaussian from an explicit (η, Λ) pair, validating that
// their dimensions agree.
func From(eta []float64, lambda *linalg.Dense) (*Gaussian, error) {
	d := len(eta)
	if lambda.Rows() != d || lambda.Cols() != d {
		return nil, fmt.Errorf("gaussian.From: eta len %d, lambda %dx%d: %w", d, lambda.Rows(), lambda.Cols(), ErrDimensionMismatch)
	}

	etaCopy := make([]float64, d)
	copy(etaCopy, eta)

	return &Gaussian{Eta: etaCopy, Lambda: lambda.Clone(), dim: d}, nil
}

// FromMeanPrecision constructs a Gaussian from a mean vector and a precision
// matrix, computing η = Λμ. This is the natural way to build a prior or
// pose anchor, where the mean is known directly rather than the
// information vector.
func FromMeanPrecision(mean []float64, lambda *linalg.Dense) (*Gaussian, error) {
	d := len(mean)
	if lambda.Rows() != d || lambda.Cols() != d {
		return nil, fmt.Errorf("gaussian.FromMeanPrecision: mean len %d, lambda %dx%d: %w", d, lambda.Rows(), lambda.Cols(), ErrDimensionMismatch)
	}
	eta, err := linalg.MulVec(lambda, mean)
	if err != nil {
		return nil, fmt.Errorf("gaussian.FromMeanPrecision: %w", err)
	}

	return From(eta, lambda)
}

// Dim returns the dimension D of this Gaussian.
func (g *Gaussian) Dim() int { return g.dim }

// Mean returns μ = Λ⁻¹η, solved directly (no explicit inverse formed).
// Returns ErrSingular, in place of linalg.ErrSingular, if Λ is not invertible.
func (g *Gaussian) Mean() ([]float64, error) {
	x, err := linalg.Solve(g.Lambda, g.Eta)
	if err != nil {
		return nil, fmt.Errorf("Mean: %w", errSingularOr(err))
	}

	return x, nil
}

// Covariance returns Σ = Λ⁻¹. Returns ErrSingular if Λ is not invertible.
func (g *Gaussian) Covariance() (*linalg.Dense, error) {
	cov, err := linalg.Inverse(g.Lambda)
	if err != nil {
		return nil, fmt.Errorf("Covariance: %w", errSingularOr(err))
	}

	return cov, nil
}

// errSingularOr maps a linalg.ErrSingular into our own package's sentinel,
// so callers outside linalg never need to import it just to check errors.Is.
func errSingularOr(err error) error {
	if errors.Is(err, linalg.ErrSingular) {
		return ErrSingular
	}

	return err
}

// AddAssign adds other into g in place (η += other.η, Λ += other.Λ), the
// information-form equivalent of multiplying the two Gaussian densities.
// Returns ErrDimensionMismatch, leaving g unmodified, if dimensions differ.
func (g *Gaussian) AddAssign(other *Gaussian) error {
	if g.dim != other.dim {
		return fmt.Errorf("AddAssign: dim %d != %d: %w", g.dim, other.dim, ErrDimensionMismatch)
	}
	for i := range g.Eta {
		g.Eta[i] += other.Eta[i]
	}

	return linalg.AddAssign(g.Lambda, other.Lambda)
}

// Clone returns a deep, independent copy of g.
func (g *Gaussian) Clone() *Gaussian {
	eta := make([]float64, len(g.Eta))
	copy(eta, g.Eta)

	return &Gaussian{Eta: eta, Lambda: g.Lambda.Clone(), dim: g.dim}
}

// Norm returns the L2 norm of the mean. Returns ErrSingular if Λ is not
// invertible.
func (g *Gaussian) Norm() (float64, error) {
	mean, err := g.Mean()
	if err != nil {
		return 0, err
	}

	return linalg.VecNorm(mean), nil
}
