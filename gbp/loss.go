package gbp

import (
	"math"

	"github.com/katalvlaran/gbpgo/linalg"
)

// Loss is a small capability object a Factor delegates to for turning a
// residual into an effective precision (inverse covariance) and, for
// robust losses, for updating internal scale state once per iteration.
//
// Gaussian loss is the trivial case: the effective precision never
// changes and Robustify is a no-op. Huber-like losses shrink the
// effective precision once the residual magnitude exceeds a threshold,
// down-weighting outlier measurements without discarding them outright.
type Loss interface {
	// EffectivePrecision returns the precision matrix W to use for the
	// current residual r.
	EffectivePrecision(r []float64) (*linalg.Dense, error)
	// Robustify updates any internal scale state from the current
	// residual. Called once per iteration, before JIT relinearisation.
	Robustify(r []float64)
}

// GaussianLoss is a fixed-precision loss: W is constant, Robustify is a
// no-op. This is the loss used by every linear factor in the system.
type GaussianLoss struct {
	precision *linalg.Dense
}

// NewGaussianLoss wraps a fixed measurement precision matrix.
func NewGaussianLoss(precision *linalg.Dense) *GaussianLoss {
	return &GaussianLoss{precision: precision}
}

// EffectivePrecision always returns the fixed precision matrix, unscaled.
func (l *GaussianLoss) EffectivePrecision(_ []float64) (*linalg.Dense, error) {
	return l.precision, nil
}

// Robustify is a no-op for Gaussian loss.
func (l *GaussianLoss) Robustify(_ []float64) {}

// HuberLoss down-weights the base precision once the Mahalanobis norm of
// the residual (under the base precision) exceeds Threshold, following the
// classical Huber re-descending weight w = threshold / norm for norm >
// threshold, w = 1 otherwise.
type HuberLoss struct {
	basePrecision *linalg.Dense
	Threshold     float64
	scale         float64
}

// NewHuberLoss wraps a base measurement precision matrix with a Huber
// threshold. The initial scale is 1 (behaves like GaussianLoss) until
// Robustify has observed at least one residual.
func NewHuberLoss(basePrecision *linalg.Dense, threshold float64) *HuberLoss {
	return &HuberLoss{basePrecision: basePrecision, Threshold: threshold, scale: 1.0}
}

// EffectivePrecision returns the base precision scaled by the weight
// computed by the most recent call to Robustify.
func (l *HuberLoss) EffectivePrecision(_ []float64) (*linalg.Dense, error) {
	return linalg.Scale(l.basePrecision, l.scale), nil
}

// Robustify recomputes the Huber weight from the current residual's
// Mahalanobis norm under the base precision.
func (l *HuberLoss) Robustify(r []float64) {
	wr, err := linalg.MulVec(l.basePrecision, r)
	if err != nil {
		// A dimension mismatch here is a construction-time bug in the
		// owning factor; leave the previous scale in place rather than
		// panicking mid-iteration.
		return
	}
	var mahalanobisSq float64
	for i, v := range wr {
		mahalanobisSq += v * r[i]
	}
	norm := math.Sqrt(math.Max(mahalanobisSq, 0))

	if norm <= l.Threshold || norm == 0 {
		l.scale = 1.0
		return
	}
	l.scale = l.Threshold / norm
}
