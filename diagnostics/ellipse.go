package diagnostics

import (
	"fmt"
	"math"

	"github.com/katalvlaran/gbpgo/gaussian"
	"github.com/katalvlaran/gbpgo/linalg"
)

// eigenTolerance bounds the symmetry check on a belief's covariance before
// its eigendecomposition: loose enough to tolerate the small asymmetries
// floating-point accumulation introduces, tight enough that the reported
// ellipse is visually exact.
const eigenTolerance = 1e-9

// CovarianceEllipse reports the semi-axis lengths and orientation of a
// belief's uncertainty ellipse: the eigenvalues of Covariance() are the
// squared semi-axis lengths, and the corresponding eigenvectors (columns of
// the returned matrix) give the ellipse's principal directions. A renderer
// draws this directly over a variable's belief mean.
func CovarianceEllipse(g *gaussian.Gaussian) (semiAxes []float64, axes *linalg.Dense, err error) {
	cov, err := g.Covariance()
	if err != nil {
		return nil, nil, fmt.Errorf("CovarianceEllipse: %w", err)
	}

	eigenvalues, vectors, err := linalg.Eigen(cov, eigenTolerance)
	if err != nil {
		return nil, nil, fmt.Errorf("CovarianceEllipse: %w", err)
	}

	semiAxes = make([]float64, len(eigenvalues))
	for i, lambda := range eigenvalues {
		semiAxes[i] = math.Sqrt(math.Max(lambda, 0))
	}

	return semiAxes, vectors, nil
}
