package linalg

import "gonum.org/v1/gonum/mat"

// Eigen returns the eigenvalues (ascending) of a symmetric matrix m and the
// matrix Q whose columns are the corresponding eigenvectors, via gonum's
// symmetric eigendecomposition. tol bounds the symmetry check; input
// asymmetry within tol (floating-point accumulation noise) is averaged away
// before factorizing, asymmetry beyond it is rejected with ErrNotSymmetric.
//
// This is not used by the core solve loop (which only needs Solve and
// Inverse); it backs diagnostics.CovarianceEllipse, which reports the
// semi-axes of a variable belief's uncertainty ellipse for a renderer.
func Eigen(m *Dense, tol float64) ([]float64, *Dense, error) {
	n, cols := m.Rows(), m.Cols()
	if n != cols {
		return nil, nil, ErrNonSquare
	}
	if !m.Symmetric(tol) {
		return nil, nil, ErrNotSymmetric
	}

	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, (m.m.At(i, j)+m.m.At(j, i))/2)
		}
	}

	var es mat.EigenSym
	if !es.Factorize(sym, true) {
		return nil, nil, ErrEigenFailed
	}

	values := es.Values(nil)
	var q mat.Dense
	es.VectorsTo(&q)

	return values, wrap(&q), nil
}
