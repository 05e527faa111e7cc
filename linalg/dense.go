package linalg

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Dense is the matrix type the rest of gbpgo works with: a gonum dense
// matrix behind bounds-checked, error-returning accessors. gonum's own
// accessors panic on out-of-range indices; the factor graph prefers
// sentinel errors for caller-triggered conditions, so this wrapper keeps
// the panic surface internal to trusted call sites.
type Dense struct {
	m *mat.Dense
}

// NewDense allocates an r×c zero matrix.
func NewDense(rows, cols int) (*Dense, error) {
	if rows <= 0 || cols <= 0 {
		return nil, ErrInvalidDimensions
	}

	return &Dense{m: mat.NewDense(rows, cols, nil)}, nil
}

// MustDense is NewDense for internal call sites where the dimensions are
// already known-good (e.g. derived from a Gaussian's own stored dimension).
// It panics on failure, since that would indicate a programmer error rather
// than bad caller input.
func MustDense(rows, cols int) *Dense {
	d, err := NewDense(rows, cols)
	if err != nil {
		panic(fmt.Sprintf("linalg: MustDense(%d, %d): %v", rows, cols, err))
	}

	return d
}

// wrap adopts an existing gonum matrix.
func wrap(m *mat.Dense) *Dense { return &Dense{m: m} }

// Rows returns the number of rows.
func (m *Dense) Rows() int {
	r, _ := m.m.Dims()
	return r
}

// Cols returns the number of columns.
func (m *Dense) Cols() int {
	_, c := m.m.Dims()
	return c
}

func (m *Dense) check(i, j int) error {
	r, c := m.m.Dims()
	if i < 0 || i >= r || j < 0 || j >= c {
		return fmt.Errorf("index(%d,%d) on %dx%d: %w", i, j, r, c, ErrOutOfRange)
	}

	return nil
}

// At retrieves the element at (i, j).
func (m *Dense) At(i, j int) (float64, error) {
	if err := m.check(i, j); err != nil {
		return 0, err
	}

	return m.m.At(i, j), nil
}

// Set assigns v at position (i, j).
func (m *Dense) Set(i, j int, v float64) error {
	if err := m.check(i, j); err != nil {
		return err
	}
	m.m.Set(i, j, v)

	return nil
}

// AddAt adds v into the existing value at (i, j). Block-wise accumulation
// (joint assembly, message aggregation) goes through AddBlock instead.
func (m *Dense) AddAt(i, j int, v float64) error {
	if err := m.check(i, j); err != nil {
		return err
	}
	m.m.Set(i, j, m.m.At(i, j)+v)

	return nil
}

// Clone returns a deep copy of m.
func (m *Dense) Clone() *Dense {
	return wrap(mat.DenseCopyOf(m.m))
}

// View returns a new Dense holding a copy of the rows×cols block starting
// at (rowOff, colOff). Joint assembly uses it to copy out each
// neighbour-pair block of a factor's precision matrix.
func (m *Dense) View(rowOff, colOff, rows, cols int) (*Dense, error) {
	if rows <= 0 || cols <= 0 {
		return nil, ErrInvalidDimensions
	}
	r, c := m.m.Dims()
	if rowOff < 0 || colOff < 0 || rowOff+rows > r || colOff+cols > c {
		return nil, fmt.Errorf("View(%d,%d,%d,%d) on %dx%d: %w", rowOff, colOff, rows, cols, r, c, ErrOutOfRange)
	}

	return wrap(mat.DenseCopyOf(m.m.Slice(rowOff, rowOff+rows, colOff, colOff+cols))), nil
}

// SetBlock writes src into m starting at (rowOff, colOff), overwriting.
func (m *Dense) SetBlock(rowOff, colOff int, src *Dense) error {
	r, c := m.m.Dims()
	sr, sc := src.m.Dims()
	if rowOff < 0 || colOff < 0 || rowOff+sr > r || colOff+sc > c {
		return fmt.Errorf("SetBlock(%d,%d) of %dx%d into %dx%d: %w", rowOff, colOff, sr, sc, r, c, ErrOutOfRange)
	}
	dst := m.m.Slice(rowOff, rowOff+sr, colOff, colOff+sc).(*mat.Dense)
	dst.Copy(src.m)

	return nil
}

// AddBlock adds src into m starting at (rowOff, colOff), in place.
func (m *Dense) AddBlock(rowOff, colOff int, src *Dense) error {
	r, c := m.m.Dims()
	sr, sc := src.m.Dims()
	if rowOff < 0 || colOff < 0 || rowOff+sr > r || colOff+sc > c {
		return fmt.Errorf("AddBlock(%d,%d) of %dx%d into %dx%d: %w", rowOff, colOff, sr, sc, r, c, ErrOutOfRange)
	}
	dst := m.m.Slice(rowOff, rowOff+sr, colOff, colOff+sc).(*mat.Dense)
	dst.Add(dst, src.m)

	return nil
}

// IsSquare reports whether the matrix has equal row and column count.
func (m *Dense) IsSquare() bool {
	r, c := m.m.Dims()
	return r == c
}

// Symmetric reports whether m equals its transpose within tol, elementwise.
// The assembled joint precision matrix must stay symmetric up to numerical
// tolerance; this is its check.
func (m *Dense) Symmetric(tol float64) bool {
	if !m.IsSquare() {
		return false
	}
	r, _ := m.m.Dims()
	for i := 0; i < r; i++ {
		for j := i + 1; j < r; j++ {
			if diff := m.m.At(i, j) - m.m.At(j, i); diff > tol || diff < -tol {
				return false
			}
		}
	}

	return true
}
