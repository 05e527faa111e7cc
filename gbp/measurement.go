package gbp

import (
	"fmt"

	"github.com/katalvlaran/gbpgo/linalg"
)

// ModelKind tags a MeasurementModel as Linear or NonLinear. The set is
// closed: the JIT relinearisation step dispatches on this tag instead of
// using dynamic dispatch, since adding a new kind is rare enough that a
// tagged variant is the simpler, more honest representation.
type ModelKind int

const (
	// Linear measurement models are linearised exactly once, at
	// construction; JIT relinearisation never re-runs Factor.Compute for
	// them.
	Linear ModelKind = iota
	// NonLinear measurement models are relinearised whenever the adjacency
	// mean drifts past GbpSettings.Beta from the cached linearisation
	// point.
	NonLinear
)

// PredictFunc evaluates a non-linear measurement's predicted value at the
// concatenated neighbour state x.
type PredictFunc func(x []float64) ([]float64, error)

// JacobianFunc evaluates a non-linear measurement's Jacobian at x.
type JacobianFunc func(x []float64) (*linalg.Dense, error)

// MeasurementModel is a tagged variant over a linear measurement (a fixed
// Jacobian J) and a non-linear one (predict/jacobian closures), both
// sharing a fixed measurement vector Z.
type MeasurementModel struct {
	Kind ModelKind
	Z    []float64

	// Linear-only.
	J *linalg.Dense

	// NonLinear-only.
	PredictFn  PredictFunc
	JacobianFn JacobianFunc
}

// NewLinear constructs a Linear measurement model with Jacobian J and fixed
// measurement z.
func NewLinear(j *linalg.Dense, z []float64) (*MeasurementModel, error) {
	if j.Rows() != len(z) {
		return nil, fmt.Errorf("NewLinear: J has %d rows, z has len %d: %w", j.Rows(), len(z), ErrDimensionMismatch)
	}

	return &MeasurementModel{Kind: Linear, Z: append([]float64(nil), z...), J: j}, nil
}

// NewNonLinear constructs a NonLinear measurement model from predict/
// jacobian closures and a fixed measurement z.
func NewNonLinear(predict PredictFunc, jacobian JacobianFunc, z []float64) *MeasurementModel {
	return &MeasurementModel{Kind: NonLinear, Z: append([]float64(nil), z...), PredictFn: predict, JacobianFn: jacobian}
}

// Predict evaluates the measurement model's predicted value at x.
func (m *MeasurementModel) Predict(x []float64) ([]float64, error) {
	switch m.Kind {
	case Linear:
		return linalg.MulVec(m.J, x)
	case NonLinear:
		return m.PredictFn(x)
	default:
		return nil, fmt.Errorf("Predict: unknown model kind %d: %w", m.Kind, ErrDimensionMismatch)
	}
}

// Jacobian evaluates the measurement model's Jacobian at x.
func (m *MeasurementModel) Jacobian(x []float64) (*linalg.Dense, error) {
	switch m.Kind {
	case Linear:
		return m.J, nil
	case NonLinear:
		return m.JacobianFn(x)
	default:
		return nil, fmt.Errorf("Jacobian: unknown model kind %d: %w", m.Kind, ErrDimensionMismatch)
	}
}

// Residual returns z - predict(x).
func (m *MeasurementModel) Residual(x []float64) ([]float64, error) {
	pred, err := m.Predict(x)
	if err != nil {
		return nil, err
	}

	return linalg.VecSub(m.Z, pred)
}
