package gbp

import (
	"fmt"
	"math"

	"github.com/katalvlaran/gbpgo/linalg"
)

// This file collects the measurement-model catalogue used by the
// motion-planning scenarios this package targets: a unary prior anchor
// (PoseFactor), a binary constant-velocity process model (DynamicFactor), a
// unary signed-distance-field clearance constraint (ObstacleFactor), and a
// binary minimum-separation constraint between two agents'
// (InterRobotFactor). Each is a thin constructor over NewFactor plus the
// appropriate MeasurementModel; none of them introduce new Factor
// behaviour.

// PoseFactor anchors a single variable to a fixed prior mean via an
// identity measurement model. It is Linear: the Jacobian is the identity
// and the residual's linearisation point cancels out algebraically, so it
// is computed once, at construction, and never relinearised.
func PoseFactor(id, variableID, dofs int, mean []float64, precision *linalg.Dense) (*Factor, error) {
	if len(mean) != dofs {
		return nil, fmt.Errorf("PoseFactor(%d): mean len %d != dofs %d: %w", id, len(mean), dofs, ErrDimensionMismatch)
	}
	ident, err := linalg.Identity(dofs)
	if err != nil {
		return nil, fmt.Errorf("PoseFactor(%d): %w", id, err)
	}
	model, err := NewLinear(ident, mean)
	if err != nil {
		return nil, fmt.Errorf("PoseFactor(%d): %w", id, err)
	}

	f, err := NewFactor(id, []int{variableID}, []int{dofs}, model, NewGaussianLoss(precision), mean)
	if err != nil {
		return nil, err
	}
	f.SetKind("PoseFactor")

	return f, nil
}

// DynamicFactor links two consecutive [position; velocity] states across a
// timestep dt under a constant-velocity process model: the residual is
// zero when posB == posA + dt*velA and velB == velA. dofs is the full
// per-variable state dimension (position and velocity halves of equal
// size); precision is the process-noise precision (commonly scaled by
// 1/dt). The model is Linear: its Jacobian does not depend on dt's
// operating point, only on dt itself.
func DynamicFactor(id, variableA, variableB, dofs int, dt float64, precision *linalg.Dense) (*Factor, error) {
	if dofs%2 != 0 {
		return nil, fmt.Errorf("DynamicFactor(%d): dofs %d is not even: %w", id, dofs, ErrDimensionMismatch)
	}
	posDim := dofs / 2

	j, err := linalg.NewDense(dofs, 2*dofs)
	if err != nil {
		return nil, fmt.Errorf("DynamicFactor(%d): %w", id, err)
	}
	// Position rows: d(posB - posA - dt*velA)/d[posA,velA,posB,velB]
	for i := 0; i < posDim; i++ {
		_ = j.Set(i, i, -1)         // d/d posA
		_ = j.Set(i, posDim+i, -dt) // d/d velA
		_ = j.Set(i, dofs+i, 1)     // d/d posB
	}
	// Velocity rows: d(velB - velA)/d[posA,velA,posB,velB]
	for i := 0; i < posDim; i++ {
		_ = j.Set(posDim+i, posDim+i, -1)     // d/d velA
		_ = j.Set(posDim+i, dofs+posDim+i, 1) // d/d velB
	}

	model, err := NewLinear(j, make([]float64, dofs))
	if err != nil {
		return nil, fmt.Errorf("DynamicFactor(%d): %w", id, err)
	}

	f, err := NewFactor(id, []int{variableA, variableB}, []int{dofs, dofs}, model, NewGaussianLoss(precision), make([]float64, 2*dofs))
	if err != nil {
		return nil, err
	}
	f.SetKind("DynamicFactor")

	return f, nil
}

// SignedDistanceFunc evaluates an obstacle field at position x, returning
// the signed distance and its gradient with respect to x.
type SignedDistanceFunc func(x []float64) (distance float64, gradient []float64, err error)

// ObstacleFactor ties a single variable's position to a clearance
// constraint against an obstacle field: the residual is clearance -
// sdf(x). It is NonLinear: sdf is an arbitrary field sampled via the
// supplied closure, so the factor relinearises under the normal JIT rule.
// x0 is the variable's position at construction time.
func ObstacleFactor(id, variableID, dofs int, sdf SignedDistanceFunc, clearance float64, precision *linalg.Dense, x0 []float64) (*Factor, error) {
	if len(x0) != dofs {
		return nil, fmt.Errorf("ObstacleFactor(%d): x0 len %d != dofs %d: %w", id, len(x0), dofs, ErrDimensionMismatch)
	}

	predict := func(x []float64) ([]float64, error) {
		d, _, err := sdf(x)
		if err != nil {
			return nil, fmt.Errorf("ObstacleFactor(%d).predict: %w", id, err)
		}

		return []float64{d}, nil
	}
	jacobian := func(x []float64) (*linalg.Dense, error) {
		_, grad, err := sdf(x)
		if err != nil {
			return nil, fmt.Errorf("ObstacleFactor(%d).jacobian: %w", id, err)
		}
		if len(grad) != dofs {
			return nil, fmt.Errorf("ObstacleFactor(%d).jacobian: gradient len %d != dofs %d: %w", id, len(grad), dofs, ErrDimensionMismatch)
		}
		j, err := linalg.NewDense(1, dofs)
		if err != nil {
			return nil, err
		}
		for i, g := range grad {
			if err := j.Set(0, i, g); err != nil {
				return nil, err
			}
		}

		return j, nil
	}

	model := NewNonLinear(predict, jacobian, []float64{clearance})

	f, err := NewFactor(id, []int{variableID}, []int{dofs}, model, NewGaussianLoss(precision), x0)
	if err != nil {
		return nil, err
	}
	f.SetKind("ObstacleFactor")

	return f, nil
}

// InterRobotFactor enforces a minimum separation distance between two
// agents' positions: the residual is safetyDistance - ‖posA - posB‖,
// driving the pair apart whenever they are closer than safetyDistance. It
// is NonLinear (the Euclidean norm is non-linear in the positions). x0 is
// the concatenation of both agents' positions at construction time.
func InterRobotFactor(id, variableA, variableB, posDim int, safetyDistance float64, precision *linalg.Dense, x0 []float64) (*Factor, error) {
	if len(x0) != 2*posDim {
		return nil, fmt.Errorf("InterRobotFactor(%d): x0 len %d != %d: %w", id, len(x0), 2*posDim, ErrDimensionMismatch)
	}

	const minDistance = 1e-9

	split := func(x []float64) (a, b []float64) {
		return x[:posDim], x[posDim:]
	}

	predict := func(x []float64) ([]float64, error) {
		a, b := split(x)
		var sumSq float64
		for i := range a {
			d := a[i] - b[i]
			sumSq += d * d
		}

		return []float64{math.Sqrt(sumSq)}, nil
	}
	jacobian := func(x []float64) (*linalg.Dense, error) {
		a, b := split(x)
		var sumSq float64
		diff := make([]float64, posDim)
		for i := range a {
			diff[i] = a[i] - b[i]
			sumSq += diff[i] * diff[i]
		}
		dist := math.Max(math.Sqrt(sumSq), minDistance)

		j, err := linalg.NewDense(1, 2*posDim)
		if err != nil {
			return nil, err
		}
		for i := 0; i < posDim; i++ {
			_ = j.Set(0, i, diff[i]/dist)
			_ = j.Set(0, posDim+i, -diff[i]/dist)
		}

		return j, nil
	}

	model := NewNonLinear(predict, jacobian, []float64{safetyDistance})

	f, err := NewFactor(id, []int{variableA, variableB}, []int{posDim, posDim}, model, NewGaussianLoss(precision), x0)
	if err != nil {
		return nil, err
	}
	f.SetKind("InterRobotFactor")

	return f, nil
}
