package gbp

import (
	"errors"
	"fmt"

	"github.com/katalvlaran/gbpgo/gaussian"
	"github.com/katalvlaran/gbpgo/linalg"
)

// Factor couples the variables in its adjacency list through a measurement
// model and a loss. Each synchronous iteration it is asked, in order, to
// robustify its loss, (maybe) relinearise, recompute its own (η, Λ)
// contribution, and marginalise that contribution — augmented with the
// latest variable-to-factor messages — down to one outgoing message per
// neighbour via a Schur complement.
type Factor struct {
	id        int
	kind      string // e.g. "PoseFactor"; "" for a Factor built directly via NewFactor
	adjacency []int  // neighbour variable ids, in declared order
	offsets   []int  // offsets[i] is adjacency[i]'s starting index in the concatenated neighbour space
	dofs      []int  // dofs[i] is adjacency[i]'s dimensionality
	totalDim  int

	measurement *MeasurementModel
	loss        Loss

	linearisationPoint             []float64
	iterationsSinceRelinearisation int
	lastResidual                   []float64

	factorGaussian *gaussian.Gaussian         // over the concatenated neighbour space
	outgoing       map[int]*gaussian.Gaussian // neighbour variable id -> outgoing message
}

// NewFactor constructs a Factor over the given neighbours (in order), each
// contributing dofs[i] dimensions, and immediately linearises it at x0 (the
// concatenation of the neighbours' current means). x0 must have length
// equal to the sum of dofs.
func NewFactor(id int, adjacency []int, dofs []int, measurement *MeasurementModel, loss Loss, x0 []float64) (*Factor, error) {
	if len(adjacency) != len(dofs) {
		return nil, fmt.Errorf("NewFactor(%d): %d neighbours, %d dofs: %w", id, len(adjacency), len(dofs), ErrDimensionMismatch)
	}
	offsets := make([]int, len(dofs))
	total := 0
	for i, d := range dofs {
		offsets[i] = total
		total += d
	}
	if len(x0) != total {
		return nil, fmt.Errorf("NewFactor(%d): x0 len %d != total dim %d: %w", id, len(x0), total, ErrDimensionMismatch)
	}

	f := &Factor{
		id:          id,
		adjacency:   append([]int(nil), adjacency...),
		offsets:     offsets,
		dofs:        append([]int(nil), dofs...),
		totalDim:    total,
		measurement: measurement,
		loss:        loss,
		outgoing:    make(map[int]*gaussian.Gaussian),
	}
	if err := f.Compute(x0); err != nil {
		return nil, fmt.Errorf("NewFactor(%d): %w", id, err)
	}

	return f, nil
}

// ID returns the factor's dense arena index.
func (f *Factor) ID() int { return f.id }

// Kind returns the factor's preset name (e.g. "PoseFactor"), or "" if it
// was built directly via NewFactor rather than through the catalogue in
// factor_presets.go. Used by ExportGraph to tag exported factor nodes.
func (f *Factor) Kind() string { return f.kind }

// SetKind labels the factor's preset name; used by the constructors in
// factor_presets.go immediately after NewFactor succeeds.
func (f *Factor) SetKind(kind string) { f.kind = kind }

// Adjacency returns the neighbour variable ids, in declared order.
func (f *Factor) Adjacency() []int { return f.adjacency }

// TotalDim returns the dimension of the concatenated neighbour space.
func (f *Factor) TotalDim() int { return f.totalDim }

// Residual returns z - predict(x) for the current measurement model.
func (f *Factor) Residual(x []float64) ([]float64, error) {
	return f.measurement.Residual(x)
}

// RobustifyLoss recomputes the loss's internal scale state from the
// residual at x. This is the first of the four ordered phases in a
// synchronous iteration, run before JIT relinearisation so that a robust
// loss's down-weighting reflects the adjacency mean actually observed this
// iteration, not a stale linearisation point.
func (f *Factor) RobustifyLoss(x []float64) error {
	r, err := f.measurement.Residual(x)
	if err != nil {
		return fmt.Errorf("RobustifyLoss(%d): %w", f.id, err)
	}
	f.loss.Robustify(r)
	f.lastResidual = r

	return nil
}

// MaybeRelinearise re-linearises a NonLinear factor when the adjacency mean
// x has drifted past beta from the cached linearisation point, recomputing
// Compute and resetting the undamped warm-up counter. Linear factors never
// relinearise: the linearisation point cancels out of their (η, Λ)
// contribution algebraically (z - Jx plus Jx leaves Jᵀ W z), so Compute
// only ever needs to run once, at construction. Returns whether a
// relinearisation occurred.
func (f *Factor) MaybeRelinearise(x []float64, beta float64) (bool, error) {
	if f.measurement.Kind == Linear {
		f.iterationsSinceRelinearisation++
		return false, nil
	}

	diff, err := linalg.VecSub(x, f.linearisationPoint)
	if err != nil {
		return false, fmt.Errorf("MaybeRelinearise(%d): %w", f.id, err)
	}
	if drift := linalg.VecNorm(diff); drift <= beta {
		f.iterationsSinceRelinearisation++
		return false, nil
	}
	if err := f.Compute(x); err != nil {
		return false, fmt.Errorf("MaybeRelinearise(%d): %w", f.id, err)
	}

	return true, nil
}

// Compute assembles the factor's own (η, Λ) contribution at the
// concatenated neighbour state x: r = z - predict(x), J = jacobian(x),
// W = loss.EffectivePrecision(r), Λ_f = Jᵀ W J, η_f = Jᵀ W (Jx + r).
// It also resets the undamped warm-up counter to 1.
func (f *Factor) Compute(x []float64) error {
	if len(x) != f.totalDim {
		return fmt.Errorf("Compute(%d): x len %d != total dim %d: %w", f.id, len(x), f.totalDim, ErrDimensionMismatch)
	}

	r, err := f.measurement.Residual(x)
	if err != nil {
		return fmt.Errorf("Compute(%d): %w", f.id, err)
	}
	j, err := f.measurement.Jacobian(x)
	if err != nil {
		return fmt.Errorf("Compute(%d): %w", f.id, err)
	}
	w, err := f.loss.EffectivePrecision(r)
	if err != nil {
		return fmt.Errorf("Compute(%d): %w", f.id, err)
	}

	jt := linalg.Transpose(j)
	jtw, err := linalg.Mul(jt, w)
	if err != nil {
		return fmt.Errorf("Compute(%d): %w", f.id, err)
	}
	lambda, err := linalg.Mul(jtw, j)
	if err != nil {
		return fmt.Errorf("Compute(%d): %w", f.id, err)
	}
	jx, err := linalg.MulVec(j, x)
	if err != nil {
		return fmt.Errorf("Compute(%d): %w", f.id, err)
	}
	jxPlusR := make([]float64, len(jx))
	for i := range jx {
		jxPlusR[i] = jx[i] + r[i]
	}
	eta, err := linalg.MulVec(jtw, jxPlusR)
	if err != nil {
		return fmt.Errorf("Compute(%d): %w", f.id, err)
	}

	g, err := gaussian.From(eta, lambda)
	if err != nil {
		return fmt.Errorf("Compute(%d): %w", f.id, err)
	}
	f.factorGaussian = g
	f.linearisationPoint = append([]float64(nil), x...)
	f.lastResidual = r
	f.iterationsSinceRelinearisation = 1

	return nil
}

// Energy returns rᵀ W r for the residual last observed by RobustifyLoss or
// Compute, under the loss's effective precision for that residual.
func (f *Factor) Energy() (float64, error) {
	if f.lastResidual == nil {
		return 0, fmt.Errorf("Energy(%d): no residual observed yet: %w", f.id, ErrDimensionMismatch)
	}

	return f.weightedSquaredNorm(f.lastResidual)
}

// EnergyAt returns rᵀ W r with the residual measured fresh against x (the
// current adjacency mean), rather than against the residual cached at the
// last RobustifyLoss/Compute. FactorGraph.Energy uses this so that energy
// reflects belief means moved outside the message-passing loop too
// (GradientDescentStep, LMStep).
func (f *Factor) EnergyAt(x []float64) (float64, error) {
	r, err := f.measurement.Residual(x)
	if err != nil {
		return 0, fmt.Errorf("EnergyAt(%d): %w", f.id, err)
	}

	return f.weightedSquaredNorm(r)
}

func (f *Factor) weightedSquaredNorm(r []float64) (float64, error) {
	w, err := f.loss.EffectivePrecision(r)
	if err != nil {
		return 0, fmt.Errorf("Energy(%d): %w", f.id, err)
	}
	wr, err := linalg.MulVec(w, r)
	if err != nil {
		return 0, fmt.Errorf("Energy(%d): %w", f.id, err)
	}
	var e float64
	for i, ri := range r {
		e += ri * wr[i]
	}

	return e, nil
}

// ComputeMessages marginalises the factor's augmented Gaussian — its own
// (η, Λ) contribution plus the incoming variable-to-factor messages from
// every neighbour *other* than the recipient — down to one outgoing message
// per neighbour, via a Schur complement over the other neighbours' blocks.
// Excluding the recipient's own incoming message is the factor-side half of
// the leave-one-out rule; without it a variable's information would be
// reflected straight back at it and double-counted. damping blends each new
// message with the previous outgoing message to that neighbour (0 = no
// damping). A neighbour whose Schur complement is singular keeps its
// previous outgoing message unchanged for this iteration and its id is
// appended to the skipped slice; the returned error then wraps
// ErrIllConditioned and names the last skipped neighbour.
func (f *Factor) ComputeMessages(incoming map[int]*gaussian.Gaussian, damping float64) (skipped []int, err error) {
	var aggregate error
	for idx, neighbourID := range f.adjacency {
		aug := f.factorGaussian.Clone()
		for jdx, otherID := range f.adjacency {
			if jdx == idx {
				continue
			}
			msg, ok := incoming[otherID]
			if !ok {
				continue
			}
			off, d := f.offsets[jdx], f.dofs[jdx]
			for i := 0; i < d; i++ {
				aug.Eta[off+i] += msg.Eta[i]
			}
			if addErr := aug.Lambda.AddBlock(off, off, msg.Lambda); addErr != nil {
				return nil, fmt.Errorf("ComputeMessages(%d): %w", f.id, addErr)
			}
		}

		off, d := f.offsets[idx], f.dofs[idx]
		ownIdx := contiguousIndices(off, d)
		restIdx := complementIndices(f.totalDim, off, d)

		var msgEta []float64
		var msgLambda *linalg.Dense
		if len(restIdx) == 0 {
			msgEta = subVector(aug.Eta, ownIdx)
			msgLambda, err = subMatrix(aug.Lambda, ownIdx, ownIdx)
			if err != nil {
				return nil, fmt.Errorf("ComputeMessages(%d): %w", f.id, err)
			}
		} else {
			lambdaRR, subErr := subMatrix(aug.Lambda, restIdx, restIdx)
			if subErr != nil {
				return nil, fmt.Errorf("ComputeMessages(%d): %w", f.id, subErr)
			}
			lambdaRRInv, invErr := linalg.Inverse(lambdaRR)
			if invErr != nil {
				if errors.Is(invErr, linalg.ErrSingular) {
					skipped = append(skipped, neighbourID)
					aggregate = fmt.Errorf("ComputeMessages(%d) -> var %d: %w", f.id, neighbourID, ErrIllConditioned)
					continue
				}
				return nil, fmt.Errorf("ComputeMessages(%d): %w", f.id, invErr)
			}

			lambdaIR, subErr := subMatrix(aug.Lambda, ownIdx, restIdx)
			if subErr != nil {
				return nil, fmt.Errorf("ComputeMessages(%d): %w", f.id, subErr)
			}
			lambdaRI, subErr := subMatrix(aug.Lambda, restIdx, ownIdx)
			if subErr != nil {
				return nil, fmt.Errorf("ComputeMessages(%d): %w", f.id, subErr)
			}
			lambdaII, subErr := subMatrix(aug.Lambda, ownIdx, ownIdx)
			if subErr != nil {
				return nil, fmt.Errorf("ComputeMessages(%d): %w", f.id, subErr)
			}
			etaI := subVector(aug.Eta, ownIdx)
			etaR := subVector(aug.Eta, restIdx)

			tmp, mulErr := linalg.Mul(lambdaIR, lambdaRRInv)
			if mulErr != nil {
				return nil, fmt.Errorf("ComputeMessages(%d): %w", f.id, mulErr)
			}
			tmpLambda, mulErr := linalg.Mul(tmp, lambdaRI)
			if mulErr != nil {
				return nil, fmt.Errorf("ComputeMessages(%d): %w", f.id, mulErr)
			}
			msgLambda, mulErr = linalg.Sub(lambdaII, tmpLambda)
			if mulErr != nil {
				return nil, fmt.Errorf("ComputeMessages(%d): %w", f.id, mulErr)
			}
			tmpEta, mulErr := linalg.MulVec(tmp, etaR)
			if mulErr != nil {
				return nil, fmt.Errorf("ComputeMessages(%d): %w", f.id, mulErr)
			}
			msgEta = make([]float64, d)
			for i := range msgEta {
				msgEta[i] = etaI[i] - tmpEta[i]
			}
		}

		blended, blendErr := f.blend(neighbourID, msgEta, msgLambda, damping)
		if blendErr != nil {
			return nil, fmt.Errorf("ComputeMessages(%d): %w", f.id, blendErr)
		}
		f.outgoing[neighbourID] = blended
	}

	return skipped, aggregate
}

// blend convex-combines a newly computed message with the previous
// outgoing message to neighbourID, if one exists: damping weight on the
// old message, (1-damping) on the new one. The first message to a
// neighbour is never damped.
func (f *Factor) blend(neighbourID int, newEta []float64, newLambda *linalg.Dense, damping float64) (*gaussian.Gaussian, error) {
	prev, ok := f.outgoing[neighbourID]
	if !ok || damping == 0 {
		return gaussian.From(newEta, newLambda)
	}

	eta := make([]float64, len(newEta))
	for i := range eta {
		eta[i] = damping*prev.Eta[i] + (1-damping)*newEta[i]
	}
	blendedLambda, err := linalg.Add(linalg.Scale(prev.Lambda, damping), linalg.Scale(newLambda, 1-damping))
	if err != nil {
		return nil, err
	}

	return gaussian.From(eta, blendedLambda)
}

// Outgoing returns the message last computed for neighbourID, if any.
func (f *Factor) Outgoing(neighbourID int) (*gaussian.Gaussian, bool) {
	m, ok := f.outgoing[neighbourID]
	return m, ok
}

// RemoveConnectionTo drops the cached outgoing message to variableID.
// Returns ErrNoSuchConnection if no such message is cached.
func (f *Factor) RemoveConnectionTo(variableID int) error {
	if _, ok := f.outgoing[variableID]; !ok {
		return fmt.Errorf("RemoveConnectionTo(%d, %d): %w", f.id, variableID, ErrNoSuchConnection)
	}
	delete(f.outgoing, variableID)

	return nil
}

// contiguousIndices returns [off, off+n).
func contiguousIndices(off, n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = off + i
	}

	return idx
}

// complementIndices returns every index in [0, total) outside [off, off+n).
func complementIndices(total, off, n int) []int {
	idx := make([]int, 0, total-n)
	for i := 0; i < total; i++ {
		if i >= off && i < off+n {
			continue
		}
		idx = append(idx, i)
	}

	return idx
}

// subVector gathers v[idx[0]], v[idx[1]], ... into a new slice.
func subVector(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = v[j]
	}

	return out
}

// subMatrix gathers the submatrix m[rowIdx, colIdx] into a new Dense.
func subMatrix(m *linalg.Dense, rowIdx, colIdx []int) (*linalg.Dense, error) {
	out, err := linalg.NewDense(len(rowIdx), len(colIdx))
	if err != nil {
		return nil, err
	}
	for i, ri := range rowIdx {
		for j, cj := range colIdx {
			v, atErr := m.At(ri, cj)
			if atErr != nil {
				return nil, atErr
			}
			if setErr := out.Set(i, j, v); setErr != nil {
				return nil, setErr
			}
		}
	}

	return out, nil
}
