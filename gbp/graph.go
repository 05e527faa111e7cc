package gbp

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/HazelnutParadise/insyra/parallel"
	"go.uber.org/multierr"

	"github.com/katalvlaran/gbpgo/gaussian"
	"github.com/katalvlaran/gbpgo/linalg"
)

// FactorGraph owns the variable and factor arenas and drives the
// synchronous Gaussian Belief Propagation iteration: robustify, JIT
// relinearise, compute and dispatch messages, update beliefs, strictly in
// that order and with a full barrier between phases. Structural changes
// (AddVariable, AddFactor, RemoveVariable, RemoveFactor) are serialised
// against one another and against a running SynchronousIteration by mu;
// within one phase, per-entity mutation is protected by each Variable's
// and Factor's own state instead, so phases can run concurrently up to
// GbpSettings.Parallelism.
type FactorGraph struct {
	mu sync.RWMutex

	variables map[int]*Variable
	factors   map[int]*Factor
	nextVarID int
	nextFacID int

	settings GbpSettings
	dropout  DropoutSampler
	logger   EnergyLogger
}

// GraphNode describes one node of an exported graph: a variable (Kind ==
// "Variable", Mean populated from its belief) or a factor (Kind is the
// factor's preset name, or "Factor" if built directly via NewFactor).
// OtherVariable is the id of the second endpoint for InterRobotFactor
// nodes, so a renderer can resolve which foreign variable the factor
// couples to; it is -1 for every other kind.
type GraphNode struct {
	ID            int
	Kind          string
	Mean          []float64
	OtherVariable int
}

// GraphEdge describes one factor-variable adjacency in an exported graph.
type GraphEdge struct {
	FactorID   int
	VariableID int
}

// NewFactorGraph constructs an empty FactorGraph. seed fixes the
// deterministic dropout stream; the same seed and the same sequence of
// graph operations always reproduce the same dropout pattern, regardless
// of GbpSettings.Parallelism.
func NewFactorGraph(settings GbpSettings, seed int64) (*FactorGraph, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("NewFactorGraph: %w", err)
	}

	return &FactorGraph{
		variables: make(map[int]*Variable),
		factors:   make(map[int]*Factor),
		settings:  settings,
		dropout:   NewDropoutSampler(seed),
		logger:    NewZapEnergyLogger(nil),
	}, nil
}

// SetLogger replaces the graph's EnergyLogger. A nil logger is rejected in
// favour of leaving the previous one in place.
func (g *FactorGraph) SetLogger(logger EnergyLogger) {
	if logger == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.logger = logger
}

// AddVariable allocates a new variable with the given prior and returns
// its id.
func (g *FactorGraph) AddVariable(dofs int, prior *gaussian.Gaussian) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.nextVarID
	v, err := NewVariable(id, dofs, prior)
	if err != nil {
		return 0, fmt.Errorf("AddVariable: %w", err)
	}
	g.variables[id] = v
	g.nextVarID++

	return id, nil
}

// NextFactorID reserves the id a subsequently constructed Factor (e.g. via
// the factor_presets.go catalogue) should be built with before it is
// registered via AddFactor.
func (g *FactorGraph) NextFactorID() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.nextFacID
	g.nextFacID++

	return id
}

// AddFactor registers a Factor built with an id obtained from
// NextFactorID, validating that every neighbour in its adjacency exists
// and has a matching dimensionality.
func (g *FactorGraph) AddFactor(f *Factor) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, vid := range f.Adjacency() {
		v, ok := g.variables[vid]
		if !ok {
			return fmt.Errorf("AddFactor(%d): neighbour %d: %w", f.ID(), vid, ErrUnknownVariable)
		}
		if v.Dofs() != f.dofs[i] {
			return fmt.Errorf("AddFactor(%d): neighbour %d dofs %d != factor block %d: %w", f.ID(), vid, v.Dofs(), f.dofs[i], ErrDimensionMismatch)
		}
	}
	g.factors[f.ID()] = f

	return nil
}

// RemoveFactor deletes a factor and purges the corresponding message slot
// from each of its neighbours.
func (g *FactorGraph) RemoveFactor(id int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	f, ok := g.factors[id]
	if !ok {
		return fmt.Errorf("RemoveFactor(%d): %w", id, ErrUnknownFactor)
	}
	for _, vid := range f.Adjacency() {
		if v, ok := g.variables[vid]; ok {
			_ = v.RemoveConnectionTo(id)
		}
	}
	delete(g.factors, id)

	return nil
}

// RemoveVariable deletes a variable and cascades to every factor adjacent
// to it, since a factor's measurement model is defined over a fixed
// adjacency and cannot be safely reduced in place: each such factor is
// removed too, and its message slot is purged from its other neighbours.
func (g *FactorGraph) RemoveVariable(id int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.variables[id]; !ok {
		return fmt.Errorf("RemoveVariable(%d): %w", id, ErrUnknownVariable)
	}

	var toRemove []int
	for fid, f := range g.factors {
		for _, vid := range f.Adjacency() {
			if vid == id {
				toRemove = append(toRemove, fid)
				break
			}
		}
	}
	sort.Ints(toRemove)

	for _, fid := range toRemove {
		f := g.factors[fid]
		for _, vid := range f.Adjacency() {
			if other, ok := g.variables[vid]; ok {
				_ = other.RemoveConnectionTo(fid)
			}
		}
		delete(g.factors, fid)
	}
	delete(g.variables, id)

	return nil
}

// BeliefOf returns the current belief of variable id.
func (g *FactorGraph) BeliefOf(id int) (*gaussian.Gaussian, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	v, ok := g.variables[id]
	if !ok {
		return nil, fmt.Errorf("BeliefOf(%d): %w", id, ErrUnknownVariable)
	}

	return v.Belief(), nil
}

// AdjacencyMean concatenates the current belief means of variableIDs, in
// order. Used to build the x0 a factor_presets.go constructor linearises
// at.
func (g *FactorGraph) AdjacencyMean(variableIDs []int) ([]float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.adjacencyMeanLocked(variableIDs)
}

func (g *FactorGraph) adjacencyMeanLocked(variableIDs []int) ([]float64, error) {
	x := make([]float64, 0)
	for _, vid := range variableIDs {
		v, ok := g.variables[vid]
		if !ok {
			return nil, fmt.Errorf("AdjacencyMean: variable %d: %w", vid, ErrUnknownVariable)
		}
		mean, err := v.Belief().Mean()
		if err != nil {
			return nil, fmt.Errorf("AdjacencyMean: variable %d: %w", vid, err)
		}
		x = append(x, mean...)
	}

	return x, nil
}

func (g *FactorGraph) sortedVariableIDsLocked() []int {
	ids := make([]int, 0, len(g.variables))
	for id := range g.variables {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	return ids
}

func (g *FactorGraph) sortedFactorIDsLocked() []int {
	ids := make([]int, 0, len(g.factors))
	for id := range g.factors {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	return ids
}

// SynchronousIteration runs one GBP iteration's four ordered phases --
// robustify, JIT relinearise, compute-and-dispatch messages, update
// beliefs -- with a full barrier between phases. iteration is the 0-based
// index used for GbpSettings.ResetIterations and dropout. It returns how
// many factors had an ill-conditioned Schur complement skipped this
// iteration (recoverable, not an error) alongside any fatal error.
func (g *FactorGraph) SynchronousIteration(iteration int) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	factorIDs := g.sortedFactorIDsLocked()
	variableIDs := g.sortedVariableIDsLocked()

	for _, reset := range g.settings.ResetIterations {
		if reset == iteration {
			for _, fid := range factorIDs {
				g.factors[fid].iterationsSinceRelinearisation = 1
			}
			break
		}
	}

	// Phase 1: robustify each factor's loss from the current adjacency mean.
	if err := g.runParallel(len(factorIDs), func(i int) error {
		f := g.factors[factorIDs[i]]
		x, err := g.adjacencyMeanLocked(f.Adjacency())
		if err != nil {
			return err
		}

		return f.RobustifyLoss(x)
	}); err != nil {
		return 0, fmt.Errorf("SynchronousIteration(%d): robustify: %w", iteration, err)
	}

	// Phase 2: JIT relinearisation.
	if err := g.runParallel(len(factorIDs), func(i int) error {
		f := g.factors[factorIDs[i]]
		x, err := g.adjacencyMeanLocked(f.Adjacency())
		if err != nil {
			return err
		}
		_, err = f.MaybeRelinearise(x, g.settings.Beta)

		return err
	}); err != nil {
		return 0, fmt.Errorf("SynchronousIteration(%d): relinearise: %w", iteration, err)
	}

	// Phase 3: compute messages, honouring dropout. Computation only reads
	// the variables' message tables; dispatch is deferred so that every
	// factor's leave-one-out products see the previous iteration's messages,
	// never this iteration's, regardless of sweep order or Parallelism.
	var illConditionedMu sync.Mutex
	illConditioned := 0
	computed := make([]bool, len(factorIDs))
	msgErr := g.runParallel(len(factorIDs), func(i int) error {
		fid := factorIDs[i]
		f := g.factors[fid]
		if g.dropout.Skip(fid, iteration, g.settings.Dropout) {
			return nil
		}

		incoming := make(map[int]*gaussian.Gaussian, len(f.Adjacency()))
		for _, vid := range f.Adjacency() {
			v, ok := g.variables[vid]
			if !ok {
				return fmt.Errorf("factor %d: %w", fid, ErrUnknownVariable)
			}
			msg, err := v.SendMessageTo(fid)
			if err != nil {
				return fmt.Errorf("factor %d: %w", fid, err)
			}
			incoming[vid] = msg
		}

		damping := g.settings.damping(f.iterationsSinceRelinearisation)
		skipped, cmErr := f.ComputeMessages(incoming, damping)
		if len(skipped) > 0 {
			illConditionedMu.Lock()
			illConditioned++
			illConditionedMu.Unlock()
		}
		if cmErr != nil && !errors.Is(cmErr, ErrIllConditioned) {
			return cmErr
		}
		computed[i] = true

		return nil
	})
	if msgErr != nil {
		return illConditioned, fmt.Errorf("SynchronousIteration(%d): messages: %w", iteration, msgErr)
	}

	// Phase 3b: dispatch the freshly computed messages into the variables'
	// tables, now that no factor will read them again this iteration.
	if err := g.runParallel(len(factorIDs), func(i int) error {
		if !computed[i] {
			return nil
		}
		fid := factorIDs[i]
		f := g.factors[fid]
		for _, vid := range f.Adjacency() {
			msg, ok := f.Outgoing(vid)
			if !ok {
				continue
			}
			if err := g.variables[vid].ReceiveMessageFrom(fid, msg); err != nil {
				return fmt.Errorf("factor %d -> variable %d: %w", fid, vid, err)
			}
		}

		return nil
	}); err != nil {
		return illConditioned, fmt.Errorf("SynchronousIteration(%d): dispatch: %w", iteration, err)
	}

	// Phase 4: update beliefs.
	if err := g.runParallel(len(variableIDs), func(i int) error {
		return g.variables[variableIDs[i]].UpdateBelief()
	}); err != nil {
		return illConditioned, fmt.Errorf("SynchronousIteration(%d): update beliefs: %w", iteration, err)
	}

	return illConditioned, nil
}

// Solve runs up to settings.Iterations synchronous iterations, logging
// energy after each one, and reports Converged once three consecutive
// iterations have an energy delta below settings.ConvergenceThreshold.
func (g *FactorGraph) Solve(settings SolveSettings) (SolveOutcome, error) {
	if err := settings.Validate(); err != nil {
		return MaxIterationsReached, fmt.Errorf("Solve: %w", err)
	}

	g.mu.RLock()
	logger := g.logger
	g.mu.RUnlock()
	if !settings.Log || logger == nil {
		logger = noopEnergyLogger{}
	}

	stable := 0
	energyPrev := math.Inf(1)
	for iter := 0; iter < settings.Iterations; iter++ {
		illConditioned, err := g.SynchronousIteration(iter)
		if err != nil {
			return MaxIterationsReached, fmt.Errorf("Solve: %w", err)
		}

		energyNow, err := g.Energy(settings.IncludePriors)
		if err != nil {
			return MaxIterationsReached, fmt.Errorf("Solve: %w", err)
		}
		logger.LogIteration(iter, energyNow, illConditioned)

		if math.Abs(energyNow-energyPrev) < settings.ConvergenceThreshold {
			stable++
		} else {
			stable = 0
		}
		energyPrev = energyNow

		if stable >= 3 {
			return Converged, nil
		}
	}

	return MaxIterationsReached, nil
}

// Energy returns the sum of every factor's rᵀWr with the residual measured
// against the current adjacency mean, plus (if includePriors) every
// variable's squared Mahalanobis distance from its prior.
func (g *FactorGraph) Energy(includePriors bool) (float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.energyLocked(includePriors)
}

func (g *FactorGraph) energyLocked(includePriors bool) (float64, error) {
	var total float64
	for _, fid := range g.sortedFactorIDsLocked() {
		f := g.factors[fid]
		x, err := g.adjacencyMeanLocked(f.Adjacency())
		if err != nil {
			return 0, fmt.Errorf("Energy: factor %d: %w", fid, err)
		}
		e, err := f.EnergyAt(x)
		if err != nil {
			return 0, fmt.Errorf("Energy: factor %d: %w", fid, err)
		}
		total += e
	}
	if includePriors {
		for _, vid := range g.sortedVariableIDsLocked() {
			e, err := g.variables[vid].PriorEnergy()
			if err != nil {
				return 0, fmt.Errorf("Energy: variable %d: %w", vid, err)
			}
			total += e
		}
	}

	return total, nil
}

// variableOffsets returns the cumulative per-variable offset into the
// concatenated joint/gradient space, in sorted id order, and the total
// dimension.
func (g *FactorGraph) variableOffsetsLocked(variableIDs []int) (map[int]int, int) {
	offsets := make(map[int]int, len(variableIDs))
	total := 0
	for _, vid := range variableIDs {
		offsets[vid] = total
		total += g.variables[vid].Dofs()
	}

	return offsets, total
}

// JointDistribution assembles the dense joint Gaussian over every
// variable: priors on the diagonal, and each factor's (η, Λ) contribution
// scattered into the blocks of its adjacency, using (offsets[v],
// offsets[w]) for the off-diagonal block between neighbours v and w.
func (g *FactorGraph) JointDistribution() (*gaussian.Gaussian, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.jointDistributionLocked()
}

func (g *FactorGraph) jointDistributionLocked() (*gaussian.Gaussian, error) {
	variableIDs := g.sortedVariableIDsLocked()
	offsets, total := g.variableOffsetsLocked(variableIDs)
	if total == 0 {
		return nil, fmt.Errorf("JointDistribution: %w", ErrDimensionMismatch)
	}

	eta := make([]float64, total)
	lambda := linalg.MustDense(total, total)

	for _, vid := range variableIDs {
		v := g.variables[vid]
		off := offsets[vid]
		prior := v.Prior()
		for i := 0; i < v.Dofs(); i++ {
			eta[off+i] += prior.Eta[i]
		}
		if err := lambda.AddBlock(off, off, prior.Lambda); err != nil {
			return nil, fmt.Errorf("JointDistribution: variable %d: %w", vid, err)
		}
	}

	for _, fid := range g.sortedFactorIDsLocked() {
		f := g.factors[fid]
		adj := f.Adjacency()
		for i, vi := range adj {
			oi, di := f.offsets[i], f.dofs[i]
			globalOi := offsets[vi]
			for k := 0; k < di; k++ {
				eta[globalOi+k] += f.factorGaussian.Eta[oi+k]
			}
			for j, vj := range adj {
				oj, dj := f.offsets[j], f.dofs[j]
				globalOj := offsets[vj]
				block, err := f.factorGaussian.Lambda.View(oi, oj, di, dj)
				if err != nil {
					return nil, fmt.Errorf("JointDistribution: factor %d: %w", fid, err)
				}
				if err := lambda.AddBlock(globalOi, globalOj, block); err != nil {
					return nil, fmt.Errorf("JointDistribution: factor %d: %w", fid, err)
				}
			}
		}
	}

	joint, err := gaussian.From(eta, lambda)
	if err != nil {
		return nil, fmt.Errorf("JointDistribution: %w", err)
	}

	return joint, nil
}

// MAP returns the mean of the assembled joint distribution -- the maximum
// a posteriori estimate over every variable, concatenated in sorted id
// order.
func (g *FactorGraph) MAP() ([]float64, error) {
	joint, err := g.JointDistribution()
	if err != nil {
		return nil, fmt.Errorf("MAP: %w", err)
	}
	mean, err := joint.Mean()
	if err != nil {
		return nil, fmt.Errorf("MAP: %w", err)
	}

	return mean, nil
}

// Gradient returns the gradient of the total energy with respect to every
// variable's mean, concatenated in sorted id order: since r = z - predict(x),
// each factor contributes -Jᵀ W r evaluated at the current adjacency mean
// (not the cached linearisation point, so Gradient reflects the graph's
// actual current state even mid-iteration); priors contribute
// Λ_prior(mean - priorMean) when includePriors is set. Stepping against this
// gradient lowers Energy, which is what GradientDescentStep and LMStep rely
// on.
func (g *FactorGraph) Gradient(includePriors bool) ([]float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.gradientLocked(includePriors)
}

func (g *FactorGraph) gradientLocked(includePriors bool) ([]float64, error) {
	variableIDs := g.sortedVariableIDsLocked()
	offsets, total := g.variableOffsetsLocked(variableIDs)
	grad := make([]float64, total)

	for _, fid := range g.sortedFactorIDsLocked() {
		f := g.factors[fid]
		x, err := g.adjacencyMeanLocked(f.Adjacency())
		if err != nil {
			return nil, fmt.Errorf("Gradient: factor %d: %w", fid, err)
		}
		r, err := f.measurement.Residual(x)
		if err != nil {
			return nil, fmt.Errorf("Gradient: factor %d: %w", fid, err)
		}
		j, err := f.measurement.Jacobian(x)
		if err != nil {
			return nil, fmt.Errorf("Gradient: factor %d: %w", fid, err)
		}
		w, err := f.loss.EffectivePrecision(r)
		if err != nil {
			return nil, fmt.Errorf("Gradient: factor %d: %w", fid, err)
		}
		wr, err := linalg.MulVec(w, r)
		if err != nil {
			return nil, fmt.Errorf("Gradient: factor %d: %w", fid, err)
		}
		jtwr, err := linalg.MulVec(linalg.Transpose(j), wr)
		if err != nil {
			return nil, fmt.Errorf("Gradient: factor %d: %w", fid, err)
		}
		for i, vid := range f.Adjacency() {
			off, d := f.offsets[i], f.dofs[i]
			globalOff := offsets[vid]
			for k := 0; k < d; k++ {
				grad[globalOff+k] -= jtwr[off+k]
			}
		}
	}

	if includePriors {
		for _, vid := range variableIDs {
			v := g.variables[vid]
			mean, err := v.Belief().Mean()
			if err != nil {
				return nil, fmt.Errorf("Gradient: variable %d: %w", vid, err)
			}
			priorMean, err := v.Prior().Mean()
			if err != nil {
				return nil, fmt.Errorf("Gradient: variable %d: %w", vid, err)
			}
			r := make([]float64, v.Dofs())
			for i := range r {
				r[i] = mean[i] - priorMean[i]
			}
			lr, err := linalg.MulVec(v.Prior().Lambda, r)
			if err != nil {
				return nil, fmt.Errorf("Gradient: variable %d: %w", vid, err)
			}
			off := offsets[vid]
			for k := 0; k < v.Dofs(); k++ {
				grad[off+k] += lr[k]
			}
		}
	}

	return grad, nil
}

// GradientDescentStep shifts every variable's belief mean by -lr times its
// gradient component, leaving each belief's precision unchanged (only its
// mean, and therefore η, moves).
func (g *FactorGraph) GradientDescentStep(lr float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	variableIDs := g.sortedVariableIDsLocked()
	grad, err := g.gradientLocked(true)
	if err != nil {
		return fmt.Errorf("GradientDescentStep: %w", err)
	}

	offset := 0
	for _, vid := range variableIDs {
		v := g.variables[vid]
		if err := g.shiftBelief(v, grad[offset:offset+v.Dofs()], -lr); err != nil {
			return fmt.Errorf("GradientDescentStep: variable %d: %w", vid, err)
		}
		offset += v.Dofs()
	}
	if err := g.relineariseAllLocked(); err != nil {
		return fmt.Errorf("GradientDescentStep: %w", err)
	}

	return nil
}

// relineariseAllLocked recomputes every factor at its neighbours' current
// belief means. Called after belief means move outside the message-passing
// loop (GradientDescentStep, LMStep), where the usual JIT drift check would
// leave factor state pointing at the pre-step means.
func (g *FactorGraph) relineariseAllLocked() error {
	for _, fid := range g.sortedFactorIDsLocked() {
		f := g.factors[fid]
		x, err := g.adjacencyMeanLocked(f.Adjacency())
		if err != nil {
			return fmt.Errorf("relinearise: factor %d: %w", fid, err)
		}
		if err := f.Compute(x); err != nil {
			return fmt.Errorf("relinearise: factor %d: %w", fid, err)
		}
	}

	return nil
}

// shiftBelief replaces v's belief with one whose mean is mean + scale*delta
// and whose precision is unchanged.
func (g *FactorGraph) shiftBelief(v *Variable, delta []float64, scale float64) error {
	mean, err := v.Belief().Mean()
	if err != nil {
		return err
	}
	newMean := make([]float64, v.Dofs())
	for k := range newMean {
		newMean[k] = mean[k] + scale*delta[k]
	}
	newEta, err := linalg.MulVec(v.Belief().Lambda, newMean)
	if err != nil {
		return err
	}
	updated, err := gaussian.From(newEta, v.Belief().Lambda)
	if err != nil {
		return err
	}
	v.belief = updated

	return nil
}

// maxLMLambda caps the damping growth on repeated LMStep rejections, so a
// stuck caller loop degrades to vanishingly small (but still attempted)
// steps instead of overflowing lambda.
const maxLMLambda = 1e5

// LMStep attempts one Levenberg-Marquardt step: solve (H + lambda*I) step
// = -gradient, where H is the precision block of the assembled joint
// distribution (the Gauss-Newton Hessian approximation), then accept the
// step if it lowers total energy (shrinking lambda by decreaseFactor for
// next time) or reject and restore the previous beliefs (growing lambda by
// increaseFactor, capped at maxLMLambda) otherwise. lambda == 0 is the pure
// Gauss-Newton step and is always accepted. Factors are relinearised at the
// post-step (or restored) means before returning. It returns the lambda to
// use for the next call; callers loop LMStep until it converges or lambda
// exceeds a budget of their choosing.
func (g *FactorGraph) LMStep(lambda, increaseFactor, decreaseFactor float64) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e0, err := g.energyLocked(true)
	if err != nil {
		return lambda, fmt.Errorf("LMStep: %w", err)
	}
	grad, err := g.gradientLocked(true)
	if err != nil {
		return lambda, fmt.Errorf("LMStep: %w", err)
	}
	joint, err := g.jointDistributionLocked()
	if err != nil {
		return lambda, fmt.Errorf("LMStep: %w", err)
	}

	damped := joint.Lambda.Clone()
	for i := 0; i < damped.Rows(); i++ {
		if err := damped.AddAt(i, i, lambda); err != nil {
			return lambda, fmt.Errorf("LMStep: %w", err)
		}
	}
	negGrad := make([]float64, len(grad))
	for i, v := range grad {
		negGrad[i] = -v
	}
	step, err := linalg.Solve(damped, negGrad)
	if err != nil {
		return math.Min(lambda*increaseFactor, maxLMLambda), nil
	}

	variableIDs := g.sortedVariableIDsLocked()
	snapshot := make(map[int]*gaussian.Gaussian, len(variableIDs))
	offset := 0
	for _, vid := range variableIDs {
		v := g.variables[vid]
		snapshot[vid] = v.Belief().Clone()
		if err := g.shiftBelief(v, step[offset:offset+v.Dofs()], 1); err != nil {
			return lambda, fmt.Errorf("LMStep: variable %d: %w", vid, err)
		}
		offset += v.Dofs()
	}

	if err := g.relineariseAllLocked(); err != nil {
		return lambda, fmt.Errorf("LMStep: %w", err)
	}
	e1, err := g.energyLocked(true)
	if err != nil {
		return lambda, fmt.Errorf("LMStep: %w", err)
	}
	if lambda == 0 || e1 < e0 {
		return lambda / decreaseFactor, nil
	}

	for vid, belief := range snapshot {
		g.variables[vid].belief = belief
	}
	if err := g.relineariseAllLocked(); err != nil {
		return lambda, fmt.Errorf("LMStep: %w", err)
	}

	return math.Min(lambda*increaseFactor, maxLMLambda), nil
}

// ExportGraph returns every variable and factor as a GraphNode, plus every
// factor-variable adjacency as a GraphEdge, for diagnostics rendering.
func (g *FactorGraph) ExportGraph() ([]GraphNode, []GraphEdge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	variableIDs := g.sortedVariableIDsLocked()
	factorIDs := g.sortedFactorIDsLocked()

	nodes := make([]GraphNode, 0, len(variableIDs)+len(factorIDs))
	for _, vid := range variableIDs {
		v := g.variables[vid]
		mean, err := v.Belief().Mean()
		if err != nil {
			return nil, nil, fmt.Errorf("ExportGraph: variable %d: %w", vid, err)
		}
		nodes = append(nodes, GraphNode{ID: vid, Kind: "Variable", Mean: mean, OtherVariable: -1})
	}

	var edges []GraphEdge
	for _, fid := range factorIDs {
		f := g.factors[fid]
		kind := f.Kind()
		if kind == "" {
			kind = "Factor"
		}
		node := GraphNode{ID: fid, Kind: kind, OtherVariable: -1}
		if kind == "InterRobotFactor" && len(f.Adjacency()) == 2 {
			node.OtherVariable = f.Adjacency()[1]
		}
		nodes = append(nodes, node)
		for _, vid := range f.Adjacency() {
			edges = append(edges, GraphEdge{FactorID: fid, VariableID: vid})
		}
	}

	return nodes, edges, nil
}

// runParallel invokes fn(0), fn(1), ..., fn(n-1), splitting the range into
// up to GbpSettings.Parallelism contiguous chunks run concurrently via
// insyra's parallel.GroupUp, and aggregates every chunk's errors with
// multierr. Parallelism <= 1 (the default) runs fully sequentially with no
// goroutines spawned.
func (g *FactorGraph) runParallel(n int, fn func(i int) error) error {
	if n == 0 {
		return nil
	}

	workers := g.settings.Parallelism
	if workers <= 1 || n == 1 {
		var errs error
		for i := 0; i < n; i++ {
			errs = multierr.Append(errs, fn(i))
		}

		return errs
	}
	if workers > n {
		workers = n
	}

	chunkSize := (n + workers - 1) / workers
	var ranges [][2]int
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		ranges = append(ranges, [2]int{start, end})
	}

	chunkErrs := make([]error, len(ranges))
	fns := make([]any, len(ranges))
	for c, rng := range ranges {
		c, rng := c, rng
		fns[c] = func() {
			var chunkErr error
			for i := rng[0]; i < rng[1]; i++ {
				chunkErr = multierr.Append(chunkErr, fn(i))
			}
			chunkErrs[c] = chunkErr
		}
	}
	parallel.GroupUp(fns...).Run().AwaitNoResult()

	var out error
	for _, e := range chunkErrs {
		out = multierr.Append(out, e)
	}

	return out
}
