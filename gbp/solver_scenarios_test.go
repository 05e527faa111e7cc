package gbp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/gbpgo/linalg"
)

// captureLogger records the per-iteration energy trace Solve emits, so
// tests can assert on convergence behaviour and reproducibility.
type captureLogger struct {
	energies []float64
}

func (l *captureLogger) LogIteration(_ int, energy float64, _ int) {
	l.energies = append(l.energies, energy)
}

// addDifferenceFactor wires a linear factor enforcing xB - xA == z between
// two scalar variables, with the given measurement precision, and returns
// its id.
func addDifferenceFactor(t *testing.T, g *FactorGraph, a, b int, z, precision float64) int {
	t.Helper()
	j, err := linalg.NewDense(1, 2)
	require.NoError(t, err)
	require.NoError(t, j.Set(0, 0, -1))
	require.NoError(t, j.Set(0, 1, 1))
	model, err := NewLinear(j, []float64{z})
	require.NoError(t, err)

	x0, err := g.AdjacencyMean([]int{a, b})
	require.NoError(t, err)
	w := linalg.Scale(identityPrecision(t, 1), precision)
	fid := g.NextFactorID()
	f, err := NewFactor(fid, []int{a, b}, []int{1, 1}, model, NewGaussianLoss(w), x0)
	require.NoError(t, err)
	require.NoError(t, g.AddFactor(f))

	return fid
}

// Two 1-D variables with unit priors at zero and a single difference factor
// measuring x1 - x0 == 2 settle at -2/3 and +2/3: the measurement is split
// evenly against the two priors.
func TestSingleLinearFactorSplitsMeasurementEvenly(t *testing.T) {
	g, err := NewFactorGraph(DefaultGbpSettings(), 1)
	require.NoError(t, err)
	v0, err := g.AddVariable(1, weakPrior(t, 1, []float64{0}, 1))
	require.NoError(t, err)
	v1, err := g.AddVariable(1, weakPrior(t, 1, []float64{0}, 1))
	require.NoError(t, err)
	addDifferenceFactor(t, g, v0, v1, 2, 1)

	outcome, err := g.Solve(SolveSettings{Iterations: 50, ConvergenceThreshold: 1e-9, IncludePriors: true, Log: false})
	require.NoError(t, err)
	require.Equal(t, Converged, outcome)

	b0, err := g.BeliefOf(v0)
	require.NoError(t, err)
	b1, err := g.BeliefOf(v1)
	require.NoError(t, err)
	m0, err := b0.Mean()
	require.NoError(t, err)
	m1, err := b1.Mean()
	require.NoError(t, err)
	require.InDelta(t, -2.0/3.0, m0[0], 1e-6)
	require.InDelta(t, 2.0/3.0, m1[0], 1e-6)
}

func buildChain(t *testing.T, settings GbpSettings, seed int64) (*FactorGraph, []int, []int) {
	t.Helper()
	g, err := NewFactorGraph(settings, seed)
	require.NoError(t, err)
	vars := make([]int, 4)
	for i := range vars {
		vars[i], err = g.AddVariable(1, weakPrior(t, 1, []float64{0}, 0.01))
		require.NoError(t, err)
	}
	facs := make([]int, 3)
	for i := range facs {
		facs[i] = addDifferenceFactor(t, g, vars[i], vars[i+1], 1, 100)
	}

	return g, vars, facs
}

// A chain of difference factors under wide priors is a tree, so loopy BP
// marginal means must agree with the dense joint's MAP.
func TestChainBeliefsMatchJointMAP(t *testing.T) {
	g, vars, _ := buildChain(t, DefaultGbpSettings(), 1)

	outcome, err := g.Solve(SolveSettings{Iterations: 30, ConvergenceThreshold: 1e-12, IncludePriors: true, Log: false})
	require.NoError(t, err)
	require.Equal(t, Converged, outcome)

	mapEstimate, err := g.MAP()
	require.NoError(t, err)
	require.Len(t, mapEstimate, 4)

	for i, vid := range vars {
		belief, err := g.BeliefOf(vid)
		require.NoError(t, err)
		mean, err := belief.Mean()
		require.NoError(t, err)
		require.InDelta(t, mapEstimate[i], mean[0], 1e-9)
	}

	// Wide priors leave the consecutive differences essentially at the
	// measured value.
	for i := 0; i < 3; i++ {
		require.InDelta(t, 1.0, mapEstimate[i+1]-mapEstimate[i], 1e-2)
	}
}

func TestJointDistributionIsSymmetric(t *testing.T) {
	g, _, _ := buildChain(t, DefaultGbpSettings(), 1)
	joint, err := g.JointDistribution()
	require.NoError(t, err)
	require.True(t, joint.Lambda.Symmetric(1e-9))
}

// After one synchronous iteration, a belief's precision must equal the
// prior precision plus the sum of incoming message precisions, and a second
// UpdateBelief with no new messages must leave the belief unchanged.
func TestUpdateBeliefsIdempotentAndPrecisionSums(t *testing.T) {
	g, vars, _ := buildChain(t, DefaultGbpSettings(), 1)
	_, err := g.SynchronousIteration(0)
	require.NoError(t, err)

	for _, vid := range vars {
		v := g.variables[vid]

		expected := v.Prior().Lambda.Clone()
		for _, m := range v.messages {
			require.NoError(t, linalg.AddAssign(expected, m.Lambda))
		}
		got, err := v.Belief().Lambda.At(0, 0)
		require.NoError(t, err)
		want, err := expected.At(0, 0)
		require.NoError(t, err)
		require.InDelta(t, want, got, 1e-12)

		before := append([]float64(nil), v.Belief().Eta...)
		require.NoError(t, v.UpdateBelief())
		require.Equal(t, before, v.Belief().Eta)
	}
}

// A non-linear separation factor starting far from its satisfied state must
// trigger at least one JIT relinearisation and finish at a lower energy
// than it started.
func TestNonLinearFactorRelinearisesAndReducesEnergy(t *testing.T) {
	settings := DefaultGbpSettings()
	settings.Beta = 0.1
	settings.UndampedIterations = 5
	settings.Damping = 0.4
	g, err := NewFactorGraph(settings, 3)
	require.NoError(t, err)

	v0, err := g.AddVariable(1, weakPrior(t, 1, []float64{0}, 1))
	require.NoError(t, err)
	v1, err := g.AddVariable(1, weakPrior(t, 1, []float64{0.2}, 1))
	require.NoError(t, err)

	x0, err := g.AdjacencyMean([]int{v0, v1})
	require.NoError(t, err)
	w := linalg.Scale(identityPrecision(t, 1), 10)
	fid := g.NextFactorID()
	f, err := InterRobotFactor(fid, v0, v1, 1, 1.0, w, x0)
	require.NoError(t, err)
	require.NoError(t, g.AddFactor(f))

	logger := &captureLogger{}
	g.SetLogger(logger)

	initial, err := g.Energy(true)
	require.NoError(t, err)

	_, err = g.Solve(SolveSettings{Iterations: 30, ConvergenceThreshold: 1e-9, IncludePriors: true, Log: true})
	require.NoError(t, err)
	require.NotEmpty(t, logger.energies)

	final := logger.energies[len(logger.energies)-1]
	require.Less(t, final, initial)

	drift, err := linalg.VecSub(f.linearisationPoint, x0)
	require.NoError(t, err)
	require.Greater(t, linalg.VecNorm(drift), 0.0, "factor should have relinearised away from its construction point")
}

// Two solves built identically with the same dropout probability and seed
// must produce bit-identical energy traces.
func TestDropoutEnergyTraceIsReproducible(t *testing.T) {
	run := func() []float64 {
		settings := DefaultGbpSettings()
		settings.Dropout = 0.5
		g, _, _ := buildChain(t, settings, 7)
		logger := &captureLogger{}
		g.SetLogger(logger)
		_, err := g.Solve(SolveSettings{Iterations: 20, ConvergenceThreshold: 0, IncludePriors: true, Log: true})
		require.NoError(t, err)

		return logger.energies
	}

	first := run()
	second := run()
	require.Len(t, first, 20)
	require.Equal(t, first, second)
}

// Running phases through the bounded worker pool must not change the
// result: same seed, same dropout, same energy trace as sequential.
func TestParallelSolveMatchesSequential(t *testing.T) {
	run := func(parallelism int) []float64 {
		settings := DefaultGbpSettings()
		settings.Dropout = 0.3
		settings.Parallelism = parallelism
		g, _, _ := buildChain(t, settings, 9)
		logger := &captureLogger{}
		g.SetLogger(logger)
		_, err := g.Solve(SolveSettings{Iterations: 15, ConvergenceThreshold: 0, IncludePriors: true, Log: true})
		require.NoError(t, err)

		return logger.energies
	}

	require.Equal(t, run(1), run(4))
}

// With dropout == 1 every message computation is skipped, so beliefs can
// never move off the prior.
func TestFullDropoutLeavesBeliefsAtPrior(t *testing.T) {
	settings := DefaultGbpSettings()
	settings.Dropout = 1
	g, err := NewFactorGraph(settings, 1)
	require.NoError(t, err)
	v0, err := g.AddVariable(1, weakPrior(t, 1, []float64{0}, 1))
	require.NoError(t, err)
	v1, err := g.AddVariable(1, weakPrior(t, 1, []float64{0}, 1))
	require.NoError(t, err)
	addDifferenceFactor(t, g, v0, v1, 2, 1)

	_, err = g.Solve(SolveSettings{Iterations: 5, ConvergenceThreshold: 0, IncludePriors: true, Log: false})
	require.NoError(t, err)

	for _, vid := range []int{v0, v1} {
		belief, err := g.BeliefOf(vid)
		require.NoError(t, err)
		mean, err := belief.Mean()
		require.NoError(t, err)
		require.Equal(t, 0.0, mean[0])
	}
}

// A graph with one variable and no factors is a no-op solve: the belief
// stays at the prior and the factor energy is zero.
func TestSingleVariableNoFactorsIsNoOp(t *testing.T) {
	g, err := NewFactorGraph(DefaultGbpSettings(), 1)
	require.NoError(t, err)
	v, err := g.AddVariable(1, weakPrior(t, 1, []float64{3}, 2))
	require.NoError(t, err)

	outcome, err := g.Solve(SolveSettings{Iterations: 5, ConvergenceThreshold: 1e-12, IncludePriors: false, Log: false})
	require.NoError(t, err)
	require.Equal(t, Converged, outcome)

	belief, err := g.BeliefOf(v)
	require.NoError(t, err)
	mean, err := belief.Mean()
	require.NoError(t, err)
	require.InDelta(t, 3.0, mean[0], 1e-12)

	e, err := g.Energy(false)
	require.NoError(t, err)
	require.Equal(t, 0.0, e)
}

// Removing the middle factor of a chain splits it into two independent
// subchains whose solved beliefs match standalone two-variable solves.
func TestRemoveMiddleFactorYieldsIndependentChains(t *testing.T) {
	solveSettings := SolveSettings{Iterations: 30, ConvergenceThreshold: 1e-12, IncludePriors: true, Log: false}

	g, vars, facs := buildChain(t, DefaultGbpSettings(), 1)
	_, err := g.Solve(solveSettings)
	require.NoError(t, err)

	require.NoError(t, g.RemoveFactor(facs[1]))
	_, err = g.Solve(solveSettings)
	require.NoError(t, err)

	standalone, err := NewFactorGraph(DefaultGbpSettings(), 1)
	require.NoError(t, err)
	sa, err := standalone.AddVariable(1, weakPrior(t, 1, []float64{0}, 0.01))
	require.NoError(t, err)
	sb, err := standalone.AddVariable(1, weakPrior(t, 1, []float64{0}, 0.01))
	require.NoError(t, err)
	addDifferenceFactor(t, standalone, sa, sb, 1, 100)
	_, err = standalone.Solve(solveSettings)
	require.NoError(t, err)

	wantA, err := standalone.BeliefOf(sa)
	require.NoError(t, err)
	wantB, err := standalone.BeliefOf(sb)
	require.NoError(t, err)
	meanA, err := wantA.Mean()
	require.NoError(t, err)
	meanB, err := wantB.Mean()
	require.NoError(t, err)

	// Both halves of the split chain are copies of the standalone problem.
	for _, pair := range [][2]int{{vars[0], vars[1]}, {vars[2], vars[3]}} {
		first, err := g.BeliefOf(pair[0])
		require.NoError(t, err)
		second, err := g.BeliefOf(pair[1])
		require.NoError(t, err)
		m0, err := first.Mean()
		require.NoError(t, err)
		m1, err := second.Mean()
		require.NoError(t, err)
		require.InDelta(t, meanA[0], m0[0], 1e-9)
		require.InDelta(t, meanB[0], m1[0], 1e-9)
	}
}

// A pure Gauss-Newton step (lambda == 0) on a linear problem jumps straight
// to the MAP and strictly decreases energy.
func TestLMStepGaussNewtonJumpsToMAP(t *testing.T) {
	g, err := NewFactorGraph(DefaultGbpSettings(), 1)
	require.NoError(t, err)
	v0, err := g.AddVariable(1, weakPrior(t, 1, []float64{0}, 1))
	require.NoError(t, err)
	v1, err := g.AddVariable(1, weakPrior(t, 1, []float64{0}, 1))
	require.NoError(t, err)
	addDifferenceFactor(t, g, v0, v1, 2, 1)

	e0, err := g.Energy(true)
	require.NoError(t, err)
	require.InDelta(t, 4.0, e0, 1e-12)

	lambda, err := g.LMStep(0, 2, 3)
	require.NoError(t, err)
	require.Equal(t, 0.0, lambda)

	e1, err := g.Energy(true)
	require.NoError(t, err)
	require.Less(t, e1, e0)

	b0, err := g.BeliefOf(v0)
	require.NoError(t, err)
	b1, err := g.BeliefOf(v1)
	require.NoError(t, err)
	m0, err := b0.Mean()
	require.NoError(t, err)
	m1, err := b1.Mean()
	require.NoError(t, err)
	require.InDelta(t, -2.0/3.0, m0[0], 1e-9)
	require.InDelta(t, 2.0/3.0, m1[0], 1e-9)
}

// A rejected LM step restores the prior belief state exactly and grows
// lambda, capped at the maximum.
func TestLMStepRejectRestoresBeliefsAndGrowsLambda(t *testing.T) {
	g, err := NewFactorGraph(DefaultGbpSettings(), 1)
	require.NoError(t, err)
	v, err := g.AddVariable(1, weakPrior(t, 1, []float64{0}, 1))
	require.NoError(t, err)
	fid := g.NextFactorID()
	f, err := PoseFactor(fid, v, 1, []float64{0}, identityPrecision(t, 1))
	require.NoError(t, err)
	require.NoError(t, g.AddFactor(f))

	// Already at the optimum: the step is exactly zero, so the energy
	// cannot improve and the step must be rejected.
	before, err := g.BeliefOf(v)
	require.NoError(t, err)
	beforeEta := append([]float64(nil), before.Eta...)

	lambda, err := g.LMStep(4, 2, 3)
	require.NoError(t, err)
	require.Equal(t, 8.0, lambda)

	after, err := g.BeliefOf(v)
	require.NoError(t, err)
	require.Equal(t, beforeEta, after.Eta)

	capped, err := g.LMStep(1e5, 2, 3)
	require.NoError(t, err)
	require.Equal(t, 1e5, capped)
}

// One small gradient-descent step from the prior state must move downhill
// in total energy.
func TestGradientDescentStepReducesEnergy(t *testing.T) {
	g, err := NewFactorGraph(DefaultGbpSettings(), 1)
	require.NoError(t, err)
	v0, err := g.AddVariable(1, weakPrior(t, 1, []float64{0}, 1))
	require.NoError(t, err)
	v1, err := g.AddVariable(1, weakPrior(t, 1, []float64{0}, 1))
	require.NoError(t, err)
	addDifferenceFactor(t, g, v0, v1, 2, 1)

	e0, err := g.Energy(true)
	require.NoError(t, err)

	require.NoError(t, g.GradientDescentStep(0.1))

	e1, err := g.Energy(true)
	require.NoError(t, err)
	require.Less(t, e1, e0)
}
