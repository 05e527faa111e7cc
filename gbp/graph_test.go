package gbp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/gbpgo/gaussian"
	"github.com/katalvlaran/gbpgo/linalg"
)

func weakPrior(t *testing.T, d int, mean []float64, precision float64) *gaussian.Gaussian {
	t.Helper()
	lambda := linalg.Scale(identityPrecision(t, d), precision)
	eta, err := linalg.MulVec(lambda, mean)
	require.NoError(t, err)
	g, err := gaussian.From(eta, lambda)
	require.NoError(t, err)

	return g
}

// TestSolveTwoVariableLinearChainConverges wires two scalar variables
// through one linear equality factor (B == A) and checks the graph
// converges to equal, averaged beliefs.
func TestSolveTwoVariableLinearChainConverges(t *testing.T) {
	settings := DefaultGbpSettings()
	g, err := NewFactorGraph(settings, 1)
	require.NoError(t, err)

	a, err := g.AddVariable(1, weakPrior(t, 1, []float64{0}, 1e-6))
	require.NoError(t, err)
	b, err := g.AddVariable(1, weakPrior(t, 1, []float64{10}, 1e-6))
	require.NoError(t, err)

	x0, err := g.AdjacencyMean([]int{a, b})
	require.NoError(t, err)

	j, err := linalg.NewDense(1, 2)
	require.NoError(t, err)
	require.NoError(t, j.Set(0, 0, -1))
	require.NoError(t, j.Set(0, 1, 1))
	model, err := NewLinear(j, []float64{0})
	require.NoError(t, err)

	fid := g.NextFactorID()
	f, err := NewFactor(fid, []int{a, b}, []int{1, 1}, model, NewGaussianLoss(identityPrecision(t, 1)), x0)
	require.NoError(t, err)
	require.NoError(t, g.AddFactor(f))

	outcome, err := g.Solve(SolveSettings{Iterations: 30, ConvergenceThreshold: 1e-9, IncludePriors: true, Log: false})
	require.NoError(t, err)
	require.Equal(t, Converged, outcome)

	beliefA, err := g.BeliefOf(a)
	require.NoError(t, err)
	beliefB, err := g.BeliefOf(b)
	require.NoError(t, err)
	meanA, err := beliefA.Mean()
	require.NoError(t, err)
	meanB, err := beliefB.Mean()
	require.NoError(t, err)
	require.InDelta(t, meanA[0], meanB[0], 1e-3)
	require.InDelta(t, 5.0, meanA[0], 1e-2)
}

// TestRemoveVariableCascadesToAdjacentFactors verifies that removing a
// variable also removes every factor touching it and purges their
// message slots from the remaining neighbours, so the remaining graph
// behaves as though those factors never existed.
func TestRemoveVariableCascadesToAdjacentFactors(t *testing.T) {
	settings := DefaultGbpSettings()
	g, err := NewFactorGraph(settings, 1)
	require.NoError(t, err)

	a, err := g.AddVariable(1, weakPrior(t, 1, []float64{0}, 1))
	require.NoError(t, err)
	b, err := g.AddVariable(1, weakPrior(t, 1, []float64{1}, 1))
	require.NoError(t, err)

	j, err := linalg.NewDense(1, 2)
	require.NoError(t, err)
	require.NoError(t, j.Set(0, 0, -1))
	require.NoError(t, j.Set(0, 1, 1))
	model, err := NewLinear(j, []float64{0})
	require.NoError(t, err)
	x0, err := g.AdjacencyMean([]int{a, b})
	require.NoError(t, err)
	fid := g.NextFactorID()
	f, err := NewFactor(fid, []int{a, b}, []int{1, 1}, model, NewGaussianLoss(identityPrecision(t, 1)), x0)
	require.NoError(t, err)
	require.NoError(t, g.AddFactor(f))

	require.NoError(t, g.RemoveVariable(a))

	_, err = g.BeliefOf(a)
	require.ErrorIs(t, err, ErrUnknownVariable)

	nodes, edges, err := g.ExportGraph()
	require.NoError(t, err)
	require.Empty(t, edges)
	require.Len(t, nodes, 1) // only variable b remains, its factor was cascaded away
	require.Equal(t, b, nodes[0].ID)
}

// TestDropoutIsDeterministicAcrossParallelism checks that two samplers
// with the same seed make the same dropout decision for every (factor id,
// iteration) pair. The sampler takes no scheduling input, so this is what
// keeps the decision independent of GbpSettings.Parallelism; the
// solver-level check is TestParallelSolveMatchesSequential.
func TestDropoutIsDeterministicAcrossParallelism(t *testing.T) {
	s1 := NewDropoutSampler(42)
	s2 := NewDropoutSampler(42)
	for iter := 0; iter < 5; iter++ {
		for fid := 0; fid < 5; fid++ {
			require.Equal(t, s1.Skip(fid, iter, 0.5), s2.Skip(fid, iter, 0.5))
		}
	}
}

func TestDropoutBoundaryProbabilities(t *testing.T) {
	s := NewDropoutSampler(1)
	require.False(t, s.Skip(0, 0, 0))
	require.True(t, s.Skip(0, 0, 1))
}
