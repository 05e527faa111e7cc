package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/gbpgo/gaussian"
	"github.com/katalvlaran/gbpgo/gbp"
	"github.com/katalvlaran/gbpgo/linalg"
)

func TestDOTRendersEveryNodeAndEdge(t *testing.T) {
	nodes := []gbp.GraphNode{
		{ID: 0, Kind: "Variable", Mean: []float64{1, 2}},
		{ID: 1, Kind: "PoseFactor"},
	}
	edges := []gbp.GraphEdge{{FactorID: 1, VariableID: 0}}

	dot, err := DOT(nodes, edges)
	require.NoError(t, err)
	require.Contains(t, dot, "n0")
	require.Contains(t, dot, "n1")
	require.Contains(t, dot, "n1 -- n0")
}

func TestAdjacencyMarksIncidentPairs(t *testing.T) {
	nodes := []gbp.GraphNode{
		{ID: 0, Kind: "Variable"},
		{ID: 1, Kind: "Variable"},
		{ID: 2, Kind: "PoseFactor"},
	}
	edges := []gbp.GraphEdge{{FactorID: 2, VariableID: 0}}

	m, varIDs, facIDs, err := Adjacency(nodes, edges)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, varIDs)
	require.Equal(t, []int{2}, facIDs)
	v, err := m.At(0, 0)
	require.NoError(t, err)
	require.Equal(t, 1.0, v)
	v, err = m.At(1, 0)
	require.NoError(t, err)
	require.Equal(t, 0.0, v)
}

func TestCovarianceEllipseOfAxisAlignedBeliefMatchesVariances(t *testing.T) {
	lambda := linalg.MustDense(2, 2)
	require.NoError(t, lambda.Set(0, 0, 4)) // variance 1/4 along x
	require.NoError(t, lambda.Set(1, 1, 1)) // variance 1 along y
	g, err := gaussian.FromMeanPrecision([]float64{0, 0}, lambda)
	require.NoError(t, err)

	semiAxes, axes, err := CovarianceEllipse(g)
	require.NoError(t, err)
	require.Len(t, semiAxes, 2)
	require.Equal(t, 2, axes.Rows())

	require.ElementsMatch(t, []float64{0.5, 1.0}, roundSlice(semiAxes))
}

func roundSlice(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = float64(int(x*1e6+0.5)) / 1e6
	}

	return out
}
