package gbp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/gbpgo/gaussian"
	"github.com/katalvlaran/gbpgo/linalg"
)

func unitPrior(t *testing.T, d int) *gaussian.Gaussian {
	t.Helper()
	lambda, err := linalg.Identity(d)
	require.NoError(t, err)
	g, err := gaussian.From(make([]float64, d), lambda)
	require.NoError(t, err)

	return g
}

func TestNewVariableBeliefStartsAtPrior(t *testing.T) {
	prior := unitPrior(t, 2)
	v, err := NewVariable(0, 2, prior)
	require.NoError(t, err)
	mean, err := v.Belief().Mean()
	require.NoError(t, err)
	require.Equal(t, []float64{0, 0}, mean)
}

func TestNewVariableRejectsDimensionMismatch(t *testing.T) {
	prior := unitPrior(t, 2)
	_, err := NewVariable(0, 3, prior)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestUpdateBeliefSumsIncomingMessages(t *testing.T) {
	prior := unitPrior(t, 1)
	v, err := NewVariable(0, 1, prior)
	require.NoError(t, err)

	lambda, err := linalg.Identity(1)
	require.NoError(t, err)
	msg, err := gaussian.From([]float64{4}, lambda)
	require.NoError(t, err)
	require.NoError(t, v.ReceiveMessageFrom(7, msg))
	require.NoError(t, v.UpdateBelief())

	mean, err := v.Belief().Mean()
	require.NoError(t, err)
	require.InDelta(t, 2.0, mean[0], 1e-9) // eta=0+4=4, lambda=1+1=2, mean=4/2
}

func TestSendMessageToExcludesOwnMessage(t *testing.T) {
	prior := unitPrior(t, 1)
	v, err := NewVariable(0, 1, prior)
	require.NoError(t, err)

	lambda, err := linalg.Identity(1)
	require.NoError(t, err)
	msgA, err := gaussian.From([]float64{3}, lambda)
	require.NoError(t, err)
	msgB, err := gaussian.From([]float64{5}, lambda)
	require.NoError(t, err)
	require.NoError(t, v.ReceiveMessageFrom(1, msgA))
	require.NoError(t, v.ReceiveMessageFrom(2, msgB))

	out, err := v.SendMessageTo(1)
	require.NoError(t, err)
	// prior(eta=0) + msgB(eta=5), excluding msgA.
	require.InDelta(t, 5.0, out.Eta[0], 1e-9)
}

func TestRemoveConnectionToUnknownFactorErrors(t *testing.T) {
	prior := unitPrior(t, 1)
	v, err := NewVariable(0, 1, prior)
	require.NoError(t, err)
	require.ErrorIs(t, v.RemoveConnectionTo(99), ErrNoSuchConnection)
}

func TestPriorEnergyZeroAtPrior(t *testing.T) {
	prior := unitPrior(t, 2)
	v, err := NewVariable(0, 2, prior)
	require.NoError(t, err)
	e, err := v.PriorEnergy()
	require.NoError(t, err)
	require.InDelta(t, 0, e, 1e-9)
}
