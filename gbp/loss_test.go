package gbp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/gbpgo/linalg"
)

func TestGaussianLossIsFixedAndNoOp(t *testing.T) {
	precision, err := linalg.Identity(2)
	require.NoError(t, err)
	loss := NewGaussianLoss(precision)

	loss.Robustify([]float64{100, 100})
	w, err := loss.EffectivePrecision([]float64{100, 100})
	require.NoError(t, err)
	v, err := w.At(0, 0)
	require.NoError(t, err)
	require.Equal(t, 1.0, v)
}

func TestHuberLossDownweightsBeyondThreshold(t *testing.T) {
	precision, err := linalg.Identity(1)
	require.NoError(t, err)
	loss := NewHuberLoss(precision, 1.0)

	loss.Robustify([]float64{10})
	w, err := loss.EffectivePrecision([]float64{10})
	require.NoError(t, err)
	v, err := w.At(0, 0)
	require.NoError(t, err)
	require.InDelta(t, 0.1, v, 1e-9) // weight = threshold/norm = 1/10
}

func TestHuberLossKeepsFullWeightBelowThreshold(t *testing.T) {
	precision, err := linalg.Identity(1)
	require.NoError(t, err)
	loss := NewHuberLoss(precision, 5.0)

	loss.Robustify([]float64{0.1})
	w, err := loss.EffectivePrecision([]float64{0.1})
	require.NoError(t, err)
	v, err := w.At(0, 0)
	require.NoError(t, err)
	require.Equal(t, 1.0, v)
}
