package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRMSE(t *testing.T) {
	got, err := RMSE([][]float64{{1}, {3}}, [][]float64{{0}, {0}})
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(5), got, 1e-12)

	_, err = RMSE([][]float64{{1}}, [][]float64{{1}, {2}})
	assert.ErrorIs(t, err, ErrShapeMismatch)
	_, err = RMSE(nil, nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestGaussianScores(t *testing.T) {
	mean := [][]float64{{0}, {0}}
	std := [][]float64{{1}, {2}}
	target := [][]float64{{1}, {-1}}

	nll, err := GaussianNLL(mean, std, target)
	require.NoError(t, err)
	want := 0.5*((0.5+0.5*math.Log(2*math.Pi))+(0.125+math.Log(2)+0.5*math.Log(2*math.Pi)))
	assert.InDelta(t, want, nll, 1e-12)

	chi, err := ChiSquared(mean, std, target)
	require.NoError(t, err)
	assert.InDelta(t, (1+0.25)/2, chi, 1e-12)

	cov, err := Coverage(mean, std, target, 0.75)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, cov, 1e-12)
}

func TestZeroStdStaysFinite(t *testing.T) {
	nll, err := GaussianNLL([][]float64{{0}}, [][]float64{{0}}, [][]float64{{0}})
	require.NoError(t, err)
	assert.False(t, math.IsInf(nll, 0) || math.IsNaN(nll))
}

func TestAccuracy(t *testing.T) {
	pred := [][]float64{{0.1, 2, 0}, {3, 0, 0}, {0, 0, 1}}
	target := [][]float64{{0, 1, 0}, {0, 1, 0}, {0, 0, 1}}
	acc, err := Accuracy(pred, target)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3, acc, 1e-12)
}
