package model

import (
	"testing"

	"laplace-forge/internal/rng"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMLPJacobianMatchesFiniteDifferences(t *testing.T) {
	m, err := NewMLP(3, 5, 4, 2)
	require.NoError(t, err)
	theta := m.Init(rng.NewKey(1))
	// non-zero biases so every block contributes
	for i := range theta {
		theta[i] += 0.01 * float64(i%7)
	}
	x := []float64{0.3, -0.7, 1.1}

	jac, err := m.Jacobian(theta, x)
	require.NoError(t, err)
	rows, cols := jac.Dims()
	require.Equal(t, 2, rows)
	require.Equal(t, m.Layout().Size(), cols)

	const h = 1e-6
	for p := 0; p < cols; p++ {
		plus := append([]float64(nil), theta...)
		minus := append([]float64(nil), theta...)
		plus[p] += h
		minus[p] -= h
		fp, err := m.Apply(plus, x)
		require.NoError(t, err)
		fm, err := m.Apply(minus, x)
		require.NoError(t, err)
		for k := 0; k < rows; k++ {
			fd := (fp[k] - fm[k]) / (2 * h)
			assert.InDelta(t, fd, jac.At(k, p), 1e-6, "output %d param %d", k, p)
		}
	}
}

func TestMLPLinearHeadOnly(t *testing.T) {
	m, err := NewMLP(2, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Layout().Size())
	out, err := m.Apply([]float64{2, -1, 0.5}, []float64{1, 3})
	require.NoError(t, err)
	assert.InDelta(t, 2-3+0.5, out[0], 1e-12)
}

func TestMLPRejectsBadShapes(t *testing.T) {
	_, err := NewMLP(3)
	assert.Error(t, err)

	m, err := NewMLP(2, 3, 1)
	require.NoError(t, err)
	theta := m.Init(rng.NewKey(0))
	_, err = m.Apply(theta, []float64{1})
	assert.Error(t, err)
	_, err = m.Jacobian(theta[:2], []float64{1, 2})
	assert.Error(t, err)
}

func TestMLPInitDeterministic(t *testing.T) {
	m, err := NewMLP(1, 8, 1)
	require.NoError(t, err)
	assert.Equal(t, m.Init(rng.NewKey(4)), m.Init(rng.NewKey(4)))
	assert.NotEqual(t, m.Init(rng.NewKey(4)), m.Init(rng.NewKey(5)))
}
