package predictor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stepData(n int) ([][]float64, []float64) {
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		a := float64(i % 20)
		b := float64(i % 3)
		X[i] = []float64{a, b}
		y[i] = 3*a + 10*b
	}
	return X, y
}

func TestGBM_FitsDeterministicSignal(t *testing.T) {
	X, y := stepData(300)
	m := NewGBM(fastParams())
	require.NoError(t, m.Fit(X, y, nil))

	assert.Greater(t, R2(y, m.Predict(X)), 0.95)
	gain := m.Importance()
	require.Len(t, gain, 2)
	assert.Greater(t, gain[0]+gain[1], 0.0)
}

func TestGBM_SameSeedSameModel(t *testing.T) {
	X, y := stepData(200)
	a, b := NewGBM(fastParams()), NewGBM(fastParams())
	require.NoError(t, a.Fit(X, y, nil))
	require.NoError(t, b.Fit(X, y, nil))
	assert.Equal(t, a.Predict(X), b.Predict(X))
}

func TestGBM_EarlyStoppingTruncates(t *testing.T) {
	X, y := stepData(200)
	p := fastParams()
	p.NEstimators = 300
	p.EarlyStoppingRounds = 5
	m := NewGBM(p)
	require.NoError(t, m.Fit(X[:150], y[:150], &EvalSet{X: X[150:], Y: y[150:]}))
	assert.Len(t, m.Trees, m.BestIteration+1)
	assert.LessOrEqual(t, len(m.Trees), 300)
}

func TestGBM_JSONRoundTrip(t *testing.T) {
	X, y := stepData(100)
	m := NewGBM(fastParams())
	require.NoError(t, m.Fit(X, y, nil))

	b, err := json.Marshal(m)
	require.NoError(t, err)
	var restored GBM
	require.NoError(t, json.Unmarshal(b, &restored))
	assert.Equal(t, m.Predict(X), restored.Predict(X))
}

func TestGBM_InvalidInput(t *testing.T) {
	assert.Error(t, NewGBM(fastParams()).Fit(nil, nil, nil))
	assert.Error(t, NewGBM(fastParams()).Fit([][]float64{{1}}, []float64{1, 2}, nil))
}
