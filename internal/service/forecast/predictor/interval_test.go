package predictor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfidenceInterval(t *testing.T) {
	preds := []float64{40, 50, 60}
	lower, upper := ConfidenceInterval(preds)
	for i, p := range preds {
		assert.LessOrEqual(t, lower[i], p)
		assert.GreaterOrEqual(t, upper[i], p)
		assert.GreaterOrEqual(t, lower[i], 0.0)
	}
	// 总体标准差 sqrt(200/3) × 1.96
	assert.InDelta(t, 40-16.0033, lower[0], 1e-3)
	assert.InDelta(t, 60+16.0033, upper[2], 1e-3)
}

func TestConfidenceInterval_LowerClampedAtZero(t *testing.T) {
	lower, upper := ConfidenceInterval([]float64{1, 50})
	assert.Equal(t, 0.0, lower[0])
	assert.Greater(t, upper[0], 1.0)
}

func TestConfidenceInterval_DegenerateBatch(t *testing.T) {
	lower, upper := ConfidenceInterval([]float64{42})
	assert.Equal(t, []float64{42}, lower)
	assert.Equal(t, []float64{42}, upper)

	lower, upper = ConfidenceInterval(nil)
	assert.Empty(t, lower)
	assert.Empty(t, upper)
}

func TestRecommendedProduction(t *testing.T) {
	assert.Equal(t, 120, RecommendedProduction(100))
	assert.Equal(t, 12, RecommendedProduction(10.4))
	assert.Equal(t, 13, RecommendedProduction(10.5))
	assert.Equal(t, 0, RecommendedProduction(0))
}

func TestMetrics(t *testing.T) {
	actual := []float64{10, 20, 0, 40}
	pred := []float64{12, 18, 1, 40}
	assert.InDelta(t, 1.25, MAE(actual, pred), 1e-9)
	mape, ok := MAPE(actual, pred)
	assert.True(t, ok)
	assert.InDelta(t, 100*(0.2+0.1+0)/3, mape, 1e-9)

	_, ok = MAPE([]float64{0, 0}, []float64{1, 2})
	assert.False(t, ok)

	assert.Equal(t, 1.0, R2([]float64{5, 5}, []float64{5, 5}))
	assert.Equal(t, 0.0, R2([]float64{5, 5}, []float64{4, 6}))
	assert.InDelta(t, 0.5, R2([]float64{1, 2, 3}, []float64{1, 2, 4}), 1e-12)
	assert.Equal(t, 0.0, R2(nil, nil))
}
