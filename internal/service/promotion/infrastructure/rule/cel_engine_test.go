package rule

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demandcast/internal/service/promotion/domain"
)

func TestCELRuleEngine(t *testing.T) {
	engine, err := NewCELRuleEngine()
	require.NoError(t, err)

	fact := domain.Fact{
		ModelName: "luxury_demand_forecaster",
		VersionID: "4",
		Metrics:   domain.CandidateMetrics{MAPE: 9.5, R2: 0.91, MAE: 18.2, RMSE: 24.0},
	}

	tests := []struct {
		rule string
		want bool
	}{
		{"mae < 25.0", true},
		{"mae < 10.0", false},
		{"rmse <= 24", true},
		{"mape < 10.0 && r2 > 0.9", true},
		{`model_name.startsWith("luxury")`, true},
		{`version != "4"`, false},
	}
	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			got, err := engine.Evaluate(tt.rule, fact)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCELRuleEngine_InfiniteMetric(t *testing.T) {
	engine, err := NewCELRuleEngine()
	require.NoError(t, err)
	ok, err := engine.Evaluate("rmse < 100.0", domain.Fact{Metrics: domain.CandidateMetrics{RMSE: math.Inf(1)}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCELRuleEngine_InvalidRules(t *testing.T) {
	engine, err := NewCELRuleEngine()
	require.NoError(t, err)

	_, err = engine.Evaluate("mae <", domain.Fact{})
	assert.Error(t, err)

	_, err = engine.Evaluate("unknown_metric > 1.0", domain.Fact{})
	assert.Error(t, err)

	_, err = engine.Evaluate("mae + 1.0", domain.Fact{})
	assert.Error(t, err)
}
