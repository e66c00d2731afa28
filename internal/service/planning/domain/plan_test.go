package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weeks(id string, rows ...[3]float64) []WeeklyForecast {
	out := make([]WeeklyForecast, len(rows))
	for i, r := range rows {
		out[i] = WeeklyForecast{ProductID: id, WeekOffset: i, PredictedQuantity: r[0], ConfidenceLower: r[1], ConfidenceUpper: r[2]}
	}
	return out
}

func TestNewRecommendation_Math(t *testing.T) {
	// 平均预测 10，最大上界 16，平均区间宽度 (8+4)/2 = 6
	ws := weeks("BAG-001", [3]float64{12, 8, 16}, [3]float64{8, 6, 10})
	ws[0], ws[1] = ws[1], ws[0]

	rec := NewRecommendation("BAG-001", "Sac Iconique", ws)

	assert.InDelta(t, 20, rec.TotalPredictedDemand, 1e-9)
	assert.Equal(t, 23, rec.RecommendedProductionQuantity) // ceil(20 + 6*0.5)
	assert.InDelta(t, 0.4, rec.ConfidenceLevel, 1e-9)
	assert.InDelta(t, 0.6, rec.RiskOfStockout, 1e-9)
	require.Len(t, rec.WeeklyForecasts, 2)
	assert.Equal(t, 0, rec.WeeklyForecasts[0].WeekOffset)
	assert.Equal(t, 1, rec.WeeklyForecasts[1].WeekOffset)
}

func TestNewRecommendation_ZeroDemand(t *testing.T) {
	rec := NewRecommendation("BAG-002", "", weeks("BAG-002", [3]float64{0, 0, 0}))
	assert.Zero(t, rec.ConfidenceLevel)
	assert.Zero(t, rec.RiskOfStockout)
	assert.Zero(t, rec.RecommendedProductionQuantity)
}

func TestNewRecommendation_RiskCapped(t *testing.T) {
	rec := NewRecommendation("BAG-003", "", weeks("BAG-003", [3]float64{2, 0, 10}))
	assert.Equal(t, 1.0, rec.RiskOfStockout)
	assert.Zero(t, rec.ConfidenceLevel)
}

func TestBuildRecommendations_GroupsInFirstSeenOrder(t *testing.T) {
	var fs []WeeklyForecast
	for w := 0; w < 3; w++ {
		fs = append(fs,
			WeeklyForecast{ProductID: "B", WeekOffset: w, PredictedQuantity: 1, ConfidenceUpper: 1},
			WeeklyForecast{ProductID: "A", WeekOffset: w, PredictedQuantity: 2, ConfidenceUpper: 2},
		)
	}
	recs := BuildRecommendations(fs, map[string]string{"A": "alpha"})
	require.Len(t, recs, 2)
	assert.Equal(t, "B", recs[0].ProductID)
	assert.Equal(t, "A", recs[1].ProductID)
	assert.Equal(t, "alpha", recs[1].ProductName)
	assert.Len(t, recs[1].WeeklyForecasts, 3)
	assert.InDelta(t, 6, recs[1].TotalPredictedDemand, 1e-9)
}

func TestPrioritize_Ordering(t *testing.T) {
	recs := []Recommendation{
		{ProductID: "low-risk", RiskOfStockout: 0.1, TotalPredictedDemand: 500},
		{ProductID: "tie-small", RiskOfStockout: 0.5, TotalPredictedDemand: 10, ConfidenceLevel: 0.9},
		{ProductID: "tie-big-sure", RiskOfStockout: 0.5, TotalPredictedDemand: 100, ConfidenceLevel: 0.9},
		{ProductID: "tie-big-unsure", RiskOfStockout: 0.5, TotalPredictedDemand: 100, ConfidenceLevel: 0.2},
		{ProductID: "high-risk", RiskOfStockout: 0.9, TotalPredictedDemand: 1},
	}
	Prioritize(recs)

	var ids []string
	for _, r := range recs {
		ids = append(ids, r.ProductID)
	}
	assert.Equal(t, []string{"high-risk", "tie-big-unsure", "tie-big-sure", "tie-small", "low-risk"}, ids)
}

func TestGenerateAlerts(t *testing.T) {
	recs := []Recommendation{
		{ProductID: "both", RiskOfStockout: 0.85, ConfidenceLevel: 0.3},
		{ProductID: "boundary", RiskOfStockout: 0.8, ConfidenceLevel: 0.6},
		{ProductID: "uncertain", RiskOfStockout: 0.2, ConfidenceLevel: 0.59},
	}
	alerts := GenerateAlerts(recs)
	require.Len(t, alerts, 3)

	assert.Equal(t, Alert{
		ProductID:         "both",
		Severity:          SeverityHigh,
		Message:           "high stockout risk (probability: 85%)",
		RecommendedAction: "increase production immediately",
	}, alerts[0])
	assert.Equal(t, SeverityMedium, alerts[1].Severity)
	assert.Equal(t, "both", alerts[1].ProductID)
	assert.Equal(t, "uncertain", alerts[2].ProductID)
	assert.Equal(t, "monitor actual sales closely", alerts[2].RecommendedAction)

	assert.NotNil(t, GenerateAlerts(nil))
}

func TestSummarize_RevenueAndPriority(t *testing.T) {
	recs := []Recommendation{
		{ProductID: "BAG-001", RecommendedProductionQuantity: 10, RiskOfStockout: 0.75},
		{ProductID: "BAG-002", RecommendedProductionQuantity: 3, RiskOfStockout: 0.7},
		{ProductID: "NO-PRICE", RecommendedProductionQuantity: 7, RiskOfStockout: 0.9},
	}
	prices := map[string]decimal.Decimal{
		"BAG-001": decimal.RequireFromString("5000.00"),
		"BAG-002": decimal.RequireFromString("12000.50"),
	}

	s := Summarize(recs, prices)
	assert.Equal(t, 20, s.TotalUnitsToProduce)
	assert.Equal(t, 2, s.HighPriorityItems)
	assert.True(t, decimal.RequireFromString("86001.50").Equal(s.EstimatedRevenue), s.EstimatedRevenue.String())
}
