package domain

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownCollection = errors.New("unknown collection")
	ErrInvalidHorizon    = errors.New("invalid planning horizon")
)

const (
	// HighRiskThreshold 超过该缺货风险时产生高优先级告警
	HighRiskThreshold = 0.8
	// LowConfidenceThreshold 低于该置信度时产生中优先级告警
	LowConfidenceThreshold = 0.6
	// HighPriorityRisk 汇总中计为高优先级条目的风险下限
	HighPriorityRisk = 0.7
)

// WeeklyForecast 是某产品在某个周偏移上的预测与区间
type WeeklyForecast struct {
	ProductID         string  `json:"product_id"`
	WeekOffset        int     `json:"week_offset"`
	PredictedQuantity float64 `json:"predicted_quantity"`
	ConfidenceLower   float64 `json:"confidence_lower"`
	ConfidenceUpper   float64 `json:"confidence_upper"`
}

// DemandForecaster 生产计划所需的预测端口
type DemandForecaster interface {
	WeeklyForecast(ctx context.Context, productIDs []string, start time.Time, horizon int) ([]WeeklyForecast, error)
}

// Recommendation 是单个产品在整个计划期内的生产建议
type Recommendation struct {
	ProductID                     string           `json:"product_id"`
	ProductName                   string           `json:"product_name"`
	TotalPredictedDemand          float64          `json:"total_predicted_demand"`
	RecommendedProductionQuantity int              `json:"recommended_production_quantity"`
	ConfidenceLevel               float64          `json:"confidence_level"`
	RiskOfStockout                float64          `json:"risk_of_stockout"`
	WeeklyForecasts               []WeeklyForecast `json:"weekly_forecasts"`
}

// NewRecommendation 由一个产品的各周预测计算建议：
// 建议产量 = ceil(总需求 + (最大上界 - 平均预测) * 0.5)；
// 置信度 = 1 - 平均区间宽度 / 平均预测，截断到 [0,1]；
// 缺货风险 = (最大上界 - 平均预测) / 平均预测，上限为 1。
// 平均预测为 0 时置信度与风险都为 0。
func NewRecommendation(productID, name string, weekly []WeeklyForecast) Recommendation {
	rec := Recommendation{ProductID: productID, ProductName: name}
	ws := append([]WeeklyForecast(nil), weekly...)
	sort.SliceStable(ws, func(i, j int) bool { return ws[i].WeekOffset < ws[j].WeekOffset })
	rec.WeeklyForecasts = ws
	if len(ws) == 0 {
		return rec
	}

	var total, width float64
	maxUpper := math.Inf(-1)
	for _, w := range ws {
		total += w.PredictedQuantity
		width += w.ConfidenceUpper - w.ConfidenceLower
		maxUpper = math.Max(maxUpper, w.ConfidenceUpper)
	}
	n := float64(len(ws))
	avg := total / n
	rec.TotalPredictedDemand = total
	rec.RecommendedProductionQuantity = int(math.Ceil(math.Max(0, total+(maxUpper-avg)*0.5)))
	if avg > 0 {
		rec.ConfidenceLevel = clamp01(1 - (width/n)/avg)
		rec.RiskOfStockout = clamp01((maxUpper - avg) / avg)
	}
	return rec
}

// BuildRecommendations 按产品分组（保持首次出现的顺序）并逐个计算建议
func BuildRecommendations(forecasts []WeeklyForecast, names map[string]string) []Recommendation {
	var order []string
	byProduct := make(map[string][]WeeklyForecast)
	for _, f := range forecasts {
		if _, ok := byProduct[f.ProductID]; !ok {
			order = append(order, f.ProductID)
		}
		byProduct[f.ProductID] = append(byProduct[f.ProductID], f)
	}
	recs := make([]Recommendation, 0, len(order))
	for _, id := range order {
		recs = append(recs, NewRecommendation(id, names[id], byProduct[id]))
	}
	return recs
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Prioritize 按缺货风险降序、总需求降序、置信度升序排列，其余保持原顺序
func Prioritize(recs []Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.RiskOfStockout != b.RiskOfStockout {
			return a.RiskOfStockout > b.RiskOfStockout
		}
		if a.TotalPredictedDemand != b.TotalPredictedDemand {
			return a.TotalPredictedDemand > b.TotalPredictedDemand
		}
		return a.ConfidenceLevel < b.ConfidenceLevel
	})
}

// Severity 告警级别
type Severity string

const (
	SeverityHigh   Severity = "High"
	SeverityMedium Severity = "Medium"
)

// Alert 是针对单个产品的计划告警
type Alert struct {
	ProductID         string   `json:"product_id"`
	Severity          Severity `json:"severity"`
	Message           string   `json:"message"`
	RecommendedAction string   `json:"recommended_action"`
}

// GenerateAlerts 风险 > 0.8 为 High，置信度 < 0.6 为 Medium；同一产品可同时产生两条
func GenerateAlerts(recs []Recommendation) []Alert {
	alerts := make([]Alert, 0)
	for _, r := range recs {
		if r.RiskOfStockout > HighRiskThreshold {
			alerts = append(alerts, Alert{
				ProductID:         r.ProductID,
				Severity:          SeverityHigh,
				Message:           "high stockout risk (probability: " + decimal.NewFromFloat(r.RiskOfStockout*100).StringFixed(0) + "%)",
				RecommendedAction: "increase production immediately",
			})
		}
		if r.ConfidenceLevel < LowConfidenceThreshold {
			alerts = append(alerts, Alert{
				ProductID:         r.ProductID,
				Severity:          SeverityMedium,
				Message:           "high prediction uncertainty",
				RecommendedAction: "monitor actual sales closely",
			})
		}
	}
	return alerts
}

// EstimatedRevenue 建议产量乘以产品平均价格求和；没有价格的产品不计入
func EstimatedRevenue(recs []Recommendation, prices map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, r := range recs {
		price, ok := prices[r.ProductID]
		if !ok {
			continue
		}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(r.RecommendedProductionQuantity))))
	}
	return total.Round(2)
}

// Summary 计划汇总
type Summary struct {
	TotalUnitsToProduce int             `json:"total_units_to_produce"`
	HighPriorityItems   int             `json:"high_priority_items"`
	EstimatedRevenue    decimal.Decimal `json:"estimated_revenue"`
}

// Summarize 汇总建议产量与高风险条目数
func Summarize(recs []Recommendation, prices map[string]decimal.Decimal) Summary {
	s := Summary{EstimatedRevenue: EstimatedRevenue(recs, prices)}
	for _, r := range recs {
		s.TotalUnitsToProduce += r.RecommendedProductionQuantity
		if r.RiskOfStockout > HighPriorityRisk {
			s.HighPriorityItems++
		}
	}
	return s
}

// Plan 是某个系列的生产计划
type Plan struct {
	CollectionID          string           `json:"collection_id"`
	GeneratedAt           time.Time        `json:"generated_at"`
	ForecastHorizon       string           `json:"forecast_horizon"`
	TotalProductsAnalyzed int              `json:"total_products_analyzed"`
	Recommendations       []Recommendation `json:"recommendations"`
	Alerts                []Alert          `json:"alerts"`
	Summary               Summary          `json:"summary"`
}
