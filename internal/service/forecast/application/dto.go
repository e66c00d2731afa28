package application

import (
	"time"

	"demandcast/internal/service/forecast/predictor"
)

// DefaultHorizonWeeks 未指定预测周数时的默认值
const DefaultHorizonWeeks = 13

// UnknownCollection 产品目录中没有系列信息时使用的取值，与数据清洗的缺失填充一致
const UnknownCollection = "Unknown"

// ForecastRequest 是 /forecast 的请求体
type ForecastRequest struct {
	ProductIDs           []string `json:"product_ids" validate:"required,min=1,unique,dive,required"`
	StartDate            string   `json:"start_date" validate:"required,datetime=2006-01-02"`
	ForecastHorizonWeeks *int     `json:"forecast_horizon_weeks,omitempty" validate:"omitempty,min=1,max=52"`
	Channel              string   `json:"channel"`
	Countries            []string `json:"countries"`
}

// Horizon 返回预测周数，未指定时为 13
func (r *ForecastRequest) Horizon() int {
	if r.ForecastHorizonWeeks == nil {
		return DefaultHorizonWeeks
	}
	return *r.ForecastHorizonWeeks
}

// ForecastRow 是某个产品在某个周偏移上的预测
type ForecastRow struct {
	ProductID             string  `json:"product_id"`
	WeekOffset            int     `json:"week_offset"`
	PredictedQuantity     float64 `json:"predicted_quantity"`
	ConfidenceLower       float64 `json:"confidence_lower"`
	ConfidenceUpper       float64 `json:"confidence_upper"`
	RecommendedProduction int     `json:"recommended_production"`
}

func toForecastRows(batches []predictor.Batch) []ForecastRow {
	var rows []ForecastRow
	for _, b := range batches {
		for i, id := range b.ProductIDs {
			p := b.Predictions[i]
			rows = append(rows, ForecastRow{
				ProductID:             id,
				WeekOffset:            b.Week,
				PredictedQuantity:     p,
				ConfidenceLower:       b.Lower[i],
				ConfidenceUpper:       b.Upper[i],
				RecommendedProduction: predictor.RecommendedProduction(p),
			})
		}
	}
	return rows
}

// MetricsSummary 是当前服务中模型的指标，未加载模型时指标为 null
type MetricsSummary struct {
	MAPE         *float64 `json:"mape"`
	R2           *float64 `json:"r2"`
	ModelVersion string   `json:"model_version"`
	Status       string   `json:"status"`
}

const (
	StatusModelLoaded   = "model_loaded"
	StatusModelUnloaded = "unavailable"
)

// HealthStatus 是 /health 的响应
type HealthStatus struct {
	Status       string    `json:"status"`
	ModelLoaded  bool      `json:"model_loaded"`
	ModelVersion string    `json:"model_version,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// TrainingResult 是一次训练流水线的结果
type TrainingResult struct {
	RunID      string
	VersionID  string
	Report     predictor.TrainingReport
	Importance []predictor.FeatureImportance
	Artifact   *predictor.Artifact
}
