package infrastructure

import (
	"context"
	"time"

	forecastApp "demandcast/internal/service/forecast/application"
	"demandcast/internal/service/planning/domain"
)

// forecastRunner 是 *forecastApp.ForecastService 的预测方法
type forecastRunner interface {
	Forecast(ctx context.Context, req *forecastApp.ForecastRequest) ([]forecastApp.ForecastRow, error)
}

// ForecastAdapter 通过在线预测用例实现 domain.DemandForecaster，
// 复用其校验、缓存与模型热加载
type ForecastAdapter struct {
	forecasts forecastRunner
}

func NewForecastAdapter(forecasts forecastRunner) *ForecastAdapter {
	return &ForecastAdapter{forecasts: forecasts}
}

func (a *ForecastAdapter) WeeklyForecast(ctx context.Context, productIDs []string, start time.Time, horizon int) ([]domain.WeeklyForecast, error) {
	h := horizon
	rows, err := a.forecasts.Forecast(ctx, &forecastApp.ForecastRequest{
		ProductIDs:           productIDs,
		StartDate:            start.Format(time.DateOnly),
		ForecastHorizonWeeks: &h,
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.WeeklyForecast, len(rows))
	for i, r := range rows {
		out[i] = domain.WeeklyForecast{
			ProductID:         r.ProductID,
			WeekOffset:        r.WeekOffset,
			PredictedQuantity: r.PredictedQuantity,
			ConfidenceLower:   r.ConfidenceLower,
			ConfidenceUpper:   r.ConfidenceUpper,
		}
	}
	return out, nil
}
