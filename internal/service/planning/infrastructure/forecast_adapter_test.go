package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	forecastApp "demandcast/internal/service/forecast/application"
	"demandcast/internal/service/planning/domain"
)

type recordingRunner struct {
	req  *forecastApp.ForecastRequest
	rows []forecastApp.ForecastRow
	err  error
}

func (r *recordingRunner) Forecast(_ context.Context, req *forecastApp.ForecastRequest) ([]forecastApp.ForecastRow, error) {
	r.req = req
	return r.rows, r.err
}

func TestForecastAdapter_WeeklyForecast(t *testing.T) {
	runner := &recordingRunner{rows: []forecastApp.ForecastRow{
		{ProductID: "BAG-001", WeekOffset: 1, PredictedQuantity: 12, ConfidenceLower: 9, ConfidenceUpper: 15, RecommendedProduction: 14},
	}}
	start := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)

	got, err := NewForecastAdapter(runner).WeeklyForecast(context.Background(), []string{"BAG-001"}, start, 4)
	require.NoError(t, err)

	assert.Equal(t, []domain.WeeklyForecast{
		{ProductID: "BAG-001", WeekOffset: 1, PredictedQuantity: 12, ConfidenceLower: 9, ConfidenceUpper: 15},
	}, got)
	require.NotNil(t, runner.req)
	assert.Equal(t, "2025-03-03", runner.req.StartDate)
	assert.Equal(t, 4, runner.req.Horizon())
	assert.Equal(t, []string{"BAG-001"}, runner.req.ProductIDs)
}

func TestForecastAdapter_PropagatesError(t *testing.T) {
	boom := errors.New("model unavailable")
	_, err := NewForecastAdapter(&recordingRunner{err: boom}).WeeklyForecast(context.Background(), []string{"X"}, time.Now(), 1)
	assert.ErrorIs(t, err, boom)
}
