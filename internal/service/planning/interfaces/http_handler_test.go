package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	forecastdomain "demandcast/internal/service/forecast/domain"
	"demandcast/internal/service/planning/domain"
)

type stubPlanner struct {
	collection string
	horizon    int
	plan       *domain.Plan
	err        error
}

func (s *stubPlanner) ProductionPlan(_ context.Context, collection string, horizon int) (*domain.Plan, error) {
	s.collection, s.horizon = collection, horizon
	return s.plan, s.err
}

func serve(t *testing.T, p planner, target string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	NewPlanningHandler(p).RegisterRoutes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestProductionPlanHandler_OK(t *testing.T) {
	p := &stubPlanner{plan: &domain.Plan{
		CollectionID:    "Fall 2024",
		ForecastHorizon: "4 weeks",
		Recommendations: []domain.Recommendation{{ProductID: "BAG-001", RecommendedProductionQuantity: 12}},
		Alerts:          []domain.Alert{},
		Summary:         domain.Summary{TotalUnitsToProduce: 12, EstimatedRevenue: decimal.NewFromInt(60000)},
	}}

	rec := serve(t, p, "/production-plan/Fall%202024?horizon_weeks=4")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Fall 2024", p.collection)
	assert.Equal(t, 4, p.horizon)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "4 weeks", body["forecast_horizon"])
	summary := body["summary"].(map[string]any)
	assert.Equal(t, float64(12), summary["total_units_to_produce"])
	assert.Equal(t, "60000", summary["estimated_revenue"])
}

func TestProductionPlanHandler_DefaultHorizon(t *testing.T) {
	p := &stubPlanner{plan: &domain.Plan{}}
	rec := serve(t, p, "/production-plan/Core")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, p.horizon)
}

func TestProductionPlanHandler_ErrorStatus(t *testing.T) {
	cases := []struct {
		name   string
		target string
		err    error
		want   int
	}{
		{"unknown collection", "/production-plan/None", errors.Wrap(domain.ErrUnknownCollection, "x"), http.StatusNotFound},
		{"invalid horizon", "/production-plan/Core?horizon_weeks=90", errors.Wrap(domain.ErrInvalidHorizon, "x"), http.StatusBadRequest},
		{"validation", "/production-plan/Core", forecastdomain.NewValidationError("start_date", "bad"), http.StatusBadRequest},
		{"untrained", "/production-plan/Core", forecastdomain.ErrUntrainedModel, http.StatusServiceUnavailable},
		{"other", "/production-plan/Core", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(t, &stubPlanner{err: tc.err}, tc.target)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestProductionPlanHandler_BadHorizonParam(t *testing.T) {
	p := &stubPlanner{plan: &domain.Plan{}}
	rec := serve(t, p, "/production-plan/Core?horizon_weeks=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, p.collection)
}
