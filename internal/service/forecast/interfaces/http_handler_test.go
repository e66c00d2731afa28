package interfaces

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"demandcast/internal/service/forecast/application"
	"demandcast/internal/service/forecast/domain"
	regdomain "demandcast/internal/service/registry/domain"
	"demandcast/internal/service/registry/infrastructure"
)

func newTestMux() *http.ServeMux {
	svc := application.NewForecastService(infrastructure.NewMemoryRegistry(), nil, noop.NewTracerProvider().Tracer("test"), application.ForecastOptions{
		ModelName:   "luxury_demand_forecaster",
		MaxProducts: 100,
	})
	mux := http.NewServeMux()
	NewForecastHandler(svc, nil).RegisterRoutes(mux)
	return mux
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestForecastHandler_Untrained(t *testing.T) {
	rec := do(newTestMux(), http.MethodPost, "/forecast", `{"product_ids":["BAG-001"],"start_date":"2025-01-06"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestForecastHandler_BadRequests(t *testing.T) {
	mux := newTestMux()

	rec := do(mux, http.MethodPost, "/forecast", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(mux, http.MethodPost, "/forecast", `{"product_ids":[],"start_date":"2025-13-40","forecast_horizon_weeks":60}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Fields, 3)

	rec = do(mux, http.MethodGet, "/forecast", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestForecastHandler_HealthAndMetrics(t *testing.T) {
	mux := newTestMux()

	rec := do(mux, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health application.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.False(t, health.ModelLoaded)

	rec = do(mux, http.MethodGet, "/model/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"mape":null,"r2":null,"model_version":"","status":"unavailable"}`, rec.Body.String())

	assert.Equal(t, http.StatusOK, do(mux, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, do(mux, http.MethodGet, "/metrics", "").Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.NewValidationError("StartDate", "bad"), http.StatusBadRequest},
		{errors.Wrap(domain.ErrUntrainedModel, "no model"), http.StatusServiceUnavailable},
		{errors.Wrap(regdomain.ErrRegistry, "mysql down"), http.StatusBadGateway},
		{domain.ErrFeatureMismatch, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
