package interfaces

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"demandcast/internal/service/promotion/application"
	"demandcast/internal/service/promotion/domain"
	regdomain "demandcast/internal/service/registry/domain"
	"demandcast/internal/service/registry/infrastructure"
)

func newMux(reg *infrastructure.MemoryRegistry) *http.ServeMux {
	svc := application.NewPromotionService(reg, noop.NewTracerProvider().Tracer("test"))
	mux := http.NewServeMux()
	NewPromotionHandler(svc).RegisterRoutes(mux)
	return mux
}

func serve(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestPromotionHandler_Promote(t *testing.T) {
	reg := infrastructure.NewMemoryRegistry()
	reg.AddVersion(regdomain.ModelVersion{ModelName: "m", VersionID: "1", RunID: "r1", Stage: regdomain.StageStaging, CreatedAt: time.Now()},
		map[string]float64{"mape": 8, "r2": 0.9})

	rec := serve(newMux(reg), http.MethodPost, "/models/m/promote", `{"run_id":"r1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out domain.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "1", out.VersionID)

	rec = serve(newMux(reg), http.MethodGet, "/models/m/versions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var versions []domain.VersionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &versions))
	require.Len(t, versions, 1)
	assert.Equal(t, regdomain.StageProduction, versions[0].Stage)
}

func TestPromotionHandler_Rejection(t *testing.T) {
	reg := infrastructure.NewMemoryRegistry()
	// 没有指标：MAPE 取 +Inf，响应里渲染为 null
	reg.AddVersion(regdomain.ModelVersion{ModelName: "m", VersionID: "1", RunID: "r1", Stage: regdomain.StageStaging, CreatedAt: time.Now()}, nil)

	rec := serve(newMux(reg), http.MethodPost, "/models/m/promote", "")
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	var view rejectionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view.Failures, 2)
	assert.Equal(t, "mape", view.Failures[0].Metric)
	assert.Nil(t, view.Failures[0].Value)
	require.NotNil(t, view.Failures[1].Value)
	assert.Equal(t, 0.0, *view.Failures[1].Value)
}

func TestPromotionHandler_NoCandidate(t *testing.T) {
	rec := serve(newMux(infrastructure.NewMemoryRegistry()), http.MethodPost, "/models/m/promote", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(newMux(infrastructure.NewMemoryRegistry()), http.MethodPost, "/models/m/promote", "{bad")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
