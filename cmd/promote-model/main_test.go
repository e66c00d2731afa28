package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace/noop"

	promotionApp "demandcast/internal/service/promotion/application"
	regdomain "demandcast/internal/service/registry/domain"
	registryInfra "demandcast/internal/service/registry/infrastructure"
)

func newTestService(metrics map[string]float64) *promotionApp.PromotionService {
	reg := registryInfra.NewMemoryRegistry()
	reg.AddVersion(regdomain.ModelVersion{
		ModelName: "m",
		VersionID: "1",
		RunID:     "run-1",
		Stage:     regdomain.StageStaging,
		CreatedAt: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	}, metrics)
	return promotionApp.NewPromotionService(reg, noop.NewTracerProvider().Tracer("test"))
}

func TestPromote_ExitCodes(t *testing.T) {
	var out bytes.Buffer
	code := promote(context.Background(), &out, newTestService(map[string]float64{"mape": 10, "r2": 0.85, "mae": 5, "rmse": 7}), "m", "")
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "m v1 promoted to Production")

	out.Reset()
	code = promote(context.Background(), &out, newTestService(map[string]float64{"mape": 20, "r2": 0.85}), "m", "")
	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "MAPE (20.0%) > threshold (15.0%)")

	out.Reset()
	code = promote(context.Background(), &out, newTestService(nil), "m", "other-run")
	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "no version of m for run other-run")
}

func TestListVersions(t *testing.T) {
	var out bytes.Buffer
	err := listVersions(context.Background(), &out, newTestService(nil), "m")
	assert.NoError(t, err)
	assert.Contains(t, out.String(), "Version 1 (Staging)")
	assert.Contains(t, out.String(), "Metrics: unavailable")

	out.Reset()
	assert.NoError(t, listVersions(context.Background(), &out, newTestService(nil), "missing"))
	assert.Contains(t, out.String(), "no versions found")
}
