package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"demandcast/internal/service/forecast/predictor"
	regdomain "demandcast/internal/service/registry/domain"
	"demandcast/internal/service/registry/infrastructure"
)

func TestTrainingService_RegistersStagingVersion(t *testing.T) {
	ctx := context.Background()
	reg := infrastructure.NewMemoryRegistry()
	pub := &recordingPublisher{}
	svc := NewTrainingService(staticSource{frame: weeklySales(60)}, reg, pub, noop.NewTracerProvider().Tracer("test"), TrainingOptions{
		ModelName: testModel,
		Target:    "quantity",
		Folds:     3,
		Clean:     true,
		Params:    quickParams(),
	})

	res, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "1", res.VersionID)
	assert.Equal(t, 3, res.Report.Folds)
	assert.NotEmpty(t, res.Importance)

	versions, err := reg.GetVersions(ctx, testModel)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, regdomain.StageStaging, versions[0].Stage)
	assert.Equal(t, res.RunID, versions[0].RunID)
	assert.Contains(t, versions[0].Metrics, "r2")
	assert.Contains(t, versions[0].Metrics, "rmse")

	blob, v, err := reg.Load(ctx, testModel, regdomain.StageStaging)
	require.NoError(t, err)
	require.NotNil(t, v)
	art, err := predictor.UnmarshalArtifact(blob)
	require.NoError(t, err)
	assert.Equal(t, res.Report.Rows, art.Report.Rows)

	require.Len(t, pub.events, 1)
	assert.Equal(t, regdomain.EventModelTrained, pub.events[0].Type)
	assert.Equal(t, res.VersionID, pub.events[0].VersionID)
}

func TestTrainingService_PublishFailureIsNotFatal(t *testing.T) {
	reg := infrastructure.NewMemoryRegistry()
	pub := &recordingPublisher{err: errBroker}
	svc := NewTrainingService(staticSource{frame: weeklySales(40)}, reg, pub, noop.NewTracerProvider().Tracer("test"), TrainingOptions{
		ModelName: testModel,
		Target:    "quantity",
		Folds:     3,
		Params:    quickParams(),
	})
	res, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1", res.VersionID)
}

func TestTrainingService_SourceError(t *testing.T) {
	svc := NewTrainingService(staticSource{err: errBroker}, infrastructure.NewMemoryRegistry(), nil, noop.NewTracerProvider().Tracer("test"), TrainingOptions{
		ModelName: testModel,
		Folds:     3,
		Params:    quickParams(),
	})
	_, err := svc.Run(context.Background())
	assert.ErrorIs(t, err, errBroker)
}

func TestTrainingService_AggregatesWeekly(t *testing.T) {
	reg := infrastructure.NewMemoryRegistry()
	svc := NewTrainingService(staticSource{frame: weeklySales(40)}, reg, nil, noop.NewTracerProvider().Tracer("test"), TrainingOptions{
		ModelName:       testModel,
		Target:          "quantity",
		Folds:           3,
		AggregateWeekly: true,
		Params:          quickParams(),
	})
	res, err := svc.Run(context.Background())
	require.NoError(t, err)
	// 每周每个 (产品, 国家, 渠道) 一行
	assert.Equal(t, 40*6, res.Report.Rows)
}
