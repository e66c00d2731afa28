package application

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"demandcast/internal/pkg/logger"
	"demandcast/internal/pkg/metrics"
	"demandcast/internal/service/forecast/dataquality"
	"demandcast/internal/service/forecast/domain"
	"demandcast/internal/service/forecast/predictor"
	regdomain "demandcast/internal/service/registry/domain"
)

// TrainingOptions 训练流水线配置
type TrainingOptions struct {
	ModelName       string
	Target          string
	Folds           int
	Clean           bool
	AggregateWeekly bool
	Params          predictor.Params
}

// TrainingService 训练流水线：加载 -> 清洗 -> 训练 -> 注册到 Staging -> 发布事件
type TrainingService struct {
	source    domain.SalesSource
	store     regdomain.ArtifactStore
	publisher regdomain.EventPublisher
	tracer    trace.Tracer
	opts      TrainingOptions
}

func NewTrainingService(source domain.SalesSource, store regdomain.ArtifactStore, publisher regdomain.EventPublisher, tracer trace.Tracer, opts TrainingOptions) *TrainingService {
	if publisher == nil {
		publisher = regdomain.NopPublisher{}
	}
	return &TrainingService{source: source, store: store, publisher: publisher, tracer: tracer, opts: opts}
}

func (s *TrainingService) Run(ctx context.Context) (res *TrainingResult, err error) {
	ctx, span := s.tracer.Start(ctx, "service.TrainModel")
	defer span.End()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, "training failed")
		}
		metrics.TrainingRuns.WithLabelValues(result).Inc()
	}()
	log := logger.Ctx(ctx)
	runID := uuid.NewString()
	span.SetAttributes(attribute.String("run.id", runID), attribute.String("model.name", s.opts.ModelName))

	// 1. 加载数据
	frame, err := s.source.LoadSales(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load sales")
	}
	log.Info().Int("rows", frame.Len()).Str("run_id", runID).Msg("📥 sales data loaded")

	// 2. 清洗与聚合
	if s.opts.Clean {
		frame, _ = dataquality.NewPreprocessor().Clean(ctx, frame)
	}
	if s.opts.AggregateWeekly {
		if frame, err = dataquality.AggregateByWeek(frame); err != nil {
			return nil, err
		}
	}

	// 3. 训练
	p := predictor.New(s.opts.Params, s.opts.Folds)
	art, err := p.Train(ctx, frame, s.opts.Target)
	if err != nil {
		return nil, errors.Wrap(err, "train model")
	}
	blob, err := art.Marshal()
	if err != nil {
		return nil, err
	}

	// 4. 注册为 Staging 新版本
	reported := art.Report.Metrics()
	versionID, err := s.store.Save(ctx, blob, regdomain.SaveMetadata{
		ModelName: s.opts.ModelName,
		RunID:     runID,
		Stage:     regdomain.StageStaging,
		Params:    s.opts.Params.AsStrings(),
		Metrics:   reported,
	})
	if err != nil {
		return nil, errors.Wrap(err, "register model")
	}
	log.Info().Str("model", s.opts.ModelName).Str("version", versionID).Msg("📦 model registered in Staging")

	// 5. 事件发布失败不影响训练结果
	event := regdomain.LifecycleEvent{
		Type:       regdomain.EventModelTrained,
		ModelName:  s.opts.ModelName,
		VersionID:  versionID,
		RunID:      runID,
		Stage:      regdomain.StageStaging,
		Metrics:    reported,
		OccurredAt: art.Report.TrainedAt,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Warn().Err(err).Msg("failed to publish model.trained event")
	}

	return &TrainingResult{RunID: runID, VersionID: versionID, Report: art.Report, Importance: art.Importance, Artifact: art}, nil
}
