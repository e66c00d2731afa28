package application

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"demandcast/internal/pkg/logger"
	"demandcast/internal/pkg/metrics"
	"demandcast/internal/service/promotion/domain"
	regdomain "demandcast/internal/service/registry/domain"
)

// PromotionService 把 Staging 版本经过质量门槛后晋升到 Production
type PromotionService struct {
	versions    regdomain.VersionStore
	swapper     regdomain.ProductionSwapper
	publisher   regdomain.EventPublisher
	rules       domain.RuleEngine
	extraRules  []string
	locker      domain.Locker
	lockTimeout time.Duration
	thresholds  domain.Thresholds
	tracer      trace.Tracer
	now         func() time.Time
}

// NewPromotionService 注册表若实现了 ProductionSwapper，则使用原子切换
func NewPromotionService(versions regdomain.VersionStore, tracer trace.Tracer, opts ...Option) *PromotionService {
	s := &PromotionService{
		versions:   versions,
		publisher:  regdomain.NopPublisher{},
		thresholds: domain.DefaultThresholds(),
		tracer:     tracer,
		now:        time.Now,
	}
	if sw, ok := versions.(regdomain.ProductionSwapper); ok {
		s.swapper = sw
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Promote 晋升指定 run 的版本；runID 为空时取最新的 Staging 版本。
// 未达标时返回 *domain.QualityGateRejection，注册表保持不变。
func (s *PromotionService) Promote(ctx context.Context, modelName, runID string) (out *domain.Outcome, err error) {
	ctx, span := s.tracer.Start(ctx, "service.PromoteModel")
	defer span.End()
	span.SetAttributes(attribute.String("model.name", modelName), attribute.String("run.id", runID))
	defer func() {
		var rejection *domain.QualityGateRejection
		switch {
		case err == nil:
			metrics.PromotionOutcomes.WithLabelValues("promoted").Inc()
		case errors.As(err, &rejection):
			metrics.PromotionOutcomes.WithLabelValues("rejected").Inc()
			span.AddEvent("quality gate rejected")
		default:
			metrics.PromotionOutcomes.WithLabelValues("error").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "promotion failed")
		}
	}()
	log := logger.Ctx(ctx)

	// 0. 同一模型的晋升串行执行
	if s.locker != nil {
		lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
		release, err := s.locker.Acquire(lockCtx, "promotion-"+modelName)
		cancel()
		if err != nil {
			return nil, errors.Wrapf(err, "acquire promotion lock for %s", modelName)
		}
		defer release()
	}

	// 1. 确定候选版本
	candidate, err := s.resolveCandidate(ctx, modelName, runID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("model.version", candidate.VersionID))
	if !candidate.Stage.CanTransitionTo(regdomain.StageProduction) {
		return nil, errors.Wrapf(regdomain.ErrIllegalTransition, "%s v%s is %s", modelName, candidate.VersionID, candidate.Stage)
	}

	// 2. 读取 run 指标，缺失时取最差值
	runMetrics, err := s.runMetrics(ctx, candidate.RunID)
	if err != nil {
		return nil, err
	}
	m := domain.MetricsFromRun(runMetrics)
	log.Info().
		Str("model", modelName).
		Str("version", candidate.VersionID).
		Str("run_id", candidate.RunID).
		Float64("mape", m.MAPE).
		Float64("r2", m.R2).
		Float64("mae", m.MAE).
		Float64("rmse", m.RMSE).
		Msg("📊 candidate metrics")

	// 3. 质量门槛
	failures := s.thresholds.Evaluate(m)
	ruleFailures, err := s.evaluateRules(domain.Fact{ModelName: modelName, VersionID: candidate.VersionID, Metrics: m})
	if err != nil {
		return nil, err
	}
	failures = append(failures, ruleFailures...)
	if len(failures) > 0 {
		rejection := &domain.QualityGateRejection{ModelName: modelName, VersionID: candidate.VersionID, Metrics: m, Failures: failures}
		log.Warn().Str("model", modelName).Str("version", candidate.VersionID).Msg("❌ " + rejection.Error())
		return nil, rejection
	}

	// 4. 归档当前 Production 并晋升候选
	archived, err := s.switchProduction(ctx, modelName, candidate.VersionID)
	if err != nil {
		return nil, err
	}
	promotedAt := s.now()
	log.Info().Str("model", modelName).Str("version", candidate.VersionID).Strs("archived", archived).Msg("✅ model promoted to Production")

	// 5. 审计说明，失败不影响结果
	description := domain.AuditDescription(promotedAt, m)
	if err := s.versions.UpdateDescription(ctx, modelName, candidate.VersionID, description); err != nil {
		log.Warn().Err(err).Msg("failed to update version description")
	}

	event := regdomain.LifecycleEvent{
		Type:       regdomain.EventModelPromoted,
		ModelName:  modelName,
		VersionID:  candidate.VersionID,
		RunID:      candidate.RunID,
		Stage:      regdomain.StageProduction,
		Archived:   archived,
		Metrics:    runMetrics,
		OccurredAt: promotedAt,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Warn().Err(err).Msg("failed to publish model.promoted event")
	}

	return &domain.Outcome{
		ModelName:   modelName,
		VersionID:   candidate.VersionID,
		RunID:       candidate.RunID,
		Metrics:     m,
		Archived:    archived,
		Description: description,
		PromotedAt:  promotedAt,
	}, nil
}

func (s *PromotionService) resolveCandidate(ctx context.Context, modelName, runID string) (*regdomain.ModelVersion, error) {
	if runID != "" {
		versions, err := s.versions.GetVersions(ctx, modelName)
		if err != nil {
			return nil, err
		}
		for i := range versions {
			if versions[i].RunID == runID {
				return &versions[i], nil
			}
		}
		return nil, errors.Wrapf(domain.ErrNoCandidate, "no version of %s for run %s", modelName, runID)
	}

	staging, err := s.versions.GetVersions(ctx, modelName, regdomain.StageStaging)
	if err != nil {
		return nil, err
	}
	if len(staging) == 0 {
		return nil, errors.Wrapf(domain.ErrNoCandidate, "no Staging version of %s", modelName)
	}
	return &staging[0], nil
}

// runMetrics run 不存在时返回空指标，由门槛按最差值处理
func (s *PromotionService) runMetrics(ctx context.Context, runID string) (map[string]float64, error) {
	if runID == "" {
		return map[string]float64{}, nil
	}
	m, err := s.versions.GetRunMetrics(ctx, runID)
	if errors.Is(err, regdomain.ErrNotFound) {
		logger.Ctx(ctx).Warn().Str("run_id", runID).Msg("run metrics unavailable, using worst-case values")
		return map[string]float64{}, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *PromotionService) evaluateRules(fact domain.Fact) ([]domain.ThresholdFailure, error) {
	if s.rules == nil {
		return nil, nil
	}
	var failures []domain.ThresholdFailure
	for _, rule := range s.extraRules {
		ok, err := s.rules.Evaluate(rule, fact)
		if err != nil {
			return nil, errors.Wrapf(domain.ErrInvalidRule, "%q: %v", rule, err)
		}
		if !ok {
			failures = append(failures, domain.ThresholdFailure{Rule: rule})
		}
	}
	return failures, nil
}

// switchProduction 优先使用注册表的原子切换；否则分两步执行，
// 两步之间该模型没有 Production 版本。
func (s *PromotionService) switchProduction(ctx context.Context, modelName, versionID string) ([]string, error) {
	if s.swapper != nil {
		return s.swapper.SwapProduction(ctx, modelName, versionID)
	}

	current, err := s.versions.GetVersions(ctx, modelName, regdomain.StageProduction)
	if err != nil {
		return nil, err
	}
	regdomain.SortOldestFirst(current)
	if len(current) > 0 {
		logger.Ctx(ctx).Warn().Str("model", modelName).Int("production_versions", len(current)).
			Msg("two-phase promotion: model has no Production version until the candidate is promoted")
	}

	archived := make([]string, 0, len(current))
	for _, v := range current {
		if err := s.versions.TransitionStage(ctx, modelName, v.VersionID, regdomain.StageArchived); err != nil {
			return nil, errors.Wrapf(err, "archive %s v%s", modelName, v.VersionID)
		}
		logger.Ctx(ctx).Info().Str("model", modelName).Str("version", v.VersionID).Msg("📦 version archived")
		archived = append(archived, v.VersionID)
	}
	if err := s.versions.TransitionStage(ctx, modelName, versionID, regdomain.StageProduction); err != nil {
		return nil, errors.Wrapf(err, "promote %s v%s (archived %v)", modelName, versionID, archived)
	}
	return archived, nil
}

// List 返回模型的全部版本，新的在前；拿不到指标的版本 Metrics 为空
func (s *PromotionService) List(ctx context.Context, modelName string) ([]domain.VersionSummary, error) {
	ctx, span := s.tracer.Start(ctx, "service.ListModelVersions")
	defer span.End()

	versions, err := s.versions.GetVersions(ctx, modelName)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	regdomain.SortNewestFirst(versions)

	out := make([]domain.VersionSummary, 0, len(versions))
	for _, v := range versions {
		m := v.Metrics
		if m == nil && v.RunID != "" {
			if fetched, err := s.versions.GetRunMetrics(ctx, v.RunID); err == nil {
				m = fetched
			}
		}
		out = append(out, domain.VersionSummary{
			VersionID: v.VersionID,
			Stage:     v.Stage,
			RunID:     v.RunID,
			Metrics:   m,
			CreatedAt: v.CreatedAt,
		})
	}
	return out, nil
}
