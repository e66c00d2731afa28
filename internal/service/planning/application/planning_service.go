package application

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"demandcast/internal/pkg/logger"
	"demandcast/internal/pkg/metrics"
	forecastdomain "demandcast/internal/service/forecast/domain"
	"demandcast/internal/service/planning/domain"
)

const (
	// DefaultHorizonWeeks 未指定计划周数时的默认值
	DefaultHorizonWeeks = 13
	MaxHorizonWeeks     = 52
)

// PlanningService 基于产品目录与需求预测生成系列级生产计划
type PlanningService struct {
	catalog    forecastdomain.ProductCatalog
	forecaster domain.DemandForecaster
	tracer     trace.Tracer
	now        func() time.Time
}

func NewPlanningService(catalog forecastdomain.ProductCatalog, forecaster domain.DemandForecaster, tracer trace.Tracer) *PlanningService {
	return &PlanningService{catalog: catalog, forecaster: forecaster, tracer: tracer, now: time.Now}
}

// ProductionPlan 为系列内所有产品从今天起预测 horizon 周并生成计划；horizon 为 0 时取 13
func (s *PlanningService) ProductionPlan(ctx context.Context, collection string, horizon int) (plan *domain.Plan, err error) {
	ctx, span := s.tracer.Start(ctx, "service.ProductionPlan")
	defer span.End()
	defer func() {
		status := "ok"
		if err != nil {
			status = errorStatus(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		}
		metrics.ProductionPlans.WithLabelValues(status).Inc()
	}()

	// 1. 参数校验
	if horizon == 0 {
		horizon = DefaultHorizonWeeks
	}
	if horizon < 1 || horizon > MaxHorizonWeeks {
		return nil, errors.Wrapf(domain.ErrInvalidHorizon, "horizon must be between 1 and %d weeks, got %d", MaxHorizonWeeks, horizon)
	}
	span.SetAttributes(
		attribute.String("plan.collection", collection),
		attribute.Int("plan.horizon_weeks", horizon),
	)

	// 2. 系列内产品
	products, err := s.catalog.ListByCollection(ctx, collection)
	if err != nil {
		return nil, errors.Wrapf(err, "list products of collection %s", collection)
	}
	if len(products) == 0 {
		return nil, errors.Wrapf(domain.ErrUnknownCollection, "collection %q has no products", collection)
	}
	ids := make([]string, len(products))
	names := make(map[string]string, len(products))
	prices := make(map[string]decimal.Decimal, len(products))
	for i, p := range products {
		ids[i] = p.ID
		names[p.ID] = p.Name
		prices[p.ID] = p.AveragePrice
	}

	// 3. 预测
	now := s.now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	forecasts, err := s.forecaster.WeeklyForecast(ctx, ids, start, horizon)
	if err != nil {
		return nil, err
	}

	// 4. 建议、排序、告警与汇总
	recs := domain.BuildRecommendations(forecasts, names)
	domain.Prioritize(recs)
	plan = &domain.Plan{
		CollectionID:          collection,
		GeneratedAt:           now,
		ForecastHorizon:       fmt.Sprintf("%d weeks", horizon),
		TotalProductsAnalyzed: len(products),
		Recommendations:       recs,
		Alerts:                domain.GenerateAlerts(recs),
		Summary:               domain.Summarize(recs, prices),
	}

	logger.Ctx(ctx).Info().
		Str("collection", collection).
		Int("products", len(products)).
		Int("alerts", len(plan.Alerts)).
		Int("units", plan.Summary.TotalUnitsToProduce).
		Msg("📦 production plan generated")
	return plan, nil
}

func errorStatus(err error) string {
	var verr *forecastdomain.ValidationError
	switch {
	case errors.Is(err, domain.ErrInvalidHorizon), errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, domain.ErrUnknownCollection):
		return "unknown_collection"
	case errors.Is(err, forecastdomain.ErrUntrainedModel):
		return "untrained"
	default:
		return "error"
	}
}
