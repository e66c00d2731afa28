package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"demandcast/internal/pkg/logger"
	"demandcast/internal/pkg/metrics"
	"demandcast/internal/service/forecast/domain"
	"demandcast/internal/service/forecast/features"
	"demandcast/internal/service/forecast/predictor"
	regdomain "demandcast/internal/service/registry/domain"
)

// ForecastOptions 预测服务的配置
type ForecastOptions struct {
	ModelName      string
	Stage          regdomain.Stage
	DefaultCountry string
	MaxProducts    int
	CacheTTL       time.Duration
}

type loadedModel struct {
	predictor *predictor.Predictor
	version   regdomain.ModelVersion
	loadedAt  time.Time
}

// ForecastService 提供在线预测用例。模型通过原子指针整体替换，预测路径无锁。
type ForecastService struct {
	store   regdomain.ArtifactStore
	cache   domain.ForecastCache
	catalog domain.ProductCatalog
	tracer  trace.Tracer
	opts    ForecastOptions
	model   atomic.Pointer[loadedModel]
	now     func() time.Time
}

// NewForecastService cache 可以为 nil
func NewForecastService(store regdomain.ArtifactStore, cache domain.ForecastCache, tracer trace.Tracer, opts ForecastOptions) *ForecastService {
	if opts.DefaultCountry == "" {
		opts.DefaultCountry = "FR"
	}
	if opts.Stage == "" {
		opts.Stage = regdomain.StageProduction
	}
	return &ForecastService{store: store, cache: cache, tracer: tracer, opts: opts, now: time.Now}
}

// WithCatalog 设置产品目录，用于补齐未来行的系列与价格
func (s *ForecastService) WithCatalog(catalog domain.ProductCatalog) *ForecastService {
	s.catalog = catalog
	return s
}

// ReloadModel 从注册表加载指定阶段的最新制品并原子替换当前模型
func (s *ForecastService) ReloadModel(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "service.ReloadModel")
	defer span.End()
	span.SetAttributes(
		attribute.String("model.name", s.opts.ModelName),
		attribute.String("model.stage", string(s.opts.Stage)),
	)

	blob, version, err := s.store.Load(ctx, s.opts.ModelName, s.opts.Stage)
	if err != nil {
		metrics.ModelReloads.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "load artifact failed")
		return err
	}
	if blob == nil {
		metrics.ModelReloads.WithLabelValues("missing").Inc()
		return errors.Wrapf(domain.ErrUntrainedModel, "no %s version of %s in registry", s.opts.Stage, s.opts.ModelName)
	}
	art, err := predictor.UnmarshalArtifact(blob)
	if err != nil {
		metrics.ModelReloads.WithLabelValues("error").Inc()
		span.RecordError(err)
		return err
	}
	s.UseModel(predictor.FromArtifact(art), *version)
	metrics.ModelReloads.WithLabelValues("ok").Inc()

	logger.Ctx(ctx).Info().
		Str("model", s.opts.ModelName).
		Str("version", version.VersionID).
		Str("run_id", version.RunID).
		Msg("✅ model loaded")
	return nil
}

// UseModel 直接替换当前模型
func (s *ForecastService) UseModel(p *predictor.Predictor, version regdomain.ModelVersion) {
	s.model.Store(&loadedModel{predictor: p, version: version, loadedAt: s.now()})
}

// Forecast 校验请求、构造未来各周的输入行并预测
func (s *ForecastService) Forecast(ctx context.Context, req *ForecastRequest) (rows []ForecastRow, err error) {
	ctx, span := s.tracer.Start(ctx, "service.Forecast")
	defer span.End()
	started := s.now()
	defer func() {
		status := "ok"
		if err != nil {
			status = errorStatus(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		}
		metrics.ForecastRequests.WithLabelValues(status).Inc()
		metrics.ForecastLatency.Observe(time.Since(started).Seconds())
	}()

	// 1. 参数校验
	start, err := ValidateForecastRequest(req, s.opts.MaxProducts)
	if err != nil {
		return nil, err
	}
	horizon := req.Horizon()
	span.SetAttributes(
		attribute.Int("forecast.products", len(req.ProductIDs)),
		attribute.Int("forecast.horizon_weeks", horizon),
	)

	// 2. 当前模型
	m := s.model.Load()
	if m == nil {
		return nil, domain.ErrUntrainedModel
	}

	// 3. 缓存（以模型版本区分）
	key := s.cacheKey(m.version, req, horizon)
	if cached, ok := s.fromCache(ctx, key); ok {
		span.AddEvent("forecast cache hit")
		return cached, nil
	}

	// 4. 预测
	frame, err := s.futureFrame(ctx, m.predictor.Artifact(), req, start, horizon)
	if err != nil {
		return nil, err
	}
	batches, err := m.predictor.Predict(ctx, frame, horizon)
	if err != nil {
		return nil, err
	}
	rows = toForecastRows(batches)
	metrics.PredictionsServed.Add(float64(len(rows)))

	s.toCache(ctx, key, rows)
	logger.Ctx(ctx).Debug().Int("rows", len(rows)).Str("model_version", m.version.VersionID).Msg("forecast generated")
	return rows, nil
}

// futureFrame 每个预测周、每个产品一行；国家取第一个，未给出时使用默认国家。
// 有产品目录时补上平均价格；模型用到 collection 时补上产品所属系列，
// 目录中查不到的产品使用 UnknownCollection，经编码器映射为保留编码。
func (s *ForecastService) futureFrame(ctx context.Context, art *predictor.Artifact, req *ForecastRequest, start time.Time, horizon int) (domain.Frame, error) {
	country := s.opts.DefaultCountry
	if len(req.Countries) > 0 && req.Countries[0] != "" {
		country = req.Countries[0]
	}
	channel := req.Channel
	if channel == "" {
		channel = "All"
	}
	cols := domain.ColDate | domain.ColProductID | domain.ColForecastWeek | domain.ColChannel | domain.ColCountry

	needCollection := art != nil && art.UsesFeature(features.ColCollectionEncoded)
	if needCollection {
		cols = cols.With(domain.ColCollection)
	}
	if s.catalog != nil {
		cols = cols.With(domain.ColPrice)
	}

	type productInfo struct {
		collection string
		price      float64
	}
	info := make(map[string]productInfo, len(req.ProductIDs))
	for _, id := range req.ProductIDs {
		pi := productInfo{collection: UnknownCollection, price: features.DefaultPrice}
		if s.catalog != nil {
			p, err := s.catalog.Get(ctx, id)
			switch {
			case err == nil:
				if p.Collection != "" {
					pi.collection = p.Collection
				}
				if p.AveragePrice.IsPositive() {
					pi.price = p.AveragePrice.InexactFloat64()
				}
			case errors.Is(err, domain.ErrProductNotFound):
				logger.Ctx(ctx).Debug().Str("product_id", id).Msg("product not in catalog, using defaults")
			default:
				return domain.Frame{}, errors.Wrapf(err, "look up product %s", id)
			}
		}
		info[id] = pi
	}

	recs := make([]domain.SalesRecord, 0, horizon*len(req.ProductIDs))
	for week := 0; week < horizon; week++ {
		d := start.AddDate(0, 0, 7*week)
		for _, id := range req.ProductIDs {
			recs = append(recs, domain.SalesRecord{
				Date:         d,
				ProductID:    id,
				ForecastWeek: week,
				Channel:      channel,
				Country:      country,
				Collection:   info[id].collection,
				Price:        info[id].price,
			})
		}
	}
	return domain.NewFrame(cols, recs), nil
}

func (s *ForecastService) cacheKey(v regdomain.ModelVersion, req *ForecastRequest, horizon int) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(req.ProductIDs, ",")))
	h.Write([]byte{0})
	h.Write([]byte(req.StartDate))
	h.Write([]byte{0})
	h.Write([]byte(req.Channel))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(req.Countries, ",")))
	h.Write([]byte{0, byte(horizon)})
	return "forecast:" + s.opts.ModelName + ":" + v.VersionID + ":" + hex.EncodeToString(h.Sum(nil))[:32]
}

func (s *ForecastService) fromCache(ctx context.Context, key string) ([]ForecastRow, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("forecast cache read failed")
		metrics.ForecastCacheHits.WithLabelValues("error").Inc()
		return nil, false
	}
	if !ok {
		metrics.ForecastCacheHits.WithLabelValues("miss").Inc()
		return nil, false
	}
	var rows []ForecastRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		metrics.ForecastCacheHits.WithLabelValues("error").Inc()
		return nil, false
	}
	metrics.ForecastCacheHits.WithLabelValues("hit").Inc()
	return rows, true
}

func (s *ForecastService) toCache(ctx context.Context, key string, rows []ForecastRow) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.opts.CacheTTL); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("forecast cache write failed")
	}
}

// MetricsSummary 返回当前模型在训练时记录的验证指标
func (s *ForecastService) MetricsSummary(ctx context.Context) MetricsSummary {
	m := s.model.Load()
	if m == nil {
		return MetricsSummary{Status: StatusModelUnloaded}
	}
	out := MetricsSummary{ModelVersion: m.version.VersionID, Status: StatusModelLoaded}
	if art := m.predictor.Artifact(); art != nil {
		reported := art.Report.Metrics()
		if v, ok := reported["mape"]; ok {
			out.MAPE = &v
		}
		if v, ok := reported["r2"]; ok {
			out.R2 = &v
		}
	}
	return out
}

// Health 健康检查
func (s *ForecastService) Health() HealthStatus {
	h := HealthStatus{Status: "healthy", Timestamp: s.now().UTC()}
	if m := s.model.Load(); m != nil {
		h.ModelLoaded = true
		h.ModelVersion = m.version.VersionID
	}
	return h
}

// ModelName 返回服务的模型名
func (s *ForecastService) ModelName() string {
	return s.opts.ModelName
}

func errorStatus(err error) string {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, domain.ErrUntrainedModel):
		return "untrained"
	default:
		return "error"
	}
}
