// cmd/forecast-service/main.go
package main

import (
	"context"
	"flag"
	"os"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"demandcast/internal/pkg/bootstrap"
	"demandcast/internal/pkg/database"
	"demandcast/internal/pkg/logger"
	"demandcast/internal/pkg/mq"
	"demandcast/internal/pkg/redis"
	"demandcast/internal/service/forecast/application"
	"demandcast/internal/service/forecast/domain"
	forecastInfra "demandcast/internal/service/forecast/infrastructure"
	"demandcast/internal/service/forecast/interfaces"
	"demandcast/internal/service/forecast/predictor"
	planningApp "demandcast/internal/service/planning/application"
	planningInfra "demandcast/internal/service/planning/infrastructure"
	planningInterfaces "demandcast/internal/service/planning/interfaces"
	promotionApp "demandcast/internal/service/promotion/application"
	promotionDomain "demandcast/internal/service/promotion/domain"
	regdomain "demandcast/internal/service/registry/domain"
	registryInfra "demandcast/internal/service/registry/infrastructure"
)

const serviceName = "forecast-service"

// main 函数是应用的"组装根" (Composition Root)
func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config")
	flag.Parse()

	cfg, err := bootstrap.Load(*configPath)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(serviceName, cfg.App.LogLevel, cfg.App.Env == "development")
	log := logger.L()
	tracer := otel.Tracer(serviceName)

	var onShutdown []func(ctx context.Context)

	// 1. 模型注册表与产品目录
	registry, catalog, err := openStores(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open model registry")
	}

	// 2. 可选的 Redis 预测缓存
	var cache domain.ForecastCache
	if cfg.App.FeatureFlags.EnableForecastCache && cfg.Infra.Redis.Addrs != "" {
		redisClient, err := redis.NewClient(bootstrap.SplitAddrs(cfg.Infra.Redis.Addrs))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize redis client")
		}
		cache = forecastInfra.NewRedisForecastCache(redisClient)
		onShutdown = append(onShutdown, func(context.Context) { _ = redisClient.Close() })
	}

	stage, err := regdomain.ParseStage(cfg.Forecast.ModelStage)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid forecast.model_stage")
	}
	forecastSvc := application.NewForecastService(registry, cache, tracer, application.ForecastOptions{
		ModelName:      cfg.Forecast.ModelName,
		Stage:          stage,
		DefaultCountry: cfg.Forecast.DefaultCountry,
		MaxProducts:    cfg.Forecast.MaxProducts,
		CacheTTL:       cfg.Forecast.CacheTTL,
	}).WithCatalog(catalog)
	planningSvc := planningApp.NewPlanningService(catalog, planningInfra.NewForecastAdapter(forecastSvc), tracer)

	// 3. 内存注册表没有其他进程写入，启动时训练一份演示模型
	if cfg.Forecast.RegistryDriver == "memory" {
		if err := seedDemoModel(context.Background(), cfg, registry, tracer); err != nil {
			log.Warn().Err(err).Msg("demo model was not promoted")
		}
	}
	if err := forecastSvc.ReloadModel(context.Background()); err != nil {
		log.Warn().Err(err).Msg("⚠️ no model loaded, /forecast answers 503 until a model is promoted")
	}

	// 4. 生命周期事件：晋升后热加载，并推送给 websocket 订阅者
	ctx, cancel := context.WithCancel(context.Background())
	onShutdown = append(onShutdown, func(context.Context) { cancel() })

	var hub *interfaces.EventHub
	if cfg.App.FeatureFlags.EnableLifecycleStream {
		hub = interfaces.NewEventHub()
		go hub.Run(ctx)
	}
	if cfg.Infra.Kafka.Brokers != "" {
		reader := mq.NewKafkaReader(bootstrap.SplitAddrs(cfg.Infra.Kafka.Brokers), cfg.Infra.Kafka.LifecycleTopic, cfg.Infra.Kafka.GroupID)
		consumer := interfaces.NewLifecycleConsumer(reader, forecastSvc, hub)
		consumer.Start(ctx)
		onShutdown = append(onShutdown, func(context.Context) { consumer.Stop() })
	} else {
		log.Warn().Msg("kafka brokers not configured, promotions are picked up only on restart")
	}

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.App.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			interfaces.NewForecastHandler(forecastSvc, hub).RegisterRoutes(appCtx.Mux)
			planningInterfaces.NewPlanningHandler(planningSvc).RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: onShutdown,
	})
}

// openStores 内存模式下目录预置演示产品；MySQL 模式下目录由 train-pipeline -import 写入
func openStores(cfg *bootstrap.Config) (regdomain.Registry, domain.ProductCatalog, error) {
	if cfg.Forecast.RegistryDriver == "memory" {
		return registryInfra.NewMemoryRegistry(), forecastInfra.NewMemoryCatalog(forecastInfra.DefaultProducts()...), nil
	}
	db, err := database.Open(cfg.Infra.MySQL)
	if err != nil {
		return nil, nil, err
	}
	if err := registryInfra.AutoMigrate(db); err != nil {
		return nil, nil, errors.Wrap(err, "migrate registry tables")
	}
	if err := forecastInfra.AutoMigrateCatalog(db); err != nil {
		return nil, nil, errors.Wrap(err, "migrate product catalog")
	}
	return registryInfra.NewGormRegistry(db), forecastInfra.NewGormProductCatalog(db), nil
}

// seedDemoModel 用合成数据训练，并按正常流程经过质量门槛晋升
func seedDemoModel(ctx context.Context, cfg *bootstrap.Config, registry regdomain.Registry, tracer trace.Tracer) error {
	training := application.NewTrainingService(forecastInfra.NewSyntheticSource(42), registry, nil, tracer, application.TrainingOptions{
		ModelName: cfg.Forecast.ModelName,
		Target:    cfg.Training.Target,
		Folds:     cfg.Training.Folds,
		Clean:     cfg.Training.Clean,
		Params:    predictor.DefaultParams(),
	})
	res, err := training.Run(ctx)
	if err != nil {
		return err
	}
	promotion := promotionApp.NewPromotionService(registry, tracer, promotionApp.WithThresholds(promotionDomain.Thresholds{
		MaxMAPE: cfg.Promotion.MaxMAPE,
		MinR2:   cfg.Promotion.MinR2,
	}))
	_, err = promotion.Promote(ctx, cfg.Forecast.ModelName, res.RunID)
	return err
}
