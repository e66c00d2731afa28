// cmd/promotion-service/main.go
package main

import (
	"context"
	"flag"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"demandcast/internal/pkg/bootstrap"
	"demandcast/internal/pkg/database"
	"demandcast/internal/pkg/httpclient"
	"demandcast/internal/pkg/logger"
	"demandcast/internal/pkg/mq"
	"demandcast/internal/pkg/zookeeper"
	promotionApp "demandcast/internal/service/promotion/application"
	promotionDomain "demandcast/internal/service/promotion/domain"
	promotionInfra "demandcast/internal/service/promotion/infrastructure"
	"demandcast/internal/service/promotion/infrastructure/rule"
	"demandcast/internal/service/promotion/interfaces"
	regdomain "demandcast/internal/service/registry/domain"
	registryInfra "demandcast/internal/service/registry/infrastructure"
)

const serviceName = "promotion-service"

// main 以 HTTP 形式暴露晋升与版本列表，供训练流水线或看板调用
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

	// 1. 注册表
	var store regdomain.VersionStore
	if cfg.Promotion.Backend == "mlflow" {
		store = registryInfra.NewMLflowRegistry(httpclient.NewClient(tracer, cfg.Infra.MLflow.TrackingURI))
	} else {
		db, err := database.Open(cfg.Infra.MySQL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mysql")
		}
		if err := registryInfra.AutoMigrate(db); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate registry tables")
		}
		store = registryInfra.NewGormRegistry(db)
	}

	opts := []promotionApp.Option{
		promotionApp.WithThresholds(promotionDomain.Thresholds{MaxMAPE: cfg.Promotion.MaxMAPE, MinR2: cfg.Promotion.MinR2}),
	}

	// 2. 附加规则
	if len(cfg.Promotion.ExtraRules) > 0 {
		engine, err := rule.NewCELRuleEngine()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build rule engine")
		}
		for _, r := range cfg.Promotion.ExtraRules {
			if _, err := engine.Compile(r); err != nil {
				log.Fatal().Err(err).Str("rule", r).Msg("invalid promotion rule")
			}
		}
		opts = append(opts, promotionApp.WithRules(engine, cfg.Promotion.ExtraRules...))
	}

	// 3. 多实例部署时用 ZooKeeper 串行化同一模型的晋升
	if cfg.Infra.Zookeeper.Servers != "" {
		conn, err := zookeeper.Connect(bootstrap.SplitAddrs(cfg.Infra.Zookeeper.Servers), cfg.Infra.Zookeeper.SessionTimeout)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to zookeeper")
		}
		onShutdown = append(onShutdown, func(context.Context) { conn.Close() })
		opts = append(opts, promotionApp.WithLocker(promotionInfra.NewZKLocker(conn), cfg.Promotion.LockTimeout))
	}

	// 4. 晋升事件
	if cfg.Infra.Kafka.Brokers != "" {
		publisher := registryInfra.NewKafkaEventPublisher(mq.NewKafkaWriter(bootstrap.SplitAddrs(cfg.Infra.Kafka.Brokers), cfg.Infra.Kafka.LifecycleTopic))
		opts = append(opts, promotionApp.WithPublisher(publisher))
		onShutdown = append(onShutdown, func(context.Context) { _ = publisher.Close() })
	}

	svc := promotionApp.NewPromotionService(store, tracer, opts...)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.App.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			interfaces.NewPromotionHandler(svc).RegisterRoutes(appCtx.Mux)
			appCtx.Mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			appCtx.Mux.Handle("GET /metrics", promhttp.Handler())
		},
		OnShutdown: onShutdown,
	})
}
