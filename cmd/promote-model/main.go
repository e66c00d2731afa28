// cmd/promote-model/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"demandcast/internal/pkg/bootstrap"
	"demandcast/internal/pkg/database"
	"demandcast/internal/pkg/httpclient"
	"demandcast/internal/pkg/logger"
	"demandcast/internal/pkg/mq"
	"demandcast/internal/pkg/nacos"
	"demandcast/internal/pkg/tracing"
	"demandcast/internal/pkg/zookeeper"
	promotionApp "demandcast/internal/service/promotion/application"
	promotionDomain "demandcast/internal/service/promotion/domain"
	promotionInfra "demandcast/internal/service/promotion/infrastructure"
	"demandcast/internal/service/promotion/infrastructure/rule"
	regdomain "demandcast/internal/service/registry/domain"
	registryInfra "demandcast/internal/service/registry/infrastructure"
)

const serviceName = "promote-model"

func main() {
	os.Exit(realMain())
}

func realMain() int {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config")
	runID := flag.String("run-id", "", "run id of the version to promote (default: latest Staging version)")
	list := flag.Bool("list", false, "list all versions of the model")
	modelName := flag.String("model-name", "", "registered model name (overrides forecast.model_name)")
	backend := flag.String("backend", "", "registry backend: mysql | mlflow (overrides promotion.backend)")
	flag.Parse()

	cfg, err := bootstrap.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return 1
	}
	if *modelName != "" {
		cfg.Forecast.ModelName = *modelName
	}
	if *backend != "" {
		cfg.Promotion.Backend = *backend
	}
	logger.Init(serviceName, cfg.App.LogLevel, true)

	tp, err := tracing.InitTracerProvider(serviceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return 1
	}
	defer tp.Shutdown(context.Background())

	ctx := context.Background()
	svc, cleanup, err := buildService(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return 1
	}
	defer cleanup()

	if *list {
		if err := listVersions(ctx, os.Stdout, svc, cfg.Forecast.ModelName); err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			return 1
		}
		return 0
	}
	return promote(ctx, os.Stdout, svc, cfg.Forecast.ModelName, *runID)
}

func buildService(cfg *bootstrap.Config) (*promotionApp.PromotionService, func(), error) {
	tracer := otel.Tracer(serviceName)
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// 1. 注册表
	var store regdomain.VersionStore
	switch cfg.Promotion.Backend {
	case "mlflow":
		trackingURI, err := resolveTrackingURI(cfg)
		if err != nil {
			return nil, cleanup, err
		}
		store = registryInfra.NewMLflowRegistry(httpclient.NewClient(tracer, trackingURI))
	case "mysql":
		db, err := database.Open(cfg.Infra.MySQL)
		if err != nil {
			return nil, cleanup, err
		}
		store = registryInfra.NewGormRegistry(db)
	default:
		return nil, cleanup, errors.Errorf("unknown promotion backend %q", cfg.Promotion.Backend)
	}

	opts := []promotionApp.Option{
		promotionApp.WithThresholds(promotionDomain.Thresholds{MaxMAPE: cfg.Promotion.MaxMAPE, MinR2: cfg.Promotion.MinR2}),
	}

	// 2. 附加规则，启动时先编译一遍
	if len(cfg.Promotion.ExtraRules) > 0 {
		engine, err := rule.NewCELRuleEngine()
		if err != nil {
			return nil, cleanup, err
		}
		for _, r := range cfg.Promotion.ExtraRules {
			if _, err := engine.Compile(r); err != nil {
				return nil, cleanup, errors.Wrapf(promotionDomain.ErrInvalidRule, "%q: %v", r, err)
			}
		}
		opts = append(opts, promotionApp.WithRules(engine, cfg.Promotion.ExtraRules...))
	}

	// 3. 分布式锁
	if cfg.Infra.Zookeeper.Servers != "" {
		conn, err := zookeeper.Connect(bootstrap.SplitAddrs(cfg.Infra.Zookeeper.Servers), cfg.Infra.Zookeeper.SessionTimeout)
		if err != nil {
			return nil, cleanup, err
		}
		cleanups = append(cleanups, conn.Close)
		opts = append(opts, promotionApp.WithLocker(promotionInfra.NewZKLocker(conn), cfg.Promotion.LockTimeout))
	}

	// 4. 晋升事件
	if cfg.Infra.Kafka.Brokers != "" {
		writer := mq.NewKafkaWriter(bootstrap.SplitAddrs(cfg.Infra.Kafka.Brokers), cfg.Infra.Kafka.LifecycleTopic)
		publisher := registryInfra.NewKafkaEventPublisher(writer)
		cleanups = append(cleanups, func() { _ = publisher.Close() })
		opts = append(opts, promotionApp.WithPublisher(publisher))
	}

	return promotionApp.NewPromotionService(store, tracer, opts...), cleanup, nil
}

// resolveTrackingURI 优先使用配置的地址，否则通过 Nacos 发现 mlflow 实例
func resolveTrackingURI(cfg *bootstrap.Config) (string, error) {
	if cfg.Infra.MLflow.TrackingURI != "" {
		return cfg.Infra.MLflow.TrackingURI, nil
	}
	if cfg.Infra.Nacos.ServerAddrs == "" {
		return "", errors.New("promotion.backend=mlflow requires infra.mlflow.tracking_uri or nacos")
	}
	client, err := nacos.NewNacosClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
	if err != nil {
		return "", err
	}
	return client.DiscoverServiceInstance(cfg.Infra.MLflow.ServiceName)
}

// promote 返回进程退出码：成功 0，其余 1
func promote(ctx context.Context, out io.Writer, svc *promotionApp.PromotionService, modelName, runID string) int {
	outcome, err := svc.Promote(ctx, modelName, runID)
	if err != nil {
		var rejection *promotionDomain.QualityGateRejection
		switch {
		case errors.As(err, &rejection):
			fmt.Fprintf(out, "❌ model v%s does not meet the quality thresholds\n", rejection.VersionID)
			for _, f := range rejection.Failures {
				fmt.Fprintf(out, "   %s\n", f)
			}
		case errors.Is(err, promotionDomain.ErrNoCandidate):
			fmt.Fprintf(out, "❌ %v\n", err)
			fmt.Fprintln(out, "💡 train a model first so that a version exists in Staging")
		default:
			fmt.Fprintf(out, "❌ promotion failed: %v\n", err)
		}
		return 1
	}

	m := outcome.Metrics
	fmt.Fprintf(out, "📊 metrics of v%s: MAPE %.1f%%, R² %.3f, MAE %.2f, RMSE %.2f (run %s)\n",
		outcome.VersionID, m.MAPE, m.R2, m.MAE, m.RMSE, outcome.RunID)
	for _, v := range outcome.Archived {
		fmt.Fprintf(out, "📦 v%s archived\n", v)
	}
	fmt.Fprintf(out, "🎉 %s v%s promoted to Production\n", outcome.ModelName, outcome.VersionID)
	return 0
}

func listVersions(ctx context.Context, out io.Writer, svc *promotionApp.PromotionService, modelName string) error {
	versions, err := svc.List(ctx, modelName)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintf(out, "❌ no versions found for %s\n", modelName)
		return nil
	}
	fmt.Fprintf(out, "📦 versions of %q:\n", modelName)
	for _, v := range versions {
		fmt.Fprintf(out, "Version %s (%s)\n", v.VersionID, v.Stage)
		fmt.Fprintf(out, "  Run ID:  %s\n", v.RunID)
		fmt.Fprintf(out, "  Metrics: %s\n", v.MetricsText())
		fmt.Fprintf(out, "  Created: %s\n\n", v.CreatedAt.Format(time.RFC3339))
	}
	return nil
}
