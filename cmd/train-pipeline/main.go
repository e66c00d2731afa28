// cmd/train-pipeline/main.go
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"demandcast/internal/pkg/bootstrap"
	"demandcast/internal/pkg/database"
	"demandcast/internal/pkg/logger"
	"demandcast/internal/pkg/mq"
	"demandcast/internal/pkg/tracing"
	"demandcast/internal/service/forecast/application"
	"demandcast/internal/service/forecast/dataquality"
	"demandcast/internal/service/forecast/domain"
	forecastInfra "demandcast/internal/service/forecast/infrastructure"
	"demandcast/internal/service/forecast/predictor"
	regdomain "demandcast/internal/service/registry/domain"
	registryInfra "demandcast/internal/service/registry/infrastructure"
)

const serviceName = "train-pipeline"

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config")
	source := flag.String("source", "", "sales source: synthetic | mysql | file (overrides training.source)")
	file := flag.String("file", "", "CSV/XLSX sales file (overrides training.file_path)")
	importOnly := flag.Bool("import", false, "import --file into the sales_fact table and exit")
	modelName := flag.String("model-name", "", "registered model name (overrides forecast.model_name)")
	flag.Parse()

	cfg, err := bootstrap.Load(*configPath)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to load config")
	}
	if *source != "" {
		cfg.Training.Source = *source
	}
	if *file != "" {
		cfg.Training.FilePath = *file
	}
	if *modelName != "" {
		cfg.Forecast.ModelName = *modelName
	}
	logger.Init(serviceName, cfg.App.LogLevel, cfg.App.Env == "development")
	log := logger.L()

	tp, err := tracing.InitTracerProvider(serviceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}
	defer tp.Shutdown(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *importOnly); err != nil {
		log.Error().Err(err).Msg("❌ training pipeline failed")
		_ = tp.Shutdown(context.Background())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *bootstrap.Config, importOnly bool) error {
	log := logger.Ctx(ctx)
	tracer := otel.Tracer(serviceName)

	var db *gorm.DB
	openDB := func() (*gorm.DB, error) {
		if db != nil {
			return db, nil
		}
		var err error
		db, err = database.Open(cfg.Infra.MySQL)
		return db, err
	}

	// 1. 仅导入
	if importOnly {
		if cfg.Training.FilePath == "" {
			return errors.New("--import requires --file")
		}
		frame, err := forecastInfra.NewFileSource(cfg.Training.FilePath).LoadSales(ctx)
		if err != nil {
			return err
		}
		conn, err := openDB()
		if err != nil {
			return err
		}
		if err := forecastInfra.AutoMigrateSales(conn); err != nil {
			return errors.Wrap(err, "migrate sales table")
		}
		n, err := forecastInfra.NewGormSalesRepository(conn).Import(ctx, frame)
		if err != nil {
			return err
		}
		log.Info().Int("rows", n).Msg("✅ sales imported")

		// 同步产品目录，供在线预测与生产计划使用
		if err := forecastInfra.AutoMigrateCatalog(conn); err != nil {
			return errors.Wrap(err, "migrate product catalog")
		}
		products := dataquality.SummarizeProducts(frame)
		if err := forecastInfra.NewGormProductCatalog(conn).Upsert(ctx, products); err != nil {
			return err
		}
		log.Info().Int("products", len(products)).Msg("✅ product catalog updated")
		return nil
	}

	// 2. 数据源
	var source domain.SalesSource
	switch cfg.Training.Source {
	case "synthetic":
		source = forecastInfra.NewSyntheticSource(42)
	case "file":
		if cfg.Training.FilePath == "" {
			return errors.New("training.source=file requires a file path")
		}
		source = forecastInfra.NewFileSource(cfg.Training.FilePath)
	case "mysql":
		conn, err := openDB()
		if err != nil {
			return err
		}
		source = forecastInfra.NewGormSalesRepository(conn)
	default:
		return errors.Errorf("unknown training source %q", cfg.Training.Source)
	}

	// 3. 注册表
	var store regdomain.ArtifactStore
	if cfg.Forecast.RegistryDriver == "memory" {
		log.Warn().Msg("memory registry: the trained model is discarded when the pipeline exits")
		store = registryInfra.NewMemoryRegistry()
	} else {
		conn, err := openDB()
		if err != nil {
			return err
		}
		if err := registryInfra.AutoMigrate(conn); err != nil {
			return errors.Wrap(err, "migrate registry tables")
		}
		store = registryInfra.NewGormRegistry(conn)
	}

	// 4. 生命周期事件
	var publisher regdomain.EventPublisher = regdomain.NopPublisher{}
	if cfg.Infra.Kafka.Brokers != "" {
		writer := mq.NewKafkaWriter(bootstrap.SplitAddrs(cfg.Infra.Kafka.Brokers), cfg.Infra.Kafka.LifecycleTopic)
		kp := registryInfra.NewKafkaEventPublisher(writer)
		defer kp.Close()
		publisher = kp
	}

	svc := application.NewTrainingService(source, store, publisher, tracer, application.TrainingOptions{
		ModelName:       cfg.Forecast.ModelName,
		Target:          cfg.Training.Target,
		Folds:           cfg.Training.Folds,
		Clean:           cfg.Training.Clean,
		AggregateWeekly: cfg.Training.AggregateWeekly,
		Params:          predictor.DefaultParams(),
	})
	res, err := svc.Run(ctx)
	if err != nil {
		return err
	}

	r := res.Report
	ev := log.Info().
		Str("run_id", res.RunID).
		Str("version", res.VersionID).
		Int("rows", r.Rows).
		Int("folds", r.Folds).
		Float64("val_r2", r.ValR2).
		Float64("train_r2", r.TrainR2).
		Float64("holdout_r2", r.HoldoutR2).
		Float64("mae", r.HoldoutMAE).
		Float64("rmse", r.HoldoutRMSE).
		Int("best_iteration", r.BestIteration)
	if r.HoldoutMAPE != nil {
		ev = ev.Float64("mape", *r.HoldoutMAPE)
	}
	ev.Msg("✅ model trained and registered in Staging")

	for i, fi := range res.Importance {
		if i == 10 {
			break
		}
		log.Info().Int("rank", i+1).Str("feature", fi.Feature).Float64("gain", fi.Gain).Msg("feature importance")
	}
	return nil
}
