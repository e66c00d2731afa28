// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是所有进程共享的配置结构，来源为 YAML 文件 + 环境变量覆盖。
// 基础设施地址留空表示不启用对应组件。
type Config struct {
	App       AppConfig       `yaml:"app"`
	Forecast  ForecastConfig  `yaml:"forecast"`
	Training  TrainingConfig  `yaml:"training"`
	Promotion PromotionConfig `yaml:"promotion"`
	Infra     InfraConfig     `yaml:"infra"`
}

type AppConfig struct {
	Name         string       `yaml:"name"`
	Env          string       `yaml:"env"`
	Port         int          `yaml:"port"`
	LogLevel     string       `yaml:"log_level"`
	FeatureFlags FeatureFlags `yaml:"feature_flags"`
}

// FeatureFlags 特性开关
type FeatureFlags struct {
	EnableForecastCache   bool `yaml:"enable_forecast_cache"`
	EnableLifecycleStream bool `yaml:"enable_lifecycle_stream"`
}

type ForecastConfig struct {
	ModelName      string        `yaml:"model_name"`
	ModelStage     string        `yaml:"model_stage"`
	RegistryDriver string        `yaml:"registry_driver"` // mysql | memory
	DefaultCountry string        `yaml:"default_country"`
	MaxProducts    int           `yaml:"max_products"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
}

type TrainingConfig struct {
	Source          string `yaml:"source"` // synthetic | mysql | file
	FilePath        string `yaml:"file_path"`
	Target          string `yaml:"target"`
	Folds           int    `yaml:"folds"`
	Clean           bool   `yaml:"clean"`
	AggregateWeekly bool   `yaml:"aggregate_weekly"`
}

type PromotionConfig struct {
	Backend     string        `yaml:"backend"` // mysql | mlflow
	MaxMAPE     float64       `yaml:"max_mape"`
	MinR2       float64       `yaml:"min_r2"`
	ExtraRules  []string      `yaml:"extra_rules"`
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

type InfraConfig struct {
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	MySQL     MySQLConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
	Nacos     NacosConfig     `yaml:"nacos"`
	MLflow    MLflowConfig    `yaml:"mlflow"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type RedisConfig struct {
	Addrs string `yaml:"addrs"` // "host1:port1,host2:port2"
}

type KafkaConfig struct {
	Brokers        string `yaml:"brokers"`
	LifecycleTopic string `yaml:"lifecycle_topic"`
	GroupID        string `yaml:"group_id"`
}

type ZookeeperConfig struct {
	Servers        string        `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

type NacosConfig struct {
	ServerAddrs string `yaml:"server_addrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
}

type MLflowConfig struct {
	TrackingURI string `yaml:"tracking_uri"`
	ServiceName string `yaml:"service_name"` // tracking_uri 为空时在 Nacos 中查找的服务名
}

var current atomic.Pointer[Config]

// Default 返回一份可直接在本地运行的默认配置（内存注册表、无外部依赖）。
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:     "forecast-service",
			Env:      "development",
			Port:     8000,
			LogLevel: "info",
		},
		Forecast: ForecastConfig{
			ModelName:      "luxury_demand_forecast",
			ModelStage:     "Production",
			RegistryDriver: "memory",
			DefaultCountry: "FR",
			MaxProducts:    100,
			CacheTTL:       10 * time.Minute,
		},
		Training: TrainingConfig{
			Source: "synthetic",
			Target: "quantity",
			Folds:  5,
			Clean:  true,
		},
		Promotion: PromotionConfig{
			Backend:     "mysql",
			MaxMAPE:     15.0,
			MinR2:       0.80,
			LockTimeout: 30 * time.Second,
		},
		Infra: InfraConfig{
			MySQL: MySQLConfig{
				Host:     "localhost",
				Port:     3306,
				User:     "forecast",
				Database: "forecast",
			},
			Kafka: KafkaConfig{
				LifecycleTopic: "model-lifecycle",
				GroupID:        "forecast-service-lifecycle",
			},
			Zookeeper: ZookeeperConfig{SessionTimeout: 10 * time.Second},
			Nacos:     NacosConfig{Group: "DEFAULT_GROUP"},
			MLflow:    MLflowConfig{ServiceName: "mlflow"},
		},
	}
}

// Load 读取 YAML 配置（文件不存在时使用默认值），再用环境变量覆盖，并设置为当前配置。
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	current.Store(cfg)
	return cfg, nil
}

// GetCurrentConfig 返回最近一次 Load 的配置；未加载时返回默认配置。
func GetCurrentConfig() *Config {
	if cfg := current.Load(); cfg != nil {
		return cfg
	}
	return Default()
}

func (c *Config) validate() error {
	if c.Forecast.ModelName == "" {
		return fmt.Errorf("forecast.model_name must not be empty")
	}
	if c.Training.Folds < 2 {
		return fmt.Errorf("training.folds must be >= 2, got %d", c.Training.Folds)
	}
	if c.Forecast.MaxProducts <= 0 {
		return fmt.Errorf("forecast.max_products must be positive")
	}
	switch c.Forecast.RegistryDriver {
	case "mysql", "memory":
	default:
		return fmt.Errorf("unknown forecast.registry_driver %q", c.Forecast.RegistryDriver)
	}
	return nil
}

func applyEnv(c *Config) {
	c.App.Env = getEnv("APP_ENV", c.App.Env)
	c.App.Port = getEnvInt("PORT", c.App.Port)
	c.App.LogLevel = getEnv("LOG_LEVEL", c.App.LogLevel)

	c.Forecast.ModelName = getEnv("MODEL_NAME", c.Forecast.ModelName)
	c.Forecast.ModelStage = getEnv("MODEL_STAGE", c.Forecast.ModelStage)
	c.Forecast.RegistryDriver = getEnv("REGISTRY_DRIVER", c.Forecast.RegistryDriver)

	c.Training.Source = getEnv("TRAINING_SOURCE", c.Training.Source)
	c.Training.FilePath = getEnv("TRAINING_FILE", c.Training.FilePath)

	c.Promotion.Backend = getEnv("PROMOTION_BACKEND", c.Promotion.Backend)

	c.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", c.Infra.Jaeger.Endpoint)
	c.Infra.MySQL.Host = getEnv("MYSQL_HOST", c.Infra.MySQL.Host)
	c.Infra.MySQL.Port = getEnvInt("MYSQL_PORT", c.Infra.MySQL.Port)
	c.Infra.MySQL.User = getEnv("MYSQL_USER", c.Infra.MySQL.User)
	c.Infra.MySQL.Password = getEnv("MYSQL_PASSWORD", c.Infra.MySQL.Password)
	c.Infra.MySQL.Database = getEnv("MYSQL_DATABASE", c.Infra.MySQL.Database)
	c.Infra.Redis.Addrs = getEnv("REDIS_ADDRS", c.Infra.Redis.Addrs)
	c.Infra.Kafka.Brokers = getEnv("KAFKA_BROKERS", c.Infra.Kafka.Brokers)
	c.Infra.Zookeeper.Servers = getEnv("ZOOKEEPER_SERVERS", c.Infra.Zookeeper.Servers)
	c.Infra.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", c.Infra.Nacos.ServerAddrs)
	c.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", c.Infra.Nacos.Namespace)
	c.Infra.Nacos.Group = getEnv("NACOS_GROUP", c.Infra.Nacos.Group)
	c.Infra.MLflow.TrackingURI = getEnv("MLFLOW_TRACKING_URI", c.Infra.MLflow.TrackingURI)
}

// SplitAddrs 将 "a,b,c" 形式的地址列表拆分，忽略空项
func SplitAddrs(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnv 从环境变量中读取配置
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
