package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"neurojudge/internal/common/cache"
	"neurojudge/internal/common/db"
	"neurojudge/internal/common/http/middleware"
	"neurojudge/internal/common/mq"
	"neurojudge/internal/common/storage"
	"neurojudge/internal/evaluator/engine"
	"neurojudge/internal/evaluator/github"
	"neurojudge/internal/evaluator/loader"
	"neurojudge/internal/evaluator/repository"
	"neurojudge/internal/evaluator/sandbox"
	"neurojudge/internal/evaluator/service"
	"neurojudge/internal/evaluator/vcs"
	appErr "neurojudge/pkg/errors"
	"neurojudge/pkg/utils/logger"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8090"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	defaultDatasetBucket = "neuro.datasets"
	defaultDatasetRoot   = "challenges/neurofinder"
	defaultNamespace     = "neurofinder"
	defaultTokenIssuer   = "neurojudge"
)

// Status store drivers.
const (
	driverRedis  = "redis"
	driverMySQL  = "mysql"
	driverBadger = "badger"
	driverMemory = "memory"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`

	Auth      AuthConfig                 `yaml:"auth"`
	RateLimit middleware.RateLimitPolicy `yaml:"rateLimit"`
}

// AuthConfig guards the status reset routes. An empty secret leaves them open.
type AuthConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// StatusConfig selects the status store backend.
type StatusConfig struct {
	Driver string `yaml:"driver" validate:"oneof=redis mysql badger memory"`
}

// KafkaConfig holds Kafka settings. Without brokers no events are published
// and no requeue requests are consumed.
type KafkaConfig struct {
	mq.KafkaConfig `yaml:",inline"`

	OutcomeTopic    string        `yaml:"outcomeTopic"`
	RequeueTopic    string        `yaml:"requeueTopic"`
	ConsumerGroup   string        `yaml:"consumerGroup"`
	MaxRetries      int           `yaml:"maxRetries"`
	RetryDelay      time.Duration `yaml:"retryDelay"`
	DeadLetterTopic string        `yaml:"deadLetterTopic"`
}

// Enabled reports whether Kafka is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// NotificationConfig controls outcome delivery. Messages are always logged.
type NotificationConfig struct {
	Enabled bool `yaml:"enabled"`
	GitHub  bool `yaml:"github"`
	Kafka   bool `yaml:"kafka"`
}

// EngineConfig configures the execution engine.
type EngineConfig struct {
	Master     string                    `yaml:"master"`
	MasterFile string                    `yaml:"masterFile"`
	Home       string                    `yaml:"home"`
	App        string                    `yaml:"app"`
	Cache      engine.DatasetCacheConfig `yaml:"cache"`
}

// BenchmarkConfig locates datasets and published artifacts.
type BenchmarkConfig struct {
	Bucket        string   `yaml:"bucket"`
	Root          string   `yaml:"root"`
	Datasets      []string `yaml:"datasets" validate:"dive,required,excludesall=/\\"`
	ResultsBucket string   `yaml:"resultsBucket"`
	Namespace     string   `yaml:"namespace"`
}

// AppConfig holds evaluator config.
type AppConfig struct {
	Server        ServerConfig            `yaml:"server"`
	Logger        logger.Config           `yaml:"logger"`
	Status        StatusConfig            `yaml:"status"`
	Redis         cache.RedisConfig       `yaml:"redis"`
	Database      db.MySQLConfig          `yaml:"database"`
	Badger        repository.BadgerConfig `yaml:"badger"`
	MinIO         storage.MinIOConfig     `yaml:"minio"`
	Kafka         KafkaConfig             `yaml:"kafka"`
	GitHub        github.Config           `yaml:"github"`
	Notifications NotificationConfig      `yaml:"notifications"`
	Engine        EngineConfig            `yaml:"engine"`
	Sandbox       sandbox.Config          `yaml:"sandbox"`
	Loader        loader.Config           `yaml:"loader"`
	Git           vcs.GitConfig           `yaml:"git"`
	Benchmark     BenchmarkConfig         `yaml:"benchmark"`
	Loop          service.LoopConfig      `yaml:"loop"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return appErr.Wrapf(err, appErr.ConfigurationError, "read config file failed")
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return appErr.Wrapf(err, appErr.ConfigurationError, "parse config file failed")
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	master, err := resolveMaster(cfg.Engine)
	if err != nil {
		return nil, err
	}
	cfg.Engine.Master = master
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Server.Auth.Issuer == "" {
		cfg.Server.Auth.Issuer = defaultTokenIssuer
	}
	if cfg.Server.RateLimit.Window == 0 {
		cfg.Server.RateLimit.Window = time.Minute
	}
	if cfg.Server.RateLimit.OperatorMax == 0 {
		cfg.Server.RateLimit.OperatorMax = 30
	}
	if cfg.Status.Driver == "" {
		cfg.Status.Driver = driverRedis
	}

	if cfg.Benchmark.Bucket == "" {
		cfg.Benchmark.Bucket = defaultDatasetBucket
	}
	if cfg.Benchmark.Root == "" {
		cfg.Benchmark.Root = defaultDatasetRoot
	}
	if len(cfg.Benchmark.Datasets) == 0 {
		cfg.Benchmark.Datasets = append([]string(nil), service.DefaultDatasets...)
	}
	if cfg.Benchmark.ResultsBucket == "" {
		cfg.Benchmark.ResultsBucket = cfg.Benchmark.Bucket
	}
	if cfg.Benchmark.Namespace == "" {
		cfg.Benchmark.Namespace = defaultNamespace
	}
	if cfg.Engine.App == "" {
		cfg.Engine.App = "neurofinder"
	}

	if cfg.Kafka.OutcomeTopic == "" {
		cfg.Kafka.OutcomeTopic = "neurojudge.outcome"
	}
	if cfg.Kafka.RequeueTopic == "" {
		cfg.Kafka.RequeueTopic = "neurojudge.requeue"
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = "neurojudge-evaluator"
	}
}

// validateConfig runs struct tag validation plus the cross-field rules that
// tags cannot express. Every failure is a configuration error.
func validateConfig(cfg *AppConfig) error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return appErr.ConfigError(verrs[0].Namespace(), verrs[0].Tag())
		}
		return appErr.Wrap(err, appErr.ConfigurationError)
	}
	if cfg.Redis.Addr == "" {
		return appErr.ConfigError("redis.addr", "required")
	}
	switch cfg.Status.Driver {
	case driverMySQL:
		if cfg.Database.DSN == "" {
			return appErr.ConfigError("database.dsn", "required for the mysql status driver")
		}
	case driverBadger:
		if !cfg.Badger.InMemory && cfg.Badger.Path == "" {
			return appErr.ConfigError("badger.path", "required for the badger status driver")
		}
	}
	if cfg.Engine.Home == "" {
		return appErr.New(appErr.MissingEngineHome)
	}
	if cfg.Engine.Cache.RootDir == "" {
		return appErr.ConfigError("engine.cache.rootDir", "required")
	}
	if cfg.MinIO.Endpoint == "" {
		return appErr.ConfigError("minio.endpoint", "required")
	}
	if cfg.Loader.Interpreter != "" {
		if _, err := cfg.Loader.Command(); err != nil {
			return err
		}
	}
	if cfg.Notifications.Kafka && !cfg.Kafka.Enabled() {
		return appErr.ConfigError("kafka.brokers", "required when kafka notifications are on")
	}
	return nil
}

// resolveMaster returns engine.master, falling back to the first line of
// engine.masterFile, and rejects masters the engine cannot run.
func resolveMaster(cfg EngineConfig) (string, error) {
	master := strings.TrimSpace(cfg.Master)
	if master == "" && cfg.MasterFile != "" {
		data, err := os.ReadFile(cfg.MasterFile)
		if err != nil {
			return "", appErr.Wrapf(err, appErr.MissingMaster, "read master file %s failed", cfg.MasterFile)
		}
		master = strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0])
	}
	if master == "" {
		return "", appErr.New(appErr.MissingMaster)
	}
	if err := engine.ValidateMaster(master); err != nil {
		return "", err
	}
	return master, nil
}

func describe(cfg *AppConfig) string {
	return fmt.Sprintf("status=%s master=%s datasets=%s kafka=%t notifications=%t",
		cfg.Status.Driver, cfg.Engine.Master, strings.Join(cfg.Benchmark.Datasets, ","),
		cfg.Kafka.Enabled(), cfg.Notifications.Enabled)
}
