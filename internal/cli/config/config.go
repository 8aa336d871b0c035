package config

import (
	"fmt"
	"os"
	"time"

	"neurojudge/internal/common/mq"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL      = "http://127.0.0.1:8090"
	DefaultTimeout      = 10 * time.Second
	DefaultStatePath    = "configs/cli_state.json"
	DefaultHistoryPath  = "configs/cli_history"
	DefaultRequeueTopic = "neurojudge.requeue"
)

// KafkaConfig is used by commands that publish requeue requests.
type KafkaConfig struct {
	mq.KafkaConfig `yaml:",inline"`
	RequeueTopic   string `yaml:"requeueTopic"`
}

// Config holds CLI configuration.
type Config struct {
	BaseURL     string        `yaml:"baseURL"`
	Timeout     time.Duration `yaml:"timeout"`
	Operator    string        `yaml:"operator"`
	Token       string        `yaml:"token"`
	StatePath   string        `yaml:"statePath"`
	HistoryPath string        `yaml:"historyPath"`
	PrettyJSON  *bool         `yaml:"prettyJSON"`
	Kafka       KafkaConfig   `yaml:"kafka"`
}

func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config file failed: %w", err)
		}
		data = nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file failed: %w", err)
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.StatePath == "" {
		cfg.StatePath = DefaultStatePath
	}
	if cfg.HistoryPath == "" {
		cfg.HistoryPath = DefaultHistoryPath
	}
	if cfg.PrettyJSON == nil {
		value := true
		cfg.PrettyJSON = &value
	}
	if cfg.Kafka.RequeueTopic == "" {
		cfg.Kafka.RequeueTopic = DefaultRequeueTopic
	}
	if cfg.Kafka.ClientID == "" {
		cfg.Kafka.ClientID = "neurojudge-cli"
	}
}
