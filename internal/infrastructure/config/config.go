package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Directory DirectoryConfig
	Probe     ProbeConfig
	Corpus    CorpusConfig
	Store     StoreConfig
	Scheduler SchedulerConfig
	Logging   LogConfig
	Ops       OpsConfig
}

// DirectoryConfig holds fleet directory configuration.
type DirectoryConfig struct {
	BaseURL  string        `envconfig:"DIRECTORY_URL" default:"https://api.fleet.local"`
	Template string        `envconfig:"DIRECTORY_TEMPLATE" default:"vllm"`
	Timeout  time.Duration `envconfig:"DIRECTORY_TIMEOUT" default:"30s"`
}

// ProbeConfig holds probe endpoint configuration.
type ProbeConfig struct {
	ChatURL      string        `envconfig:"PROBE_CHAT_URL" default:"https://llm.fleet.local/v1/chat/completions"`
	APIKey       string        `envconfig:"PROBE_API_KEY" default:""`
	CycleTimeout time.Duration `envconfig:"PROBE_CYCLE_TIMEOUT" default:"5m"`
	RatePerMin   int           `envconfig:"PROBE_RATE_PER_MIN" default:"6"`
}

// CorpusConfig holds prompt corpus configuration.
type CorpusConfig struct {
	TextPath  string `envconfig:"CORPUS_TEXT_PATH" default:"corpus/conversations.yml"`
	ImagePath string `envconfig:"CORPUS_IMAGE_PATH" default:""`
}

// StoreConfig holds persistence configuration.
type StoreConfig struct {
	Path     string `envconfig:"STORE_PATH" default:"canary.db"`
	PoolSize int    `envconfig:"STORE_POOL_SIZE" default:"2"`
}

// SchedulerConfig holds probe cadence configuration.
type SchedulerConfig struct {
	Interval time.Duration `envconfig:"PROBE_INTERVAL" default:"60s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// OpsConfig holds the operational HTTP server configuration.
type OpsConfig struct {
	Port    string `envconfig:"OPS_PORT" default:"9090"`
	Enabled bool   `envconfig:"OPS_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Directory: DirectoryConfig{
			BaseURL:  "https://api.fleet.local",
			Template: "vllm",
			Timeout:  30 * time.Second,
		},
		Probe: ProbeConfig{
			ChatURL:      "https://llm.fleet.local/v1/chat/completions",
			CycleTimeout: 5 * time.Minute,
			RatePerMin:   6,
		},
		Corpus: CorpusConfig{
			TextPath: "corpus/conversations.yml",
		},
		Store: StoreConfig{
			Path:     "canary.db",
			PoolSize: 2,
		},
		Scheduler: SchedulerConfig{
			Interval: 60 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Ops: OpsConfig{
			Port:    "9090",
			Enabled: true,
		},
	}
}
