package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Feed   FeedConfig   `yaml:"feed" mapstructure:"feed"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Guard  GuardConfig  `yaml:"guard" mapstructure:"guard"`
	Sync   SyncConfig   `yaml:"sync" mapstructure:"sync"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// FeedConfig configures the open-data feed client.
type FeedConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	PageSize    int    `yaml:"page_size" mapstructure:"page_size"`
	PageDelayMS int    `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// GuardConfig configures the sync endpoint's ingress guard.
type GuardConfig struct {
	Secret      string `yaml:"secret" mapstructure:"secret"`
	WindowSecs  int    `yaml:"window_secs" mapstructure:"window_secs"`
	MaxRequests int    `yaml:"max_requests" mapstructure:"max_requests"`
}

// SyncConfig configures sync run defaults.
type SyncConfig struct {
	DaysBack         int `yaml:"days_back" mapstructure:"days_back"`
	TestLimit        int `yaml:"test_limit" mapstructure:"test_limit"`
	BatchSize        int `yaml:"batch_size" mapstructure:"batch_size"`
	MaxErrorMessages int `yaml:"max_error_messages" mapstructure:"max_error_messages"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BIZDIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("feed.base_url", "https://data.calgary.ca/resource/vdjc-pybd.json")
	v.SetDefault("feed.page_size", 1000)
	v.SetDefault("feed.page_delay_ms", 250)
	v.SetDefault("feed.timeout_secs", 30)
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("guard.secret", "")
	v.SetDefault("guard.window_secs", 60)
	v.SetDefault("guard.max_requests", 5)
	v.SetDefault("sync.days_back", 30)
	v.SetDefault("sync.test_limit", 50)
	v.SetDefault("sync.batch_size", 100)
	v.SetDefault("sync.max_error_messages", 10)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
