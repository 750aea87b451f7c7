package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrInvalidConfig marks configuration values outside their allowed
// ranges. Validation runs before any pipeline starts.
var ErrInvalidConfig = eris.New("invalid configuration")

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Webhook WebhookConfig `yaml:"webhook" mapstructure:"webhook"`
	Batch   BatchConfig   `yaml:"batch" mapstructure:"batch"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// WebhookConfig configures the outbound research webhook.
type WebhookConfig struct {
	URL            string `yaml:"url" mapstructure:"url"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries     int    `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelaySecs int    `yaml:"retry_delay_secs" mapstructure:"retry_delay_secs"`
}

// BatchConfig configures batch partitioning and pacing.
type BatchConfig struct {
	Size                int     `yaml:"size" mapstructure:"size"`
	InterBatchDelaySecs int     `yaml:"inter_batch_delay_secs" mapstructure:"inter_batch_delay_secs"`
	DispatchRate        float64 `yaml:"dispatch_rate" mapstructure:"dispatch_rate"`
}

// ServerConfig configures the ingestion/callback server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("PROSPECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "prospects.db")
	v.SetDefault("webhook.timeout_secs", 1800)
	v.SetDefault("webhook.max_retries", 1)
	v.SetDefault("webhook.retry_delay_secs", 30)
	v.SetDefault("batch.size", 10)
	v.SetDefault("batch.inter_batch_delay_secs", 2)
	v.SetDefault("batch.dispatch_rate", 1.0)
	v.SetDefault("server.port", 8080)
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

// Validate enforces the allowed ranges for pipeline-facing settings.
// It fails fast so no upload starts with an unusable configuration.
func (c *Config) Validate() error {
	if c.Webhook.TimeoutSecs < 30 || c.Webhook.TimeoutSecs > 1800 {
		return eris.Wrapf(ErrInvalidConfig, "webhook.timeout_secs %d outside 30-1800", c.Webhook.TimeoutSecs)
	}
	if c.Webhook.MaxRetries < 0 || c.Webhook.MaxRetries > 10 {
		return eris.Wrapf(ErrInvalidConfig, "webhook.max_retries %d outside 0-10", c.Webhook.MaxRetries)
	}
	if c.Webhook.RetryDelaySecs < 1 || c.Webhook.RetryDelaySecs > 60 {
		return eris.Wrapf(ErrInvalidConfig, "webhook.retry_delay_secs %d outside 1-60", c.Webhook.RetryDelaySecs)
	}
	if c.Batch.Size < 1 || c.Batch.Size > 100 {
		return eris.Wrapf(ErrInvalidConfig, "batch.size %d outside 1-100", c.Batch.Size)
	}
	if c.Batch.InterBatchDelaySecs < 0 {
		return eris.Wrapf(ErrInvalidConfig, "batch.inter_batch_delay_secs %d negative", c.Batch.InterBatchDelaySecs)
	}
	if c.Batch.DispatchRate <= 0 {
		return eris.Wrapf(ErrInvalidConfig, "batch.dispatch_rate %v not positive", c.Batch.DispatchRate)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Wrapf(ErrInvalidConfig, "store.driver %q (want sqlite or postgres)", c.Store.Driver)
	}
	return nil
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
