package config

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Store:   StoreConfig{Driver: "sqlite", DatabaseURL: "test.db"},
		Webhook: WebhookConfig{URL: "https://hooks.example.com/research", TimeoutSecs: 1800, MaxRetries: 1, RetryDelaySecs: 30},
		Batch:   BatchConfig{Size: 10, InterBatchDelaySecs: 2, DispatchRate: 1},
		Server:  ServerConfig{Port: 8080},
		Log:     LogConfig{Level: "info", Format: "json"},
	}
}

func TestValidate_Defaults(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_Ranges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"timeout too low", func(c *Config) { c.Webhook.TimeoutSecs = 29 }},
		{"timeout too high", func(c *Config) { c.Webhook.TimeoutSecs = 1801 }},
		{"retries negative", func(c *Config) { c.Webhook.MaxRetries = -1 }},
		{"retries too high", func(c *Config) { c.Webhook.MaxRetries = 11 }},
		{"retry delay zero", func(c *Config) { c.Webhook.RetryDelaySecs = 0 }},
		{"retry delay too high", func(c *Config) { c.Webhook.RetryDelaySecs = 61 }},
		{"batch size zero", func(c *Config) { c.Batch.Size = 0 }},
		{"batch size too high", func(c *Config) { c.Batch.Size = 101 }},
		{"negative inter-batch delay", func(c *Config) { c.Batch.InterBatchDelaySecs = -1 }},
		{"zero dispatch rate", func(c *Config) { c.Batch.DispatchRate = 0 }},
		{"unknown driver", func(c *Config) { c.Store.Driver = "oracle" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, eris.Is(err, ErrInvalidConfig))
		})
	}
}

func TestValidate_BoundaryValues(t *testing.T) {
	cfg := validConfig()
	cfg.Webhook.TimeoutSecs = 30
	cfg.Webhook.MaxRetries = 0
	cfg.Webhook.RetryDelaySecs = 1
	cfg.Batch.Size = 1
	require.NoError(t, cfg.Validate())

	cfg.Webhook.TimeoutSecs = 1800
	cfg.Webhook.MaxRetries = 10
	cfg.Webhook.RetryDelaySecs = 60
	cfg.Batch.Size = 100
	require.NoError(t, cfg.Validate())
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 1800, cfg.Webhook.TimeoutSecs)
	assert.Equal(t, 1, cfg.Webhook.MaxRetries)
	assert.Equal(t, 30, cfg.Webhook.RetryDelaySecs)
	assert.Equal(t, 10, cfg.Batch.Size)
	assert.Equal(t, 2, cfg.Batch.InterBatchDelaySecs)
	assert.Equal(t, 8080, cfg.Server.Port)
	require.NoError(t, cfg.Validate())
}
