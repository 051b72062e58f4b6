package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelpento.lv/llamalend/health"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.ValidateConfig())
	assert.Equal(t, 5, cfg.Concurrency)
	assert.Equal(t, health.PolicyNegativeNotFull, cfg.Policy())
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Concurrency = 0 },
			wantErr: "concurrency must be positive",
		},
		{
			name:    "negative threshold",
			mutate:  func(c *Config) { c.SoftLiquidationThreshold = decimal.NewFromInt(-1) },
			wantErr: "soft_liquidation_threshold",
		},
		{
			name:    "unknown policy",
			mutate:  func(c *Config) { c.HealthPolicy = "always-full" },
			wantErr: "unknown health policy",
		},
		{
			name:    "rate limit without burst",
			mutate:  func(c *Config) { c.RateLimit = RateLimitConfig{RequestsPerSecond: 10} },
			wantErr: "burst size must be positive",
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Confirmation.PollInterval = 0 },
			wantErr: "poll interval must be positive",
		},
		{
			name:    "rpc provider without endpoint",
			mutate:  func(c *Config) { c.Provider = ProviderRPC },
			wantErr: "rpc_url must be specified",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Provider = "ledger" },
			wantErr: "unknown provider",
		},
		{
			name: "prometheus without address",
			mutate: func(c *Config) {
				c.PrometheusEnabled = true
				c.PrometheusAddr = ""
			},
			wantErr: "prometheus_addr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.ValidateConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "llamalend.json")

	cfg := DefaultConfig()
	cfg.Concurrency = 8
	cfg.HealthPolicy = "close-to-liquidation"
	cfg.Confirmation.Timeout = 30 * time.Second
	cfg.SoftLiquidationThreshold = decimal.RequireFromString("2.5")
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8, loaded.Concurrency)
	assert.Equal(t, health.PolicyCloseToLiquidation, loaded.Policy())
	assert.Equal(t, 30*time.Second, loaded.Confirmation.Timeout)
	assert.True(t, loaded.SoftLiquidationThreshold.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, ProviderFixture, loaded.Provider)
}

func TestWalletConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Confirmation = ConfirmationConfig{PollInterval: 3 * time.Second, Timeout: time.Minute, CacheSize: 64}
	cfg.RateLimit = RateLimitConfig{RequestsPerSecond: 4, BurstSize: 2}

	wc := cfg.WalletConfig()
	assert.Equal(t, 3*time.Second, wc.PollInterval)
	assert.Equal(t, time.Minute, wc.Timeout)
	assert.Equal(t, 64, wc.CacheSize)
	assert.Equal(t, 4.0, wc.RequestsPerSecond)
	assert.Equal(t, 2, wc.BurstSize)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open config file")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvRPCURL, "http://localhost:8545")
	t.Setenv(EnvUseAPI, "true")
	t.Setenv(EnvConcurrency, "12")
	t.Setenv(EnvProvider, ProviderRPC)

	cfg := DefaultConfig()
	require.NoError(t, ApplyEnv(cfg))
	assert.Equal(t, "http://localhost:8545", cfg.RPCURL)
	assert.True(t, cfg.UseAPI)
	assert.Equal(t, 12, cfg.Concurrency)
	assert.Equal(t, ProviderRPC, cfg.Provider)
	require.NoError(t, cfg.ValidateConfig())

	t.Setenv(EnvConcurrency, "many")
	assert.Error(t, ApplyEnv(cfg))
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(EnvFixture+"=/tmp/markets.yaml\n"), 0o600))
	t.Setenv(EnvFixture, "")
	os.Unsetenv(EnvFixture)

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "/tmp/markets.yaml", GetEnvWithDefault(EnvFixture, ""))
}
