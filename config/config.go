package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/michaelpento.lv/llamalend/health"
	"github.com/michaelpento.lv/llamalend/pool"
	"github.com/michaelpento.lv/llamalend/wallet"
)

const defaultConfigName = ".llamalend.json"

// Confirmation providers
const (
	ProviderFixture = "fixture"
	ProviderRPC     = "rpc"
)

type Config struct {
	// Chain settings
	RPCURL string `json:"rpc_url"`
	UseAPI bool   `json:"use_api"`
	// Provider selects where transactions are confirmed: the fixture chain,
	// or receipts polled from rpc_url
	Provider string `json:"provider"`

	// Batch settings
	Concurrency int             `json:"concurrency"`
	RateLimit   RateLimitConfig `json:"rate_limit"`

	Confirmation ConfirmationConfig `json:"confirmation"`

	// Health display
	SoftLiquidationThreshold decimal.Decimal `json:"soft_liquidation_threshold"`
	HealthPolicy             string          `json:"health_policy"`

	// Feature flags
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusAddr    string `json:"prometheus_addr"`

	// Market fixture used when no RPC endpoint is configured
	FixturePath string `json:"fixture_path"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second"`
	BurstSize         int     `json:"burst_size"`
}

type ConfirmationConfig struct {
	PollInterval time.Duration `json:"poll_interval"`
	Timeout      time.Duration `json:"timeout"`
	CacheSize    int           `json:"cache_size"`
}

func (c *Config) ValidateConfig() error {
	var errors []string

	if c.Concurrency <= 0 {
		errors = append(errors, "concurrency must be positive")
	}
	if c.SoftLiquidationThreshold.IsNegative() {
		errors = append(errors, "soft_liquidation_threshold must not be negative")
	}
	if _, err := health.ParsePolicy(c.HealthPolicy); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.RateLimit.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("rate limit error: %v", err))
	}
	if err := c.Confirmation.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("confirmation error: %v", err))
	}
	switch c.Provider {
	case ProviderFixture:
	case ProviderRPC:
		if c.RPCURL == "" {
			errors = append(errors, "rpc_url must be specified for the rpc provider")
		}
	default:
		errors = append(errors, fmt.Sprintf("unknown provider %q", c.Provider))
	}
	if c.PrometheusEnabled && c.PrometheusAddr == "" {
		errors = append(errors, "prometheus_addr must be specified when prometheus is enabled")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

// Validate accepts a zero config, which disables rate limiting.
func (r *RateLimitConfig) Validate() error {
	if r.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second must not be negative")
	}
	if r.RequestsPerSecond > 0 && r.BurstSize <= 0 {
		return fmt.Errorf("burst size must be positive")
	}
	return nil
}

func (c *ConfirmationConfig) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache size must be positive")
	}
	return nil
}

// Policy returns the parsed health policy. ValidateConfig guarantees it parses.
func (c *Config) Policy() health.Policy {
	p, _ := health.ParsePolicy(c.HealthPolicy)
	return p
}

// WalletConfig maps the confirmation and rate limit settings onto the
// receipt-polling provider
func (c *Config) WalletConfig() wallet.Config {
	return wallet.Config{
		PollInterval:      c.Confirmation.PollInterval,
		Timeout:           c.Confirmation.Timeout,
		CacheSize:         c.Confirmation.CacheSize,
		RequestsPerSecond: c.RateLimit.RequestsPerSecond,
		BurstSize:         c.RateLimit.BurstSize,
	}
}

func defaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, defaultConfigName), nil
}

// LoadConfig reads cfgFile over the defaults and applies environment
// overrides. A missing default file is not an error.
func LoadConfig(cfgFile string) (*Config, error) {
	explicit := cfgFile != ""
	if !explicit {
		p, err := defaultPath()
		if err != nil {
			return nil, err
		}
		cfgFile = p
	}

	config := DefaultConfig()

	file, err := os.Open(cfgFile)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}

	if err := config.ValidateConfig(); err != nil {
		return nil, err
	}

	return config, nil
}

func SaveConfig(cfg *Config, cfgFile string) error {
	if cfgFile == "" {
		p, err := defaultPath()
		if err != nil {
			return err
		}
		cfgFile = p
	}

	file, err := os.Create(cfgFile)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "    ")
	return encoder.Encode(cfg)
}

func DefaultConfig() *Config {
	return &Config{
		Provider:    ProviderFixture,
		Concurrency: pool.DefaultConcurrency,
		Confirmation: ConfirmationConfig{
			PollInterval: time.Second,
			Timeout:      2 * time.Minute,
			CacheSize:    256,
		},
		SoftLiquidationThreshold: decimal.Zero,
		HealthPolicy:             health.PolicyNegativeNotFull.String(),
		PrometheusAddr:           ":9090",
	}
}
