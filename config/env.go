package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvRPCURL      = "LLAMALEND_RPC_URL"
	EnvUseAPI      = "LLAMALEND_USE_API"
	EnvConcurrency = "LLAMALEND_CONCURRENCY"
	EnvFixture     = "LLAMALEND_FIXTURE"
	EnvProvider    = "LLAMALEND_PROVIDER"
)

// LoadEnv loads environment variables from a .env file when one exists
func LoadEnv(files ...string) error {
	err := godotenv.Load(files...)
	if err != nil && len(files) == 0 && os.IsNotExist(err) {
		return nil
	}
	return err
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// ApplyEnv overrides cfg with any LLAMALEND_* variables that are set
func ApplyEnv(cfg *Config) error {
	cfg.RPCURL = GetEnvWithDefault(EnvRPCURL, cfg.RPCURL)
	cfg.FixturePath = GetEnvWithDefault(EnvFixture, cfg.FixturePath)
	cfg.Provider = GetEnvWithDefault(EnvProvider, cfg.Provider)

	if v := os.Getenv(EnvUseAPI); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvUseAPI, err)
		}
		cfg.UseAPI = b
	}
	if v := os.Getenv(EnvConcurrency); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvConcurrency, err)
		}
		cfg.Concurrency = n
	}
	return nil
}
