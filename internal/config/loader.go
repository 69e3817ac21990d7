package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Set defaults
	cfg := DefaultConfig()

	// Set up viper
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// Read config file (optional - if file doesn't exist, continue with defaults)
	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional if environment variables are set
		fmt.Printf("Warning: Could not read config file %s: %v. Using defaults and environment variables.\n", configPath, err)
	} else {
		// Unmarshal file contents
		if err := viper.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	// Override with environment variables (these take precedence)
	applyEnvironmentOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides to config
func applyEnvironmentOverrides(cfg *Config) {
	if interval := os.Getenv("BALANCER_CHECK_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.Monitor.CheckInterval = d
		}
	}
	if timeout := os.Getenv("BALANCER_PROBE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.Monitor.ProbeTimeout = d
		}
	}
	if retries := os.Getenv("BALANCER_RETRY_ATTEMPTS"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil {
			cfg.Monitor.RetryAttempts = n
		}
	}
	if minScore := os.Getenv("BALANCER_MIN_HEALTH_SCORE"); minScore != "" {
		if f, err := strconv.ParseFloat(minScore, 64); err == nil {
			cfg.Balancer.MinHealthScore = f
		}
	}
	if mode := os.Getenv("BALANCER_INVENTORY_MODE"); mode != "" {
		cfg.Inventory.Mode = mode
	}
	if seeds := os.Getenv("BALANCER_GOSSIP_SEEDS"); seeds != "" {
		cfg.Gossip.SeedNodes = strings.Split(seeds, ",")
	}
	if port := os.Getenv("BALANCER_METRICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Metrics.Port = p
		}
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}
}
