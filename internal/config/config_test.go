package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"health score above range", func(c *Config) { c.Balancer.MinHealthScore = 101 }},
		{"health score below range", func(c *Config) { c.Balancer.MinHealthScore = -1 }},
		{"zero max connections", func(c *Config) { c.Balancer.MaxNodeConnections = 0 }},
		{"zero check interval", func(c *Config) { c.Monitor.CheckInterval = 0 }},
		{"zero probe timeout", func(c *Config) { c.Monitor.ProbeTimeout = 0 }},
		{"timeout exceeds interval", func(c *Config) {
			c.Monitor.CheckInterval = time.Second
			c.Monitor.ProbeTimeout = 2 * time.Second
		}},
		{"negative retries", func(c *Config) { c.Monitor.RetryAttempts = -1 }},
		{"zero history limit", func(c *Config) { c.Monitor.HistoryLimit = 0 }},
		{"zero window", func(c *Config) { c.Performance.Window = 0 }},
		{"retention under window", func(c *Config) { c.Performance.RetentionPeriod = time.Second }},
		{"zero bucket interval", func(c *Config) { c.Performance.BucketInterval = 0 }},
		{"zero alert history", func(c *Config) { c.Alerting.HistoryLimit = 0 }},
		{"error rate above one", func(c *Config) { c.Alerting.Thresholds.ErrorRate = 1.5 }},
		{"availability above one", func(c *Config) { c.Alerting.Thresholds.MinAvailability = 2 }},
		{"cpu ceiling above range", func(c *Config) { c.Alerting.Thresholds.CPUPct = 150 }},
		{"memory ceiling above range", func(c *Config) { c.Alerting.Thresholds.MemoryPct = -5 }},
		{"unknown probe kind", func(c *Config) { c.Probe.Kind = "icmp" }},
		{"unknown inventory mode", func(c *Config) { c.Inventory.Mode = "dns" }},
		{"static node missing address", func(c *Config) {
			c.Inventory.Nodes = []StaticNode{{ID: "a"}}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_DefaultsLoggingFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging = LoggingConfig{}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
balancer:
  min_health_score: 60
monitor:
  check_interval: 10s
  probe_timeout: 2s
probe:
  kind: grpc
  service: backend.v1
inventory:
  mode: static
  nodes:
    - id: node-1
      address: 10.0.0.1:9000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 60.0, cfg.Balancer.MinHealthScore)
	assert.Equal(t, 10*time.Second, cfg.Monitor.CheckInterval)
	assert.Equal(t, 2*time.Second, cfg.Monitor.ProbeTimeout)
	assert.Equal(t, "grpc", cfg.Probe.Kind)
	assert.Equal(t, "backend.v1", cfg.Probe.Service)
	require.Len(t, cfg.Inventory.Nodes, 1)
	assert.Equal(t, "node-1", cfg.Inventory.Nodes[0].ID)

	// Untouched sections keep their defaults
	assert.Equal(t, 1000, cfg.Balancer.MaxNodeConnections)
	assert.True(t, cfg.Alerting.Enabled)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 50.0, cfg.Balancer.MinHealthScore)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BALANCER_CHECK_INTERVAL", "45s")
	t.Setenv("BALANCER_MIN_HEALTH_SCORE", "70")
	t.Setenv("BALANCER_INVENTORY_MODE", "gossip")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Monitor.CheckInterval)
	assert.Equal(t, 70.0, cfg.Balancer.MinHealthScore)
	assert.Equal(t, "gossip", cfg.Inventory.Mode)
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("balancer:\n  min_health_score: 500\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
