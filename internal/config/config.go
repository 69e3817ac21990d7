package config

import (
	"errors"
	"fmt"
	"time"
)

// Config represents the load-distribution engine configuration
type Config struct {
	Balancer    BalancerConfig    `mapstructure:"balancer"`
	Monitor     MonitorConfig     `mapstructure:"monitor"`
	Performance PerformanceConfig `mapstructure:"performance"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Probe       ProbeConfig       `mapstructure:"probe"`
	Inventory   InventoryConfig   `mapstructure:"inventory"`
	Gossip      GossipConfig      `mapstructure:"gossip"`
	Health      HealthConfig      `mapstructure:"health"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// BalancerConfig controls node eligibility and weighted selection
type BalancerConfig struct {
	// MinHealthScore is the eligibility gate: nodes at or below this
	// score are never selected
	MinHealthScore float64 `mapstructure:"min_health_score"`
	// MaxNodeConnections normalizes the load-headroom factor
	MaxNodeConnections int `mapstructure:"max_node_connections"`
	// Seed seeds the weighted-random source; 0 means time-based
	Seed int64 `mapstructure:"seed"`
}

// MonitorConfig controls the periodic health check cycle
type MonitorConfig struct {
	CheckInterval  time.Duration `mapstructure:"check_interval"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	HistoryLimit   int           `mapstructure:"history_limit"`
	ProbeWorkers   int           `mapstructure:"probe_workers"`
	ProbeQueueSize int           `mapstructure:"probe_queue_size"`
}

// PerformanceConfig controls operation-level metrics collection
type PerformanceConfig struct {
	Window          time.Duration `mapstructure:"window"`
	RetentionPeriod time.Duration `mapstructure:"retention_period"`
	BucketInterval  time.Duration `mapstructure:"bucket_interval"`
}

// AlertingConfig controls alert thresholds and history retention
type AlertingConfig struct {
	Enabled      bool            `mapstructure:"enabled"`
	HistoryLimit int             `mapstructure:"history_limit"`
	Thresholds   AlertThresholds `mapstructure:"thresholds"`
}

// AlertThresholds holds every numeric threshold the validators compare
// against. Usage ceilings are percentages on a 0-100 scale.
type AlertThresholds struct {
	LatencyP99Ms     float64 `mapstructure:"latency_p99_ms"`
	ResponseTimeMs   float64 `mapstructure:"response_time_ms"`
	ErrorRate        float64 `mapstructure:"error_rate"`
	CPUPct           float64 `mapstructure:"cpu_pct"`
	MemoryPct        float64 `mapstructure:"memory_pct"`
	MinThroughputRPS float64 `mapstructure:"min_throughput_rps"`
	MinAvailability  float64 `mapstructure:"min_availability"`
}

// ProbeConfig selects and tunes the node prober
type ProbeConfig struct {
	// Kind is one of: http, grpc
	Kind string `mapstructure:"kind"`
	// Path is the health endpoint path for HTTP probing
	Path string `mapstructure:"path"`
	// Service is the service name passed to the gRPC health protocol
	Service string `mapstructure:"service"`
	// Breaker wraps the prober in a per-node circuit breaker
	Breaker BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig tunes the per-node probe circuit breaker
type BreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxFailures uint32        `mapstructure:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

// InventoryConfig selects how the node inventory is obtained
type InventoryConfig struct {
	// Mode is one of: static, gossip
	Mode  string       `mapstructure:"mode"`
	Nodes []StaticNode `mapstructure:"nodes"`
}

// StaticNode declares one statically configured backend node
type StaticNode struct {
	ID      string `mapstructure:"id"`
	Address string `mapstructure:"address"`
}

// GossipConfig holds memberlist settings for gossip-based inventory
type GossipConfig struct {
	NodeName       string        `mapstructure:"node_name"`
	BindPort       int           `mapstructure:"bind_port"`
	SeedNodes      []string      `mapstructure:"seed_nodes"`
	GossipInterval time.Duration `mapstructure:"gossip_interval"`
}

// HealthConfig holds the engine's own liveness/readiness endpoint settings
type HealthConfig struct {
	Port int `mapstructure:"port"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate validates the configuration. A validation failure is fatal at
// startup and rejects runtime updates.
func (c *Config) Validate() error {
	if c.Balancer.MinHealthScore < 0 || c.Balancer.MinHealthScore > 100 {
		return errors.New("balancer.min_health_score must be between 0 and 100")
	}
	if c.Balancer.MaxNodeConnections <= 0 {
		return errors.New("balancer.max_node_connections must be positive")
	}
	if c.Monitor.CheckInterval <= 0 {
		return errors.New("monitor.check_interval must be positive")
	}
	if c.Monitor.ProbeTimeout <= 0 {
		return errors.New("monitor.probe_timeout must be positive")
	}
	if c.Monitor.ProbeTimeout >= c.Monitor.CheckInterval {
		return errors.New("monitor.probe_timeout must be shorter than monitor.check_interval")
	}
	if c.Monitor.RetryAttempts < 0 {
		return errors.New("monitor.retry_attempts must not be negative")
	}
	if c.Monitor.HistoryLimit <= 0 {
		return errors.New("monitor.history_limit must be positive")
	}
	if c.Performance.Window <= 0 {
		return errors.New("performance.window must be positive")
	}
	if c.Performance.RetentionPeriod < c.Performance.Window {
		return errors.New("performance.retention_period must cover at least one window")
	}
	if c.Performance.BucketInterval <= 0 {
		return errors.New("performance.bucket_interval must be positive")
	}
	if c.Alerting.HistoryLimit <= 0 {
		return errors.New("alerting.history_limit must be positive")
	}
	t := c.Alerting.Thresholds
	if t.ErrorRate < 0 || t.ErrorRate > 1 {
		return errors.New("alerting.thresholds.error_rate must be between 0 and 1")
	}
	if t.MinAvailability < 0 || t.MinAvailability > 1 {
		return errors.New("alerting.thresholds.min_availability must be between 0 and 1")
	}
	if t.CPUPct < 0 || t.CPUPct > 100 {
		return errors.New("alerting.thresholds.cpu_pct must be between 0 and 100")
	}
	if t.MemoryPct < 0 || t.MemoryPct > 100 {
		return errors.New("alerting.thresholds.memory_pct must be between 0 and 100")
	}
	if !isValidProbeKind(c.Probe.Kind) {
		return fmt.Errorf("probe.kind must be one of: http, grpc (got %q)", c.Probe.Kind)
	}
	if !isValidInventoryMode(c.Inventory.Mode) {
		return fmt.Errorf("inventory.mode must be one of: static, gossip (got %q)", c.Inventory.Mode)
	}
	if c.Inventory.Mode == "static" {
		for i, n := range c.Inventory.Nodes {
			if n.ID == "" || n.Address == "" {
				return fmt.Errorf("inventory.nodes[%d] requires both id and address", i)
			}
		}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

func isValidProbeKind(kind string) bool {
	switch kind {
	case "http", "grpc":
		return true
	default:
		return false
	}
}

func isValidInventoryMode(mode string) bool {
	switch mode {
	case "static", "gossip":
		return true
	default:
		return false
	}
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Balancer: BalancerConfig{
			MinHealthScore:     50,
			MaxNodeConnections: 1000,
		},
		Monitor: MonitorConfig{
			CheckInterval:  30 * time.Second,
			ProbeTimeout:   5 * time.Second,
			RetryAttempts:  0,
			HistoryLimit:   100,
			ProbeWorkers:   10,
			ProbeQueueSize: 100,
		},
		Performance: PerformanceConfig{
			Window:          60 * time.Second,
			RetentionPeriod: 24 * time.Hour,
			BucketInterval:  time.Minute,
		},
		Alerting: AlertingConfig{
			Enabled:      true,
			HistoryLimit: 1000,
			Thresholds: AlertThresholds{
				LatencyP99Ms:     2000,
				ResponseTimeMs:   1000,
				ErrorRate:        0.05,
				CPUPct:           85,
				MemoryPct:        90,
				MinThroughputRPS: 0,
				MinAvailability:  0.99,
			},
		},
		Probe: ProbeConfig{
			Kind: "http",
			Path: "/health/ready",
			Breaker: BreakerConfig{
				Enabled:     false,
				MaxFailures: 3,
				OpenTimeout: 60 * time.Second,
			},
		},
		Inventory: InventoryConfig{
			Mode: "static",
		},
		Gossip: GossipConfig{
			NodeName:       "balancer-1",
			BindPort:       7946,
			GossipInterval: 200 * time.Millisecond,
		},
		Health: HealthConfig{
			Port: 8080,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
