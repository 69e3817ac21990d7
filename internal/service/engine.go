package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/meshroute/balancer/internal/config"
	"github.com/meshroute/balancer/internal/inventory"
	"github.com/meshroute/balancer/internal/metrics"
	"github.com/meshroute/balancer/internal/model"
	"github.com/meshroute/balancer/internal/probe"
	"go.uber.org/zap"
)

// Engine composes the distributor, health monitor, performance monitor,
// and alert log into the single operation surface callers use. All state
// is owned by the instance; there are no process-wide registries.
type Engine struct {
	cfgMu sync.RWMutex
	cfg   *config.Config

	distributor *DistributorService
	health      *HealthMonitorService
	performance *PerformanceService
	alerts      *AlertService
	logger      *zap.Logger
}

// MetricsReport is the result of a collection pass with alerting
type MetricsReport struct {
	Metrics              *model.PerformanceMetrics  `json:"metrics"`
	Violations           []model.ThresholdViolation `json:"violations,omitempty"`
	Alerts               []*model.Alert             `json:"alerts,omitempty"`
	CollectionDurationMs float64                    `json:"collection_duration_ms"`
}

// NewEngine wires the engine from validated configuration and injected
// collaborators
func NewEngine(
	cfg *config.Config,
	prober probe.Prober,
	provider inventory.Provider,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Engine {
	alerts := NewAlertService(cfg.Alerting.HistoryLimit, cfg.Alerting.Enabled, m, logger)
	distributor := NewDistributorService(
		cfg.Balancer.MinHealthScore,
		cfg.Balancer.MaxNodeConnections,
		cfg.Balancer.Seed,
		m,
		logger,
	)
	performance := NewPerformanceService(cfg.Performance, logger)
	health := NewHealthMonitorService(prober, provider, distributor, alerts, cfg, m, logger)

	return &Engine{
		cfg:         cfg,
		distributor: distributor,
		health:      health,
		performance: performance,
		alerts:      alerts,
		logger:      logger,
	}
}

// Distribute picks a node for one unit of work from the current
// registry. ErrNoAvailableNodes propagates to the caller.
func (e *Engine) Distribute() (*model.Node, error) {
	return e.distributor.Distribute(e.health.Nodes())
}

// DistributeAmong picks a node from an explicit candidate set
func (e *Engine) DistributeAmong(candidates []*model.Node) (*model.Node, error) {
	return e.distributor.Distribute(candidates)
}

// Complete reports completion of a unit of work on a node
func (e *Engine) Complete(nodeID string) {
	e.distributor.Release(nodeID)
}

// UpdateWeights recomputes the weight map from an externally supplied
// node set
func (e *Engine) UpdateWeights(nodes []*model.Node) {
	e.distributor.UpdateWeights(nodes)
}

// HandleFailure redistributes a failed node's load and raises an
// availability alert. The result carries the average latency over the
// current performance window for operator context.
func (e *Engine) HandleFailure(nodeID string) *model.FailoverResult {
	result := e.distributor.HandleFailure(nodeID)
	result.AvgLatencyMs = e.performance.Collect().Latency.Avg

	severity := model.AlertSeverityCritical
	message := fmt.Sprintf("node %s failed, redistributed %d connections across %d nodes",
		nodeID, result.RedistributedCount, len(result.ActiveNodes))
	if !result.Success {
		message = fmt.Sprintf("node %s failed and no nodes remain: %s", nodeID, result.Error)
	}
	e.alerts.Raise(&model.Alert{
		Category: model.AlertCategoryAvailability,
		Severity: severity,
		NodeID:   nodeID,
		Message:  message,
	})

	return result
}

// LoadDistribution returns each node's percentage share of live
// connections
func (e *Engine) LoadDistribution() map[string]float64 {
	return e.distributor.LoadDistribution()
}

// StartMonitoring starts the periodic health check cycle
func (e *Engine) StartMonitoring() {
	e.health.Start()
}

// StopMonitoring stops the cycle, letting any in-flight cycle finish
func (e *Engine) StopMonitoring() {
	e.health.Stop()
}

// MonitoringActive reports whether the check cycle is running
func (e *Engine) MonitoringActive() bool {
	return e.health.Running()
}

// RecordLatency reports an operation latency observation
func (e *Engine) RecordLatency(operation string, ms float64) {
	e.performance.RecordLatency(operation, ms)
}

// RecordThroughput reports an operation throughput observation
func (e *Engine) RecordThroughput(operation string, count, bytes int64, durationMs float64) {
	e.performance.RecordThroughput(operation, count, bytes, durationMs)
}

// RecordError reports an operation error
func (e *Engine) RecordError(operation string, err error) {
	e.performance.RecordError(operation, err)
}

// CollectMetrics computes performance aggregates over the trailing window
func (e *Engine) CollectMetrics() *model.PerformanceMetrics {
	return e.performance.Collect()
}

// CollectMetricsWithAlerting collects, validates against the configured
// thresholds, and raises an alert per violation
func (e *Engine) CollectMetricsWithAlerting() *MetricsReport {
	start := time.Now()
	m := e.performance.Collect()
	violations, alerts := ValidateMetrics(m, e.thresholds())

	raised := make([]*model.Alert, 0, len(alerts))
	for _, a := range alerts {
		if recorded := e.alerts.Raise(a); recorded != nil {
			raised = append(raised, recorded)
		}
	}

	return &MetricsReport{
		Metrics:              m,
		Violations:           violations,
		Alerts:               raised,
		CollectionDurationMs: float64(time.Since(start).Microseconds()) / 1000,
	}
}

// MetricsHistory buckets the record history into fixed-width intervals
func (e *Engine) MetricsHistory(from, to time.Time) []*model.PerformanceMetrics {
	return e.performance.History(from, to)
}

// OnAlert registers an observer invoked synchronously per alert
func (e *Engine) OnAlert(observer AlertObserver) {
	e.alerts.OnAlert(observer)
}

// RecentAlerts returns up to limit most recent alerts
func (e *Engine) RecentAlerts(limit int) []*model.Alert {
	return e.alerts.Recent(limit)
}

// HealthHistory returns the bounded check history for a node
func (e *Engine) HealthHistory(nodeID string, limit int) []*model.HealthCheckResult {
	return e.health.History(nodeID, limit)
}

// Nodes returns the current node registry snapshot
func (e *Engine) Nodes() []*model.Node {
	return e.health.Nodes()
}

// FleetHealth returns the aggregate from the most recent check cycle
func (e *Engine) FleetHealth() model.FleetHealth {
	return e.health.Fleet()
}

// UpdateConfig validates and applies a new configuration at runtime.
// Changes take effect on the next cycle.
func (e *Engine) UpdateConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("rejecting runtime config update: %w", err)
	}

	e.cfgMu.Lock()
	e.cfg = cfg
	e.cfgMu.Unlock()

	e.distributor.Reconfigure(cfg.Balancer.MinHealthScore, cfg.Balancer.MaxNodeConnections)
	e.health.Reconfigure(cfg)
	e.performance.Reconfigure(cfg.Performance)
	e.alerts.SetEnabled(cfg.Alerting.Enabled)

	e.logger.Info("Configuration updated",
		zap.Duration("check_interval", cfg.Monitor.CheckInterval),
		zap.Float64("min_health_score", cfg.Balancer.MinHealthScore))

	return nil
}

// Shutdown stops monitoring and releases pooled resources
func (e *Engine) Shutdown() {
	e.StopMonitoring()
	e.health.Shutdown()
}

func (e *Engine) thresholds() config.AlertThresholds {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg.Alerting.Thresholds
}
