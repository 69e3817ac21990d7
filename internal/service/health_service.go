package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/meshroute/balancer/internal/config"
	"github.com/meshroute/balancer/internal/inventory"
	"github.com/meshroute/balancer/internal/metrics"
	"github.com/meshroute/balancer/internal/model"
	"github.com/meshroute/balancer/internal/probe"
	"github.com/meshroute/balancer/internal/util/workerpool"
	"go.uber.org/zap"
)

// Health score factor weights. The score favors nodes with resource
// headroom and fast probe responses; a failed probe zeroes the score,
// which keeps failed nodes below the eligibility gate.
const (
	scoreCPUWeight      = 0.40
	scoreMemoryWeight   = 0.40
	scoreResponseWeight = 0.20
)

// HealthMonitorService runs the periodic check cycle: probe every node
// in the inventory concurrently, update the node registry, evaluate
// alert thresholds, and push recomputed weights back into the
// distributor. Lifecycle is stopped -> running -> stopped; a re-entrant
// Start logs a warning and no-ops.
type HealthMonitorService struct {
	prober      probe.Prober
	inventory   inventory.Provider
	distributor *DistributorService
	alerts      *AlertService
	pool        *workerpool.WorkerPool
	metrics     *metrics.Metrics
	logger      *zap.Logger

	cfgMu sync.RWMutex
	cfg   monitorSettings

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	nodes     map[string]*model.Node
	history   map[string][]*model.HealthCheckResult
	lastFleet model.FleetHealth
}

// monitorSettings is the runtime-updatable slice of configuration the
// cycle reads at the start of each iteration
type monitorSettings struct {
	checkInterval  time.Duration
	probeTimeout   time.Duration
	retryAttempts  int
	historyLimit   int
	retention      time.Duration
	unhealthyBelow float64
	thresholds     config.AlertThresholds
}

// NewHealthMonitorService creates a new health monitor
func NewHealthMonitorService(
	prober probe.Prober,
	provider inventory.Provider,
	distributor *DistributorService,
	alerts *AlertService,
	cfg *config.Config,
	m *metrics.Metrics,
	logger *zap.Logger,
) *HealthMonitorService {
	return &HealthMonitorService{
		prober:      prober,
		inventory:   provider,
		distributor: distributor,
		alerts:      alerts,
		metrics:     m,
		logger:      logger,
		cfg:         settingsFrom(cfg),
		pool: workerpool.NewWorkerPool(&workerpool.Config{
			Name:       "health-probes",
			MaxWorkers: cfg.Monitor.ProbeWorkers,
			QueueSize:  cfg.Monitor.ProbeQueueSize,
			Logger:     logger,
		}),
		nodes:   make(map[string]*model.Node),
		history: make(map[string][]*model.HealthCheckResult),
	}
}

func settingsFrom(cfg *config.Config) monitorSettings {
	return monitorSettings{
		checkInterval:  cfg.Monitor.CheckInterval,
		probeTimeout:   cfg.Monitor.ProbeTimeout,
		retryAttempts:  cfg.Monitor.RetryAttempts,
		historyLimit:   cfg.Monitor.HistoryLimit,
		retention:      cfg.Performance.RetentionPeriod,
		unhealthyBelow: cfg.Balancer.MinHealthScore,
		thresholds:     cfg.Alerting.Thresholds,
	}
}

// Start begins the periodic check cycle. Calling Start while running is
// a no-op that logs a warning.
func (s *HealthMonitorService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("Health monitor already running, ignoring start")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	s.logger.Info("Health monitor started",
		zap.Duration("check_interval", s.settings().checkInterval))

	go s.run(stopCh, doneCh)
}

// run drives the timer loop. Cancellation is cooperative: checked
// between cycles, never mid-probe.
func (s *HealthMonitorService) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	interval := s.settings().checkInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial cycle so the engine has state before the first tick
	s.RunCycle(context.Background())

	for {
		select {
		case <-ticker.C:
			s.RunCycle(context.Background())
			// Pick up runtime interval changes on the next tick
			if next := s.settings().checkInterval; next != interval {
				interval = next
				ticker.Reset(interval)
			}
		case <-stopCh:
			return
		}
	}
}

// Stop cancels the timer and waits for any in-flight cycle to finish
// naturally. Stopping while stopped is a no-op.
func (s *HealthMonitorService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	doneCh := s.doneCh
	s.mu.Unlock()

	<-doneCh
	s.logger.Info("Health monitor stopped")
}

// Running reports whether the monitor loop is active
func (s *HealthMonitorService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunCycle executes one full check cycle: list the inventory, probe all
// nodes concurrently, apply the outcomes, and feed recomputed weights
// back into the distributor. Exposed so tests and administrative
// triggers can drive a cycle without the timer.
func (s *HealthMonitorService) RunCycle(ctx context.Context) {
	settings := s.settings()

	nodes, err := s.inventory.ListNodes(ctx)
	if err != nil {
		s.logger.Error("Failed to list node inventory", zap.Error(err))
		return
	}

	results := make([]*model.HealthCheckResult, len(nodes))
	var wg sync.WaitGroup
	for i, node := range nodes {
		i, node := i, node
		wg.Add(1)
		task := workerpool.Task{
			ID: fmt.Sprintf("probe-%s", node.ID),
			Fn: func(taskCtx context.Context) error {
				defer wg.Done()
				results[i] = s.probeNode(taskCtx, node, settings)
				return nil
			},
			Context: ctx,
		}
		if err := s.pool.Submit(ctx, task); err != nil {
			// Pool stopped or context canceled; record the miss
			results[i] = &model.HealthCheckResult{
				NodeID:    node.ID,
				Status:    model.CheckStatusError,
				Error:     err.Error(),
				Timestamp: time.Now(),
			}
			wg.Done()
		}
	}
	// The cycle logically completes only once all probes resolve
	wg.Wait()

	s.applyResults(nodes, results, settings)
	s.alerts.Cleanup(settings.retention)
}

// probeNode performs one bounded, optionally retried probe
func (s *HealthMonitorService) probeNode(ctx context.Context, node *model.Node, settings monitorSettings) *model.HealthCheckResult {
	var (
		res *probe.Result
		err error
	)

	start := time.Now()
	for attempt := 0; attempt <= settings.retryAttempts; attempt++ {
		probeCtx, cancel := context.WithTimeout(ctx, settings.probeTimeout)
		res, err = s.prober.Probe(probeCtx, node)
		cancel()
		if err == nil && res.Healthy {
			break
		}
	}
	elapsed := time.Since(start)

	result := &model.HealthCheckResult{
		NodeID:    node.ID,
		Timestamp: time.Now(),
	}

	switch {
	case err != nil:
		result.Status = model.CheckStatusError
		result.Error = err.Error()
		result.ResponseTimeMs = float64(elapsed.Milliseconds())
	case !res.Healthy:
		result.Status = model.CheckStatusError
		result.Error = "node reported unhealthy"
		result.ResponseTimeMs = float64(res.ResponseTime.Milliseconds())
		result.Metrics = res.Metrics
		result.Dependencies = res.Dependencies
	default:
		result.Status = model.CheckStatusHealthy
		result.ResponseTimeMs = float64(res.ResponseTime.Milliseconds())
		result.Metrics = res.Metrics
		result.Dependencies = res.Dependencies
	}

	s.metrics.RecordProbe(node.ID, string(result.Status), elapsed.Seconds())

	return result
}

// applyResults folds probe outcomes into the node registry, raises
// alerts, and pushes the new snapshot into the weight model
func (s *HealthMonitorService) applyResults(nodes []*model.Node, results []*model.HealthCheckResult, settings monitorSettings) {
	s.mu.Lock()

	seen := make(map[string]bool, len(nodes))
	active := 0
	for i, node := range nodes {
		result := results[i]
		seen[node.ID] = true

		current, ok := s.nodes[node.ID]
		if !ok {
			current = node.Clone()
			s.nodes[node.ID] = current
		}
		current.Address = node.Address

		if result.Status == model.CheckStatusHealthy {
			// The probe's resource snapshot supersedes the declared one;
			// a probe that carries none keeps the inventory's figures.
			if result.Metrics != (model.ResourceMetrics{}) {
				current.Resources = result.Metrics
			} else {
				current.Resources = node.Resources
				result.Metrics = node.Resources
			}
			current.HealthScore = healthScore(result)
			if current.HealthScore > settings.unhealthyBelow {
				current.Status = model.NodeStatusActive
				active++
			} else {
				current.Status = model.NodeStatusDegraded
			}
		} else {
			current.HealthScore = 0
			current.Status = model.NodeStatusFailed
		}

		s.appendHistory(node.ID, result, settings.historyLimit)
	}

	// Purge registry state for nodes gone from the inventory
	for id := range s.nodes {
		if !seen[id] {
			delete(s.nodes, id)
			delete(s.history, id)
		}
	}

	fleet := model.FleetHealth{
		TotalNodes:  len(nodes),
		ActiveNodes: active,
		Timestamp:   time.Now(),
	}
	for _, n := range s.nodes {
		if n.Status == model.NodeStatusFailed {
			fleet.FailedNodes++
		}
	}
	if fleet.TotalNodes > 0 {
		fleet.Score = float64(fleet.ActiveNodes) / float64(fleet.TotalNodes) * 100
	}
	s.lastFleet = fleet

	snapshot := make([]*model.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		snapshot = append(snapshot, n.Clone())
	}
	s.mu.Unlock()

	// Alert evaluation happens outside the registry lock; observers run
	// synchronously and may call back into the engine.
	for i := range results {
		s.evaluateAlerts(nodes[i], results[i], settings.thresholds)
	}

	s.metrics.UpdateFleet(fleet.ActiveNodes, fleet.Score)
	s.distributor.UpdateWeights(snapshot)

	s.logger.Info("Check cycle completed",
		zap.Int("total_nodes", fleet.TotalNodes),
		zap.Int("active_nodes", fleet.ActiveNodes),
		zap.Float64("fleet_score", fleet.Score))
}

// appendHistory keeps the bounded per-node history. Callers hold s.mu.
func (s *HealthMonitorService) appendHistory(nodeID string, result *model.HealthCheckResult, limit int) {
	h := append(s.history[nodeID], result)
	if len(h) > limit {
		h = h[len(h)-limit:]
	}
	s.history[nodeID] = h
}

// evaluateAlerts checks each threshold independently; several alerts may
// fire from a single probe
func (s *HealthMonitorService) evaluateAlerts(node *model.Node, result *model.HealthCheckResult, t config.AlertThresholds) {
	if result.Status == model.CheckStatusError {
		s.alerts.Raise(&model.Alert{
			Category:  model.AlertCategoryAvailability,
			Severity:  model.AlertSeverityCritical,
			Observed:  0,
			Threshold: 1,
			NodeID:    node.ID,
			Message:   fmt.Sprintf("node %s failed health probe: %s", node.ID, result.Error),
		})
		return
	}

	if t.ResponseTimeMs > 0 && result.ResponseTimeMs > t.ResponseTimeMs {
		s.alerts.Raise(&model.Alert{
			Category:  model.AlertCategoryLatency,
			Severity:  model.AlertSeverityWarning,
			Observed:  result.ResponseTimeMs,
			Threshold: t.ResponseTimeMs,
			NodeID:    node.ID,
			Message:   fmt.Sprintf("node %s probe response time %.0fms exceeds %.0fms", node.ID, result.ResponseTimeMs, t.ResponseTimeMs),
		})
	}
	if t.CPUPct > 0 && result.Metrics.CPUUsagePct > t.CPUPct {
		s.alerts.Raise(&model.Alert{
			Category:  model.AlertCategoryResource,
			Severity:  model.AlertSeverityWarning,
			Observed:  result.Metrics.CPUUsagePct,
			Threshold: t.CPUPct,
			NodeID:    node.ID,
			Message:   fmt.Sprintf("node %s CPU usage %.1f%% exceeds %.1f%%", node.ID, result.Metrics.CPUUsagePct, t.CPUPct),
		})
	}
	if t.MemoryPct > 0 && result.Metrics.MemUsagePct > t.MemoryPct {
		s.alerts.Raise(&model.Alert{
			Category:  model.AlertCategoryResource,
			Severity:  model.AlertSeverityWarning,
			Observed:  result.Metrics.MemUsagePct,
			Threshold: t.MemoryPct,
			NodeID:    node.ID,
			Message:   fmt.Sprintf("node %s memory usage %.1f%% exceeds %.1f%%", node.ID, result.Metrics.MemUsagePct, t.MemoryPct),
		})
	}
}

// healthScore derives a 0-100 score from a probe outcome. Failed probes
// score 0, which keeps the "failed implies at or below the unhealthy
// threshold" invariant without a special case.
func healthScore(result *model.HealthCheckResult) float64 {
	if result.Status != model.CheckStatusHealthy {
		return 0
	}
	cpu := clamp01(1 - result.Metrics.CPUUsagePct/100)
	mem := clamp01(1 - result.Metrics.MemUsagePct/100)
	resp := clamp01(1 - result.ResponseTimeMs/1000)
	return 100 * (scoreCPUWeight*cpu + scoreMemoryWeight*mem + scoreResponseWeight*resp)
}

// Nodes returns a snapshot of the current node registry, ordered by ID
func (s *HealthMonitorService) Nodes() []*model.Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// History returns up to limit most recent check results for a node
func (s *HealthMonitorService) History(nodeID string, limit int) []*model.HealthCheckResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.history[nodeID]
	n := len(h)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*model.HealthCheckResult, n)
	copy(out, h[len(h)-n:])
	return out
}

// Fleet returns the aggregate computed by the most recent cycle
func (s *HealthMonitorService) Fleet() model.FleetHealth {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFleet
}

// Reconfigure applies runtime configuration changes, effective on the
// next cycle
func (s *HealthMonitorService) Reconfigure(cfg *config.Config) {
	s.cfgMu.Lock()
	s.cfg = settingsFrom(cfg)
	s.cfgMu.Unlock()
}

func (s *HealthMonitorService) settings() monitorSettings {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// Shutdown releases the probe worker pool; call after Stop
func (s *HealthMonitorService) Shutdown() {
	s.pool.Stop()
}
