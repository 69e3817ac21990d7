package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meshroute/balancer/internal/config"
	"github.com/meshroute/balancer/internal/inventory"
	"github.com/meshroute/balancer/internal/model"
	"github.com/meshroute/balancer/internal/probe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type monitorHarness struct {
	monitor     *HealthMonitorService
	distributor *DistributorService
	alerts      *AlertService
	provider    *inventory.StaticProvider
}

func newMonitorHarness(prober probe.Prober, cfg *config.Config, nodes ...*model.Node) *monitorHarness {
	logger := zap.NewNop()
	alerts := NewAlertService(cfg.Alerting.HistoryLimit, cfg.Alerting.Enabled, nil, logger)
	distributor := NewDistributorService(cfg.Balancer.MinHealthScore, cfg.Balancer.MaxNodeConnections, 1, nil, logger)
	provider := inventory.NewStaticProvider(nodes...)
	monitor := NewHealthMonitorService(prober, provider, distributor, alerts, cfg, nil, logger)
	return &monitorHarness{
		monitor:     monitor,
		distributor: distributor,
		alerts:      alerts,
		provider:    provider,
	}
}

func inventoryNode(id string) *model.Node {
	return &model.Node{ID: id, Address: id + ":9000", Status: model.NodeStatusActive}
}

func healthyProbe(cpu, mem float64) probe.Prober {
	return probe.ProberFunc(func(ctx context.Context, node *model.Node) (*probe.Result, error) {
		return &probe.Result{
			Healthy:      true,
			ResponseTime: 20 * time.Millisecond,
			Metrics:      model.ResourceMetrics{CPUUsagePct: cpu, MemUsagePct: mem},
		}, nil
	})
}

func failingProbe(err error) probe.Prober {
	return probe.ProberFunc(func(ctx context.Context, node *model.Node) (*probe.Result, error) {
		return nil, err
	})
}

func TestRunCycle_HealthyNodeBecomesActive(t *testing.T) {
	h := newMonitorHarness(healthyProbe(10, 10), config.DefaultConfig(), inventoryNode("a"))
	defer h.monitor.Shutdown()

	h.monitor.RunCycle(context.Background())

	nodes := h.monitor.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, model.NodeStatusActive, nodes[0].Status)
	// 0.4*0.9 + 0.4*0.9 + 0.2*0.98, scaled to 100
	assert.InDelta(t, 91.6, nodes[0].HealthScore, 0.01)
	assert.Equal(t, model.ResourceMetrics{CPUUsagePct: 10, MemUsagePct: 10}, nodes[0].Resources)

	// The cycle pushed fresh weights into the distributor
	chosen, err := h.distributor.Distribute(nodes)
	require.NoError(t, err)
	assert.Equal(t, "a", chosen.ID)
}

func TestRunCycle_FailedProbeZeroesScore(t *testing.T) {
	h := newMonitorHarness(failingProbe(errors.New("connection refused")), config.DefaultConfig(), inventoryNode("a"))
	defer h.monitor.Shutdown()

	h.monitor.RunCycle(context.Background())

	nodes := h.monitor.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, model.NodeStatusFailed, nodes[0].Status)
	assert.Equal(t, 0.0, nodes[0].HealthScore)

	_, err := h.distributor.Distribute(nodes)
	assert.ErrorIs(t, err, ErrNoAvailableNodes)

	recent := h.alerts.Recent(0)
	require.NotEmpty(t, recent)
	last := recent[len(recent)-1]
	assert.Equal(t, model.AlertCategoryAvailability, last.Category)
	assert.Equal(t, model.AlertSeverityCritical, last.Severity)
	assert.Equal(t, "a", last.NodeID)
}

func TestRunCycle_ExhaustedNodeDegrades(t *testing.T) {
	// Healthy probe but almost no headroom: 0.4*0.05 + 0.4*0.05 + 0.2*0.98
	// lands at 23.6, under the 50 gate
	h := newMonitorHarness(healthyProbe(95, 95), config.DefaultConfig(), inventoryNode("a"))
	defer h.monitor.Shutdown()

	h.monitor.RunCycle(context.Background())

	nodes := h.monitor.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, model.NodeStatusDegraded, nodes[0].Status)
	assert.InDelta(t, 23.6, nodes[0].HealthScore, 0.01)

	// Resource ceilings fire independently: CPU over 85 and memory over 90
	categories := map[model.AlertCategory]int{}
	for _, a := range h.alerts.Recent(0) {
		categories[a.Category]++
	}
	assert.Equal(t, 2, categories[model.AlertCategoryResource])
}

func TestRunCycle_RetriesUntilHealthy(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Monitor.RetryAttempts = 2

	var calls atomic.Int32
	flaky := probe.ProberFunc(func(ctx context.Context, node *model.Node) (*probe.Result, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("transient")
		}
		return &probe.Result{Healthy: true, ResponseTime: 10 * time.Millisecond}, nil
	})

	h := newMonitorHarness(flaky, cfg, inventoryNode("a"))
	defer h.monitor.Shutdown()

	h.monitor.RunCycle(context.Background())

	assert.Equal(t, int32(3), calls.Load())
	nodes := h.monitor.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, model.NodeStatusActive, nodes[0].Status)
}

func TestRunCycle_PurgesNodesGoneFromInventory(t *testing.T) {
	h := newMonitorHarness(healthyProbe(10, 10), config.DefaultConfig(), inventoryNode("a"), inventoryNode("b"))
	defer h.monitor.Shutdown()

	h.monitor.RunCycle(context.Background())
	require.Len(t, h.monitor.Nodes(), 2)

	h.provider.Remove("b")
	h.monitor.RunCycle(context.Background())

	nodes := h.monitor.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "a", nodes[0].ID)
	assert.Empty(t, h.monitor.History("b", 0))
}

func TestRunCycle_HistoryBounded(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Monitor.HistoryLimit = 3

	h := newMonitorHarness(healthyProbe(10, 10), cfg, inventoryNode("a"))
	defer h.monitor.Shutdown()

	for i := 0; i < 5; i++ {
		h.monitor.RunCycle(context.Background())
	}

	history := h.monitor.History("a", 0)
	assert.Len(t, history, 3)

	limited := h.monitor.History("a", 2)
	assert.Len(t, limited, 2)
}

func TestRunCycle_FleetHealth(t *testing.T) {
	perNode := probe.ProberFunc(func(ctx context.Context, node *model.Node) (*probe.Result, error) {
		if node.ID == "down" {
			return nil, errors.New("unreachable")
		}
		return &probe.Result{Healthy: true, ResponseTime: 10 * time.Millisecond}, nil
	})

	h := newMonitorHarness(perNode, config.DefaultConfig(),
		inventoryNode("a"), inventoryNode("b"), inventoryNode("down"))
	defer h.monitor.Shutdown()

	h.monitor.RunCycle(context.Background())

	fleet := h.monitor.Fleet()
	assert.Equal(t, 3, fleet.TotalNodes)
	assert.Equal(t, 2, fleet.ActiveNodes)
	assert.Equal(t, 1, fleet.FailedNodes)
	assert.InDelta(t, 66.67, fleet.Score, 0.01)
}

func TestRunCycle_InventoryErrorKeepsState(t *testing.T) {
	h := newMonitorHarness(healthyProbe(10, 10), config.DefaultConfig(), inventoryNode("a"))
	defer h.monitor.Shutdown()

	h.monitor.RunCycle(context.Background())
	require.Len(t, h.monitor.Nodes(), 1)

	broken := &failingProvider{err: errors.New("gossip partition")}
	h.monitor.inventory = broken
	h.monitor.RunCycle(context.Background())

	// A failed listing leaves the previous registry untouched
	assert.Len(t, h.monitor.Nodes(), 1)
}

type failingProvider struct {
	err error
}

func (p *failingProvider) ListNodes(ctx context.Context) ([]*model.Node, error) {
	return nil, p.err
}

func TestMonitor_Lifecycle(t *testing.T) {
	cfg := config.DefaultConfig()
	h := newMonitorHarness(healthyProbe(10, 10), cfg, inventoryNode("a"))
	defer h.monitor.Shutdown()

	assert.False(t, h.monitor.Running())

	h.monitor.Start()
	assert.True(t, h.monitor.Running())

	// Re-entrant start is a warned no-op
	h.monitor.Start()
	assert.True(t, h.monitor.Running())

	h.monitor.Stop()
	assert.False(t, h.monitor.Running())

	// Stopping again is a no-op
	h.monitor.Stop()

	// The monitor restarts cleanly after a stop
	h.monitor.Start()
	assert.True(t, h.monitor.Running())
	h.monitor.Stop()
	assert.False(t, h.monitor.Running())
}

func TestMonitor_ReconfigureTakesEffectNextCycle(t *testing.T) {
	cfg := config.DefaultConfig()
	h := newMonitorHarness(healthyProbe(10, 10), cfg, inventoryNode("a"))
	defer h.monitor.Shutdown()

	updated := config.DefaultConfig()
	updated.Monitor.HistoryLimit = 1
	h.monitor.Reconfigure(updated)

	h.monitor.RunCycle(context.Background())
	h.monitor.RunCycle(context.Background())

	assert.Len(t, h.monitor.History("a", 0), 1)
}

func TestHealthScore_FailedProbeIsZero(t *testing.T) {
	score := healthScore(&model.HealthCheckResult{Status: model.CheckStatusError})
	assert.Equal(t, 0.0, score)
}

func TestHealthScore_HeadroomWeighting(t *testing.T) {
	score := healthScore(&model.HealthCheckResult{
		Status:         model.CheckStatusHealthy,
		ResponseTimeMs: 500,
		Metrics:        model.ResourceMetrics{CPUUsagePct: 50, MemUsagePct: 50},
	})
	// 0.4*0.5 + 0.4*0.5 + 0.2*0.5 = 0.5
	assert.InDelta(t, 50.0, score, 1e-9)
}
