package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. All recording methods are
// nil-safe so tests can run services without a registry.
type Metrics struct {
	// Selection metrics
	SelectionsTotal *prometheus.CounterVec
	SelectionErrors prometheus.Counter

	// Failover metrics
	FailoversTotal           prometheus.Counter
	RedistributedConnections prometheus.Counter

	// Probe metrics
	ProbeDuration *prometheus.HistogramVec
	ProbeFailures *prometheus.CounterVec

	// Fleet metrics
	NodesActive       prometheus.Gauge
	FleetHealthScore  prometheus.Gauge
	ConnectionsActive *prometheus.GaugeVec

	// Alert metrics
	AlertsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		SelectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "balancer_selections_total",
				Help: "Total number of node selections",
			},
			[]string{"node_id"},
		),

		SelectionErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "balancer_selection_errors_total",
				Help: "Total number of selections that found no eligible node",
			},
		),

		FailoversTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "balancer_failovers_total",
				Help: "Total number of node failovers handled",
			},
		),

		RedistributedConnections: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "balancer_redistributed_connections_total",
				Help: "Total connections redistributed away from failed nodes",
			},
		),

		ProbeDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "balancer_probe_duration_seconds",
				Help:    "Duration of node health probes",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),

		ProbeFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "balancer_probe_failures_total",
				Help: "Total number of failed node health probes",
			},
			[]string{"node_id"},
		),

		NodesActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "balancer_nodes_active",
				Help: "Number of active backend nodes",
			},
		),

		FleetHealthScore: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "balancer_fleet_health_score",
				Help: "Aggregate fleet health score (0-100)",
			},
		),

		ConnectionsActive: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "balancer_connections_active",
				Help: "Live connection count per node",
			},
			[]string{"node_id"},
		),

		AlertsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "balancer_alerts_total",
				Help: "Total number of alerts raised",
			},
			[]string{"category", "severity"},
		),
	}
}

// RecordSelection records a node selection
func (m *Metrics) RecordSelection(nodeID string) {
	if m == nil {
		return
	}
	m.SelectionsTotal.WithLabelValues(nodeID).Inc()
}

// RecordSelectionError records a selection that found no eligible node
func (m *Metrics) RecordSelectionError() {
	if m == nil {
		return
	}
	m.SelectionErrors.Inc()
}

// RecordFailover records a handled failover
func (m *Metrics) RecordFailover(redistributed int64) {
	if m == nil {
		return
	}
	m.FailoversTotal.Inc()
	m.RedistributedConnections.Add(float64(redistributed))
}

// RecordProbe records a probe outcome
func (m *Metrics) RecordProbe(nodeID, status string, seconds float64) {
	if m == nil {
		return
	}
	m.ProbeDuration.WithLabelValues(status).Observe(seconds)
	if status != "healthy" {
		m.ProbeFailures.WithLabelValues(nodeID).Inc()
	}
}

// UpdateFleet updates the fleet-level gauges
func (m *Metrics) UpdateFleet(activeNodes int, score float64) {
	if m == nil {
		return
	}
	m.NodesActive.Set(float64(activeNodes))
	m.FleetHealthScore.Set(score)
}

// UpdateConnections updates the per-node connection gauge
func (m *Metrics) UpdateConnections(nodeID string, count int64) {
	if m == nil {
		return
	}
	m.ConnectionsActive.WithLabelValues(nodeID).Set(float64(count))
}

// RemoveNode drops per-node series for a node no longer tracked
func (m *Metrics) RemoveNode(nodeID string) {
	if m == nil {
		return
	}
	m.ConnectionsActive.DeleteLabelValues(nodeID)
}

// RecordAlert records a raised alert
func (m *Metrics) RecordAlert(category, severity string) {
	if m == nil {
		return
	}
	m.AlertsTotal.WithLabelValues(category, severity).Inc()
}
