package model

import "time"

// NodeStatus defines the operational status of a backend node
type NodeStatus string

const (
	NodeStatusActive   NodeStatus = "active"
	NodeStatusDegraded NodeStatus = "degraded"
	NodeStatusFailed   NodeStatus = "failed"
)

// ResourceMetrics is the declared resource snapshot of a node.
// Usage figures are percentages on a 0-100 scale.
type ResourceMetrics struct {
	CPUUsagePct      float64 `json:"cpu_usage_pct"`
	MemUsagePct      float64 `json:"mem_usage_pct"`
	NetworkLatencyMs float64 `json:"network_latency_ms"`
}

// Node represents a backend node known to the engine.
// HealthScore is a continuous 0-100 measure, mutated only by the
// health monitor's check cycle.
type Node struct {
	ID          string          `json:"id"`
	Address     string          `json:"address"`
	Status      NodeStatus      `json:"status"`
	HealthScore float64         `json:"health_score"`
	Resources   ResourceMetrics `json:"resources"`
}

// Clone returns a copy of the node so callers cannot mutate registry state
func (n *Node) Clone() *Node {
	c := *n
	return &c
}

// CheckStatus is the outcome of a single health probe
type CheckStatus string

const (
	CheckStatusHealthy CheckStatus = "healthy"
	CheckStatusError   CheckStatus = "error"
)

// HealthCheckResult is a per-node, per-cycle probe snapshot kept in a
// bounded rolling history
type HealthCheckResult struct {
	NodeID         string            `json:"node_id"`
	Status         CheckStatus       `json:"status"`
	ResponseTimeMs float64           `json:"response_time_ms"`
	Metrics        ResourceMetrics   `json:"metrics"`
	Dependencies   map[string]string `json:"dependencies,omitempty"`
	Error          string            `json:"error,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
}

// FailoverResult records the outcome of redistributing a failed node's
// outstanding connections. Exhaustion (no survivors) is reported through
// Success=false and Error, not through a Go error.
type FailoverResult struct {
	Success            bool               `json:"success"`
	FailedNodeID       string             `json:"failed_node_id"`
	RedistributedCount int64              `json:"redistributed_count"`
	ActiveNodes        []string           `json:"active_nodes"`
	LoadDistribution   map[string]float64 `json:"load_distribution"`
	AvgLatencyMs       float64            `json:"avg_latency_ms"`
	Error              string             `json:"error,omitempty"`
}

// FleetHealth is the fleet-level aggregate computed after each check cycle
type FleetHealth struct {
	TotalNodes  int       `json:"total_nodes"`
	ActiveNodes int       `json:"active_nodes"`
	FailedNodes int       `json:"failed_nodes"`
	Score       float64   `json:"score"`
	Timestamp   time.Time `json:"timestamp"`
}
