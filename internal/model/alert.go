package model

import "time"

// AlertCategory classifies what kind of threshold was violated
type AlertCategory string

const (
	AlertCategoryLatency      AlertCategory = "latency"
	AlertCategoryThroughput   AlertCategory = "throughput"
	AlertCategoryErrorRate    AlertCategory = "error_rate"
	AlertCategoryAvailability AlertCategory = "availability"
	AlertCategoryResource     AlertCategory = "resource"
)

// AlertSeverity ranks how urgent an alert is
type AlertSeverity string

const (
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityError    AlertSeverity = "error"
	AlertSeverityCritical AlertSeverity = "critical"
)

// Alert is raised when an observed metric crosses a configured threshold.
// The health cycle and the performance validator share this taxonomy.
type Alert struct {
	ID        string        `json:"id"`
	Category  AlertCategory `json:"category"`
	Severity  AlertSeverity `json:"severity"`
	Threshold float64       `json:"threshold"`
	Observed  float64       `json:"observed"`
	Message   string        `json:"message"`
	NodeID    string        `json:"node_id,omitempty"`
	Operation string        `json:"operation,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
