package model

import "time"

// LatencyRecord is a timestamped latency observation for one operation
type LatencyRecord struct {
	Operation  string
	DurationMs float64
	Timestamp  time.Time
}

// ThroughputRecord is a timestamped throughput observation for one operation
type ThroughputRecord struct {
	Operation  string
	Count      int64
	Bytes      int64
	DurationMs float64
	Timestamp  time.Time
}

// ErrorRecord is a timestamped error observation for one operation
type ErrorRecord struct {
	Operation string
	Message   string
	Timestamp time.Time
}

// LatencySummary holds nearest-rank percentiles over a sample window
type LatencySummary struct {
	P50     float64 `json:"p50"`
	P95     float64 `json:"p95"`
	P99     float64 `json:"p99"`
	Avg     float64 `json:"avg"`
	Max     float64 `json:"max"`
	Samples int     `json:"samples"`
}

// PerformanceMetrics aggregates operation-level figures over a trailing
// time window. ErrorRate is 0 and Availability is 1.0 when the window
// holds no operations.
type PerformanceMetrics struct {
	Latency        LatencySummary `json:"latency"`
	RequestsPerSec float64        `json:"requests_per_sec"`
	BytesPerSec    float64        `json:"bytes_per_sec"`
	ErrorRate      float64        `json:"error_rate"`
	Availability   float64        `json:"availability"`
	WindowStart    time.Time      `json:"window_start"`
	WindowEnd      time.Time      `json:"window_end"`
}

// ThresholdViolation names one metric that failed validation
type ThresholdViolation struct {
	Metric    string  `json:"metric"`
	Threshold float64 `json:"threshold"`
	Observed  float64 `json:"observed"`
}
