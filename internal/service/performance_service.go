package service

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/meshroute/balancer/internal/config"
	"github.com/meshroute/balancer/internal/model"
	"go.uber.org/zap"
)

// PerformanceService tracks operation-level performance through
// append-only records and computes windowed aggregates. Records are
// written by any caller reporting an outcome and purged past the
// retention period. Validation against thresholds is a pure function so
// it can be exercised with synthetic inputs.
type PerformanceService struct {
	mu          sync.Mutex
	latencies   []model.LatencyRecord
	throughputs []model.ThroughputRecord
	errors      []model.ErrorRecord

	cfgMu     sync.RWMutex
	window    time.Duration
	retention time.Duration
	bucket    time.Duration

	// now is injectable so tests control the clock
	now    func() time.Time
	logger *zap.Logger
}

// NewPerformanceService creates a new performance metrics service
func NewPerformanceService(cfg config.PerformanceConfig, logger *zap.Logger) *PerformanceService {
	return &PerformanceService{
		window:    cfg.Window,
		retention: cfg.RetentionPeriod,
		bucket:    cfg.BucketInterval,
		now:       time.Now,
		logger:    logger,
	}
}

// RecordLatency appends a latency observation for an operation
func (s *PerformanceService) RecordLatency(operation string, ms float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencies = append(s.latencies, model.LatencyRecord{
		Operation:  operation,
		DurationMs: ms,
		Timestamp:  s.now(),
	})
}

// RecordThroughput appends a throughput observation for an operation
func (s *PerformanceService) RecordThroughput(operation string, count, bytes int64, durationMs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.throughputs = append(s.throughputs, model.ThroughputRecord{
		Operation:  operation,
		Count:      count,
		Bytes:      bytes,
		DurationMs: durationMs,
		Timestamp:  s.now(),
	})
}

// RecordError appends an error observation for an operation
func (s *PerformanceService) RecordError(operation string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, model.ErrorRecord{
		Operation: operation,
		Message:   msg,
		Timestamp: s.now(),
	})
}

// Collect computes aggregates over the trailing window and purges
// records past the retention period
func (s *PerformanceService) Collect() *model.PerformanceMetrics {
	window, retention, _ := s.intervals()

	s.mu.Lock()
	defer s.mu.Unlock()

	end := s.now()
	s.purgeLocked(end.Add(-retention))

	return s.computeLocked(end.Add(-window), end)
}

// computeLocked aggregates records with timestamps in (start, end].
// Callers hold s.mu.
func (s *PerformanceService) computeLocked(start, end time.Time) *model.PerformanceMetrics {
	m := &model.PerformanceMetrics{
		WindowStart: start,
		WindowEnd:   end,
	}

	samples := make([]float64, 0, len(s.latencies))
	var latencySum float64
	for _, r := range s.latencies {
		if inWindow(r.Timestamp, start, end) {
			samples = append(samples, r.DurationMs)
			latencySum += r.DurationMs
			if r.DurationMs > m.Latency.Max {
				m.Latency.Max = r.DurationMs
			}
		}
	}
	if len(samples) > 0 {
		sort.Float64s(samples)
		m.Latency.P50 = percentile(samples, 50)
		m.Latency.P95 = percentile(samples, 95)
		m.Latency.P99 = percentile(samples, 99)
		m.Latency.Avg = latencySum / float64(len(samples))
		m.Latency.Samples = len(samples)
	}

	seconds := end.Sub(start).Seconds()
	if seconds > 0 {
		var count, bytes int64
		for _, r := range s.throughputs {
			if inWindow(r.Timestamp, start, end) {
				count += r.Count
				bytes += r.Bytes
			}
		}
		m.RequestsPerSec = float64(count) / seconds
		m.BytesPerSec = float64(bytes) / seconds
	}

	errorCount := 0
	for _, r := range s.errors {
		if inWindow(r.Timestamp, start, end) {
			errorCount++
		}
	}

	// Successes are latency observations; an empty window is healthy by
	// definition: error rate 0, availability 1.
	total := len(samples) + errorCount
	if total == 0 {
		m.ErrorRate = 0
		m.Availability = 1.0
	} else {
		m.ErrorRate = float64(errorCount) / float64(total)
		m.Availability = float64(len(samples)) / float64(total)
	}

	return m
}

// percentile returns the nearest-rank percentile of a sorted sample:
// the value at index ceil(p/100*n)-1. Not interpolated.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

func inWindow(ts, start, end time.Time) bool {
	return ts.After(start) && !ts.After(end)
}

// purgeLocked drops records older than the cutoff. Callers hold s.mu.
func (s *PerformanceService) purgeLocked(cutoff time.Time) {
	s.latencies = purgeLatencies(s.latencies, cutoff)
	s.throughputs = purgeThroughputs(s.throughputs, cutoff)
	s.errors = purgeErrors(s.errors, cutoff)
}

func purgeLatencies(records []model.LatencyRecord, cutoff time.Time) []model.LatencyRecord {
	kept := records[:0]
	for _, r := range records {
		if r.Timestamp.After(cutoff) {
			kept = append(kept, r)
		}
	}
	return kept
}

func purgeThroughputs(records []model.ThroughputRecord, cutoff time.Time) []model.ThroughputRecord {
	kept := records[:0]
	for _, r := range records {
		if r.Timestamp.After(cutoff) {
			kept = append(kept, r)
		}
	}
	return kept
}

func purgeErrors(records []model.ErrorRecord, cutoff time.Time) []model.ErrorRecord {
	kept := records[:0]
	for _, r := range records {
		if r.Timestamp.After(cutoff) {
			kept = append(kept, r)
		}
	}
	return kept
}

// ValidateMetrics compares collected figures against thresholds and
// returns the violation list plus structured alerts. Pure function:
// independent of collection state.
func ValidateMetrics(m *model.PerformanceMetrics, t config.AlertThresholds) ([]model.ThresholdViolation, []*model.Alert) {
	var violations []model.ThresholdViolation
	var alerts []*model.Alert

	if t.LatencyP99Ms > 0 && m.Latency.P99 > t.LatencyP99Ms {
		violations = append(violations, model.ThresholdViolation{
			Metric: "latency_p99_ms", Threshold: t.LatencyP99Ms, Observed: m.Latency.P99,
		})
		alerts = append(alerts, &model.Alert{
			Category:  model.AlertCategoryLatency,
			Severity:  model.AlertSeverityError,
			Threshold: t.LatencyP99Ms,
			Observed:  m.Latency.P99,
			Message:   fmt.Sprintf("p99 latency %.0fms exceeds %.0fms", m.Latency.P99, t.LatencyP99Ms),
		})
	}
	if t.ErrorRate > 0 && m.ErrorRate > t.ErrorRate {
		violations = append(violations, model.ThresholdViolation{
			Metric: "error_rate", Threshold: t.ErrorRate, Observed: m.ErrorRate,
		})
		alerts = append(alerts, &model.Alert{
			Category:  model.AlertCategoryErrorRate,
			Severity:  model.AlertSeverityError,
			Threshold: t.ErrorRate,
			Observed:  m.ErrorRate,
			Message:   fmt.Sprintf("error rate %.3f exceeds %.3f", m.ErrorRate, t.ErrorRate),
		})
	}
	if t.MinThroughputRPS > 0 && m.RequestsPerSec < t.MinThroughputRPS {
		violations = append(violations, model.ThresholdViolation{
			Metric: "requests_per_sec", Threshold: t.MinThroughputRPS, Observed: m.RequestsPerSec,
		})
		alerts = append(alerts, &model.Alert{
			Category:  model.AlertCategoryThroughput,
			Severity:  model.AlertSeverityWarning,
			Threshold: t.MinThroughputRPS,
			Observed:  m.RequestsPerSec,
			Message:   fmt.Sprintf("throughput %.1f req/s below %.1f req/s", m.RequestsPerSec, t.MinThroughputRPS),
		})
	}
	if t.MinAvailability > 0 && m.Availability < t.MinAvailability {
		violations = append(violations, model.ThresholdViolation{
			Metric: "availability", Threshold: t.MinAvailability, Observed: m.Availability,
		})
		alerts = append(alerts, &model.Alert{
			Category:  model.AlertCategoryAvailability,
			Severity:  model.AlertSeverityCritical,
			Threshold: t.MinAvailability,
			Observed:  m.Availability,
			Message:   fmt.Sprintf("availability %.4f below %.4f", m.Availability, t.MinAvailability),
		})
	}

	return violations, alerts
}

// History buckets records into fixed-width intervals between from and to
// and reruns the same windowed computation per bucket. Bucket boundaries
// align to absolute time, not session start.
func (s *PerformanceService) History(from, to time.Time) []*model.PerformanceMetrics {
	_, _, bucket := s.intervals()

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.PerformanceMetrics
	for start := from.Truncate(bucket); start.Before(to); start = start.Add(bucket) {
		end := start.Add(bucket)
		if end.After(to) {
			end = to
		}
		out = append(out, s.computeLocked(start, end))
	}
	return out
}

// Reconfigure applies runtime configuration changes
func (s *PerformanceService) Reconfigure(cfg config.PerformanceConfig) {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	s.window = cfg.Window
	s.retention = cfg.RetentionPeriod
	s.bucket = cfg.BucketInterval
}

func (s *PerformanceService) intervals() (window, retention, bucket time.Duration) {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.window, s.retention, s.bucket
}
