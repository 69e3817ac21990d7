package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meshroute/balancer/internal/metrics"
	"github.com/meshroute/balancer/internal/model"
	"go.uber.org/zap"
)

// AlertObserver is invoked synchronously for every alert raised
type AlertObserver func(*model.Alert)

// AlertService keeps a bounded, time-ordered alert history shared by the
// health cycle and the performance validator, and fans alerts out to
// registered observers. A panicking observer is isolated: it neither
// stops delivery to the remaining observers nor prevents recording.
type AlertService struct {
	mu        sync.Mutex
	history   []*model.Alert
	limit     int
	enabled   bool
	observers []AlertObserver
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewAlertService creates a new alert service
func NewAlertService(limit int, enabled bool, m *metrics.Metrics, logger *zap.Logger) *AlertService {
	if limit <= 0 {
		limit = 1000
	}
	return &AlertService{
		history: make([]*model.Alert, 0, limit),
		limit:   limit,
		enabled: enabled,
		metrics: m,
		logger:  logger,
	}
}

// Raise records an alert and notifies all observers. Returns the alert
// as recorded, or nil when alerting is disabled.
func (s *AlertService) Raise(alert *model.Alert) *model.Alert {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return nil
	}

	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	// Bounded history, oldest dropped first
	s.history = append(s.history, alert)
	if len(s.history) > s.limit {
		s.history = s.history[len(s.history)-s.limit:]
	}

	observers := make([]AlertObserver, len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	s.metrics.RecordAlert(string(alert.Category), string(alert.Severity))

	s.logger.Warn("Alert raised",
		zap.String("alert_id", alert.ID),
		zap.String("category", string(alert.Category)),
		zap.String("severity", string(alert.Severity)),
		zap.Float64("threshold", alert.Threshold),
		zap.Float64("observed", alert.Observed),
		zap.String("message", alert.Message))

	for _, observer := range observers {
		s.notify(observer, alert)
	}

	return alert
}

// notify invokes one observer with panic isolation
func (s *AlertService) notify(observer AlertObserver, alert *model.Alert) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Alert observer panicked",
				zap.String("alert_id", alert.ID),
				zap.Any("panic", r))
		}
	}()
	observer(alert)
}

// OnAlert registers an observer callback
func (s *AlertService) OnAlert(observer AlertObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, observer)
}

// Recent returns up to limit most recent alerts in chronological order.
// limit <= 0 returns the whole history.
func (s *AlertService) Recent(limit int) []*model.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*model.Alert, n)
	copy(out, s.history[len(s.history)-n:])
	return out
}

// Cleanup discards alerts older than the retention period
func (s *AlertService) Cleanup(retention time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-retention)
	kept := s.history[:0]
	for _, a := range s.history {
		if a.Timestamp.After(cutoff) {
			kept = append(kept, a)
		}
	}
	if dropped := len(s.history) - len(kept); dropped > 0 {
		s.logger.Debug("Discarded expired alerts", zap.Int("count", dropped))
	}
	s.history = kept
}

// SetEnabled toggles alerting at runtime
func (s *AlertService) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}
