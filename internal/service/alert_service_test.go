package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/meshroute/balancer/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAlerts(limit int) *AlertService {
	return NewAlertService(limit, true, nil, zap.NewNop())
}

func warningAlert(msg string) *model.Alert {
	return &model.Alert{
		Category: model.AlertCategoryLatency,
		Severity: model.AlertSeverityWarning,
		Message:  msg,
	}
}

func TestAlerts_RaiseAssignsIDAndTimestamp(t *testing.T) {
	s := newTestAlerts(10)

	recorded := s.Raise(warningAlert("slow"))

	require.NotNil(t, recorded)
	assert.NotEmpty(t, recorded.ID)
	assert.False(t, recorded.Timestamp.IsZero())
}

func TestAlerts_HistoryBoundedFIFO(t *testing.T) {
	s := newTestAlerts(3)

	for i := 0; i < 5; i++ {
		s.Raise(warningAlert(fmt.Sprintf("alert-%d", i)))
	}

	recent := s.Recent(0)
	require.Len(t, recent, 3)
	// Oldest entries dropped first, chronological order preserved
	assert.Equal(t, "alert-2", recent[0].Message)
	assert.Equal(t, "alert-4", recent[2].Message)
}

func TestAlerts_RecentLimit(t *testing.T) {
	s := newTestAlerts(10)

	for i := 0; i < 4; i++ {
		s.Raise(warningAlert(fmt.Sprintf("alert-%d", i)))
	}

	recent := s.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "alert-2", recent[0].Message)
	assert.Equal(t, "alert-3", recent[1].Message)
}

func TestAlerts_ObserverFanOut(t *testing.T) {
	s := newTestAlerts(10)

	var first, second []string
	s.OnAlert(func(a *model.Alert) { first = append(first, a.Message) })
	s.OnAlert(func(a *model.Alert) { second = append(second, a.Message) })

	s.Raise(warningAlert("one"))
	s.Raise(warningAlert("two"))

	assert.Equal(t, []string{"one", "two"}, first)
	assert.Equal(t, []string{"one", "two"}, second)
}

func TestAlerts_ObserverPanicIsolated(t *testing.T) {
	s := newTestAlerts(10)

	var delivered int
	s.OnAlert(func(a *model.Alert) { panic("observer bug") })
	s.OnAlert(func(a *model.Alert) { delivered++ })

	recorded := s.Raise(warningAlert("boom"))

	// The panicking observer affects neither recording nor the others
	require.NotNil(t, recorded)
	assert.Equal(t, 1, delivered)
	assert.Len(t, s.Recent(0), 1)
}

func TestAlerts_DisabledRecordsNothing(t *testing.T) {
	s := NewAlertService(10, false, nil, zap.NewNop())

	var delivered int
	s.OnAlert(func(a *model.Alert) { delivered++ })

	assert.Nil(t, s.Raise(warningAlert("dropped")))
	assert.Empty(t, s.Recent(0))
	assert.Equal(t, 0, delivered)

	s.SetEnabled(true)
	assert.NotNil(t, s.Raise(warningAlert("kept")))
	assert.Len(t, s.Recent(0), 1)
	assert.Equal(t, 1, delivered)
}

func TestAlerts_CleanupDiscardsExpired(t *testing.T) {
	s := newTestAlerts(10)

	stale := warningAlert("stale")
	stale.Timestamp = time.Now().Add(-2 * time.Hour)
	s.Raise(stale)
	s.Raise(warningAlert("fresh"))

	s.Cleanup(time.Hour)

	recent := s.Recent(0)
	require.Len(t, recent, 1)
	assert.Equal(t, "fresh", recent[0].Message)
}
