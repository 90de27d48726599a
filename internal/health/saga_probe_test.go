package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/trigintafaces/excalibur-dispatch/internal/sagastate"
)

type fakeSagaMonitor struct {
	stuck    []sagastate.Instance
	failed   []sagastate.Instance
	running  int
	stuckErr error
	failErr  error
	runErr   error
}

func (m fakeSagaMonitor) GetStuckSagas(context.Context, time.Duration, int) ([]sagastate.Instance, error) {
	return m.stuck, m.stuckErr
}

func (m fakeSagaMonitor) GetFailedSagas(context.Context, int) ([]sagastate.Instance, error) {
	return m.failed, m.failErr
}

func (m fakeSagaMonitor) GetRunningCount(context.Context, string) (int, error) {
	return m.running, m.runErr
}

func instances(n int) []sagastate.Instance {
	out := make([]sagastate.Instance, n)
	for i := range out {
		out[i] = sagastate.Instance{SagaID: "s"}
	}
	return out
}

func TestSagaHealthProbe_HealthyWhenBelowThresholds(t *testing.T) {
	monitor := fakeSagaMonitor{stuck: instances(1), failed: instances(1), running: 5}
	probe := NewSagaHealthProbe(monitor, DefaultSagaHealthThresholds())

	report := probe.Check(context.Background())
	require.Equal(t, StatusHealthy, report.Status)
	require.Equal(t, 5, report.Running)
	require.NoError(t, report.Err)
}

func TestSagaHealthProbe_DegradedWhenFailedAtThreshold(t *testing.T) {
	thresholds := DefaultSagaHealthThresholds()
	monitor := fakeSagaMonitor{stuck: instances(0), failed: instances(thresholds.DegradedFailedThreshold)}
	probe := NewSagaHealthProbe(monitor, thresholds)

	report := probe.Check(context.Background())
	require.Equal(t, StatusDegraded, report.Status)
}

func TestSagaHealthProbe_UnhealthyWhenStuckAtThreshold(t *testing.T) {
	thresholds := DefaultSagaHealthThresholds()
	monitor := fakeSagaMonitor{
		stuck:  instances(thresholds.UnhealthyStuckThreshold),
		failed: instances(thresholds.DegradedFailedThreshold),
	}
	probe := NewSagaHealthProbe(monitor, thresholds)

	report := probe.Check(context.Background())
	require.Equal(t, StatusUnhealthy, report.Status)
}

func TestSagaHealthProbe_MonitorErrorReportsUnhealthyNotGoError(t *testing.T) {
	monitor := fakeSagaMonitor{stuckErr: errors.New("store unavailable")}
	probe := NewSagaHealthProbe(monitor, DefaultSagaHealthThresholds())

	report := probe.Check(context.Background())
	require.Equal(t, StatusUnhealthy, report.Status)
	require.Error(t, report.Err)
}

func TestSagaHealthProbe_DefaultsStuckWindowWhenUnset(t *testing.T) {
	probe := NewSagaHealthProbe(fakeSagaMonitor{}, SagaHealthThresholds{})
	report := probe.Check(context.Background())
	require.Equal(t, DefaultSagaHealthThresholds().StuckWindow.Minutes(), report.StuckThresholdMinutes)
}
