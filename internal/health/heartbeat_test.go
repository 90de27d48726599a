package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHeartbeatRegistry_MissingHeartbeatIsUnhealthy(t *testing.T) {
	registry := NewHeartbeatRegistry(DefaultHeartbeatThresholds())

	report := registry.Report("outbox-loop")
	require.Equal(t, StatusUnhealthy, report.Status)
	require.True(t, report.LastHeartbeat.IsZero())
}

func TestHeartbeatRegistry_HealthyImmediatelyAfterBeat(t *testing.T) {
	registry := NewHeartbeatRegistry(DefaultHeartbeatThresholds())

	registry.Beat("outbox-loop")
	report := registry.Report("outbox-loop")
	require.Equal(t, StatusHealthy, report.Status)
	require.False(t, report.LastHeartbeat.IsZero())
}

func TestHeartbeatRegistry_DegradedAfterDegradedThreshold(t *testing.T) {
	registry := NewHeartbeatRegistry(HeartbeatThresholds{
		DegradedThreshold:  10 * time.Millisecond,
		UnhealthyThreshold: time.Hour,
	})

	registry.Beat("saga-timeout-loop")
	time.Sleep(20 * time.Millisecond)

	report := registry.Report("saga-timeout-loop")
	require.Equal(t, StatusDegraded, report.Status)
}

func TestHeartbeatRegistry_UnhealthyAfterUnhealthyThreshold(t *testing.T) {
	registry := NewHeartbeatRegistry(HeartbeatThresholds{
		DegradedThreshold:  1 * time.Millisecond,
		UnhealthyThreshold: 10 * time.Millisecond,
	})

	registry.Beat("audit-retention-sweep")
	time.Sleep(20 * time.Millisecond)

	report := registry.Report("audit-retention-sweep")
	require.Equal(t, StatusUnhealthy, report.Status)
}

func TestHeartbeatRegistry_ReportAllCoversEveryRegisteredJob(t *testing.T) {
	registry := NewHeartbeatRegistry(DefaultHeartbeatThresholds())
	registry.Beat("outbox-loop")
	registry.Beat("saga-timeout-loop")

	reports := registry.ReportAll()
	require.Len(t, reports, 2)
}

func TestHeartbeatRegistry_DefaultsAppliedWhenThresholdsZero(t *testing.T) {
	registry := NewHeartbeatRegistry(HeartbeatThresholds{})
	require.Equal(t, DefaultHeartbeatThresholds().DegradedThreshold, registry.thresholds.DegradedThreshold)
	require.Equal(t, DefaultHeartbeatThresholds().UnhealthyThreshold, registry.thresholds.UnhealthyThreshold)
}
