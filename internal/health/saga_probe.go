// Package health implements the saga health probe and job heartbeat
// registry from spec §4.P, surfaced over HTTP via internal/health/server.go.
package health

import (
	"context"
	"time"

	"github.com/trigintafaces/excalibur-dispatch/internal/metrics"
	"github.com/trigintafaces/excalibur-dispatch/internal/sagastate"
)

// Status is the tri-state health reported by a probe or heartbeat.
type Status string

const (
	StatusHealthy   Status = "Healthy"
	StatusDegraded  Status = "Degraded"
	StatusUnhealthy Status = "Unhealthy"
)

// SagaMonitor is the subset of saga.Coordinator the probe reads from.
type SagaMonitor interface {
	GetStuckSagas(ctx context.Context, threshold time.Duration, limit int) ([]sagastate.Instance, error)
	GetFailedSagas(ctx context.Context, limit int) ([]sagastate.Instance, error)
	GetRunningCount(ctx context.Context, sagaType string) (int, error)
}

// SagaHealthThresholds configures SagaHealthProbe's status mapping.
type SagaHealthThresholds struct {
	StuckLimit              int
	FailedLimit             int
	UnhealthyStuckThreshold int
	DegradedFailedThreshold int
	StuckWindow             time.Duration
}

func DefaultSagaHealthThresholds() SagaHealthThresholds {
	return SagaHealthThresholds{
		StuckLimit:              100,
		FailedLimit:             100,
		UnhealthyStuckThreshold: 10,
		DegradedFailedThreshold: 5,
		StuckWindow:             15 * time.Minute,
	}
}

// SagaHealthReport is the probe's result, matching the spec's
// {running, stuck, failed, stuckThresholdMinutes} shape.
type SagaHealthReport struct {
	Status                Status
	Running               int
	Stuck                 int
	Failed                int
	StuckThresholdMinutes float64
	Err                   error
}

// SagaHealthProbe reports saga subsystem health: Unhealthy when too many
// sagas are stuck, Degraded when too many have failed, Healthy otherwise.
type SagaHealthProbe struct {
	monitor    SagaMonitor
	thresholds SagaHealthThresholds
}

func NewSagaHealthProbe(monitor SagaMonitor, thresholds SagaHealthThresholds) *SagaHealthProbe {
	if thresholds.StuckWindow <= 0 {
		thresholds.StuckWindow = DefaultSagaHealthThresholds().StuckWindow
	}
	return &SagaHealthProbe{monitor: monitor, thresholds: thresholds}
}

// Check runs the probe. Any error from the underlying monitor is reported
// as Unhealthy with the error attached, never propagated as a Go error —
// a failing health probe must still produce a report.
func (p *SagaHealthProbe) Check(ctx context.Context) SagaHealthReport {
	stuckThresholdMinutes := p.thresholds.StuckWindow.Minutes()

	stuck, err := p.monitor.GetStuckSagas(ctx, p.thresholds.StuckWindow, p.thresholds.StuckLimit)
	if err != nil {
		return SagaHealthReport{Status: StatusUnhealthy, Err: err, StuckThresholdMinutes: stuckThresholdMinutes}
	}
	failed, err := p.monitor.GetFailedSagas(ctx, p.thresholds.FailedLimit)
	if err != nil {
		return SagaHealthReport{Status: StatusUnhealthy, Err: err, StuckThresholdMinutes: stuckThresholdMinutes}
	}
	running, err := p.monitor.GetRunningCount(ctx, "")
	if err != nil {
		return SagaHealthReport{Status: StatusUnhealthy, Err: err, StuckThresholdMinutes: stuckThresholdMinutes}
	}

	status := StatusHealthy
	switch {
	case len(stuck) >= p.thresholds.UnhealthyStuckThreshold:
		status = StatusUnhealthy
	case len(failed) >= p.thresholds.DegradedFailedThreshold:
		status = StatusDegraded
	}

	metrics.Global().SetSagaHealthCounts(len(stuck), len(failed))

	return SagaHealthReport{
		Status:                status,
		Running:               running,
		Stuck:                 len(stuck),
		Failed:                len(failed),
		StuckThresholdMinutes: stuckThresholdMinutes,
	}
}
