package saga

import (
	"context"
	"time"

	"github.com/trigintafaces/excalibur-dispatch/internal/sagastate"
)

// GetStuckSagas returns open instances whose UpdatedAt is older than
// threshold.
func (c *Coordinator) GetStuckSagas(ctx context.Context, threshold time.Duration, limit int) ([]sagastate.Instance, error) {
	return c.stateStore.QueryStuck(ctx, threshold, limit)
}

// GetFailedSagas returns instances with a recorded FailureReason.
func (c *Coordinator) GetFailedSagas(ctx context.Context, limit int) ([]sagastate.Instance, error) {
	return c.stateStore.QueryFailed(ctx, limit)
}

// GetRunningCount counts open instances, optionally filtered by sagaType.
func (c *Coordinator) GetRunningCount(ctx context.Context, sagaType string) (int, error) {
	return c.stateStore.RunningCount(ctx, sagaType)
}
