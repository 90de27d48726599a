// Package sagatimeout schedules and delivers saga timeouts: durable
// "wake me at dueAt" rows a SagaCoordinator polls and dispatches (spec
// component F).
package sagatimeout

import (
	"context"
	"time"

	"github.com/trigintafaces/excalibur-dispatch/internal/apperrors"
)

// Timeout is a scheduled wakeup for a saga instance.
type Timeout struct {
	TimeoutID   string
	SagaID      string
	SagaType    string
	TimeoutType string
	Payload     []byte // nil means a default-constructed timeout message
	DueAt       time.Time
	ScheduledAt time.Time
}

// Store schedules, cancels, and delivers saga timeouts. Implementations must
// be safe for concurrent Schedule/Cancel/GetDue.
type Store interface {
	// Schedule inserts timeout, replacing any existing row with the same
	// TimeoutID.
	Schedule(ctx context.Context, timeout Timeout) error
	// Cancel removes a specific timeout. Unknown (sagaID, timeoutID) is a
	// no-op.
	Cancel(ctx context.Context, sagaID, timeoutID string) error
	// CancelAll removes every outstanding timeout for sagaID.
	CancelAll(ctx context.Context, sagaID string) error
	// GetDue returns outstanding timeouts with DueAt <= now, ordered by
	// DueAt ascending, capped at limit (0 means no cap).
	GetDue(ctx context.Context, now time.Time, limit int) ([]Timeout, error)
	// MarkDelivered removes a timeout once its dispatch has been handed
	// off successfully. Unknown timeoutID is a no-op.
	MarkDelivered(ctx context.Context, timeoutID string) error
}

func validate(timeout Timeout) error {
	if timeout.TimeoutID == "" {
		return apperrors.ArgumentNull("timeoutID")
	}
	if timeout.SagaID == "" {
		return apperrors.ArgumentNull("sagaID")
	}
	if timeout.TimeoutType == "" {
		return apperrors.ArgumentNull("timeoutType")
	}
	if timeout.DueAt.IsZero() {
		return apperrors.ArgumentInvalid("dueAt", "must not be zero")
	}
	if timeout.DueAt.Before(timeout.ScheduledAt) {
		return apperrors.ArgumentInvalid("dueAt", "must be >= scheduledAt")
	}
	return nil
}
