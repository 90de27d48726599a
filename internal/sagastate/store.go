// Package sagastate is the durable store for saga instances plus the cache
// overlay that shields the hot path from a load-per-event round trip (spec
// component G).
package sagastate

import (
	"context"
	"time"

	"github.com/trigintafaces/excalibur-dispatch/internal/apperrors"
)

// Instance is the persisted state of one saga.
type Instance struct {
	SagaID        string
	SagaType      string
	State         []byte // opaque payload owned by the saga type
	IsCompleted   bool
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   time.Time
	FailureReason string
}

// Store is the raw, uncached saga persistence contract.
type Store interface {
	Load(ctx context.Context, sagaID string) (Instance, error)
	Save(ctx context.Context, instance Instance) error
	// UpdateConditional applies instance only if the stored row's Version
	// equals expectedVersion, otherwise returns apperrors.Conflict.
	UpdateConditional(ctx context.Context, instance Instance, expectedVersion int64) error
	ListByType(ctx context.Context, sagaType string, cursor string, limit int) ([]Instance, string, error)
	// QueryStuck returns open instances whose UpdatedAt is older than
	// threshold relative to now.
	QueryStuck(ctx context.Context, threshold time.Duration, limit int) ([]Instance, error)
	QueryFailed(ctx context.Context, limit int) ([]Instance, error)
	// RunningCount counts open instances, optionally filtered by sagaType
	// ("" means all types).
	RunningCount(ctx context.Context, sagaType string) (int, error)
}

func validate(instance Instance) error {
	if instance.SagaID == "" {
		return apperrors.ArgumentNull("sagaID")
	}
	if instance.SagaType == "" {
		return apperrors.ArgumentNull("sagaType")
	}
	if instance.IsCompleted && instance.CompletedAt.IsZero() {
		return apperrors.ArgumentInvalid("completedAt", "must be set when isCompleted")
	}
	return nil
}
