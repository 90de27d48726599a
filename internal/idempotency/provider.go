// Package idempotency implements the (sagaId, key) dedupe check saga step
// handlers consult before acting, so a redelivered event cannot double-apply
// its side effects (spec component E).
package idempotency

import (
	"context"

	"github.com/trigintafaces/excalibur-dispatch/internal/apperrors"
)

// Provider tracks which (sagaID, key) pairs have already been processed.
// IsProcessed and MarkProcessed both reject an empty sagaID or key.
// MarkProcessed is idempotent: marking the same pair twice is a no-op.
type Provider interface {
	IsProcessed(ctx context.Context, sagaID, key string) (bool, error)
	MarkProcessed(ctx context.Context, sagaID, key string) error
}

func validate(sagaID, key string) error {
	if sagaID == "" {
		return apperrors.ArgumentNull("sagaID")
	}
	if key == "" {
		return apperrors.ArgumentNull("key")
	}
	return nil
}

func tupleKey(sagaID, key string) string {
	return sagaID + "\x00" + key
}
