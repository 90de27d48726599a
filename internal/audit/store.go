package audit

import (
	"context"
	"time"
)

// IntegrityStatus is the outcome of VerifyChainIntegrity.
type IntegrityStatus string

const (
	IntegrityValid   IntegrityStatus = "Valid"
	IntegrityInvalid IntegrityStatus = "Invalid"
)

// IntegrityResult reports whether the hash chain over [start, end] is
// intact. On the first broken link, FirstViolationEventID/Description are
// set and ViolationCount keeps counting (up to an implementation limit) so
// operators can gauge blast radius.
type IntegrityResult struct {
	Status                IntegrityStatus
	EventsVerified        int64
	Start                 int64
	End                   int64
	FirstViolationEventID string
	Description           string
	ViolationCount        int
}

// Store is the append-only AuditStore: Append computes the hash chain,
// GetByID/Query read it, VerifyChainIntegrity recomputes and compares.
type Store interface {
	Append(ctx context.Context, event Event) (AppendResult, error)
	GetByID(ctx context.Context, eventID string) (Event, error)
	Query(ctx context.Context, query Query) ([]Event, error)
	VerifyChainIntegrity(ctx context.Context, start, end int64) (IntegrityResult, error)
	// DeleteBefore removes up to limit of the oldest rows with Timestamp
	// strictly before cutoff, for AuditRetentionSweep. Deletion always
	// proceeds from SequenceNumber 1 upward so the surviving log remains a
	// contiguous suffix. Returns the number of rows deleted and the
	// sequence number/hash of the oldest remaining row (the new checkpoint
	// anchor), or (0, "") if the table is now empty.
	DeleteBefore(ctx context.Context, cutoff time.Time, limit int) (deleted int, checkpointSeq int64, checkpointHash string, err error)
}
