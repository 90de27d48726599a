package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/trigintafaces/excalibur-dispatch/internal/apperrors"
	"github.com/trigintafaces/excalibur-dispatch/internal/metrics"
)

// Archiver receives events about to be deleted by a retention sweep, before
// the delete commits. A non-nil error aborts that sweep pass.
type Archiver interface {
	Archive(ctx context.Context, events []Event) error
}

// RetentionOptions configures RetentionSweep. Zero-value fields fall back to
// the spec defaults.
type RetentionOptions struct {
	RetentionPeriod     time.Duration
	CleanupInterval     time.Duration
	BatchSize           int
	ArchiveBeforeDelete bool
}

func DefaultRetentionOptions() RetentionOptions {
	return RetentionOptions{
		RetentionPeriod: 7 * 365 * 24 * time.Hour,
		CleanupInterval: 24 * time.Hour,
		BatchSize:       10000,
	}
}

// RetentionSweepResult reports one RunOnce pass.
type RetentionSweepResult struct {
	Deleted        int
	CheckpointSeq  int64
	CheckpointHash string
}

// RetentionSweep periodically deletes the oldest contiguous prefix of the
// audit log older than RetentionPeriod.
//
// Open question resolved: retention always deletes a contiguous oldest
// prefix (by SequenceNumber), never a scattered set of rows. After a sweep,
// VerifyChainIntegrity(start, end) treats the sequence number and
// previousEventHash of the oldest surviving row as a checkpoint anchor
// instead of requiring a chain back to sequence 1 — Store.VerifyChainIntegrity
// already implements this: when the row at start-1 has been pruned it seeds
// its walk from the first surviving row's own previousEventHash, so the
// remaining range verifies cleanly without needing a synthetic genesis
// marker. Archival (when enabled) happens before the
// delete commits, so a crash between archive and delete only risks
// re-archiving the same rows, never losing them.
type RetentionSweep struct {
	store    Store
	reader   Queryable
	archiver Archiver
	opts     RetentionOptions
	logger   RetentionLogger
	stopCh   chan struct{}
}

// Queryable is the subset of Store RetentionSweep needs to read rows before
// deleting them, when archival is enabled.
type Queryable interface {
	Query(ctx context.Context, query Query) ([]Event, error)
}

// RetentionLogger records the outcome of each sweep pass.
type RetentionLogger interface {
	LogRetentionSweep(ctx context.Context, deleted int, checkpointSeq int64, err error)
}

func NewRetentionSweep(store Store, archiver Archiver, opts RetentionOptions, logger RetentionLogger) *RetentionSweep {
	if opts.RetentionPeriod <= 0 {
		opts.RetentionPeriod = DefaultRetentionOptions().RetentionPeriod
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultRetentionOptions().CleanupInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultRetentionOptions().BatchSize
	}
	return &RetentionSweep{
		store:    store,
		reader:   store,
		archiver: archiver,
		opts:     opts,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Run ticks every CleanupInterval until ctx is cancelled or Stop is called.
func (s *RetentionSweep) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

func (s *RetentionSweep) Stop() {
	close(s.stopCh)
}

// RunOnce deletes one batch of rows older than the retention horizon,
// archiving them first if configured. Panics from the archiver are
// recovered so one failing sweep never crashes the scheduling loop.
func (s *RetentionSweep) RunOnce(ctx context.Context) (result RetentionSweepResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.New(apperrors.ErrCodeHandlerFailure, "retention sweep panicked", http.StatusInternalServerError).
				WithDetails("panic", r)
		}
		if s.logger != nil {
			s.logger.LogRetentionSweep(ctx, result.Deleted, result.CheckpointSeq, err)
		}
	}()

	cutoff := time.Now().UTC().Add(-s.opts.RetentionPeriod)

	if s.opts.ArchiveBeforeDelete && s.archiver != nil {
		toArchive, queryErr := s.reader.Query(ctx, Query{EndDate: cutoff, Ascending: true, MaxResults: s.opts.BatchSize})
		if queryErr != nil {
			return RetentionSweepResult{}, queryErr
		}
		if len(toArchive) > 0 {
			if archiveErr := s.archiver.Archive(ctx, toArchive); archiveErr != nil {
				return RetentionSweepResult{}, archiveErr
			}
		}
	}

	deleted, checkpointSeq, checkpointHash, deleteErr := s.store.DeleteBefore(ctx, cutoff, s.opts.BatchSize)
	if deleteErr != nil {
		return RetentionSweepResult{}, deleteErr
	}

	if deleted > 0 {
		metrics.Global().RecordAuditRetentionDelete(serviceLabel, deleted)
	}

	result = RetentionSweepResult{Deleted: deleted, CheckpointSeq: checkpointSeq, CheckpointHash: checkpointHash}
	return result, nil
}
