package outbox

import (
	"context"
	"time"

	"github.com/trigintafaces/excalibur-dispatch/internal/logging"
)

// ProcessingOptions configures the background drain cadence.
type ProcessingOptions struct {
	PollingInterval          time.Duration
	MaxRetries               int
	ProcessScheduledMessages bool
	RetryFailedMessages      bool
	Enabled                  bool
}

// DefaultProcessingOptions matches the spec defaults.
func DefaultProcessingOptions() ProcessingOptions {
	return ProcessingOptions{
		PollingInterval:          5 * time.Second,
		MaxRetries:               3,
		ProcessScheduledMessages: true,
		RetryFailedMessages:      true,
		Enabled:                  true,
	}
}

// BackgroundLoop fires Publisher cycles on a configurable cadence. If
// Enabled is false it never polls the store.
type BackgroundLoop struct {
	publisher *Publisher
	opts      ProcessingOptions
	logger    *logging.Logger
	stopCh    chan struct{}
}

// NewBackgroundLoop creates a BackgroundLoop over publisher.
func NewBackgroundLoop(publisher *Publisher, opts ProcessingOptions, logger *logging.Logger) *BackgroundLoop {
	return &BackgroundLoop{publisher: publisher, opts: opts, logger: logger, stopCh: make(chan struct{})}
}

// Run blocks, firing RunOnce every PollingInterval until ctx is cancelled or
// Stop is called.
func (l *BackgroundLoop) Run(ctx context.Context) {
	if !l.opts.Enabled {
		return
	}

	ticker := time.NewTicker(l.opts.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.RunOnce(ctx)
		}
	}
}

// Stop requests the loop exit; Run's current cycle finishes first.
func (l *BackgroundLoop) Stop() {
	close(l.stopCh)
}

// RunOnce runs a single publish/retry cycle. Any error is logged and
// swallowed so a transient store outage does not kill the loop.
func (l *BackgroundLoop) RunOnce(ctx context.Context) {
	if !l.opts.Enabled {
		return
	}

	if result, err := l.publisher.PublishPending(ctx); err != nil {
		l.logCycle(ctx, "publish_pending", result, err)
	} else {
		l.logCycle(ctx, "publish_pending", result, nil)
	}

	if l.opts.ProcessScheduledMessages {
		if result, err := l.publisher.PublishScheduled(ctx); err != nil {
			l.logCycle(ctx, "publish_scheduled", result, err)
		} else {
			l.logCycle(ctx, "publish_scheduled", result, nil)
		}
	}

	if l.opts.RetryFailedMessages {
		if result, err := l.publisher.RetryFailed(ctx, l.opts.MaxRetries); err != nil {
			l.logCycle(ctx, "retry_failed", result, err)
		} else {
			l.logCycle(ctx, "retry_failed", result, nil)
		}
	}
}

func (l *BackgroundLoop) logCycle(ctx context.Context, stage string, result PublishingResult, err error) {
	if l.logger == nil {
		return
	}
	l.logger.LogOutboxCycle(ctx, stage, result.SuccessCount, result.FailureCount, err)
}
