// Package batch coalesces items submitted one at a time into size- or
// age-bounded batches for a user callback (spec component C).
package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/trigintafaces/excalibur-dispatch/internal/dispatchchannel"
	"github.com/trigintafaces/excalibur-dispatch/internal/logging"
)

// Options bounds how a Processor groups items.
type Options struct {
	MaxBatchSize  int           // must be >= 1
	MaxBatchDelay time.Duration // must be > 0
}

// Process is the user callback invoked once per batch. 1 <= len(batch) <=
// MaxBatchSize always holds; Process is never called with an empty batch.
type Process[T any] func(batch []T)

// Processor feeds a bounded input channel into a background loop that
// coalesces items and invokes Process on size or age boundaries.
type Processor[T any] struct {
	opts    Options
	process Process[T]
	logger  *logging.Logger

	input *dispatchchannel.Channel[T]

	wg      sync.WaitGroup
	stopCh  chan struct{}
	stopped sync.Once
}

// New creates a Processor backed by a bounded channel of the given capacity
// (the spec requires BatchProcessor input to always be bounded, to cap
// memory use independent of producer speed).
func New[T any](opts Options, inputCapacity int, process Process[T], logger *logging.Logger) *Processor[T] {
	if opts.MaxBatchSize < 1 {
		opts.MaxBatchSize = 1
	}
	if opts.MaxBatchDelay <= 0 {
		opts.MaxBatchDelay = 100 * time.Millisecond
	}
	if inputCapacity < opts.MaxBatchSize {
		inputCapacity = opts.MaxBatchSize
	}

	p := &Processor[T]{
		opts:    opts,
		process: process,
		logger:  logger,
		input: dispatchchannel.New[T](dispatchchannel.Options{
			Mode:     dispatchchannel.Bounded,
			Capacity: inputCapacity,
			FullMode: dispatchchannel.Wait,
		}),
		stopCh: make(chan struct{}),
	}

	p.wg.Add(1)
	go p.run()

	return p
}

// Submit enqueues item for batching. It blocks under back-pressure from the
// bounded input channel; a cancelled ctx returns before enqueuing.
func (p *Processor[T]) Submit(ctx context.Context, item T) error {
	return p.input.Write(ctx, item)
}

// TrySubmit attempts a non-blocking enqueue.
func (p *Processor[T]) TrySubmit(item T) bool {
	return p.input.TryWrite(item)
}

func (p *Processor[T]) run() {
	defer p.wg.Done()

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	go func() {
		<-p.stopCh
		cancelBase()
	}()

	batch := make([]T, 0, p.opts.MaxBatchSize)

	for {
		if len(batch) == 0 {
			item, err := p.input.Read(baseCtx)
			if err != nil {
				// Nothing buffered: either drained-and-complete or a forced
				// cancel, either way there is nothing to flush.
				return
			}
			batch = append(batch, item)
			if len(batch) >= p.opts.MaxBatchSize {
				p.dispatch(batch)
				batch = make([]T, 0, p.opts.MaxBatchSize)
			}
			continue
		}

		deadlineCtx, cancelDeadline := context.WithTimeout(baseCtx, p.opts.MaxBatchDelay)
		item, err := p.input.Read(deadlineCtx)
		deadlineExceeded := errors.Is(deadlineCtx.Err(), context.DeadlineExceeded)
		cancelDeadline()

		if err != nil {
			// Cancel closes stopCh before completing the input channel, so a
			// closed stopCh here means a forced Cancel, which skips the flush.
			cancelled := false
			select {
			case <-p.stopCh:
				cancelled = true
			default:
			}
			if !cancelled {
				// Completion (drained) or batch-delay expiry: flush what we
				// have.
				p.dispatch(batch)
			}
			batch = make([]T, 0, p.opts.MaxBatchSize)
			if deadlineExceeded && baseCtx.Err() == nil {
				continue
			}
			return
		}

		batch = append(batch, item)
		if len(batch) >= p.opts.MaxBatchSize {
			p.dispatch(batch)
			batch = make([]T, 0, p.opts.MaxBatchSize)
		}
	}
}

// dispatch invokes Process with panic recovery: a failing batch is logged
// and dropped (at-most-once delivery to the callback per batch), the
// processor continues consuming subsequent items.
func (p *Processor[T]) dispatch(batch []T) {
	if len(batch) == 0 {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			if p.logger != nil {
				p.logger.Error(context.Background(), "batch processor callback panicked", nil, map[string]interface{}{
					"batch_size": len(batch),
					"panic":      r,
				})
			}
		}
	}()
	p.process(batch)
}

// Close flushes any pending items and blocks until the background loop
// exits.
func (p *Processor[T]) Close() {
	p.stopped.Do(func() {
		p.input.Complete()
	})
	p.wg.Wait()
}

// Cancel tears the processor down immediately, dropping any buffered but
// not-yet-flushed items instead of delivering a final partial batch.
func (p *Processor[T]) Cancel() {
	p.stopped.Do(func() {
		close(p.stopCh)
		p.input.Complete()
	})
	p.wg.Wait()
}
