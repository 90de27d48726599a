package saga

import (
	"context"
	"time"

	"github.com/trigintafaces/excalibur-dispatch/internal/dispatcher"
	"github.com/trigintafaces/excalibur-dispatch/internal/logging"
	"github.com/trigintafaces/excalibur-dispatch/internal/metrics"
	"github.com/trigintafaces/excalibur-dispatch/internal/sagatimeout"
)

// TypeResolver is the subset of Serializer the timeout delivery loop needs
// to turn a timeoutType tag into a dispatchable payload.
type TypeResolver interface {
	HasType(typeName string) bool
	DeserializeObject(data []byte, typeName string) (interface{}, error)
	NewDefault(typeName string) (interface{}, error)
}

// TimeoutDeliveryOptions configures the poll cadence and batch size.
type TimeoutDeliveryOptions struct {
	PollInterval time.Duration
	BatchSize    int
}

// DefaultTimeoutDeliveryOptions matches the spec's defaults.
func DefaultTimeoutDeliveryOptions() TimeoutDeliveryOptions {
	return TimeoutDeliveryOptions{PollInterval: 200 * time.Millisecond, BatchSize: 100}
}

// TimeoutDeliveryLoop polls TimeoutStore.GetDue and dispatches due timeouts
// through the in-process bus.
type TimeoutDeliveryLoop struct {
	store    sagatimeout.Store
	bus      *dispatcher.Bus
	resolver TypeResolver
	opts     TimeoutDeliveryOptions
	logger   *logging.Logger
	stopCh   chan struct{}
}

// NewTimeoutDeliveryLoop creates a TimeoutDeliveryLoop.
func NewTimeoutDeliveryLoop(store sagatimeout.Store, bus *dispatcher.Bus, resolver TypeResolver, opts TimeoutDeliveryOptions, logger *logging.Logger) *TimeoutDeliveryLoop {
	return &TimeoutDeliveryLoop{store: store, bus: bus, resolver: resolver, opts: opts, logger: logger, stopCh: make(chan struct{})}
}

// Run polls GetDue every PollInterval until ctx is cancelled or Stop is
// called. A panic or error during one pass is logged and the loop continues.
func (l *TimeoutDeliveryLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.runPass(ctx)
		}
	}
}

// Stop requests the loop exit after its current pass finishes.
func (l *TimeoutDeliveryLoop) Stop() {
	close(l.stopCh)
}

func (l *TimeoutDeliveryLoop) runPass(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil && l.logger != nil {
			l.logger.Error(ctx, "saga timeout delivery pass panicked", nil, map[string]interface{}{"panic": r})
		}
	}()

	due, err := l.store.GetDue(ctx, time.Now().UTC(), l.opts.BatchSize)
	if err != nil {
		if l.logger != nil {
			l.logger.Error(ctx, "saga timeout poll failed", err, nil)
		}
		return
	}

	for _, timeout := range due {
		l.deliverOne(ctx, timeout)
	}
}

func (l *TimeoutDeliveryLoop) deliverOne(ctx context.Context, timeout sagatimeout.Timeout) {
	if !l.resolver.HasType(timeout.TimeoutType) {
		l.logDelivery(ctx, timeout, false, nil)
		_ = l.store.MarkDelivered(ctx, timeout.TimeoutID)
		metrics.Global().RecordSagaTimeout(serviceLabel, "unresolved_type")
		return
	}

	payload, err := l.resolvePayload(timeout)
	if err != nil {
		l.logDelivery(ctx, timeout, false, err)
		_ = l.store.MarkDelivered(ctx, timeout.TimeoutID)
		metrics.Global().RecordSagaTimeout(serviceLabel, "resolve_error")
		return
	}

	result, err := l.bus.Dispatch(ctx, dispatcher.Message{TypeName: timeout.TimeoutType, Payload: payload})
	if err != nil || len(result.Errors) > 0 {
		dispatchErr := err
		if dispatchErr == nil && len(result.Errors) > 0 {
			dispatchErr = result.Errors[0]
		}
		l.logDelivery(ctx, timeout, false, dispatchErr)
		metrics.Global().RecordSagaTimeout(serviceLabel, "dispatch_error")
		return
	}

	l.logDelivery(ctx, timeout, true, nil)
	_ = l.store.MarkDelivered(ctx, timeout.TimeoutID)
	metrics.Global().RecordSagaTimeout(serviceLabel, "delivered")
}

func (l *TimeoutDeliveryLoop) resolvePayload(timeout sagatimeout.Timeout) (interface{}, error) {
	if len(timeout.Payload) == 0 {
		return l.resolver.NewDefault(timeout.TimeoutType)
	}
	return l.resolver.DeserializeObject(timeout.Payload, timeout.TimeoutType)
}

func (l *TimeoutDeliveryLoop) logDelivery(ctx context.Context, timeout sagatimeout.Timeout, delivered bool, err error) {
	if l.logger == nil {
		return
	}
	l.logger.LogSagaTimeout(ctx, timeout.SagaID, timeout.TimeoutID, timeout.TimeoutType, delivered, err)
}
