// Package saga implements the SagaCoordinator (spec component H): it owns
// saga lifecycle, per-instance locking, idempotency, timeout scheduling, and
// outbound message enqueueing for long-running, event-driven workflows.
package saga

import (
	"context"
	"sync"
	"time"

	"github.com/trigintafaces/excalibur-dispatch/internal/apperrors"
	"github.com/trigintafaces/excalibur-dispatch/internal/idempotency"
	"github.com/trigintafaces/excalibur-dispatch/internal/metrics"
	"github.com/trigintafaces/excalibur-dispatch/internal/outbox"
	"github.com/trigintafaces/excalibur-dispatch/internal/sagastate"
	"github.com/trigintafaces/excalibur-dispatch/internal/sagatimeout"
)

// serviceLabel is the Prometheus "service" label value this single-binary
// deployment reports under.
const serviceLabel = "dispatchd"

// Event is an inbound message routed to a saga instance.
type Event struct {
	SagaID         string
	SagaType       string
	EventType      string
	IdempotencyKey string
	Payload        interface{}
}

// OutboundRequest is one message a Handler wants enqueued into the outbox
// once the saga's own state has been persisted.
type OutboundRequest struct {
	Payload       interface{}
	MessageType   string
	Destination   string
	ScheduledAt   *time.Time
	CorrelationID string
}

// TimeoutRequest schedules a new durable timeout for the saga instance.
type TimeoutRequest struct {
	TimeoutID   string
	TimeoutType string
	Payload     []byte
	DueAt       time.Time
}

// HandleResult is what a Handler returns after applying an event: the new
// opaque state, completion status, and any side effects to apply once the
// state has been durably persisted.
type HandleResult struct {
	State             []byte
	IsCompleted       bool
	FailureReason     string
	OutboundMessages  []OutboundRequest
	ScheduleTimeouts  []TimeoutRequest
	CancelTimeouts    []string
	CancelAllTimeouts bool
}

// Handler implements one saga type's business logic. Handle receives the
// current instance (when the saga does not exist yet, i.e. this event opens
// it, a new instance carrying only SagaID, SagaType and CreatedAt) and must
// return the full new state.
type Handler interface {
	SagaType() string
	Handle(ctx context.Context, instance sagastate.Instance, event Event) (HandleResult, error)
}

// Coordinator routes events to their saga handler under a per-instance lock,
// enforces idempotency, persists state, and enqueues outbound messages and
// timeouts.
type Coordinator struct {
	stateStore   sagastate.Store
	timeoutStore sagatimeout.Store
	idempotency  idempotency.Provider
	publisher    *outbox.Publisher

	mu       sync.Mutex
	handlers map[string]Handler
	locks    map[string]*sync.Mutex
}

// New creates a Coordinator with no registered handlers.
func New(stateStore sagastate.Store, timeoutStore sagatimeout.Store, idem idempotency.Provider, publisher *outbox.Publisher) *Coordinator {
	return &Coordinator{
		stateStore:   stateStore,
		timeoutStore: timeoutStore,
		idempotency:  idem,
		publisher:    publisher,
		handlers:     make(map[string]Handler),
		locks:        make(map[string]*sync.Mutex),
	}
}

// RegisterHandler registers handler for its SagaType, replacing any prior
// registration under the same type.
func (c *Coordinator) RegisterHandler(handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[handler.SagaType()] = handler
}

// Dispatch routes event to its saga instance: idempotency check, handler
// invocation, durable persistence, then outbound enqueueing. The per-instance
// lock is held across load/handle/persist and released before any outbound
// dispatch runs.
func (c *Coordinator) Dispatch(ctx context.Context, event Event) error {
	if event.SagaID == "" {
		return apperrors.ArgumentNull("sagaID")
	}
	if event.SagaType == "" {
		return apperrors.ArgumentNull("sagaType")
	}

	handler, ok := c.handlerFor(event.SagaType)
	if !ok {
		return apperrors.ConfigurationMissing("saga handler: " + event.SagaType)
	}

	start := time.Now()
	err := c.dispatchLocked(ctx, handler, event)
	metrics.Global().RecordSagaDispatch(serviceLabel, event.SagaType, outcomeLabel(err), time.Since(start))
	return err
}

func (c *Coordinator) dispatchLocked(ctx context.Context, handler Handler, event Event) error {
	if event.IdempotencyKey != "" {
		processed, err := c.idempotency.IsProcessed(ctx, event.SagaID, event.IdempotencyKey)
		if err != nil {
			return err
		}
		if processed {
			return nil
		}
	}

	lock := c.lockFor(event.SagaID)
	lock.Lock()
	result, instance, err := c.applyLocked(ctx, handler, event)
	lock.Unlock()
	if err != nil {
		return err
	}

	if event.IdempotencyKey != "" {
		if err := c.idempotency.MarkProcessed(ctx, event.SagaID, event.IdempotencyKey); err != nil {
			return err
		}
	}

	return c.applySideEffects(ctx, instance, result)
}

func outcomeLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func (c *Coordinator) applyLocked(ctx context.Context, handler Handler, event Event) (HandleResult, sagastate.Instance, error) {
	instance, err := c.stateStore.Load(ctx, event.SagaID)
	if err != nil {
		if svcErr := apperrors.GetServiceError(err); svcErr == nil || svcErr.Code != apperrors.ErrCodeNotFound {
			return HandleResult{}, sagastate.Instance{}, err
		}
		instance = sagastate.Instance{SagaID: event.SagaID, SagaType: event.SagaType, CreatedAt: time.Now().UTC()}
	}

	result, err := handler.Handle(ctx, instance, event)
	if err != nil {
		return HandleResult{}, sagastate.Instance{}, apperrors.HandlerFailure(event.SagaType, err)
	}

	now := time.Now().UTC()
	instance.State = result.State
	instance.IsCompleted = result.IsCompleted
	instance.FailureReason = result.FailureReason
	instance.UpdatedAt = now
	if result.IsCompleted && instance.CompletedAt.IsZero() {
		instance.CompletedAt = now
	}

	if err := c.stateStore.Save(ctx, instance); err != nil {
		return HandleResult{}, sagastate.Instance{}, err
	}

	return result, instance, nil
}

func (c *Coordinator) applySideEffects(ctx context.Context, instance sagastate.Instance, result HandleResult) error {
	if result.CancelAllTimeouts {
		if err := c.timeoutStore.CancelAll(ctx, instance.SagaID); err != nil {
			return err
		}
	}
	for _, timeoutID := range result.CancelTimeouts {
		if err := c.timeoutStore.Cancel(ctx, instance.SagaID, timeoutID); err != nil {
			return err
		}
	}
	for _, req := range result.ScheduleTimeouts {
		timeout := sagatimeout.Timeout{
			TimeoutID:   req.TimeoutID,
			SagaID:      instance.SagaID,
			SagaType:    instance.SagaType,
			TimeoutType: req.TimeoutType,
			Payload:     req.Payload,
			DueAt:       req.DueAt,
			ScheduledAt: time.Now().UTC(),
		}
		if err := c.timeoutStore.Schedule(ctx, timeout); err != nil {
			return err
		}
	}
	for _, msg := range result.OutboundMessages {
		if _, err := c.publisher.Publish(ctx, msg.Payload, msg.MessageType, msg.Destination, msg.ScheduledAt, nil, msg.CorrelationID); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) handlerFor(sagaType string) (Handler, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handlers[sagaType]
	return h, ok
}

func (c *Coordinator) lockFor(sagaID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[sagaID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[sagaID] = lock
	}
	return lock
}
