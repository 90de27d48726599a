package outbox

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trigintafaces/excalibur-dispatch/internal/apperrors"
	"github.com/trigintafaces/excalibur-dispatch/internal/dispatcher"
	"github.com/trigintafaces/excalibur-dispatch/internal/metrics"
	"github.com/trigintafaces/excalibur-dispatch/internal/serializer"
	"github.com/trigintafaces/excalibur-dispatch/internal/transport"
)

// serviceLabel is the Prometheus "service" label value this single-binary
// deployment reports under.
const serviceLabel = "dispatchd"

const inProcessTransportLabel = "in-process"

// PublishingResult summarises one drain cycle.
type PublishingResult struct {
	SuccessCount int
	FailureCount int
	Errors       []error
}

// Statistics are cumulative publisher counters. SuccessRate starts at 100%
// before any operation has run.
type Statistics struct {
	Operations         int64
	MessagesPublished  int64
	MessagesFailed     int64
	RollingSuccessRate float64
}

// Publisher is the OutboxPublisher: it stages messages, drains them through
// the in-process dispatcher, and fans pending rows out to registered
// transport adapters.
type Publisher struct {
	store      Store
	bus        *dispatcher.Bus
	registry   *transport.Registry
	serializer serializer.Serializer
	batchSize  int

	mu    sync.Mutex
	stats Statistics
}

// Options configures batch sizing for drain operations.
type Options struct {
	BatchSize int
}

// New creates a Publisher. A zero Options.BatchSize defaults to 100.
func New(store Store, bus *dispatcher.Bus, registry *transport.Registry, ser serializer.Serializer, opts Options) *Publisher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &Publisher{store: store, bus: bus, registry: registry, serializer: ser, batchSize: opts.BatchSize, stats: Statistics{RollingSuccessRate: 100}}
}

// Publish serializes obj under typeName and stages it for delivery to
// destination. scheduledAt nil means deliver as soon as a drain cycle runs.
func (p *Publisher) Publish(ctx context.Context, obj interface{}, typeName, destination string, scheduledAt *time.Time, headers map[string]string, correlationID string) (Message, error) {
	if obj == nil {
		return Message{}, apperrors.ArgumentNull("obj")
	}
	if destination == "" {
		return Message{}, apperrors.ArgumentNull("destination")
	}

	payload, err := p.serializer.SerializeObject(obj, typeName)
	if err != nil {
		return Message{}, err
	}

	msg := Message{
		ID:            uuid.NewString(),
		MessageType:   typeName,
		Payload:       payload,
		Destination:   destination,
		Headers:       headers,
		CorrelationID: correlationID,
		ScheduledAt:   scheduledAt,
	}
	return p.store.StageMessage(ctx, msg)
}

// PublishPending drains one batch of Staged messages through the in-process
// bus.
func (p *Publisher) PublishPending(ctx context.Context) (PublishingResult, error) {
	msgs, err := p.store.GetUnsent(ctx, p.batchSize)
	if err != nil {
		return PublishingResult{}, err
	}
	metrics.Global().SetOutboxPending(len(msgs))
	return p.drain(ctx, msgs)
}

// PublishScheduled drains Scheduled messages whose scheduledAt has passed.
func (p *Publisher) PublishScheduled(ctx context.Context) (PublishingResult, error) {
	msgs, err := p.store.GetScheduledDue(ctx, p.batchSize)
	if err != nil {
		return PublishingResult{}, err
	}
	return p.drain(ctx, msgs)
}

// RetryFailed re-dispatches Failed rows with retryCount < maxRetries.
func (p *Publisher) RetryFailed(ctx context.Context, maxRetries int) (PublishingResult, error) {
	if maxRetries < 0 {
		return PublishingResult{}, apperrors.ArgumentInvalid("maxRetries", "must be >= 0")
	}
	msgs, err := p.store.GetFailed(ctx, maxRetries, nil, p.batchSize)
	if err != nil {
		return PublishingResult{}, err
	}
	for range msgs {
		metrics.Global().RecordOutboxRetry(serviceLabel, inProcessTransportLabel)
	}
	return p.drain(ctx, msgs)
}

func (p *Publisher) drain(ctx context.Context, msgs []Message) (PublishingResult, error) {
	result := PublishingResult{}
	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		start := time.Now()
		dispatchResult, err := p.bus.Dispatch(ctx, dispatcher.Message{TypeName: msg.MessageType, Payload: msg.Payload})
		duration := time.Since(start)
		p.recordOperation()
		if err != nil {
			metrics.Global().RecordOutboxPublish(serviceLabel, inProcessTransportLabel, "error", duration)
			return result, err
		}

		if len(dispatchResult.Errors) > 0 {
			failErr := dispatchResult.Errors[0]
			_ = p.store.MarkFailed(ctx, msg.ID, failErr.Error(), msg.RetryCount+1)
			result.FailureCount++
			result.Errors = append(result.Errors, failErr)
			p.recordOutcome(false)
			metrics.Global().RecordOutboxPublish(serviceLabel, inProcessTransportLabel, "failure", duration)
			continue
		}

		if err := p.store.MarkSent(ctx, msg.ID); err != nil {
			result.FailureCount++
			result.Errors = append(result.Errors, err)
			p.recordOutcome(false)
			metrics.Global().RecordOutboxPublish(serviceLabel, inProcessTransportLabel, "failure", duration)
			continue
		}
		result.SuccessCount++
		p.recordOutcome(true)
		metrics.Global().RecordOutboxPublish(serviceLabel, inProcessTransportLabel, "success", duration)
	}
	return result, nil
}

// PublishPendingTransportDeliveries sends pending fan-out rows for
// transportName via its registered adapter.
func (p *Publisher) PublishPendingTransportDeliveries(ctx context.Context, transportName string, limit int) (PublishingResult, error) {
	adapter, err := p.registry.MustResolve(transportName)
	if err != nil {
		return PublishingResult{}, apperrors.New(apperrors.ErrCodeConfigurationMissing, "no adapter registered for transport", http.StatusFailedDependency).WithDetails("transport", transportName)
	}

	deliveries, err := p.store.GetPendingTransportDeliveries(ctx, transportName, limit)
	if err != nil {
		return PublishingResult{}, err
	}

	result := PublishingResult{}
	for _, d := range deliveries {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		start := time.Now()
		sendErr := adapter.Send(ctx, transport.Message{MessageID: d.MessageID, MessageType: "", Payload: nil}, d.Destination)
		duration := time.Since(start)
		p.recordOperation()
		if sendErr != nil {
			_ = p.store.MarkTransportFailed(ctx, d.MessageID, transportName, sendErr.Error())
			result.FailureCount++
			result.Errors = append(result.Errors, sendErr)
			p.recordOutcome(false)
			metrics.Global().RecordOutboxPublish(serviceLabel, transportName, "failure", duration)
			continue
		}

		if err := p.store.MarkTransportSent(ctx, d.MessageID, transportName); err != nil {
			result.FailureCount++
			result.Errors = append(result.Errors, err)
			p.recordOutcome(false)
			metrics.Global().RecordOutboxPublish(serviceLabel, transportName, "failure", duration)
			continue
		}
		result.SuccessCount++
		p.recordOutcome(true)
		metrics.Global().RecordOutboxPublish(serviceLabel, transportName, "success", duration)
	}
	return result, nil
}

// Statistics returns a snapshot of cumulative counters.
func (p *Publisher) Statistics() Statistics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Publisher) recordOperation() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Operations++
}

func (p *Publisher) recordOutcome(success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if success {
		p.stats.MessagesPublished++
	} else {
		p.stats.MessagesFailed++
	}
	total := p.stats.MessagesPublished + p.stats.MessagesFailed
	if total == 0 {
		p.stats.RollingSuccessRate = 100
		return
	}
	p.stats.RollingSuccessRate = float64(p.stats.MessagesPublished) / float64(total) * 100
}
