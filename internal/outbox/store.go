// Package outbox implements the transactional outbox: staging outbound
// messages alongside business state, draining them to registered
// transports, and tracking per-transport fan-out delivery.
package outbox

import (
	"context"
	"time"

	"github.com/trigintafaces/excalibur-dispatch/internal/apperrors"
)

// Status is the lifecycle state of an OutboundMessage.
type Status string

const (
	StatusStaged    Status = "Staged"
	StatusPublished Status = "Published"
	StatusFailed    Status = "Failed"
	StatusScheduled Status = "Scheduled"
)

// TransportStatus is the lifecycle state of one fan-out row.
type TransportStatus string

const (
	TransportPending TransportStatus = "Pending"
	TransportSent    TransportStatus = "Sent"
	TransportFailed  TransportStatus = "Failed"
)

// Message is an OutboundMessage: a staged payload awaiting delivery.
type Message struct {
	ID            string
	MessageType   string
	Payload       []byte
	Destination   string
	Headers       map[string]string
	CorrelationID string
	ScheduledAt   *time.Time
	Status        Status
	RetryCount    int
	LastError     string
	CreatedAt     time.Time
	LastAttemptAt *time.Time
}

// TransportDelivery is an OutboundMessageTransport fan-out row.
type TransportDelivery struct {
	MessageID     string
	TransportName string
	Destination   string
	Status        TransportStatus
	RetryCount    int
	LastError     string
}

// Store is the OutboxStore collaborator: staged/scheduled/failed messages
// plus per-transport delivery rows.
type Store interface {
	StageMessage(ctx context.Context, msg Message) (Message, error)
	GetUnsent(ctx context.Context, limit int) ([]Message, error)
	GetScheduledDue(ctx context.Context, limit int) ([]Message, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errMsg string, retryCount int) error
	GetFailed(ctx context.Context, maxRetries int, since *time.Time, limit int) ([]Message, error)

	StageTransportDeliveries(ctx context.Context, messageID string, deliveries []TransportDelivery) error
	GetPendingTransportDeliveries(ctx context.Context, transportName string, limit int) ([]TransportDelivery, error)
	MarkTransportSent(ctx context.Context, messageID, transportName string) error
	MarkTransportFailed(ctx context.Context, messageID, transportName, errMsg string) error
}

func validateStage(msg Message) error {
	if msg.ID == "" {
		return apperrors.ArgumentNull("id")
	}
	if msg.Destination == "" {
		return apperrors.ArgumentNull("destination")
	}
	return nil
}
