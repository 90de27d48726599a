package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/trigintafaces/excalibur-dispatch/internal/apperrors"
)

// MemoryStore is an in-process Store, used by tests and by deployments that
// accept losing staged messages across a process restart.
type MemoryStore struct {
	mu         sync.Mutex
	messages   map[string]Message
	deliveries map[string]map[string]TransportDelivery // messageID -> transportName -> row
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		messages:   make(map[string]Message),
		deliveries: make(map[string]map[string]TransportDelivery),
	}
}

func (s *MemoryStore) StageMessage(ctx context.Context, msg Message) (Message, error) {
	if err := validateStage(msg); err != nil {
		return Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.Status == "" {
		msg.Status = StatusStaged
		if msg.ScheduledAt != nil && msg.ScheduledAt.After(time.Now().UTC()) {
			msg.Status = StatusScheduled
		}
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.messages[msg.ID] = msg
	return msg, nil
}

func (s *MemoryStore) GetUnsent(ctx context.Context, limit int) ([]Message, error) {
	return s.filterOrdered(limit, func(m Message) bool { return m.Status == StatusStaged }), nil
}

func (s *MemoryStore) GetScheduledDue(ctx context.Context, limit int) ([]Message, error) {
	now := time.Now().UTC()
	return s.filterOrdered(limit, func(m Message) bool {
		return m.Status == StatusScheduled && m.ScheduledAt != nil && !m.ScheduledAt.After(now)
	}), nil
}

func (s *MemoryStore) GetFailed(ctx context.Context, maxRetries int, since *time.Time, limit int) ([]Message, error) {
	return s.filterOrdered(limit, func(m Message) bool {
		if m.Status != StatusFailed || m.RetryCount >= maxRetries {
			return false
		}
		if since != nil && m.CreatedAt.Before(*since) {
			return false
		}
		return true
	}), nil
}

func (s *MemoryStore) filterOrdered(limit int, keep func(Message) bool) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Message
	for _, m := range s.messages {
		if keep(m) {
			out = append(out, m)
		}
	}
	sortByCreatedAt(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortByCreatedAt(msgs []Message) {
	for i := 1; i < len(msgs); i++ {
		for j := i; j > 0 && msgs[j].CreatedAt.Before(msgs[j-1].CreatedAt); j-- {
			msgs[j], msgs[j-1] = msgs[j-1], msgs[j]
		}
	}
}

func (s *MemoryStore) MarkSent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return apperrors.NotFound("outbox_message", id)
	}
	m.Status = StatusPublished
	now := time.Now().UTC()
	m.LastAttemptAt = &now
	s.messages[id] = m
	return nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, id, errMsg string, retryCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return apperrors.NotFound("outbox_message", id)
	}
	m.Status = StatusFailed
	m.LastError = errMsg
	m.RetryCount = retryCount
	now := time.Now().UTC()
	m.LastAttemptAt = &now
	s.messages[id] = m
	return nil
}

func (s *MemoryStore) StageTransportDeliveries(ctx context.Context, messageID string, deliveries []TransportDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byTransport, ok := s.deliveries[messageID]
	if !ok {
		byTransport = make(map[string]TransportDelivery)
		s.deliveries[messageID] = byTransport
	}
	for _, d := range deliveries {
		if _, exists := byTransport[d.TransportName]; exists {
			continue
		}
		d.MessageID = messageID
		d.Status = TransportPending
		byTransport[d.TransportName] = d
	}
	return nil
}

func (s *MemoryStore) GetPendingTransportDeliveries(ctx context.Context, transportName string, limit int) ([]TransportDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []TransportDelivery
	for _, byTransport := range s.deliveries {
		if d, ok := byTransport[transportName]; ok && d.Status == TransportPending {
			out = append(out, d)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkTransportSent(ctx context.Context, messageID, transportName string) error {
	s.mu.Lock()
	byTransport, ok := s.deliveries[messageID]
	if !ok {
		s.mu.Unlock()
		return apperrors.NotFound("transport_delivery", messageID)
	}
	d := byTransport[transportName]
	d.Status = TransportSent
	byTransport[transportName] = d

	allSent := true
	for _, row := range byTransport {
		if row.Status != TransportSent {
			allSent = false
			break
		}
	}
	s.mu.Unlock()

	if allSent {
		return s.MarkSent(ctx, messageID)
	}
	return nil
}

func (s *MemoryStore) MarkTransportFailed(ctx context.Context, messageID, transportName, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byTransport, ok := s.deliveries[messageID]
	if !ok {
		return apperrors.NotFound("transport_delivery", messageID)
	}
	d := byTransport[transportName]
	d.Status = TransportFailed
	d.LastError = errMsg
	d.RetryCount++
	byTransport[transportName] = d
	return nil
}
