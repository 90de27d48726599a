package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/trigintafaces/excalibur-dispatch/internal/apperrors"
)

// PostgresStore persists outbox rows in dispatch_outbox_messages and
// dispatch_outbox_transport_deliveries.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres creates a PostgresStore using db.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) StageMessage(ctx context.Context, msg Message) (Message, error) {
	if err := validateStage(msg); err != nil {
		return Message{}, err
	}

	if msg.Status == "" {
		msg.Status = StatusStaged
		if msg.ScheduledAt != nil && msg.ScheduledAt.After(time.Now().UTC()) {
			msg.Status = StatusScheduled
		}
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	headersJSON, err := json.Marshal(msg.Headers)
	if err != nil {
		return Message{}, apperrors.DatabaseError("stage_message_marshal", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dispatch_outbox_messages
			(id, message_type, payload, destination, headers, correlation_id, scheduled_at, status, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, msg.ID, msg.MessageType, msg.Payload, msg.Destination, headersJSON, nullString(msg.CorrelationID),
		msg.ScheduledAt, string(msg.Status), msg.RetryCount, msg.CreatedAt)
	if err != nil {
		return Message{}, apperrors.DatabaseError("stage_message", err)
	}

	return msg, nil
}

func (s *PostgresStore) GetUnsent(ctx context.Context, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_type, payload, destination, headers, correlation_id, scheduled_at,
		       status, retry_count, last_error, created_at, last_attempt_at
		FROM dispatch_outbox_messages
		WHERE status = 'Staged'
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apperrors.DatabaseError("get_unsent", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (s *PostgresStore) GetScheduledDue(ctx context.Context, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_type, payload, destination, headers, correlation_id, scheduled_at,
		       status, retry_count, last_error, created_at, last_attempt_at
		FROM dispatch_outbox_messages
		WHERE status = 'Scheduled' AND scheduled_at <= now()
		ORDER BY scheduled_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apperrors.DatabaseError("get_scheduled_due", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (s *PostgresStore) MarkSent(ctx context.Context, id string) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE dispatch_outbox_messages
		SET status = $2, last_attempt_at = $3
		WHERE id = $1 AND status <> 'Published'
	`, id, string(StatusPublished), now)
	if err != nil {
		return apperrors.DatabaseError("mark_sent", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperrors.NotFound("outbox_message", id)
	}
	return nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id, errMsg string, retryCount int) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE dispatch_outbox_messages
		SET status = $2, last_error = $3, retry_count = $4, last_attempt_at = $5
		WHERE id = $1
	`, id, string(StatusFailed), errMsg, retryCount, now)
	if err != nil {
		return apperrors.DatabaseError("mark_failed", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperrors.NotFound("outbox_message", id)
	}
	return nil
}

func (s *PostgresStore) GetFailed(ctx context.Context, maxRetries int, since *time.Time, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_type, payload, destination, headers, correlation_id, scheduled_at,
		       status, retry_count, last_error, created_at, last_attempt_at
		FROM dispatch_outbox_messages
		WHERE status = 'Failed' AND retry_count < $1 AND ($2::timestamptz IS NULL OR created_at >= $2)
		ORDER BY created_at ASC
		LIMIT $3
	`, maxRetries, since, limit)
	if err != nil {
		return nil, apperrors.DatabaseError("get_failed", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (s *PostgresStore) StageTransportDeliveries(ctx context.Context, messageID string, deliveries []TransportDelivery) error {
	for _, d := range deliveries {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO dispatch_outbox_transport_deliveries (message_id, transport_name, destination, status, retry_count)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (message_id, transport_name) DO NOTHING
		`, messageID, d.TransportName, d.Destination, string(TransportPending), 0)
		if err != nil {
			return apperrors.DatabaseError("stage_transport_delivery", err)
		}
	}
	return nil
}

func (s *PostgresStore) GetPendingTransportDeliveries(ctx context.Context, transportName string, limit int) ([]TransportDelivery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, transport_name, destination, status, retry_count, last_error
		FROM dispatch_outbox_transport_deliveries
		WHERE transport_name = $1 AND status = 'Pending'
		ORDER BY message_id ASC
		LIMIT $2
	`, transportName, limit)
	if err != nil {
		return nil, apperrors.DatabaseError("get_pending_transport_deliveries", err)
	}
	defer rows.Close()

	var out []TransportDelivery
	for rows.Next() {
		var d TransportDelivery
		var lastError sql.NullString
		if err := rows.Scan(&d.MessageID, &d.TransportName, &d.Destination, &d.Status, &d.RetryCount, &lastError); err != nil {
			return nil, apperrors.DatabaseError("scan_transport_delivery", err)
		}
		d.LastError = lastError.String
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkTransportSent(ctx context.Context, messageID, transportName string) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE dispatch_outbox_transport_deliveries SET status = 'Sent' WHERE message_id = $1 AND transport_name = $2
	`, messageID, transportName); err != nil {
		return apperrors.DatabaseError("mark_transport_sent", err)
	}
	return s.publishIfAllTransportsSent(ctx, messageID)
}

func (s *PostgresStore) MarkTransportFailed(ctx context.Context, messageID, transportName, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE dispatch_outbox_transport_deliveries
		SET status = 'Failed', last_error = $3, retry_count = retry_count + 1
		WHERE message_id = $1 AND transport_name = $2
	`, messageID, transportName, errMsg)
	if err != nil {
		return apperrors.DatabaseError("mark_transport_failed", err)
	}
	return nil
}

// publishIfAllTransportsSent promotes the parent message to Published once
// every fan-out row for it reports Sent.
func (s *PostgresStore) publishIfAllTransportsSent(ctx context.Context, messageID string) error {
	var pending int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM dispatch_outbox_transport_deliveries WHERE message_id = $1 AND status <> 'Sent'
	`, messageID).Scan(&pending); err != nil {
		return apperrors.DatabaseError("count_pending_transports", err)
	}
	if pending > 0 {
		return nil
	}
	return s.MarkSent(ctx, messageID)
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var (
			msg           Message
			headersRaw    []byte
			correlationID sql.NullString
			scheduledAt   sql.NullTime
			lastError     sql.NullString
			lastAttemptAt sql.NullTime
			status        string
		)
		if err := rows.Scan(&msg.ID, &msg.MessageType, &msg.Payload, &msg.Destination, &headersRaw,
			&correlationID, &scheduledAt, &status, &msg.RetryCount, &lastError, &msg.CreatedAt, &lastAttemptAt); err != nil {
			return nil, apperrors.DatabaseError("scan_message", err)
		}
		msg.Status = Status(status)
		msg.CorrelationID = correlationID.String
		msg.LastError = lastError.String
		if len(headersRaw) > 0 {
			_ = json.Unmarshal(headersRaw, &msg.Headers)
		}
		if scheduledAt.Valid {
			t := scheduledAt.Time
			msg.ScheduledAt = &t
		}
		if lastAttemptAt.Valid {
			t := lastAttemptAt.Time
			msg.LastAttemptAt = &t
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
