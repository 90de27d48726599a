package sagatimeout

import (
	"context"
	"database/sql"
	"time"

	"github.com/trigintafaces/excalibur-dispatch/internal/apperrors"
)

// PostgresStore persists timeouts in a durable table, grounded on the
// teacher's database/sql storage idiom.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres creates a PostgresStore using db.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Schedule(ctx context.Context, timeout Timeout) error {
	if timeout.ScheduledAt.IsZero() {
		timeout.ScheduledAt = time.Now().UTC()
	}
	if err := validate(timeout); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispatch_saga_timeouts (timeout_id, saga_id, saga_type, timeout_type, payload, due_at, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (timeout_id) DO UPDATE SET
			saga_id = EXCLUDED.saga_id,
			saga_type = EXCLUDED.saga_type,
			timeout_type = EXCLUDED.timeout_type,
			payload = EXCLUDED.payload,
			due_at = EXCLUDED.due_at,
			scheduled_at = EXCLUDED.scheduled_at
	`, timeout.TimeoutID, timeout.SagaID, timeout.SagaType, timeout.TimeoutType, timeout.Payload, timeout.DueAt, timeout.ScheduledAt)
	if err != nil {
		return apperrors.DatabaseError("sagatimeout.schedule", err)
	}
	return nil
}

func (s *PostgresStore) Cancel(ctx context.Context, sagaID, timeoutID string) error {
	if sagaID == "" {
		return apperrors.ArgumentNull("sagaID")
	}
	if timeoutID == "" {
		return apperrors.ArgumentNull("timeoutID")
	}

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM dispatch_saga_timeouts WHERE saga_id = $1 AND timeout_id = $2
	`, sagaID, timeoutID)
	if err != nil {
		return apperrors.DatabaseError("sagatimeout.cancel", err)
	}
	return nil
}

func (s *PostgresStore) CancelAll(ctx context.Context, sagaID string) error {
	if sagaID == "" {
		return apperrors.ArgumentNull("sagaID")
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM dispatch_saga_timeouts WHERE saga_id = $1`, sagaID)
	if err != nil {
		return apperrors.DatabaseError("sagatimeout.cancel_all", err)
	}
	return nil
}

func (s *PostgresStore) GetDue(ctx context.Context, now time.Time, limit int) ([]Timeout, error) {
	query := `
		SELECT timeout_id, saga_id, saga_type, timeout_type, payload, due_at, scheduled_at
		FROM dispatch_saga_timeouts
		WHERE due_at <= $1
		ORDER BY due_at ASC
	`
	args := []interface{}{now}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.DatabaseError("sagatimeout.get_due", err)
	}
	defer rows.Close()

	var result []Timeout
	for rows.Next() {
		var t Timeout
		if err := rows.Scan(&t.TimeoutID, &t.SagaID, &t.SagaType, &t.TimeoutType, &t.Payload, &t.DueAt, &t.ScheduledAt); err != nil {
			return nil, apperrors.DatabaseError("sagatimeout.get_due.scan", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *PostgresStore) MarkDelivered(ctx context.Context, timeoutID string) error {
	if timeoutID == "" {
		return apperrors.ArgumentNull("timeoutID")
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM dispatch_saga_timeouts WHERE timeout_id = $1`, timeoutID)
	if err != nil {
		return apperrors.DatabaseError("sagatimeout.mark_delivered", err)
	}
	return nil
}
