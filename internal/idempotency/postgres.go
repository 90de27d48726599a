package idempotency

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/trigintafaces/excalibur-dispatch/internal/apperrors"
)

// PostgresProvider persists processed (sagaID, key) tuples in a durable
// table, grounded on the teacher's database/sql storage idiom.
type PostgresProvider struct {
	db *sql.DB
}

// NewPostgres creates a PostgresProvider using db.
func NewPostgres(db *sql.DB) *PostgresProvider {
	return &PostgresProvider{db: db}
}

func (p *PostgresProvider) IsProcessed(ctx context.Context, sagaID, key string) (bool, error) {
	if err := validate(sagaID, key); err != nil {
		return false, err
	}

	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM dispatch_idempotency_records
			WHERE saga_id = $1 AND idempotency_key = $2
		)
	`, sagaID, key).Scan(&exists)
	if err != nil {
		return false, apperrors.DatabaseError("idempotency.is_processed", err)
	}
	return exists, nil
}

func (p *PostgresProvider) MarkProcessed(ctx context.Context, sagaID, key string) error {
	if err := validate(sagaID, key); err != nil {
		return err
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO dispatch_idempotency_records (saga_id, idempotency_key, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (saga_id, idempotency_key) DO NOTHING
	`, sagaID, key, time.Now().UTC())
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return nil
		}
		return apperrors.DatabaseError("idempotency.mark_processed", err)
	}
	return nil
}
