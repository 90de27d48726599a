package sagastate

import (
	"context"
	"database/sql"
	"time"

	"github.com/trigintafaces/excalibur-dispatch/internal/apperrors"
)

// PostgresStore persists saga instances, grounded on the teacher's
// database/sql storage idiom. Version is maintained as a row counter used
// for UpdateConditional's optimistic-concurrency check.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres creates a PostgresStore using db.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Load(ctx context.Context, sagaID string) (Instance, error) {
	if sagaID == "" {
		return Instance{}, apperrors.ArgumentNull("sagaID")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT saga_id, saga_type, state, is_completed, version, created_at, updated_at, completed_at, failure_reason
		FROM dispatch_saga_instances WHERE saga_id = $1
	`, sagaID)

	inst, err := scanInstance(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return Instance{}, apperrors.NotFound("saga_instance", sagaID)
		}
		return Instance{}, apperrors.DatabaseError("sagastate.load", err)
	}
	return inst, nil
}

func (s *PostgresStore) Save(ctx context.Context, instance Instance) error {
	if err := validate(instance); err != nil {
		return err
	}
	now := time.Now().UTC()
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}
	instance.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispatch_saga_instances (saga_id, saga_type, state, is_completed, version, created_at, updated_at, completed_at, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (saga_id) DO UPDATE SET
			state = EXCLUDED.state,
			is_completed = EXCLUDED.is_completed,
			version = dispatch_saga_instances.version + 1,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at,
			failure_reason = EXCLUDED.failure_reason
	`, instance.SagaID, instance.SagaType, instance.State, instance.IsCompleted, instance.Version,
		instance.CreatedAt, instance.UpdatedAt, toNullTime(instance.CompletedAt), toNullString(instance.FailureReason))
	if err != nil {
		return apperrors.DatabaseError("sagastate.save", err)
	}
	return nil
}

func (s *PostgresStore) UpdateConditional(ctx context.Context, instance Instance, expectedVersion int64) error {
	if err := validate(instance); err != nil {
		return err
	}
	instance.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE dispatch_saga_instances
		SET state = $2, is_completed = $3, version = version + 1, updated_at = $4, completed_at = $5, failure_reason = $6
		WHERE saga_id = $1 AND version = $7
	`, instance.SagaID, instance.State, instance.IsCompleted, instance.UpdatedAt,
		toNullTime(instance.CompletedAt), toNullString(instance.FailureReason), expectedVersion)
	if err != nil {
		return apperrors.DatabaseError("sagastate.update_conditional", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.Conflict("saga instance version mismatch")
	}
	return nil
}

func (s *PostgresStore) ListByType(ctx context.Context, sagaType string, cursor string, limit int) ([]Instance, string, error) {
	if sagaType == "" {
		return nil, "", apperrors.ArgumentNull("sagaType")
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT saga_id, saga_type, state, is_completed, version, created_at, updated_at, completed_at, failure_reason
		FROM dispatch_saga_instances
		WHERE saga_type = $1 AND saga_id > $2
		ORDER BY saga_id ASC
		LIMIT $3
	`, sagaType, cursor, limit)
	if err != nil {
		return nil, "", apperrors.DatabaseError("sagastate.list_by_type", err)
	}
	defer rows.Close()

	var result []Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, "", apperrors.DatabaseError("sagastate.list_by_type.scan", err)
		}
		result = append(result, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, "", apperrors.DatabaseError("sagastate.list_by_type.rows", err)
	}

	next := ""
	if len(result) == limit {
		next = result[len(result)-1].SagaID
	}
	return result, next, nil
}

func (s *PostgresStore) QueryStuck(ctx context.Context, threshold time.Duration, limit int) ([]Instance, error) {
	if limit <= 0 {
		limit = 100
	}
	cutoff := time.Now().UTC().Add(-threshold)

	rows, err := s.db.QueryContext(ctx, `
		SELECT saga_id, saga_type, state, is_completed, version, created_at, updated_at, completed_at, failure_reason
		FROM dispatch_saga_instances
		WHERE is_completed = false AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, apperrors.DatabaseError("sagastate.query_stuck", err)
	}
	defer rows.Close()

	return scanInstances(rows)
}

func (s *PostgresStore) QueryFailed(ctx context.Context, limit int) ([]Instance, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT saga_id, saga_type, state, is_completed, version, created_at, updated_at, completed_at, failure_reason
		FROM dispatch_saga_instances
		WHERE failure_reason IS NOT NULL AND failure_reason != ''
		ORDER BY updated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apperrors.DatabaseError("sagastate.query_failed", err)
	}
	defer rows.Close()

	return scanInstances(rows)
}

func (s *PostgresStore) RunningCount(ctx context.Context, sagaType string) (int, error) {
	var count int
	var err error
	if sagaType == "" {
		err = s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM dispatch_saga_instances WHERE is_completed = false
		`).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM dispatch_saga_instances WHERE is_completed = false AND saga_type = $1
		`, sagaType).Scan(&count)
	}
	if err != nil {
		return 0, apperrors.DatabaseError("sagastate.running_count", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(scanner rowScanner) (Instance, error) {
	var (
		inst          Instance
		completedAt   sql.NullTime
		failureReason sql.NullString
	)
	if err := scanner.Scan(&inst.SagaID, &inst.SagaType, &inst.State, &inst.IsCompleted, &inst.Version,
		&inst.CreatedAt, &inst.UpdatedAt, &completedAt, &failureReason); err != nil {
		return Instance{}, err
	}
	if completedAt.Valid {
		inst.CompletedAt = completedAt.Time.UTC()
	}
	if failureReason.Valid {
		inst.FailureReason = failureReason.String
	}
	inst.CreatedAt = inst.CreatedAt.UTC()
	inst.UpdatedAt = inst.UpdatedAt.UTC()
	return inst, nil
}

type rowsScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanInstances(rows rowsScanner) ([]Instance, error) {
	var result []Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, apperrors.DatabaseError("sagastate.scan", err)
		}
		result = append(result, inst)
	}
	return result, rows.Err()
}

func toNullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
