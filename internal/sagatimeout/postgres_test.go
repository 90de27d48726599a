package sagatimeout

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_Schedule(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	base := time.Now().UTC()
	mock.ExpectExec("INSERT INTO dispatch_saga_timeouts").
		WithArgs("t1", "s1", "OrderSaga", "OrderTimeout", []byte(nil), base.Add(time.Minute), base).
		WillReturnResult(sqlmock.NewResult(1, 1))

	s := NewPostgres(db)
	err = s.Schedule(context.Background(), Timeout{
		TimeoutID: "t1", SagaID: "s1", SagaType: "OrderSaga", TimeoutType: "OrderTimeout",
		DueAt: base.Add(time.Minute), ScheduledAt: base,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetDue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"timeout_id", "saga_id", "saga_type", "timeout_type", "payload", "due_at", "scheduled_at"}).
		AddRow("t1", "s1", "OrderSaga", "OrderTimeout", []byte(nil), now.Add(-time.Minute), now.Add(-time.Hour))
	mock.ExpectQuery("SELECT timeout_id, saga_id, saga_type, timeout_type, payload, due_at, scheduled_at").
		WithArgs(now, 10).
		WillReturnRows(rows)

	s := NewPostgres(db)
	due, err := s.GetDue(context.Background(), now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "t1", due[0].TimeoutID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkDelivered(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM dispatch_saga_timeouts WHERE timeout_id").
		WithArgs("t1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := NewPostgres(db)
	require.NoError(t, s.MarkDelivered(context.Background(), "t1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
