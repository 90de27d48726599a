package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_StageMessageRejectsMissingFields(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgres(db)
	_, err = s.StageMessage(context.Background(), Message{ID: "m1"})
	require.Error(t, err)
}

func TestPostgresStore_StageMessageInsertsRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO dispatch_outbox_messages").
		WillReturnResult(sqlmock.NewResult(1, 1))

	s := NewPostgres(db)
	msg, err := s.StageMessage(context.Background(), Message{ID: "m1", Destination: "q1", MessageType: "OrderPlaced"})
	require.NoError(t, err)
	require.Equal(t, StatusStaged, msg.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkSentNotFoundWhenNoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE dispatch_outbox_messages").WillReturnResult(sqlmock.NewResult(0, 0))

	s := NewPostgres(db)
	err = s.MarkSent(context.Background(), "missing")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetUnsentScansRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "message_type", "payload", "destination", "headers", "correlation_id",
		"scheduled_at", "status", "retry_count", "last_error", "created_at", "last_attempt_at",
	}).AddRow("m1", "OrderPlaced", []byte(`{}`), "q1", []byte(`{}`), nil, nil, "Staged", 0, nil, now, nil)
	mock.ExpectQuery("SELECT id, message_type").WillReturnRows(rows)

	s := NewPostgres(db)
	msgs, err := s.GetUnsent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, StatusStaged, msgs[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkTransportSentPromotesMessageWhenAllSent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE dispatch_outbox_transport_deliveries SET status = 'Sent'").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM dispatch_outbox_transport_deliveries").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("UPDATE dispatch_outbox_messages").WillReturnResult(sqlmock.NewResult(0, 1))

	s := NewPostgres(db)
	err = s.MarkTransportSent(context.Background(), "m1", "kafka")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkTransportFailedIncrementsRetryCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE dispatch_outbox_transport_deliveries").WillReturnResult(sqlmock.NewResult(0, 1))

	s := NewPostgres(db)
	err = s.MarkTransportFailed(context.Background(), "m1", "kafka", "transport unavailable")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
