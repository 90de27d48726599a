package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_AppendRejectsInvalidEvent(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgres(db)
	_, err = s.Append(context.Background(), Event{})
	require.Error(t, err)
}

func TestPostgresStore_AppendSeedsTailOnFirstEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT last_sequence_number, last_event_hash FROM dispatch_audit_chain_tail").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO dispatch_audit_chain_tail").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO dispatch_audit_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE dispatch_audit_chain_tail").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	s := NewPostgres(db)
	result, err := s.Append(context.Background(), Event{
		EventID: "e1", Action: "ReadOrder", ActorID: "u1", Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), result.SequenceNumber)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendChainsFromExistingTail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT last_sequence_number, last_event_hash FROM dispatch_audit_chain_tail").
		WillReturnRows(sqlmock.NewRows([]string{"last_sequence_number", "last_event_hash"}).AddRow(5, "priorhash"))
	mock.ExpectExec("INSERT INTO dispatch_audit_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE dispatch_audit_chain_tail").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	s := NewPostgres(db)
	result, err := s.Append(context.Background(), Event{
		EventID: "e6", Action: "ReadOrder", ActorID: "u1", Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Equal(t, int64(6), result.SequenceNumber)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT event_id, event_type").WillReturnError(sql.ErrNoRows)

	s := NewPostgres(db)
	_, err = s.GetByID(context.Background(), "missing")
	require.Error(t, err)
}

func TestPostgresStore_VerifyChainIntegrityDetectsBrokenLink(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"event_id", "previous_event_hash", "event_hash", "sequence_number"}).
		AddRow("e1", genesisPreviousHash, "hash1", 1).
		AddRow("e2", "wrong-previous", "hash2", 2)
	mock.ExpectQuery("SELECT event_id, previous_event_hash, event_hash, sequence_number").WillReturnRows(rows)

	s := NewPostgres(db)
	result, err := s.VerifyChainIntegrity(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Equal(t, IntegrityInvalid, result.Status)
	require.Equal(t, "e2", result.FirstViolationEventID)
}
