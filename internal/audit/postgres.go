package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/trigintafaces/excalibur-dispatch/internal/apperrors"
	"github.com/trigintafaces/excalibur-dispatch/internal/metrics"
)

// serviceLabel is the Prometheus "service" label value this single-binary
// deployment reports under.
const serviceLabel = "dispatchd"

// PostgresStore persists audit events in dispatch_audit_events. Sequence
// numbers and hash chaining are serialized through a single row in
// dispatch_audit_chain_tail locked FOR UPDATE for the duration of the
// append transaction, so two concurrent appends can never compute the same
// previousEventHash.
type PostgresStore struct {
	db     *sql.DB
	hashFn HashFunction
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, hashFn: NewBlake2bHashFunction()}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) (AppendResult, error) {
	if err := validate(event); err != nil {
		return AppendResult{}, err
	}

	start := time.Now()
	result, err := s.appendTx(ctx, event)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.Global().RecordDatabaseQuery(serviceLabel, "audit_append", status, time.Since(start))
	if err == nil {
		metrics.Global().RecordAuditEvent(serviceLabel, string(event.EventType), string(event.Outcome))
		metrics.Global().SetAuditChainSequence(result.SequenceNumber)
	}
	return result, err
}

func (s *PostgresStore) appendTx(ctx context.Context, event Event) (AppendResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return AppendResult{}, apperrors.DatabaseError("append_begin_tx", err)
	}
	defer tx.Rollback()

	var lastSeq int64
	var lastHash string
	err = tx.QueryRowContext(ctx, `
		SELECT last_sequence_number, last_event_hash FROM dispatch_audit_chain_tail WHERE id = 1 FOR UPDATE
	`).Scan(&lastSeq, &lastHash)
	switch {
	case err == sql.ErrNoRows:
		lastSeq = 0
		lastHash = genesisPreviousHash
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dispatch_audit_chain_tail (id, last_sequence_number, last_event_hash) VALUES (1, 0, $1)
		`, lastHash); err != nil {
			return AppendResult{}, apperrors.DatabaseError("append_seed_tail", err)
		}
	case err != nil:
		return AppendResult{}, apperrors.DatabaseError("append_lock_tail", err)
	}

	event.SequenceNumber = lastSeq + 1
	event.PreviousEventHash = lastHash
	event.EventHash = s.hashFn.Hash(event, lastHash)

	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return AppendResult{}, apperrors.DatabaseError("append_marshal_metadata", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO dispatch_audit_events
			(event_id, event_type, action, outcome, timestamp, actor_id, actor_type, resource_id, resource_type,
			 resource_classification, tenant_id, correlation_id, session_id, ip_address, user_agent, reason,
			 metadata, sequence_number, previous_event_hash, event_hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`, event.EventID, string(event.EventType), event.Action, string(event.Outcome), event.Timestamp,
		event.ActorID, event.ActorType, nullString(event.ResourceID), nullString(event.ResourceType),
		string(event.ResourceClassification), nullString(event.TenantID), nullString(event.CorrelationID),
		nullString(event.SessionID), nullString(event.IPAddress), nullString(event.UserAgent), nullString(event.Reason),
		metadataJSON, event.SequenceNumber, event.PreviousEventHash, event.EventHash)
	if err != nil {
		return AppendResult{}, apperrors.DatabaseError("append_insert_event", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE dispatch_audit_chain_tail SET last_sequence_number = $1, last_event_hash = $2 WHERE id = 1
	`, event.SequenceNumber, event.EventHash); err != nil {
		return AppendResult{}, apperrors.DatabaseError("append_advance_tail", err)
	}

	if err := tx.Commit(); err != nil {
		return AppendResult{}, apperrors.DatabaseError("append_commit", err)
	}

	return AppendResult{
		EventID:        event.EventID,
		EventHash:      event.EventHash,
		SequenceNumber: event.SequenceNumber,
		RecordedAt:     event.Timestamp,
	}, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, eventID string) (Event, error) {
	if eventID == "" {
		return Event{}, apperrors.ArgumentNull("eventID")
	}
	row := s.db.QueryRowContext(ctx, selectEventColumns+` WHERE event_id = $1`, eventID)
	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return Event{}, apperrors.NotFound("audit_event", eventID)
	}
	if err != nil {
		return Event{}, apperrors.DatabaseError("get_by_id", err)
	}
	return event, nil
}

func (s *PostgresStore) Query(ctx context.Context, query Query) ([]Event, error) {
	query, err := query.Normalize()
	if err != nil {
		return nil, err
	}

	order := "DESC"
	if query.Ascending {
		order = "ASC"
	}

	rows, err := s.db.QueryContext(ctx, selectEventColumns+`
		WHERE ($1::timestamptz IS NULL OR timestamp >= $1)
		  AND ($2::timestamptz IS NULL OR timestamp <= $2)
		  AND ($3 = '' OR actor_id = $3)
		  AND ($4 = '' OR resource_id = $4)
		  AND ($5 = '' OR tenant_id = $5)
		  AND ($6 = '' OR correlation_id = $6)
		  AND ($7 = '' OR ip_address = $7)
		  AND ($8 = '' OR action LIKE '%' || $8 || '%')
		ORDER BY timestamp `+order+`
		OFFSET $9 LIMIT $10
	`, timeOrNil(query.StartDate), timeOrNil(query.EndDate), query.ActorID, query.ResourceID, query.TenantID,
		query.CorrelationID, query.IPAddress, query.ActionContains, query.Skip, query.MaxResults)
	if err != nil {
		return nil, apperrors.DatabaseError("query", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, apperrors.DatabaseError("query_scan", err)
		}
		// EventTypes/Outcomes/MinClassification are cheap in-memory filters
		// rather than a dynamic IN-list; the result set is already narrowed
		// by the indexed predicates above.
		if len(query.EventTypes) > 0 && !containsEventType(query.EventTypes, event.EventType) {
			continue
		}
		if len(query.Outcomes) > 0 && !containsOutcome(query.Outcomes, event.Outcome) {
			continue
		}
		if query.MinClassification != "" && event.ResourceClassification.Rank() < query.MinClassification.Rank() {
			continue
		}
		if query.MetadataPath != "" && !query.matchesMetadata(event) {
			continue
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

// VerifyChainIntegrity walks the stored rows by sequence number and checks
// that each row's previous_event_hash equals the event_hash of the row
// before it. It does not recompute event hashes from the stored columns, so
// an edit to a row's other columns that leaves both hash columns intact is
// not reported as a violation.
func (s *PostgresStore) VerifyChainIntegrity(ctx context.Context, start, end int64) (IntegrityResult, error) {
	result := IntegrityResult{Status: IntegrityValid, Start: start, End: end}

	previousHash := genesisPreviousHash
	if start > 1 {
		err := s.db.QueryRowContext(ctx, `
			SELECT event_hash FROM dispatch_audit_events WHERE sequence_number = $1
		`, start-1).Scan(&previousHash)
		switch {
		case err == sql.ErrNoRows:
			// The boundary row was pruned by a retention sweep. Trust the
			// surviving row's own previousEventHash as a checkpoint anchor
			// rather than requiring an unbroken chain back to sequence 1.
			if seedErr := s.db.QueryRowContext(ctx, `
				SELECT previous_event_hash FROM dispatch_audit_events WHERE sequence_number >= $1 ORDER BY sequence_number ASC LIMIT 1
			`, start).Scan(&previousHash); seedErr != nil && seedErr != sql.ErrNoRows {
				return IntegrityResult{}, apperrors.DatabaseError("verify_seed_checkpoint", seedErr)
			}
		case err != nil:
			return IntegrityResult{}, apperrors.DatabaseError("verify_seed_hash", err)
		}
	}

	query := `SELECT event_id, previous_event_hash, event_hash, sequence_number FROM dispatch_audit_events
		WHERE sequence_number >= $1 AND ($2 <= 0 OR sequence_number <= $2) ORDER BY sequence_number ASC`
	rows, err := s.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return IntegrityResult{}, apperrors.DatabaseError("verify_query", err)
	}
	defer rows.Close()

	for rows.Next() {
		var eventID, previousHashCol, eventHash string
		var seq int64
		if err := rows.Scan(&eventID, &previousHashCol, &eventHash, &seq); err != nil {
			return IntegrityResult{}, apperrors.DatabaseError("verify_scan", err)
		}
		result.EventsVerified++
		if previousHashCol != previousHash {
			result.ViolationCount++
			if result.Status == IntegrityValid {
				result.Status = IntegrityInvalid
				result.FirstViolationEventID = eventID
				result.Description = "previousEventHash does not match the prior event's hash"
			}
		}
		previousHash = eventHash
	}

	return result, rows.Err()
}

func (s *PostgresStore) DeleteBefore(ctx context.Context, cutoff time.Time, limit int) (int, int64, string, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM dispatch_audit_events
		WHERE event_id IN (SELECT event_id FROM dispatch_audit_events WHERE timestamp < $1 ORDER BY sequence_number ASC LIMIT $2)
	`, cutoff, limit)
	if err != nil {
		return 0, 0, "", apperrors.DatabaseError("delete_before", err)
	}
	affected, _ := result.RowsAffected()

	var checkpointSeq int64
	var checkpointHash string
	err = s.db.QueryRowContext(ctx, `
		SELECT sequence_number, previous_event_hash FROM dispatch_audit_events ORDER BY sequence_number ASC LIMIT 1
	`).Scan(&checkpointSeq, &checkpointHash)
	if err == sql.ErrNoRows {
		return int(affected), 0, "", nil
	}
	if err != nil {
		return 0, 0, "", apperrors.DatabaseError("delete_before_checkpoint", err)
	}
	return int(affected), checkpointSeq, checkpointHash, nil
}

const selectEventColumns = `
	SELECT event_id, event_type, action, outcome, timestamp, actor_id, actor_type, resource_id, resource_type,
	       resource_classification, tenant_id, correlation_id, session_id, ip_address, user_agent, reason,
	       metadata, sequence_number, previous_event_hash, event_hash
	FROM dispatch_audit_events`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (Event, error) {
	var (
		event        Event
		eventType    string
		outcome      string
		classif      string
		resourceID   sql.NullString
		resourceType sql.NullString
		tenantID     sql.NullString
		correlation  sql.NullString
		sessionID    sql.NullString
		ipAddress    sql.NullString
		userAgent    sql.NullString
		reason       sql.NullString
		metadataRaw  []byte
	)
	if err := row.Scan(&event.EventID, &eventType, &event.Action, &outcome, &event.Timestamp, &event.ActorID,
		&event.ActorType, &resourceID, &resourceType, &classif, &tenantID, &correlation, &sessionID, &ipAddress,
		&userAgent, &reason, &metadataRaw, &event.SequenceNumber, &event.PreviousEventHash, &event.EventHash); err != nil {
		return Event{}, err
	}
	event.EventType = EventType(eventType)
	event.Outcome = Outcome(outcome)
	event.ResourceClassification = Classification(classif)
	event.ResourceID = resourceID.String
	event.ResourceType = resourceType.String
	event.TenantID = tenantID.String
	event.CorrelationID = correlation.String
	event.SessionID = sessionID.String
	event.IPAddress = ipAddress.String
	event.UserAgent = userAgent.String
	event.Reason = reason.String
	if len(metadataRaw) > 0 {
		_ = json.Unmarshal(metadataRaw, &event.Metadata)
	}
	return event, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func timeOrNil(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
