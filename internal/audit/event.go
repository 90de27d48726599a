// Package audit implements the tamper-evident, append-only audit log: a
// hash-chained event store with integrity verification, role-gated reads
// with meta-audit, rule-based alerting, and retention sweeping (spec
// components L, M, N, O).
package audit

import (
	"time"

	"github.com/trigintafaces/excalibur-dispatch/internal/apperrors"
)

// EventType classifies what kind of action an AuditEvent records.
type EventType string

const (
	EventSystem              EventType = "System"
	EventAuthentication      EventType = "Authentication"
	EventAuthorization       EventType = "Authorization"
	EventDataAccess          EventType = "DataAccess"
	EventDataModification    EventType = "DataModification"
	EventConfigurationChange EventType = "ConfigurationChange"
	EventSecurity            EventType = "Security"
	EventCompliance          EventType = "Compliance"
	EventAdministrative      EventType = "Administrative"
	EventIntegration         EventType = "Integration"
)

// Outcome is the result of the action an AuditEvent records.
type Outcome string

const (
	OutcomeSuccess Outcome = "Success"
	OutcomeFailure Outcome = "Failure"
	OutcomeDenied  Outcome = "Denied"
	OutcomeError   Outcome = "Error"
	OutcomePending Outcome = "Pending"
)

// Classification is the sensitivity tier of the resource an event touches.
// Ordered from least to most sensitive so MinClassification filtering can
// compare ranks.
type Classification string

const (
	ClassificationPublic       Classification = "Public"
	ClassificationInternal     Classification = "Internal"
	ClassificationConfidential Classification = "Confidential"
	ClassificationRestricted   Classification = "Restricted"
)

var classificationRank = map[Classification]int{
	ClassificationPublic:       0,
	ClassificationInternal:     1,
	ClassificationConfidential: 2,
	ClassificationRestricted:   3,
}

// Rank returns c's sensitivity rank, or -1 for an unrecognised value.
func (c Classification) Rank() int {
	rank, ok := classificationRank[c]
	if !ok {
		return -1
	}
	return rank
}

// Event is one immutable audit record. PreviousEventHash and EventHash are
// set by the Store on append; callers never populate them.
type Event struct {
	EventID                string
	EventType              EventType
	Action                 string
	Outcome                Outcome
	Timestamp              time.Time
	ActorID                string
	ActorType              string
	ResourceID             string
	ResourceType           string
	ResourceClassification Classification
	TenantID               string
	CorrelationID          string
	SessionID              string
	IPAddress              string
	UserAgent              string
	Reason                 string
	Metadata               map[string]string

	SequenceNumber    int64
	PreviousEventHash string
	EventHash         string
}

// AppendResult is the Store.Append result.
type AppendResult struct {
	EventID        string
	EventHash      string
	SequenceNumber int64
	RecordedAt     time.Time
}

func validate(event Event) error {
	if event.EventID == "" {
		return apperrors.ArgumentNull("eventID")
	}
	if event.Action == "" {
		return apperrors.ArgumentNull("action")
	}
	if event.ActorID == "" {
		return apperrors.ArgumentNull("actorID")
	}
	if event.Timestamp.IsZero() {
		return apperrors.ArgumentInvalid("timestamp", "must not be the zero value")
	}
	return nil
}
