package audit

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/trigintafaces/excalibur-dispatch/internal/apperrors"
)

// Query filters AuditStore.Query results. Zero-value fields mean "no
// filter on this dimension". Ordering defaults to descending by Timestamp.
type Query struct {
	StartDate         time.Time
	EndDate           time.Time
	EventTypes        []EventType
	Outcomes          []Outcome
	ActorID           string
	ResourceID        string
	TenantID          string
	CorrelationID     string
	MinClassification Classification
	ActionContains    string
	IPAddress         string

	// MetadataPath, when set, matches events whose Metadata blob
	// (serialized to JSON) has the gjson path MetadataPath resolving to the
	// string MetadataEquals (which may be empty). This is ad hoc extraction
	// from the stored JSON directly, without decoding Metadata back into
	// a typed struct first.
	MetadataPath   string
	MetadataEquals string

	Ascending  bool
	Skip       int
	MaxResults int
}

// DefaultMaxResults matches the spec default for an unset MaxResults.
const DefaultMaxResults = 100

// Normalize validates the query and fills in the default MaxResults.
func (q Query) Normalize() (Query, error) {
	if !q.StartDate.IsZero() && !q.EndDate.IsZero() && q.StartDate.After(q.EndDate) {
		return Query{}, apperrors.ArgumentInvalid("startDate", "must not be after endDate")
	}
	if q.MaxResults <= 0 {
		q.MaxResults = DefaultMaxResults
	}
	return q, nil
}

// Matches reports whether event satisfies every filter set on q. Used by the
// in-memory store and by any future in-process query cache.
func (q Query) Matches(event Event) bool {
	if !q.StartDate.IsZero() && event.Timestamp.Before(q.StartDate) {
		return false
	}
	if !q.EndDate.IsZero() && event.Timestamp.After(q.EndDate) {
		return false
	}
	if len(q.EventTypes) > 0 && !containsEventType(q.EventTypes, event.EventType) {
		return false
	}
	if len(q.Outcomes) > 0 && !containsOutcome(q.Outcomes, event.Outcome) {
		return false
	}
	if q.ActorID != "" && q.ActorID != event.ActorID {
		return false
	}
	if q.ResourceID != "" && q.ResourceID != event.ResourceID {
		return false
	}
	if q.TenantID != "" && q.TenantID != event.TenantID {
		return false
	}
	if q.CorrelationID != "" && q.CorrelationID != event.CorrelationID {
		return false
	}
	if q.MinClassification != "" && event.ResourceClassification.Rank() < q.MinClassification.Rank() {
		return false
	}
	if q.ActionContains != "" && !strings.Contains(event.Action, q.ActionContains) {
		return false
	}
	if q.IPAddress != "" && q.IPAddress != event.IPAddress {
		return false
	}
	if q.MetadataPath != "" && !q.matchesMetadata(event) {
		return false
	}
	return true
}

func (q Query) matchesMetadata(event Event) bool {
	blob, err := json.Marshal(event.Metadata)
	if err != nil {
		return false
	}
	result := gjson.GetBytes(blob, q.MetadataPath)
	return result.Exists() && result.String() == q.MetadataEquals
}

func containsEventType(types []EventType, t EventType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func containsOutcome(outcomes []Outcome, o Outcome) bool {
	for _, candidate := range outcomes {
		if candidate == o {
			return true
		}
	}
	return false
}
