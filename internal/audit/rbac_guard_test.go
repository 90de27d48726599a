package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fixedRoleProvider struct {
	role Role
	err  error
}

func (p fixedRoleProvider) Resolve(context.Context) (Role, error) { return p.role, p.err }

type fixedActorProvider struct{ actorID string }

func (p fixedActorProvider) Resolve(context.Context) (string, error) { return p.actorID, nil }

type recordingMetaLogger struct {
	events []Event
}

func (l *recordingMetaLogger) Append(_ context.Context, event Event) (AppendResult, error) {
	l.events = append(l.events, event)
	return AppendResult{EventID: event.EventID}, nil
}

type failingMetaLogger struct{}

func (failingMetaLogger) Append(context.Context, Event) (AppendResult, error) {
	return AppendResult{}, context.DeadlineExceeded
}

func TestRbacAuditReadGuard_DeniesInsufficientRole(t *testing.T) {
	store := NewMemory()
	meta := &recordingMetaLogger{}
	guard := NewRbacAuditReadGuard(store, fixedRoleProvider{role: RoleNone}, nil, meta, RoleViewer)

	_, err := guard.GetByID(context.Background(), "e1")
	require.Error(t, err)
	require.Len(t, meta.events, 1)
	require.Equal(t, OutcomeDenied, meta.events[0].Outcome)
}

func TestRbacAuditReadGuard_AllowsSufficientRoleAndMetaAudits(t *testing.T) {
	store := NewMemory()
	_, err := store.Append(context.Background(), sampleEvent("e1", "u1", time.Now()))
	require.NoError(t, err)

	meta := &recordingMetaLogger{}
	guard := NewRbacAuditReadGuard(store, fixedRoleProvider{role: RoleAuditor}, nil, meta, RoleViewer)

	event, err := guard.GetByID(context.Background(), "e1")
	require.NoError(t, err)
	require.Equal(t, "e1", event.EventID)
	require.Len(t, meta.events, 1)
	require.Equal(t, OutcomeSuccess, meta.events[0].Outcome)
	require.Equal(t, "AuditLog.GetById", meta.events[0].Action)
}

func TestRbacAuditReadGuard_UsesActorProviderWhenPresent(t *testing.T) {
	store := NewMemory()
	meta := &recordingMetaLogger{}
	guard := NewRbacAuditReadGuard(store, fixedRoleProvider{role: RoleAuditor}, fixedActorProvider{actorID: "user-42"}, meta, RoleViewer)

	_, _ = guard.Query(context.Background(), Query{})
	require.Len(t, meta.events, 1)
	require.Equal(t, "user-42", meta.events[0].ActorID)
}

func TestRbacAuditReadGuard_MetaLoggerFailureDoesNotMaskRead(t *testing.T) {
	store := NewMemory()
	_, err := store.Append(context.Background(), sampleEvent("e1", "u1", time.Now()))
	require.NoError(t, err)

	guard := NewRbacAuditReadGuard(store, fixedRoleProvider{role: RoleAdmin}, nil, failingMetaLogger{}, RoleViewer)

	event, err := guard.GetByID(context.Background(), "e1")
	require.NoError(t, err)
	require.Equal(t, "e1", event.EventID)
}
