package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/trigintafaces/excalibur-dispatch/internal/apperrors"
)

// Role is a caller's resolved authorization role for audit reads.
type Role string

const (
	RoleNone    Role = ""
	RoleViewer  Role = "Viewer"
	RoleAuditor Role = "Auditor"
	RoleAdmin   Role = "Admin"
)

var readRoleRank = map[Role]int{
	RoleViewer:  1,
	RoleAuditor: 2,
	RoleAdmin:   3,
}

// RoleProvider resolves the caller's role from ctx (e.g. from a bearer
// token's claims).
type RoleProvider interface {
	Resolve(ctx context.Context) (Role, error)
}

// ActorProvider resolves the caller's identity from ctx. When absent,
// RbacAuditReadGuard falls back to "role:<RoleName>".
type ActorProvider interface {
	Resolve(ctx context.Context) (string, error)
}

// MetaLogger records meta-audit events: who read the audit log, when, with
// what outcome. Failures are swallowed by the guard.
type MetaLogger interface {
	Append(ctx context.Context, event Event) (AppendResult, error)
}

// RbacAuditReadGuard wraps a Store so every read is role-gated and
// meta-audited. MinReadRole is the lowest role rank permitted to read; the
// default (zero value) permits RoleViewer and above.
type RbacAuditReadGuard struct {
	store       Store
	roles       RoleProvider
	actors      ActorProvider
	metaLogger  MetaLogger
	minReadRole Role
}

func NewRbacAuditReadGuard(store Store, roles RoleProvider, actors ActorProvider, metaLogger MetaLogger, minReadRole Role) *RbacAuditReadGuard {
	if minReadRole == RoleNone {
		minReadRole = RoleViewer
	}
	return &RbacAuditReadGuard{store: store, roles: roles, actors: actors, metaLogger: metaLogger, minReadRole: minReadRole}
}

func (g *RbacAuditReadGuard) GetByID(ctx context.Context, eventID string) (Event, error) {
	actorID, err := g.authorize(ctx)
	if err != nil {
		g.metaAudit(ctx, actorID, "AuditLog.GetById", OutcomeDenied, err)
		return Event{}, err
	}

	event, err := g.store.GetByID(ctx, eventID)
	g.metaAudit(ctx, actorID, "AuditLog.GetById", outcomeFor(err), err)
	return event, err
}

func (g *RbacAuditReadGuard) Query(ctx context.Context, query Query) ([]Event, error) {
	actorID, err := g.authorize(ctx)
	if err != nil {
		g.metaAudit(ctx, actorID, "AuditLog.Query", OutcomeDenied, err)
		return nil, err
	}

	events, err := g.store.Query(ctx, query)
	g.metaAudit(ctx, actorID, "AuditLog.Query", outcomeFor(err), err)
	return events, err
}

func (g *RbacAuditReadGuard) VerifyChainIntegrity(ctx context.Context, start, end int64) (IntegrityResult, error) {
	actorID, err := g.authorize(ctx)
	if err != nil {
		g.metaAudit(ctx, actorID, "AuditLog.VerifyIntegrity", OutcomeDenied, err)
		return IntegrityResult{}, err
	}

	result, err := g.store.VerifyChainIntegrity(ctx, start, end)
	g.metaAudit(ctx, actorID, "AuditLog.VerifyIntegrity", outcomeFor(err), err)
	return result, err
}

// authorize resolves role and actor id, rejecting an unknown or
// insufficient role before any delegated call is made.
func (g *RbacAuditReadGuard) authorize(ctx context.Context) (actorID string, err error) {
	role, err := g.roles.Resolve(ctx)
	fallbackActorID := fmt.Sprintf("role:%s", role)
	if err != nil {
		return fallbackActorID, err
	}

	rank, known := readRoleRank[role]
	if !known || rank < readRoleRank[g.minReadRole] {
		return fallbackActorID, apperrors.New(apperrors.ErrCodeArgumentInvalid, "insufficient role for audit read", 403).
			WithDetails("role", string(role))
	}

	actorID = fallbackActorID
	if g.actors != nil {
		if resolved, actorErr := g.actors.Resolve(ctx); actorErr == nil && resolved != "" {
			actorID = resolved
		}
	}
	return actorID, nil
}

func (g *RbacAuditReadGuard) metaAudit(ctx context.Context, actorID, action string, outcome Outcome, cause error) {
	if g.metaLogger == nil {
		return
	}
	event := Event{
		EventID:   uuid.NewString(),
		EventType: EventSecurity,
		Action:    action,
		Outcome:   outcome,
		Timestamp: time.Now().UTC(),
		ActorID:   actorID,
	}
	if cause != nil {
		event.Reason = cause.Error()
	}
	if _, err := g.metaLogger.Append(ctx, event); err != nil {
		_ = apperrors.MetaAuditFailure(err) // swallowed: never mask the underlying read's result
	}
}

func outcomeFor(err error) Outcome {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
