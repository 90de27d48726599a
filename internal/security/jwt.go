// Package security provides JWT-backed implementations of the
// audit.RoleProvider/audit.ActorProvider contracts used to gate reads of
// the tamper-evident audit log.
package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/trigintafaces/excalibur-dispatch/internal/audit"
)

type ctxKey string

const bearerTokenKey ctxKey = "security.bearer_token"

// WithBearerToken attaches a raw bearer token to ctx for downstream
// RoleProvider/ActorProvider resolution. Callers extract it from an
// incoming request's Authorization header before dispatching into
// audit-gated code.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerTokenKey, strings.TrimSpace(token))
}

func tokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(bearerTokenKey).(string)
	return token, ok && token != ""
}

// ExtractBearerToken pulls a "Bearer <token>" value out of an
// Authorization header value, matching the teacher's extractToken idiom.
func ExtractBearerToken(authorizationHeader string) string {
	parts := strings.Fields(strings.TrimSpace(authorizationHeader))
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// Claims mirrors the teacher's JWT claims shape: subject, role, tenant.
type Claims struct {
	Username string `json:"sub"`
	Role     string `json:"role"`
	Tenant   string `json:"tenant,omitempty"`
	jwt.RegisteredClaims
}

// roleMapping translates an arbitrary JWT role claim value into one of
// audit's four read roles. Unknown values map to audit.RoleNone, which
// RbacAuditReadGuard rejects.
var roleMapping = map[string]audit.Role{
	"viewer":  audit.RoleViewer,
	"auditor": audit.RoleAuditor,
	"admin":   audit.RoleAdmin,
}

// JWTRoleProvider resolves audit.Role from an HS256 JWT's role claim.
type JWTRoleProvider struct {
	secret []byte
}

func NewJWTRoleProvider(secret string) *JWTRoleProvider {
	return &JWTRoleProvider{secret: []byte(strings.TrimSpace(secret))}
}

func (p *JWTRoleProvider) Resolve(ctx context.Context) (audit.Role, error) {
	claims, err := p.validate(ctx)
	if err != nil {
		return audit.RoleNone, err
	}
	role, ok := roleMapping[strings.ToLower(strings.TrimSpace(claims.Role))]
	if !ok {
		return audit.RoleNone, nil
	}
	return role, nil
}

func (p *JWTRoleProvider) validate(ctx context.Context) (*Claims, error) {
	if len(p.secret) == 0 {
		return nil, errors.New("jwt secret not configured")
	}
	token, ok := tokenFromContext(ctx)
	if !ok {
		return nil, errors.New("no bearer token in context")
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// JWTActorProvider resolves the caller's identity from the same token,
// using Claims.Username and falling back to the registered Subject claim
// when Username is empty.
type JWTActorProvider struct {
	roleProvider *JWTRoleProvider
}

func NewJWTActorProvider(secret string) *JWTActorProvider {
	return &JWTActorProvider{roleProvider: NewJWTRoleProvider(secret)}
}

func (p *JWTActorProvider) Resolve(ctx context.Context) (string, error) {
	claims, err := p.roleProvider.validate(ctx)
	if err != nil {
		return "", err
	}
	if claims.Username != "" {
		return claims.Username, nil
	}
	if claims.Subject != "" {
		return claims.Subject, nil
	}
	return "", errors.New("token carries no subject")
}

// IssueServiceToken signs a short-lived HS256 token for internal
// service-to-service audit reads (e.g. a retention-sweep operator job).
func IssueServiceToken(secret, subject, role string, ttl time.Duration) (string, time.Time, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return "", time.Time{}, errors.New("jwt secret not configured")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	exp := time.Now().Add(ttl)
	claims := Claims{
		Username: subject,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   subject,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(trimmed))
	return signed, exp, err
}
