package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"cataloro/escrow"
)

// Context keys for storing authenticated actor information.
type contextKey string

const (
	contextKeyActor contextKey = "actor_id"
	contextKeyRoles contextKey = "actor_roles"
)

var errMissingBearer = errors.New("missing bearer token")

// Claims is the identity extracted from an inbound request token. The subject
// is the platform actor id; roles carry opaque capabilities such as
// "arbitrator" granted by the platform's user system.
type Claims struct {
	Subject string
	Roles   []string
}

// Authenticate verifies the HS256 bearer token and stores the actor identity
// in the request context.
func Authenticate(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := parseBearer(r, secret)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", err.Error(), "")
				return
			}
			ctx := context.WithValue(r.Context(), contextKeyActor, claims.Subject)
			ctx = context.WithValue(ctx, contextKeyRoles, claims.Roles)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseBearer(r *http.Request, secret []byte) (*Claims, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return nil, errMissingBearer
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}
	subject, err := mapClaims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return nil, errors.New("token subject is required")
	}
	claims := &Claims{Subject: strings.TrimSpace(subject)}
	if rawRoles, ok := mapClaims["roles"]; ok {
		switch roles := rawRoles.(type) {
		case []any:
			for _, role := range roles {
				if s, ok := role.(string); ok {
					claims.Roles = append(claims.Roles, s)
				}
			}
		case []string:
			claims.Roles = append(claims.Roles, roles...)
		case string:
			claims.Roles = append(claims.Roles, roles)
		}
	}
	return claims, nil
}

// ActorFromContext returns the authenticated actor id, if any.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(contextKeyActor).(string)
	return actor
}

// RolesFromContext returns the authenticated actor's platform roles.
func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(contextKeyRoles).([]string)
	return roles
}

// ClaimsRoleChecker satisfies escrow.RoleChecker from the request's verified
// token claims, keeping arbitrator eligibility an opaque capability check.
type ClaimsRoleChecker struct{}

func (ClaimsRoleChecker) HasRole(ctx context.Context, actorID string, role escrow.Role) bool {
	if actorID == "" || ActorFromContext(ctx) != actorID {
		return false
	}
	for _, held := range RolesFromContext(ctx) {
		if strings.EqualFold(held, string(role)) {
			return true
		}
	}
	return false
}
