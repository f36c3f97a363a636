package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const (
	claimsKey  contextKey = "auth_claims"
	subjectKey contextKey = "auth_subject"
)

// ClaimsFromContext extracts JWT claims from request context.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

// SubjectFromContext extracts the subject string from request context.
func SubjectFromContext(ctx context.Context) string {
	sub, _ := ctx.Value(subjectKey).(string)
	return sub
}

// UserIDFromContext returns the authenticated user's id. The user realm
// middleware guarantees the subject parses.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	claims := ClaimsFromContext(ctx)
	if claims == nil || claims.Realm != RealmUser {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// WithClaims returns a context carrying claims, as the middleware would.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, claimsKey, claims)
	return context.WithValue(ctx, subjectKey, claims.Subject)
}

// AuthenticateUser returns middleware that validates user JWT tokens.
func AuthenticateUser(jwtMgr *JWTManager) func(http.Handler) http.Handler {
	return authenticateRealm(jwtMgr, RealmUser)
}

// AuthenticateAdmin returns middleware that validates admin JWT tokens.
func AuthenticateAdmin(jwtMgr *JWTManager) func(http.Handler) http.Handler {
	return authenticateRealm(jwtMgr, RealmAdmin)
}

// AuthenticateService returns middleware that validates tokens minted for
// internal collaborators posting activity events.
func AuthenticateService(jwtMgr *JWTManager) func(http.Handler) http.Handler {
	return authenticateRealm(jwtMgr, RealmService)
}

// RequireRole returns middleware that checks the admin role.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	roleSet := make(map[string]bool, len(roles))
	for _, r := range roles {
		roleSet[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no auth context")
				return
			}
			if !roleSet[claims.Role] {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authenticateRealm(jwtMgr *JWTManager, realm Realm) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := extractAndValidate(r, jwtMgr, realm)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func extractAndValidate(r *http.Request, jwtMgr *JWTManager, realm Realm) (*Claims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("missing Authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return nil, fmt.Errorf("invalid Authorization format")
	}

	return jwtMgr.ValidateTokenForRealm(parts[1], realm)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"code": code, "message": message})
}
