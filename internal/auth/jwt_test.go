package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTManager() *JWTManager {
	return NewJWTManager("test-secret-key", 24*time.Hour, 8*time.Hour, 12*time.Hour)
}

func TestGenerateAndValidateUserToken(t *testing.T) {
	mgr := newTestJWTManager()
	userID := uuid.New()

	token, err := mgr.GenerateUserToken(userID)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := mgr.ValidateTokenForRealm(token, RealmUser)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, RealmUser, claims.Realm)
}

func TestGenerateAndValidateAdminToken(t *testing.T) {
	mgr := newTestJWTManager()

	token, err := mgr.GenerateToken(RealmAdmin, uuid.NewString(), RoleAdmin)
	require.NoError(t, err)

	claims, err := mgr.ValidateTokenForRealm(token, RealmAdmin)
	require.NoError(t, err)
	assert.Equal(t, RealmAdmin, claims.Realm)
	assert.Equal(t, RoleAdmin, claims.Role)
}

func TestGenerateToken_Rejects(t *testing.T) {
	mgr := newTestJWTManager()

	tests := []struct {
		name    string
		realm   Realm
		subject string
		role    string
	}{
		{"unknown realm", Realm("affiliate"), "x", ""},
		{"unknown admin role", RealmAdmin, "x", "superadmin"},
		{"empty subject", RealmService, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mgr.GenerateToken(tt.realm, tt.subject, tt.role)
			assert.Error(t, err)
		})
	}
}

func TestServiceToken(t *testing.T) {
	mgr := newTestJWTManager()

	token, err := mgr.GenerateToken(RealmService, "activity-api", "")
	require.NoError(t, err)

	claims, err := mgr.ValidateTokenForRealm(token, RealmService)
	require.NoError(t, err)
	assert.Equal(t, "activity-api", claims.Subject)

	// a service subject is not a user id
	_, err = mgr.ValidateTokenForRealm(token, RealmUser)
	assert.Error(t, err)
}

func TestRealmMismatchRejected(t *testing.T) {
	mgr := newTestJWTManager()

	token, err := mgr.GenerateUserToken(uuid.New())
	require.NoError(t, err)

	_, err = mgr.ValidateTokenForRealm(token, RealmAdmin)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "expected realm admin")
}

func TestInvalidSecretRejected(t *testing.T) {
	mgr1 := NewJWTManager("secret-1", 24*time.Hour, 8*time.Hour, 12*time.Hour)
	mgr2 := NewJWTManager("secret-2", 24*time.Hour, 8*time.Hour, 12*time.Hour)

	token, err := mgr1.GenerateUserToken(uuid.New())
	require.NoError(t, err)

	_, err = mgr2.ValidateToken(token)
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	mgr := newTestJWTManager()
	issued := time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)
	mgr.now = func() time.Time { return issued }

	token, err := mgr.GenerateUserToken(uuid.New())
	require.NoError(t, err)

	mgr.now = func() time.Time { return issued.Add(25 * time.Hour) }
	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}

func TestAuthenticateUser_Middleware(t *testing.T) {
	mgr := newTestJWTManager()
	userID := uuid.New()
	userToken, err := mgr.GenerateUserToken(userID)
	require.NoError(t, err)
	adminToken, err := mgr.GenerateToken(RealmAdmin, uuid.NewString(), RoleViewer)
	require.NoError(t, err)

	var got uuid.UUID
	h := AuthenticateUser(mgr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + userToken, http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"bad format", "Token " + userToken, http.StatusUnauthorized},
		{"wrong realm", "Bearer " + adminToken, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
	assert.Equal(t, userID, got)
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(WriteRoles()...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		claims *Claims
		status int
	}{
		{"admin", &Claims{Realm: RealmAdmin, Role: RoleAdmin}, http.StatusOK},
		{"viewer", &Claims{Realm: RealmAdmin, Role: RoleViewer}, http.StatusForbidden},
		{"none", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.claims != nil {
				req = req.WithContext(WithClaims(req.Context(), tt.claims))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
