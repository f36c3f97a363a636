package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Realm identifies the JWT authentication realm.
type Realm string

const (
	RealmUser    Realm = "user"
	RealmAdmin   Realm = "admin"
	RealmService Realm = "service"
)

// Claims holds the custom JWT claims for all 3 realms. The subject is a user
// or admin id, or the calling service's name in the service realm.
type Claims struct {
	jwt.RegisteredClaims
	Realm Realm  `json:"realm"`
	Role  string `json:"role,omitempty"` // admin realm: viewer, admin
}

// JWTManager handles token generation and validation for all 3 realms.
type JWTManager struct {
	secret        []byte
	userExpiry    time.Duration
	adminExpiry   time.Duration
	serviceExpiry time.Duration
	now           func() time.Time
}

// NewJWTManager creates a JWT manager with realm-specific expiry durations.
func NewJWTManager(secret string, userExpiry, adminExpiry, serviceExpiry time.Duration) *JWTManager {
	return &JWTManager{
		secret:        []byte(secret),
		userExpiry:    userExpiry,
		adminExpiry:   adminExpiry,
		serviceExpiry: serviceExpiry,
		now:           time.Now,
	}
}

// GenerateToken creates a signed JWT for the given realm and subject.
func (m *JWTManager) GenerateToken(realm Realm, subject, role string) (string, error) {
	var expiry time.Duration
	switch realm {
	case RealmUser:
		expiry = m.userExpiry
	case RealmAdmin:
		expiry = m.adminExpiry
		if !ValidRole(role) {
			return "", fmt.Errorf("unknown admin role: %q", role)
		}
	case RealmService:
		expiry = m.serviceExpiry
	default:
		return "", fmt.Errorf("unknown realm: %s", realm)
	}
	if subject == "" {
		return "", fmt.Errorf("subject is required")
	}

	now := m.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			ID:        uuid.New().String(),
		},
		Realm: realm,
		Role:  role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// GenerateUserToken is a convenience for the user realm.
func (m *JWTManager) GenerateUserToken(userID uuid.UUID) (string, error) {
	return m.GenerateToken(RealmUser, userID.String(), "")
}

// ValidateToken parses and validates a JWT, returning claims if valid.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// ValidateTokenForRealm validates a token and ensures it belongs to the expected realm.
func (m *JWTManager) ValidateTokenForRealm(tokenString string, expectedRealm Realm) (*Claims, error) {
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Realm != expectedRealm {
		return nil, fmt.Errorf("expected realm %s, got %s", expectedRealm, claims.Realm)
	}
	if expectedRealm == RealmUser {
		if _, err := uuid.Parse(claims.Subject); err != nil {
			return nil, fmt.Errorf("user token subject is not a uuid")
		}
	}
	return claims, nil
}
