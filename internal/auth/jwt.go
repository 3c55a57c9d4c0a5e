package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer is stamped on every token this service signs and required on every
// token it accepts.
const Issuer = "umrah-va-gateway"

var ErrInvalidToken = errors.New("invalid token")

// Claims identify the caller and the travel agency (tenant) they act for.
type Claims struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	Email    string
}

type tokenClaims struct {
	jwt.RegisteredClaims
	TenantID uuid.UUID `json:"tenant_id"`
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email,omitempty"`
}

// GenerateToken signs an HS256 token for claims valid for ttl.
func GenerateToken(claims Claims, secret string, ttl time.Duration) (string, error) {
	if claims.TenantID == uuid.Nil {
		return "", fmt.Errorf("GenerateToken: %w: tenant_id is required", ErrInvalidToken)
	}
	now := time.Now()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   claims.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TenantID: claims.TenantID,
		UserID:   claims.UserID,
		Email:    claims.Email,
	}).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("GenerateToken: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies signature, issuer and expiry. Errors wrap both
// ErrInvalidToken and the underlying jwt error.
func ValidateToken(raw string, secret string) (*Claims, error) {
	var tc tokenClaims
	_, err := jwt.ParseWithClaims(raw, &tc,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("ValidateToken: %w: %w", ErrInvalidToken, err)
	}
	if tc.TenantID == uuid.Nil {
		return nil, fmt.Errorf("ValidateToken: %w: missing tenant_id", ErrInvalidToken)
	}
	return &Claims{TenantID: tc.TenantID, UserID: tc.UserID, Email: tc.Email}, nil
}
