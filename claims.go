package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionClaims are the identity attributes carried by a bearer token
type SessionClaims struct {
	Subject   string
	Email     string
	ProfileID string
	TenantID  string
}

// JWTClaims is the signed claim set
type JWTClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	ProfileID string `json:"profile_id"`
	TenantID  string `json:"tenant_id"`
}

// Session returns the identity part of the claims
func (c *JWTClaims) Session() SessionClaims {
	return SessionClaims{
		Subject:   c.RegisteredClaims.Subject,
		Email:     c.Email,
		ProfileID: c.ProfileID,
		TenantID:  c.TenantID,
	}
}

// UserID returns the subject as a uuid
func (c *JWTClaims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.RegisteredClaims.Subject)
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
