package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	// DefaultProfileID is assigned when sign up does not name a profile
	DefaultProfileID = "default"
	// DefaultActor is recorded in audit columns when no actor is known
	DefaultActor = "system"
)

// Tenant is the isolation boundary for users and challenges
type Tenant struct {
	bun.BaseModel `bun:"table:tenants,alias:tnt"`
	ID            string    `bun:"id,pk" json:"id"`
	Name          string    `bun:"name,notnull" json:"name"`
	Deleted       bool      `bun:"deleted,notnull" json:"deleted"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// User is the tenant scoped account record
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID `bun:"id,pk" json:"id"`
	TenantID      string    `bun:"tenant_id,notnull" json:"tenant_id"`
	ProfileID     string    `bun:"profile_id,notnull" json:"profile_id"`
	Name          string    `bun:"name,notnull" json:"name"`
	Email         string    `bun:"email,notnull" json:"email"`
	PasswordHash  string    `bun:"password_hash,notnull" json:"password_hash,omitempty"`
	Deleted       bool      `bun:"deleted,notnull" json:"deleted"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	CreatedBy     string    `bun:"created_by" json:"created_by,omitempty"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
	UpdatedBy     string    `bun:"updated_by" json:"updated_by,omitempty"`
}

// View returns the user without its password hash
func (u *User) View() *UserView {
	if u == nil {
		return nil
	}
	return &UserView{
		ID:        u.ID.String(),
		TenantID:  u.TenantID,
		ProfileID: u.ProfileID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// UserView is what leaves the service boundary
type UserView struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	ProfileID string    `json:"profile_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Password  string    `json:"password"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PasswordResetToken holds the hash of a single use reset secret
type PasswordResetToken struct {
	bun.BaseModel `bun:"table:password_reset_tokens,alias:prt"`
	ID            uuid.UUID  `bun:"id,pk" json:"id"`
	TenantID      string     `bun:"tenant_id,notnull" json:"tenant_id"`
	UserID        uuid.UUID  `bun:"user_id,notnull" json:"user_id"`
	TokenHash     string     `bun:"token_hash,notnull" json:"-"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	Used          bool       `bun:"used,notnull" json:"used"`
	UsedAt        *time.Time `bun:"used_at,nullzero" json:"used_at,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// Expired reports whether the token is past its expiry at now
func (p *PasswordResetToken) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// OTPChallenge holds the hash of a one time login code
type OTPChallenge struct {
	bun.BaseModel `bun:"table:auth_otp_challenges,alias:otp"`
	ID            uuid.UUID  `bun:"id,pk" json:"id"`
	TenantID      string     `bun:"tenant_id,notnull" json:"tenant_id"`
	UserID        uuid.UUID  `bun:"user_id,notnull" json:"user_id"`
	CodeHash      string     `bun:"code_hash,notnull" json:"-"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	Attempts      int        `bun:"attempts,notnull" json:"attempts"`
	Used          bool       `bun:"used,notnull" json:"used"`
	UsedAt        *time.Time `bun:"used_at,nullzero" json:"used_at,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// Exhausted reports whether the challenge reached the attempt ceiling
func (o *OTPChallenge) Exhausted(max int) bool {
	return o.Attempts >= max
}
