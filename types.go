package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAudience() []string
	GetTokenTTL() time.Duration
	GetResetTokenTTL() time.Duration
	GetOTPTTL() time.Duration
	GetOTPMaxAttempts() int
	GetResetLinkBase() string
}

// TenantResolver resolves a tenant id to an active tenant record
type TenantResolver interface {
	Resolve(ctx context.Context, tenantID string) (*Tenant, error)
}

// Users is the tenant scoped credential store
type Users interface {
	FindActiveByEmail(ctx context.Context, tenantID, email string) (*User, error)
	FindAnyByEmailTx(ctx context.Context, tx bun.IDB, tenantID, email string) (*User, error)
	GetActiveByID(ctx context.Context, tenantID string, id uuid.UUID) (*User, error)
	InsertTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	UpdatePasswordTx(ctx context.Context, tx bun.IDB, tenantID string, id uuid.UUID, hash, actor string) error
	UndeleteTx(ctx context.Context, tx bun.IDB, tenantID string, id uuid.UUID, hash, actor string) (*User, error)
	SoftDelete(ctx context.Context, tenantID string, id uuid.UUID, actor string) error
}

// PasswordResets stores hashed single use reset tokens
type PasswordResets interface {
	InsertTx(ctx context.Context, tx bun.IDB, record *PasswordResetToken) (*PasswordResetToken, error)
	FindUnusedUnexpired(ctx context.Context, tenantID, tokenHash string, now time.Time) (*PasswordResetToken, error)
	MarkUsedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, now time.Time) error
}

// OTPChallenges stores hashed one time login codes
type OTPChallenges interface {
	InsertTx(ctx context.Context, tx bun.IDB, challenge *OTPChallenge) (*OTPChallenge, error)
	FindLatestUnusedUnexpired(ctx context.Context, tenantID string, userID uuid.UUID, now time.Time) (*OTPChallenge, error)
	// IncrementAttempts claims one verification attempt. It fails with a
	// not found error once the challenge is used or has maxAttempts claimed.
	IncrementAttempts(ctx context.Context, id uuid.UUID, maxAttempts int) error
	MarkUsed(ctx context.Context, id uuid.UUID, maxAttempts int, now time.Time) error
}

// Notifier delivers secrets to the account owner out of band
type Notifier interface {
	SendPasswordResetEmail(ctx context.Context, to, link string) error
	SendOTPEmail(ctx context.Context, to, code string) error
}

// PasswordHasher hashes and compares secrets
type PasswordHasher interface {
	Hash(ctx context.Context, secret string) (string, error)
	Compare(ctx context.Context, secret, hash string) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
