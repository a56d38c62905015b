package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Tenants() TenantResolver
	Users() Users
	PasswordResets() PasswordResets
	OTPChallenges() OTPChallenges
}

type mngr struct {
	db             *bun.DB
	tenants        TenantResolver
	users          Users
	passwordResets PasswordResets
	otpChallenges  OTPChallenges
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:             db,
		tenants:        NewTenantsRepository(db),
		users:          NewUsersRepository(db),
		passwordResets: NewPasswordResetsRepository(db),
		otpChallenges:  NewOTPChallengesRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.tenants == nil {
		return errors.New("repository tenants should be initialized")
	}

	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.passwordResets == nil {
		return errors.New("repository passwordResets should be initialized")
	}

	if m.otpChallenges == nil {
		return errors.New("repository otpChallenges should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Tenants() TenantResolver {
	return m.tenants
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) PasswordResets() PasswordResets {
	return m.passwordResets
}

func (m mngr) OTPChallenges() OTPChallenges {
	return m.otpChallenges
}
