package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type otpChallenges struct {
	repository.Repository[*OTPChallenge]
	db *bun.DB
}

var _ OTPChallenges = (*otpChallenges)(nil)

func NewOTPChallengesRepository(db *bun.DB) OTPChallenges {
	handlers := repository.ModelHandlers[*OTPChallenge]{
		NewRecord: func() *OTPChallenge {
			return &OTPChallenge{}
		},
		GetID: func(record *OTPChallenge) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *OTPChallenge, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "id"
		},
	}
	return &otpChallenges{
		Repository: repository.NewRepository(db, handlers),
		db:         db,
	}
}

func (r *otpChallenges) InsertTx(ctx context.Context, tx bun.IDB, challenge *OTPChallenge) (*OTPChallenge, error) {
	if challenge.ID == uuid.Nil {
		challenge.ID = uuid.New()
	}
	return r.Repository.CreateTx(ctx, tx, challenge)
}

// FindLatestUnusedUnexpired returns the newest live challenge. Exhausted
// challenges are still returned so the caller can reject them.
func (r *otpChallenges) FindLatestUnusedUnexpired(ctx context.Context, tenantID string, userID uuid.UUID, now time.Time) (*OTPChallenge, error) {
	record := &OTPChallenge{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", tenantID).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.used = ?", false).
		Where("?TableAlias.expires_at > ?", now).
		OrderExpr("?TableAlias.created_at DESC").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	return record, nil
}

// IncrementAttempts claims an attempt in a single conditional update, so
// concurrent verifications can never claim more than maxAttempts in total.
func (r *otpChallenges) IncrementAttempts(ctx context.Context, id uuid.UUID, maxAttempts int) error {
	res, err := r.db.NewUpdate().
		Model((*OTPChallenge)(nil)).
		Set("attempts = attempts + 1").
		Where("id = ?", id).
		Where("used = ?", false).
		Where("attempts < ?", maxAttempts).
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

// MarkUsed consumes the challenge unless it was already used. The attempt
// that matched was claimed beforehand, so up to maxAttempts are accepted.
func (r *otpChallenges) MarkUsed(ctx context.Context, id uuid.UUID, maxAttempts int, now time.Time) error {
	res, err := r.db.NewUpdate().
		Model((*OTPChallenge)(nil)).
		Set("used = ?", true).
		Set("used_at = ?", now).
		Where("id = ?", id).
		Where("used = ?", false).
		Where("attempts <= ?", maxAttempts).
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}
