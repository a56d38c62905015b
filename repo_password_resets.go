package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type passwordResets struct {
	repository.Repository[*PasswordResetToken]
	db *bun.DB
}

var _ PasswordResets = (*passwordResets)(nil)

func NewPasswordResetsRepository(db *bun.DB) PasswordResets {
	handlers := repository.ModelHandlers[*PasswordResetToken]{
		NewRecord: func() *PasswordResetToken {
			return &PasswordResetToken{}
		},
		GetID: func(record *PasswordResetToken) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *PasswordResetToken, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "token_hash"
		},
	}
	return &passwordResets{
		Repository: repository.NewRepository(db, handlers),
		db:         db,
	}
}

func (r *passwordResets) InsertTx(ctx context.Context, tx bun.IDB, record *PasswordResetToken) (*PasswordResetToken, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.Repository.CreateTx(ctx, tx, record)
}

func (r *passwordResets) FindUnusedUnexpired(ctx context.Context, tenantID, tokenHash string, now time.Time) (*PasswordResetToken, error) {
	record := &PasswordResetToken{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", tenantID).
		Where("?TableAlias.token_hash = ?", tokenHash).
		Where("?TableAlias.used = ?", false).
		Where("?TableAlias.expires_at > ?", now).
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

// MarkUsedTx only flips unused rows so two consumers cannot both win
func (r *passwordResets) MarkUsedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, now time.Time) error {
	res, err := tx.NewUpdate().
		Model((*PasswordResetToken)(nil)).
		Set("used = ?", true).
		Set("used_at = ?", now).
		Where("id = ?", id).
		Where("used = ?", false).
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
