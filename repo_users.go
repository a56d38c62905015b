package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var UpdateUserPasswordSQL = `UPDATE "users"
SET
	"password_hash" = ?,
	"updated_at" = ?,
	"updated_by" = ?
WHERE
	"deleted" = ?
AND "tenant_id" = ?
AND "id" = ?
RETURNING *;`

var UndeleteUserSQL = `UPDATE "users"
SET
	"deleted" = ?,
	"password_hash" = ?,
	"updated_at" = ?,
	"updated_by" = ?
WHERE
	"deleted" = ?
AND "tenant_id" = ?
AND "id" = ?
RETURNING *;`

type users struct {
	repository.Repository[*User]
	db    *bun.DB
	clock func() time.Time
}

var _ Users = (*users)(nil)

// NewUsersRepository returns the bun backed credential store
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
		clock:      time.Now,
	}
}

func (a *users) FindActiveByEmail(ctx context.Context, tenantID, email string) (*User, error) {
	return a.findByEmailTx(ctx, a.db, tenantID, email, true)
}

func (a *users) FindAnyByEmailTx(ctx context.Context, tx bun.IDB, tenantID, email string) (*User, error) {
	return a.findByEmailTx(ctx, tx, tenantID, email, false)
}

func (a *users) findByEmailTx(ctx context.Context, tx bun.IDB, tenantID, email string, activeOnly bool) (*User, error) {
	record := &User{}
	q := tx.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", tenantID).
		Where("?TableAlias.email = ?", email)

	if activeOnly {
		q = q.Where("?TableAlias.deleted = ?", false)
	}

	if err := q.Limit(1).Scan(ctx); err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"tenant_id": tenantID,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) GetActiveByID(ctx context.Context, tenantID string, id uuid.UUID) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", tenantID).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.deleted = ?", false).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"id": id.String(),
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) InsertTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	return a.Repository.CreateTx(ctx, tx, user)
}

func (a *users) UpdatePasswordTx(ctx context.Context, tx bun.IDB, tenantID string, id uuid.UUID, hash, actor string) error {
	res, err := a.Repository.RawTx(ctx, tx, UpdateUserPasswordSQL,
		hash, a.clock().UTC(), actor, false, tenantID, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func (a *users) UndeleteTx(ctx context.Context, tx bun.IDB, tenantID string, id uuid.UUID, hash, actor string) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, UndeleteUserSQL,
		false, hash, a.clock().UTC(), actor, true, tenantID, id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return res[0], nil
}

func (a *users) SoftDelete(ctx context.Context, tenantID string, id uuid.UUID, actor string) error {
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("deleted = ?", true).
		Set("updated_at = ?", a.clock().UTC()).
		Set("updated_by = ?", actor).
		Where("tenant_id = ?", tenantID).
		Where("id = ?", id).
		Where("deleted = ?", false).
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
