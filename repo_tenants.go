package auth

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// TenantsRepository resolves and registers tenants
type TenantsRepository struct {
	db *bun.DB
}

var _ TenantResolver = (*TenantsRepository)(nil)

func NewTenantsRepository(db *bun.DB) *TenantsRepository {
	return &TenantsRepository{db: db}
}

// Resolve returns the tenant unless it is unknown or deleted
func (t *TenantsRepository) Resolve(ctx context.Context, tenantID string) (*Tenant, error) {
	record := &Tenant{}
	err := t.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", tenantID).
		Where("?TableAlias.deleted = ?", false).
		Limit(1).
		Scan(ctx)

	if err != nil {
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

// Create registers a tenant
func (t *TenantsRepository) Create(ctx context.Context, tenant *Tenant) error {
	_, err := t.db.NewInsert().Model(tenant).Exec(ctx)
	return err
}
