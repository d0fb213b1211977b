package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kasira/internal/tenant/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindTenant(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, allow_backorders, created_at, updated_at
		 FROM tenants WHERE id = ?`,
		id,
	).Scan(&tenant).Error
	if err != nil {
		return nil, err
	}
	if tenant.ID == 0 {
		return nil, nil
	}
	return &tenant, nil
}

func (r *repo) FindStore(ctx context.Context, db *gorm.DB, tenantID, storeID snowflake.ID) (*domain.Store, error) {
	var store domain.Store
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, code, name, active, created_at, updated_at
		 FROM stores WHERE tenant_id = ? AND id = ?`,
		tenantID,
		storeID,
	).Scan(&store).Error
	if err != nil {
		return nil, err
	}
	if store.ID == 0 {
		return nil, nil
	}
	return &store, nil
}
