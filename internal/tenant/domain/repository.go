package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrStoreNotFound = errors.New("store_not_found")
)

type Repository interface {
	FindTenant(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tenant, error)
	FindStore(ctx context.Context, db *gorm.DB, tenantID, storeID snowflake.ID) (*Store, error)
}
