package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/smallbiznis/kasira/internal/tenant/domain"
	"github.com/smallbiznis/kasira/pkg/db"
	"gorm.io/gorm"
)

const (
	defaultTenantName = "Main"
	defaultStoreCode  = "main"
	defaultStoreName  = "Main Store"
)

// EnsureDefaultTenant seeds the default tenant and its store for startup
// bootstrap. Single-tenant installs work out of the box with no manual setup.
func EnsureDefaultTenant(db *gorm.DB) error {
	return ensure(db, 0)
}

// EnsureDefaultTenantWithID seeds the default tenant under a fixed ID so
// clients can rely on a stable default.
func EnsureDefaultTenantWithID(db *gorm.DB, tenantID int64) error {
	return ensure(db, snowflake.ID(tenantID))
}

func ensure(db *gorm.DB, tenantID snowflake.ID) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenant, err := ensureTenantTx(ctx, tx, node, tenantID)
		if err != nil {
			return err
		}
		return ensureStoreTx(ctx, tx, node, tenant.ID)
	})
}

func ensureTenantTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, tenantID snowflake.ID) (*tenantdomain.Tenant, error) {
	var existing tenantdomain.Tenant
	query := tx.WithContext(ctx)
	if tenantID != 0 {
		query = query.Where("id = ?", tenantID)
	} else {
		query = query.Where("name = ?", defaultTenantName)
	}

	err := query.First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	id := tenantID
	if id == 0 {
		id = node.Generate()
	}
	tenant := tenantdomain.Tenant{
		ID:   id,
		Name: defaultTenantName,
	}
	// A concurrent instance may seed the same tenant at boot.
	if err := tx.WithContext(ctx).Create(&tenant).Error; err != nil && !db.IsDuplicateKeyErr(err) {
		return nil, err
	}
	return &tenant, nil
}

func ensureStoreTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, tenantID snowflake.ID) error {
	var existing tenantdomain.Store
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND code = ?", tenantID, defaultStoreCode).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	store := tenantdomain.Store{
		ID:       node.Generate(),
		TenantID: tenantID,
		Code:     defaultStoreCode,
		Name:     defaultStoreName,
		Active:   true,
	}
	if err := tx.WithContext(ctx).Create(&store).Error; err != nil && !db.IsDuplicateKeyErr(err) {
		return err
	}
	return nil
}
