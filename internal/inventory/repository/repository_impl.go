package repository

import (
	"context"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/smallbiznis/kasira/internal/inventory/domain"
	"github.com/smallbiznis/kasira/pkg/db/pagination"
)

type repository struct {
	node *snowflake.Node
}

func Provide(node *snowflake.Node) domain.Repository {
	return &repository{node: node}
}

func (r *repository) FindForUpdate(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, key domain.Key) (*domain.InventoryItem, error) {
	item, err := r.selectForUpdate(ctx, tx, tenantID, key)
	if err != nil {
		return nil, err
	}
	if item != nil {
		return item, nil
	}

	// Position does not exist yet: seed a zero row, then lock it. The
	// conflict clause absorbs the race with a concurrent seeder.
	seed := &domain.InventoryItem{
		ID:        r.node.Generate(),
		TenantID:  tenantID,
		StoreID:   key.StoreID,
		VariantID: key.VariantID,
	}
	if err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(seed).Error; err != nil {
		return nil, err
	}

	return r.selectForUpdate(ctx, tx, tenantID, key)
}

func (r *repository) selectForUpdate(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, key domain.Key) (*domain.InventoryItem, error) {
	var item domain.InventoryItem
	err := tx.WithContext(ctx).Raw(`
SELECT *
FROM inventory_items
WHERE tenant_id = ? AND store_id = ? AND variant_id = ?
FOR UPDATE`, tenantID, key.StoreID, key.VariantID).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repository) Save(ctx context.Context, tx *gorm.DB, item *domain.InventoryItem) error {
	return tx.WithContext(ctx).Exec(`
UPDATE inventory_items
SET on_hand = ?, reserved = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?`, item.OnHand, item.Reserved, item.ID).Error
}

func (r *repository) AppendLedger(ctx context.Context, tx *gorm.DB, entry *domain.StockLedgerEntry) error {
	if entry.ID == 0 {
		entry.ID = r.node.Generate()
	}
	return tx.WithContext(ctx).Create(entry).Error
}

func (r *repository) Find(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, key domain.Key) (*domain.InventoryItem, error) {
	var item domain.InventoryItem
	err := db.WithContext(ctx).Raw(`
SELECT *
FROM inventory_items
WHERE tenant_id = ? AND store_id = ? AND variant_id = ?`,
		tenantID, key.StoreID, key.VariantID).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repository) ListByStore(ctx context.Context, db *gorm.DB, tenantID, storeID snowflake.ID) ([]*domain.InventoryItem, error) {
	var items []*domain.InventoryItem
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND store_id = ?", tenantID, storeID).
		Order("variant_id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) ListLedger(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, key domain.Key, p pagination.Pagination) ([]*domain.StockLedgerEntry, *pagination.PageInfo, error) {
	limit := p.Limit()

	q := db.WithContext(ctx).
		Where("tenant_id = ? AND store_id = ? AND variant_id = ?", tenantID, key.StoreID, key.VariantID)

	if p.PageToken != "" {
		cursor, err := pagination.DecodeCursor(p.PageToken)
		if err != nil {
			return nil, nil, err
		}
		if cursor.ID != "" {
			id, err := strconv.ParseInt(cursor.ID, 10, 64)
			if err != nil {
				return nil, nil, err
			}
			q = q.Where("id < ?", id)
		}
	}

	var entries []*domain.StockLedgerEntry
	if err := q.Order("id DESC").Limit(limit + 1).Find(&entries).Error; err != nil {
		return nil, nil, err
	}

	pageInfo, entries := pagination.BuildCursorPageInfo(entries, limit, func(e *domain.StockLedgerEntry) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: e.ID.String()})
		return token
	})
	return entries, pageInfo, nil
}
