package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/kasira/internal/purchasing/domain"
)

type repository struct{}

func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) Create(ctx context.Context, tx *gorm.DB, po *domain.PurchaseOrder) error {
	if err := tx.WithContext(ctx).Create(po).Error; err != nil {
		return err
	}
	for i := range po.Lines {
		po.Lines[i].OrderID = po.ID
	}
	return tx.WithContext(ctx).Create(po.Lines).Error
}

func (r *repository) Find(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	err := db.WithContext(ctx).Raw(`
SELECT *
FROM purchase_orders
WHERE tenant_id = ? AND id = ?`, tenantID, id).Scan(&po).Error
	if err != nil {
		return nil, err
	}
	if po.ID == 0 {
		return nil, nil
	}
	if err := r.loadLines(ctx, db, &po); err != nil {
		return nil, err
	}
	return &po, nil
}

func (r *repository) FindForUpdate(ctx context.Context, tx *gorm.DB, tenantID, id snowflake.ID) (*domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	err := tx.WithContext(ctx).Raw(`
SELECT *
FROM purchase_orders
WHERE tenant_id = ? AND id = ?
FOR UPDATE`, tenantID, id).Scan(&po).Error
	if err != nil {
		return nil, err
	}
	if po.ID == 0 {
		return nil, nil
	}
	if err := r.loadLines(ctx, tx, &po); err != nil {
		return nil, err
	}
	return &po, nil
}

func (r *repository) loadLines(ctx context.Context, db *gorm.DB, po *domain.PurchaseOrder) error {
	return db.WithContext(ctx).
		Where("order_id = ?", po.ID).
		Order("id ASC").
		Find(&po.Lines).Error
}

func (r *repository) UpdateStatus(ctx context.Context, tx *gorm.DB, id snowflake.ID, status domain.Status) error {
	return tx.WithContext(ctx).Exec(`
UPDATE purchase_orders
SET status = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?`, status, id).Error
}

func (r *repository) SaveLine(ctx context.Context, tx *gorm.DB, line *domain.PurchaseOrderLine) error {
	return tx.WithContext(ctx).Exec(`
UPDATE purchase_order_lines
SET received_qty = ?
WHERE id = ?`, line.ReceivedQty, line.ID).Error
}
