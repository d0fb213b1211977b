package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/kasira/internal/transfer/domain"
)

type repository struct{}

func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) Create(ctx context.Context, tx *gorm.DB, t *domain.Transfer) error {
	if err := tx.WithContext(ctx).Create(t).Error; err != nil {
		return err
	}
	for i := range t.Lines {
		t.Lines[i].TransferID = t.ID
	}
	return tx.WithContext(ctx).Create(t.Lines).Error
}

func (r *repository) Find(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Transfer, error) {
	var t domain.Transfer
	err := db.WithContext(ctx).Raw(`
SELECT *
FROM transfers
WHERE tenant_id = ? AND id = ?`, tenantID, id).Scan(&t).Error
	if err != nil {
		return nil, err
	}
	if t.ID == 0 {
		return nil, nil
	}
	if err := r.loadLines(ctx, db, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repository) FindForUpdate(ctx context.Context, tx *gorm.DB, tenantID, id snowflake.ID) (*domain.Transfer, error) {
	var t domain.Transfer
	err := tx.WithContext(ctx).Raw(`
SELECT *
FROM transfers
WHERE tenant_id = ? AND id = ?
FOR UPDATE`, tenantID, id).Scan(&t).Error
	if err != nil {
		return nil, err
	}
	if t.ID == 0 {
		return nil, nil
	}
	if err := r.loadLines(ctx, tx, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repository) loadLines(ctx context.Context, db *gorm.DB, t *domain.Transfer) error {
	return db.WithContext(ctx).
		Where("transfer_id = ?", t.ID).
		Order("id ASC").
		Find(&t.Lines).Error
}

func (r *repository) UpdateStatus(ctx context.Context, tx *gorm.DB, id snowflake.ID, status domain.Status) error {
	return tx.WithContext(ctx).Exec(`
UPDATE transfers
SET status = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?`, status, id).Error
}

func (r *repository) SaveLine(ctx context.Context, tx *gorm.DB, line *domain.TransferLine) error {
	return tx.WithContext(ctx).Exec(`
UPDATE transfer_lines
SET received_qty = ?
WHERE id = ?`, line.ReceivedQty, line.ID).Error
}
