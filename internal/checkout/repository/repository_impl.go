package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/kasira/internal/checkout/domain"
)

type Repository interface {
	Create(ctx context.Context, tx *gorm.DB, sale *domain.Sale) error
	Find(ctx context.Context, db *gorm.DB, tenantID, saleID snowflake.ID) (*domain.Sale, error)
}

type repository struct{}

func Provide() Repository {
	return &repository{}
}

func (r *repository) Create(ctx context.Context, tx *gorm.DB, sale *domain.Sale) error {
	if err := tx.WithContext(ctx).Create(sale).Error; err != nil {
		return err
	}
	for i := range sale.Lines {
		sale.Lines[i].SaleID = sale.ID
	}
	return tx.WithContext(ctx).Create(sale.Lines).Error
}

func (r *repository) Find(ctx context.Context, db *gorm.DB, tenantID, saleID snowflake.ID) (*domain.Sale, error) {
	var sale domain.Sale
	err := db.WithContext(ctx).Raw(`
SELECT *
FROM sales
WHERE tenant_id = ? AND id = ?`, tenantID, saleID).Scan(&sale).Error
	if err != nil {
		return nil, err
	}
	if sale.ID == 0 {
		return nil, nil
	}
	err = db.WithContext(ctx).
		Where("sale_id = ?", sale.ID).
		Order("id ASC").
		Find(&sale.Lines).Error
	if err != nil {
		return nil, err
	}
	return &sale, nil
}
