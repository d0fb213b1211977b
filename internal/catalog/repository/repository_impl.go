package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/kasira/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

type variantRow struct {
	ID             snowflake.ID
	TenantID       snowflake.ID
	ProductID      snowflake.ID
	SKU            string
	Name           string
	UnitPrice      decimal.Decimal
	TaxRate        *decimal.Decimal
	Active         bool
	CategoryCode   string
	ProductTaxRate *decimal.Decimal
}

func (r *repo) FindVariants(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ids []snowflake.ID) (map[snowflake.ID]*domain.ResolvedVariant, error) {
	if len(ids) == 0 {
		return map[snowflake.ID]*domain.ResolvedVariant{}, nil
	}

	var rows []variantRow
	err := db.WithContext(ctx).Raw(
		`SELECT v.id, v.tenant_id, v.product_id, v.sku, v.name, v.unit_price,
		        v.tax_rate, v.active,
		        p.category_code AS category_code, p.tax_rate AS product_tax_rate
		 FROM variants v
		 JOIN products p ON p.id = v.product_id
		 WHERE v.tenant_id = ? AND v.id IN ? AND v.active = ?`,
		tenantID,
		ids,
		true,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make(map[snowflake.ID]*domain.ResolvedVariant, len(rows))
	for i := range rows {
		row := rows[i]
		result[row.ID] = &domain.ResolvedVariant{
			Variant: domain.Variant{
				ID:        row.ID,
				TenantID:  row.TenantID,
				ProductID: row.ProductID,
				SKU:       row.SKU,
				Name:      row.Name,
				UnitPrice: row.UnitPrice,
				TaxRate:   row.TaxRate,
				Active:    row.Active,
			},
			CategoryCode:   row.CategoryCode,
			ProductTaxRate: row.ProductTaxRate,
		}
	}
	return result, nil
}
