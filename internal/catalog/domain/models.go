package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Product groups sellable variants under one tax category. TaxRate is the
// product-level fallback used when a variant carries no rate of its own.
type Product struct {
	ID           snowflake.ID     `json:"id" gorm:"primaryKey"`
	TenantID     snowflake.ID     `json:"tenant_id" gorm:"column:tenant_id;not null;index"`
	Name         string           `json:"name" gorm:"type:text;not null"`
	CategoryCode string           `json:"category_code" gorm:"column:category_code;type:text;not null"`
	TaxRate      *decimal.Decimal `json:"tax_rate,omitempty" gorm:"type:numeric(8,4)"`
	Active       bool             `json:"active" gorm:"not null;default:true"`
	CreatedAt    time.Time        `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time        `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Product) TableName() string { return "products" }

// Variant is a sellable SKU of a product.
type Variant struct {
	ID        snowflake.ID     `json:"id" gorm:"primaryKey"`
	TenantID  snowflake.ID     `json:"tenant_id" gorm:"column:tenant_id;not null;index"`
	ProductID snowflake.ID     `json:"product_id" gorm:"column:product_id;not null;index"`
	SKU       string           `json:"sku" gorm:"type:text;not null"`
	Name      string           `json:"name" gorm:"type:text;not null"`
	UnitPrice decimal.Decimal  `json:"unit_price" gorm:"type:numeric(20,2);not null"`
	TaxRate   *decimal.Decimal `json:"tax_rate,omitempty" gorm:"type:numeric(8,4)"`
	Active    bool             `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time        `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time        `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Variant) TableName() string { return "variants" }

// ResolvedVariant joins a variant with the product fields pricing needs.
type ResolvedVariant struct {
	Variant
	CategoryCode   string           `json:"category_code"`
	ProductTaxRate *decimal.Decimal `json:"product_tax_rate,omitempty"`
}
