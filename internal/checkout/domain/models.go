package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "CASH"
	PaymentCard PaymentMethod = "CARD"
)

var (
	ErrInvalidCheckout      = errors.New("invalid_checkout")
	ErrSaleNotFound         = errors.New("sale_not_found")
	ErrStoreMismatch        = errors.New("store_mismatch")
	ErrPaymentMismatch      = errors.New("payment_mismatch")
	ErrUnknownPaymentMethod = errors.New("unknown_payment_method")
)

// Sale is the persisted record of one completed checkout. The rule
// breakdowns are stored as JSON so a receipt can be reprinted exactly as
// priced, even after the rules change.
type Sale struct {
	ID             snowflake.ID    `json:"id" gorm:"primaryKey"`
	TenantID       snowflake.ID    `json:"tenant_id" gorm:"column:tenant_id;not null;index"`
	StoreID        snowflake.ID    `json:"store_id" gorm:"column:store_id;not null;index"`
	ReservationID  *snowflake.ID   `json:"reservation_id,omitempty" gorm:"column:reservation_id"`
	Subtotal       decimal.Decimal `json:"subtotal" gorm:"type:numeric(20,2);not null"`
	DiscountTotal  decimal.Decimal `json:"discount_total" gorm:"column:discount_total;type:numeric(20,2);not null"`
	TaxTotal       decimal.Decimal `json:"tax_total" gorm:"column:tax_total;type:numeric(20,2);not null"`
	GrandTotal     decimal.Decimal `json:"grand_total" gorm:"column:grand_total;type:numeric(20,2);not null"`
	CouponCode     string          `json:"coupon_code,omitempty" gorm:"column:coupon_code;type:text"`
	DiscountByRule datatypes.JSON  `json:"discount_by_rule,omitempty" gorm:"column:discount_by_rule;type:jsonb"`
	TaxByRule      datatypes.JSON  `json:"tax_by_rule,omitempty" gorm:"column:tax_by_rule;type:jsonb"`
	PaymentMethod  PaymentMethod   `json:"payment_method" gorm:"column:payment_method;type:text;not null"`
	Tendered       decimal.Decimal `json:"tendered" gorm:"type:numeric(20,2);not null"`
	Change         decimal.Decimal `json:"change" gorm:"type:numeric(20,2);not null"`
	CreatedAt      time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	Lines          []SaleLine      `json:"lines" gorm:"-"`
}

func (Sale) TableName() string { return "sales" }

type SaleLine struct {
	ID        snowflake.ID    `json:"id" gorm:"primaryKey"`
	SaleID    snowflake.ID    `json:"sale_id" gorm:"column:sale_id;not null;index"`
	VariantID snowflake.ID    `json:"variant_id" gorm:"column:variant_id;not null"`
	Quantity  int64           `json:"quantity" gorm:"not null"`
	UnitPrice decimal.Decimal `json:"unit_price" gorm:"column:unit_price;type:numeric(20,2);not null"`
	Base      decimal.Decimal `json:"base" gorm:"type:numeric(20,2);not null"`
	Discount  decimal.Decimal `json:"discount" gorm:"type:numeric(20,2);not null"`
	Net       decimal.Decimal `json:"net" gorm:"type:numeric(20,2);not null"`
	Tax       decimal.Decimal `json:"tax" gorm:"type:numeric(20,2);not null"`
}

func (SaleLine) TableName() string { return "sale_lines" }

// CartLine is one requested item before pricing.
type CartLine struct {
	VariantID snowflake.ID `json:"variant_id"`
	Quantity  int64        `json:"quantity"`
}

// QuoteRequest prices a cart without touching stock.
type QuoteRequest struct {
	TenantID   snowflake.ID
	StoreID    snowflake.ID
	Lines      []CartLine
	CouponCode string
}

// Payment is the tender presented at checkout.
type Payment struct {
	Method   PaymentMethod   `json:"method"`
	Tendered decimal.Decimal `json:"tendered"`
}

// CheckoutRequest completes a sale. When ReservationID is set, the held
// quantities are consumed instead of free stock.
type CheckoutRequest struct {
	TenantID      snowflake.ID
	StoreID       snowflake.ID
	Lines         []CartLine
	CouponCode    string
	ReservationID snowflake.ID
	Payment       Payment
}
