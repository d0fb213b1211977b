package domain

import (
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptyCart        = errors.New("empty_cart")
	ErrInvalidQuantity  = errors.New("invalid_quantity")
	ErrInvalidUnitPrice = errors.New("invalid_unit_price")
)

// CartLine is one priced line of a cart. Ephemeral, constructed per request.
// VariantTaxRate and ProductTaxRate are percent values; the variant rate
// wins when both are present.
type CartLine struct {
	VariantID      snowflake.ID     `json:"variant_id"`
	ProductID      snowflake.ID     `json:"product_id"`
	CategoryCode   string           `json:"category_code"`
	Quantity       int64            `json:"quantity"`
	UnitPrice      decimal.Decimal  `json:"unit_price"`
	VariantTaxRate *decimal.Decimal `json:"variant_tax_rate,omitempty"`
	ProductTaxRate *decimal.Decimal `json:"product_tax_rate,omitempty"`
}

// RuleAmount is one entry of a receipt breakdown list. Key is "rule:<id>"
// for explicit rules and "category:<code>" for the implicit base category
// tax, so both aggregate uniformly.
type RuleAmount struct {
	Key    string          `json:"key"`
	RuleID *snowflake.ID   `json:"rule_id,omitempty"`
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// LineDetail carries the per-line outcome of a pricing computation.
// Discount and Tax cover line-scope contributions; receipt-scope amounts
// appear only in the receipt breakdown lists.
type LineDetail struct {
	VariantID snowflake.ID    `json:"variant_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Base      decimal.Decimal `json:"base"`
	Discount  decimal.Decimal `json:"discount"`
	Net       decimal.Decimal `json:"net"`
	Tax       decimal.Decimal `json:"tax"`
}

// Receipt is the immutable output of one pricing computation. All amounts
// are 2-decimal, half-up rounded at the point of computation.
//
// Invariant: GrandTotal = Subtotal - DiscountTotal + TaxTotal.
type Receipt struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountTotal  decimal.Decimal `json:"discount_total"`
	TaxTotal       decimal.Decimal `json:"tax_total"`
	GrandTotal     decimal.Decimal `json:"grand_total"`
	DiscountByRule []RuleAmount    `json:"discount_by_rule"`
	TaxByRule      []RuleAmount    `json:"tax_by_rule"`
	Lines          []LineDetail    `json:"lines"`
	CouponApplied  bool            `json:"coupon_applied"`
}
