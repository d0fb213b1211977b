package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type RuleKind string

const (
	KindTax      RuleKind = "TAX"
	KindDiscount RuleKind = "DISCOUNT"
)

type RuleScope string

const (
	ScopeGlobal RuleScope = "GLOBAL"
	ScopeStore  RuleScope = "STORE"
)

type ApplyScope string

const (
	ApplyLine    ApplyScope = "LINE"
	ApplyReceipt ApplyScope = "RECEIPT"
)

type Basis string

const (
	BasisPercent Basis = "PERCENT"
	BasisFixed   Basis = "FIXED"
)

type TargetType string

const (
	TargetAll      TargetType = "ALL"
	TargetCategory TargetType = "CATEGORY"
	TargetProduct  TargetType = "PRODUCT"
	TargetVariant  TargetType = "VARIANT"
)

// Rule is a tax or discount rule. Rules are immutable during a single
// pricing computation; the engine only ever sees them through a Snapshot.
//
// Rate is a percent value (10 = 10%) when Basis is PERCENT. Amount is the
// fixed value when Basis is FIXED: per unit for LINE rules, once per receipt
// for RECEIPT rules. CouponOnly rules never join a snapshot on their own;
// they apply only through the coupon that references them.
type Rule struct {
	ID         snowflake.ID    `json:"id" gorm:"primaryKey"`
	TenantID   snowflake.ID    `json:"tenant_id" gorm:"column:tenant_id;not null;index"`
	StoreID    *snowflake.ID   `json:"store_id,omitempty" gorm:"column:store_id;index"`
	Name       string          `json:"name" gorm:"type:text;not null"`
	Kind       RuleKind        `json:"kind" gorm:"type:text;not null"`
	Scope      RuleScope       `json:"scope" gorm:"type:text;not null"`
	ApplyScope ApplyScope      `json:"apply_scope" gorm:"column:apply_scope;type:text;not null"`
	Basis      Basis           `json:"basis" gorm:"type:text;not null"`
	Rate       decimal.Decimal `json:"rate" gorm:"type:numeric(8,4);not null;default:0"`
	Amount     decimal.Decimal `json:"amount" gorm:"type:numeric(20,2);not null;default:0"`
	TargetType TargetType      `json:"target_type" gorm:"column:target_type;type:text;not null;default:'ALL'"`
	TargetIDs  datatypes.JSON  `json:"target_ids,omitempty" gorm:"column:target_ids;type:jsonb"`
	Priority   int32           `json:"priority" gorm:"not null;default:0"`
	Stackable  bool            `json:"stackable" gorm:"not null;default:true"`
	CouponOnly bool            `json:"coupon_only" gorm:"column:coupon_only;not null;default:false"`
	StartsAt   *time.Time      `json:"starts_at,omitempty"`
	EndsAt     *time.Time      `json:"ends_at,omitempty"`
	Active     bool            `json:"active" gorm:"not null;default:true"`
	CreatedAt  time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time       `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Rule) TableName() string { return "rules" }

// TargetSet parses TargetIDs into a lookup set. An empty set on a targeted
// rule matches nothing, never everything.
func (r *Rule) TargetSet() map[string]struct{} {
	set := make(map[string]struct{})
	if len(r.TargetIDs) == 0 {
		return set
	}
	var ids []string
	if err := json.Unmarshal(r.TargetIDs, &ids); err != nil {
		return set
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return set
}

// InWindow reports whether the rule is valid at the given instant.
func (r *Rule) InWindow(at time.Time) bool {
	if r.StartsAt != nil && at.Before(*r.StartsAt) {
		return false
	}
	if r.EndsAt != nil && at.After(*r.EndsAt) {
		return false
	}
	return true
}

// Matches dispatches the rule target against one line. Category targets
// match on category code; product and variant targets match on the
// stringified snowflake id.
func (r *Rule) Matches(categoryCode string, productID, variantID snowflake.ID) bool {
	switch r.TargetType {
	case TargetAll:
		return true
	case TargetCategory:
		_, ok := r.TargetSet()[categoryCode]
		return ok
	case TargetProduct:
		_, ok := r.TargetSet()[productID.String()]
		return ok
	case TargetVariant:
		_, ok := r.TargetSet()[variantID.String()]
		return ok
	default:
		return false
	}
}

// Coupon binds a code to exactly one discount rule.
type Coupon struct {
	ID          snowflake.ID     `json:"id" gorm:"primaryKey"`
	TenantID    snowflake.ID     `json:"tenant_id" gorm:"column:tenant_id;not null;index;uniqueIndex:idx_coupons_tenant_code,priority:1"`
	RuleID      snowflake.ID     `json:"rule_id" gorm:"column:rule_id;not null"`
	Code        string           `json:"code" gorm:"type:text;not null;uniqueIndex:idx_coupons_tenant_code,priority:2"`
	MinSubtotal *decimal.Decimal `json:"min_subtotal,omitempty" gorm:"column:min_subtotal;type:numeric(20,2)"`
	UsageCap    *int32           `json:"usage_cap,omitempty" gorm:"column:usage_cap"`
	UsedCount   int32            `json:"used_count" gorm:"column:used_count;not null;default:0"`
	StartsAt    *time.Time       `json:"starts_at,omitempty"`
	EndsAt      *time.Time       `json:"ends_at,omitempty"`
	Active      bool             `json:"active" gorm:"not null;default:true"`
	CreatedAt   time.Time        `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time        `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Coupon) TableName() string { return "coupons" }

// InWindow reports whether the coupon is valid at the given instant.
func (c *Coupon) InWindow(at time.Time) bool {
	if c.StartsAt != nil && at.Before(*c.StartsAt) {
		return false
	}
	if c.EndsAt != nil && at.After(*c.EndsAt) {
		return false
	}
	return true
}

// Exhausted reports whether the usage cap has been reached.
func (c *Coupon) Exhausted() bool {
	return c.UsageCap != nil && c.UsedCount >= *c.UsageCap
}

// ResolvedCoupon is a coupon joined with its bound discount rule.
type ResolvedCoupon struct {
	Coupon Coupon
	Rule   Rule
}

// Snapshot is the read-only rule set for one (tenant, store) at one instant.
// The pricing engine treats it as immutable.
type Snapshot struct {
	TenantID      snowflake.ID
	StoreID       snowflake.ID
	At            time.Time
	TaxRules      []Rule
	DiscountRules []Rule
}
