package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrCouponNotFound   = errors.New("coupon_not_found")
	ErrCouponNotActive  = errors.New("coupon_not_active")
	ErrCouponExhausted  = errors.New("coupon_exhausted")
	ErrRuleNotFound     = errors.New("rule_not_found")
	ErrRuleKindMismatch = errors.New("rule_kind_mismatch")
)

type Service interface {
	// Snapshot resolves the active rule set for a store at one instant.
	Snapshot(ctx context.Context, tenantID, storeID snowflake.ID, at time.Time) (*Snapshot, error)

	// ResolveCoupon looks up a coupon code with its bound rule. Unknown,
	// inactive, or out-of-window codes fail; the min-subtotal gate is NOT
	// checked here, the pricing engine skips the coupon silently instead.
	ResolveCoupon(ctx context.Context, tenantID snowflake.ID, code string, at time.Time) (*ResolvedCoupon, error)

	// MarkCouponUsedTx increments used_count inside the caller's
	// transaction, guarded by the usage cap.
	MarkCouponUsedTx(ctx context.Context, tx *gorm.DB, couponID snowflake.ID) error
}
