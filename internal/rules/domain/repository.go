package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// ListRules returns active, non-coupon rules visible to a store
	// (GLOBAL scope plus STORE scope for that store), ordered by
	// (priority, id). Validity windows are filtered by the caller so a
	// cached list stays usable across instants.
	ListRules(ctx context.Context, db *gorm.DB, tenantID, storeID snowflake.ID) ([]Rule, error)

	FindCouponByCode(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string) (*Coupon, error)
	FindRule(ctx context.Context, db *gorm.DB, tenantID, ruleID snowflake.ID) (*Rule, error)

	// IncrementCouponUsage bumps used_count if the cap allows it and
	// reports whether a row was updated.
	IncrementCouponUsage(ctx context.Context, db *gorm.DB, couponID snowflake.ID) (bool, error)
}
