package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kasira/internal/rules/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ListRules(ctx context.Context, db *gorm.DB, tenantID, storeID snowflake.ID) ([]domain.Rule, error) {
	var rules []domain.Rule
	err := db.WithContext(ctx).
		Model(&domain.Rule{}).
		Where("tenant_id = ? AND active = ? AND coupon_only = ?", tenantID, true, false).
		Where("scope = ? OR (scope = ? AND store_id = ?)", domain.ScopeGlobal, domain.ScopeStore, storeID).
		Order("priority asc, id asc").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) FindCouponByCode(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string) (*domain.Coupon, error) {
	var coupon domain.Coupon
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, rule_id, code, min_subtotal, usage_cap, used_count,
		        starts_at, ends_at, active, created_at, updated_at
		 FROM coupons WHERE tenant_id = ? AND code = ?`,
		tenantID,
		strings.TrimSpace(code),
	).Scan(&coupon).Error
	if err != nil {
		return nil, err
	}
	if coupon.ID == 0 {
		return nil, nil
	}
	return &coupon, nil
}

func (r *repo) FindRule(ctx context.Context, db *gorm.DB, tenantID, ruleID snowflake.ID) (*domain.Rule, error) {
	var rule domain.Rule
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, ruleID).
		Limit(1).
		Find(&rule).Error
	if err != nil {
		return nil, err
	}
	if rule.ID == 0 {
		return nil, nil
	}
	return &rule, nil
}

func (r *repo) IncrementCouponUsage(ctx context.Context, db *gorm.DB, couponID snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE coupons
		 SET used_count = used_count + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND (usage_cap IS NULL OR used_count < usage_cap)`,
		couponID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
