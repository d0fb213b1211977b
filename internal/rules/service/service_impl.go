package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kasira/internal/cache"
	"github.com/smallbiznis/kasira/internal/rules/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const ruleCacheTTL = 30 * time.Second

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	rules cache.Cache[string, []domain.Rule]
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("rules.service"),
		repo:  p.Repo,
		rules: cache.NewTTLCache[string, []domain.Rule](),
	}
}

func (s *Service) Snapshot(ctx context.Context, tenantID, storeID snowflake.ID, at time.Time) (*domain.Snapshot, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}

	key := cacheKey(tenantID, storeID)
	all, ok := s.rules.Get(key)
	if !ok {
		loaded, err := s.repo.ListRules(ctx, s.db, tenantID, storeID)
		if err != nil {
			return nil, fmt.Errorf("list rules: %w", err)
		}
		s.rules.Set(key, loaded, ruleCacheTTL)
		all = loaded
	}

	snap := &domain.Snapshot{
		TenantID: tenantID,
		StoreID:  storeID,
		At:       at,
	}
	for i := range all {
		rule := all[i]
		if !rule.InWindow(at) {
			continue
		}
		switch rule.Kind {
		case domain.KindTax:
			snap.TaxRules = append(snap.TaxRules, rule)
		case domain.KindDiscount:
			snap.DiscountRules = append(snap.DiscountRules, rule)
		}
	}
	return snap, nil
}

func (s *Service) ResolveCoupon(ctx context.Context, tenantID snowflake.ID, code string, at time.Time) (*domain.ResolvedCoupon, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.ErrCouponNotFound
	}

	coupon, err := s.repo.FindCouponByCode(ctx, s.db, tenantID, code)
	if err != nil {
		return nil, fmt.Errorf("find coupon: %w", err)
	}
	if coupon == nil {
		return nil, domain.ErrCouponNotFound
	}
	if !coupon.Active || !coupon.InWindow(at) {
		return nil, domain.ErrCouponNotActive
	}
	if coupon.Exhausted() {
		return nil, domain.ErrCouponExhausted
	}

	rule, err := s.repo.FindRule(ctx, s.db, tenantID, coupon.RuleID)
	if err != nil {
		return nil, fmt.Errorf("find coupon rule: %w", err)
	}
	if rule == nil {
		s.log.Warn("coupon references missing rule",
			zap.String("coupon_id", coupon.ID.String()),
			zap.String("rule_id", coupon.RuleID.String()),
		)
		return nil, domain.ErrRuleNotFound
	}
	if rule.Kind != domain.KindDiscount {
		return nil, domain.ErrRuleKindMismatch
	}

	return &domain.ResolvedCoupon{Coupon: *coupon, Rule: *rule}, nil
}

func (s *Service) MarkCouponUsedTx(ctx context.Context, tx *gorm.DB, couponID snowflake.ID) error {
	updated, err := s.repo.IncrementCouponUsage(ctx, tx, couponID)
	if err != nil {
		return fmt.Errorf("increment coupon usage: %w", err)
	}
	if !updated {
		return domain.ErrCouponExhausted
	}
	return nil
}

func cacheKey(tenantID, storeID snowflake.ID) string {
	return tenantID.String() + ":" + storeID.String()
}
