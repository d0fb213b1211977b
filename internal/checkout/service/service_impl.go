package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	catalogdomain "github.com/smallbiznis/kasira/internal/catalog/domain"
	"github.com/smallbiznis/kasira/internal/checkout/domain"
	"github.com/smallbiznis/kasira/internal/checkout/repository"
	"github.com/smallbiznis/kasira/internal/clock"
	invdomain "github.com/smallbiznis/kasira/internal/inventory/domain"
	"github.com/smallbiznis/kasira/internal/inventory/lock"
	"github.com/smallbiznis/kasira/internal/observability/metrics"
	pricingdomain "github.com/smallbiznis/kasira/internal/pricing/domain"
	"github.com/smallbiznis/kasira/internal/pricing/engine"
	resdomain "github.com/smallbiznis/kasira/internal/reservation/domain"
	rulesdomain "github.com/smallbiznis/kasira/internal/rules/domain"
	tenantdomain "github.com/smallbiznis/kasira/internal/tenant/domain"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Node         *snowflake.Node
	Clock        clock.Clock
	Tenants      tenantdomain.Repository
	Catalog      catalogdomain.Repository
	Rules        rulesdomain.Service
	Engine       *engine.Engine
	Inventory    invdomain.Service
	Reservations resdomain.Service
	Locks        *lock.Manager
	Repo         repository.Repository
	Metrics      *metrics.Metrics `optional:"true"`
}

type service struct {
	db           *gorm.DB
	log          *zap.Logger
	node         *snowflake.Node
	clock        clock.Clock
	tenants      tenantdomain.Repository
	catalog      catalogdomain.Repository
	rules        rulesdomain.Service
	engine       *engine.Engine
	inventory    invdomain.Service
	reservations resdomain.Service
	locks        *lock.Manager
	repo         repository.Repository
	metrics      *metrics.Metrics
}

func New(p Params) domain.Service {
	return &service{
		db:           p.DB,
		log:          p.Log.Named("checkout.service"),
		node:         p.Node,
		clock:        p.Clock,
		tenants:      p.Tenants,
		catalog:      p.Catalog,
		rules:        p.Rules,
		engine:       p.Engine,
		inventory:    p.Inventory,
		reservations: p.Reservations,
		locks:        p.Locks,
		repo:         p.Repo,
		metrics:      p.Metrics,
	}
}

// pricedCart is the shared output of quoting: the resolved cart in variant
// order plus the computed receipt.
type pricedCart struct {
	tenant  *tenantdomain.Tenant
	lines   []pricingdomain.CartLine
	receipt *pricingdomain.Receipt
	coupon  *rulesdomain.ResolvedCoupon
}

func (s *service) Quote(ctx context.Context, req domain.QuoteRequest) (*pricingdomain.Receipt, error) {
	cart, err := s.price(ctx, req.TenantID, req.StoreID, req.Lines, req.CouponCode)
	if err != nil {
		return nil, err
	}
	return cart.receipt, nil
}

func (s *service) price(ctx context.Context, tenantID, storeID snowflake.ID, lines []domain.CartLine, couponCode string) (*pricedCart, error) {
	if len(lines) == 0 {
		return nil, pricingdomain.ErrEmptyCart
	}

	tenant, err := s.tenants.FindTenant(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, tenantdomain.ErrInvalidTenant
	}
	store, err := s.tenants.FindStore(ctx, s.db, tenantID, storeID)
	if err != nil {
		return nil, err
	}
	if store == nil || !store.Active {
		return nil, tenantdomain.ErrStoreNotFound
	}

	// Duplicate variants collapse so stock is consumed once per position.
	merged := make(map[snowflake.ID]int64)
	for _, line := range lines {
		if line.VariantID == 0 || line.Quantity <= 0 {
			return nil, pricingdomain.ErrInvalidQuantity
		}
		merged[line.VariantID] += line.Quantity
	}
	variantIDs := make([]snowflake.ID, 0, len(merged))
	for id := range merged {
		variantIDs = append(variantIDs, id)
	}
	sort.Slice(variantIDs, func(i, j int) bool { return variantIDs[i] < variantIDs[j] })

	variants, err := s.catalog.FindVariants(ctx, s.db, tenantID, variantIDs)
	if err != nil {
		return nil, err
	}

	cartLines := make([]pricingdomain.CartLine, 0, len(variantIDs))
	for _, id := range variantIDs {
		v, ok := variants[id]
		if !ok || !v.Active {
			return nil, catalogdomain.ErrUnknownVariant
		}
		cartLines = append(cartLines, pricingdomain.CartLine{
			VariantID:      v.ID,
			ProductID:      v.ProductID,
			CategoryCode:   v.CategoryCode,
			Quantity:       merged[id],
			UnitPrice:      v.UnitPrice,
			VariantTaxRate: v.TaxRate,
			ProductTaxRate: v.ProductTaxRate,
		})
	}

	now := s.clock.Now()
	snap, err := s.rules.Snapshot(ctx, tenantID, storeID, now)
	if err != nil {
		return nil, err
	}

	var coupon *rulesdomain.ResolvedCoupon
	if couponCode != "" {
		coupon, err = s.rules.ResolveCoupon(ctx, tenantID, couponCode, now)
		if err != nil {
			return nil, err
		}
	}

	receipt, err := s.engine.ComputeReceipt(cartLines, snap, coupon)
	if err != nil {
		return nil, err
	}
	return &pricedCart{tenant: tenant, lines: cartLines, receipt: receipt, coupon: coupon}, nil
}

func (s *service) Checkout(ctx context.Context, req domain.CheckoutRequest) (*domain.Sale, error) {
	sale, err := s.checkout(ctx, req)
	switch {
	case err == nil:
		s.metrics.RecordCheckout(ctx, "completed")
	case errors.Is(err, invdomain.ErrInsufficientStock):
		s.metrics.RecordCheckout(ctx, "insufficient_stock")
	default:
		s.metrics.RecordCheckout(ctx, "failed")
	}
	return sale, err
}

func (s *service) checkout(ctx context.Context, req domain.CheckoutRequest) (*domain.Sale, error) {
	cart, err := s.price(ctx, req.TenantID, req.StoreID, req.Lines, req.CouponCode)
	if err != nil {
		return nil, err
	}

	change, err := validatePayment(req.Payment, cart.receipt.GrandTotal)
	if err != nil {
		return nil, err
	}

	// A referenced reservation contributes its positions to the lock set.
	// Its lines are read again under FOR UPDATE inside the transaction.
	keys := make([]invdomain.Key, 0, len(cart.lines))
	for _, line := range cart.lines {
		keys = append(keys, invdomain.Key{StoreID: req.StoreID, VariantID: line.VariantID})
	}
	if req.ReservationID != 0 {
		res, err := s.reservations.Get(ctx, req.TenantID, req.ReservationID)
		if err != nil {
			return nil, err
		}
		if res.StoreID != req.StoreID {
			return nil, domain.ErrStoreMismatch
		}
		for _, line := range res.Lines {
			keys = append(keys, invdomain.Key{StoreID: res.StoreID, VariantID: line.VariantID})
		}
	}
	release := s.locks.Acquire(keys...)
	defer release()

	sale := &domain.Sale{
		ID:            s.node.Generate(),
		TenantID:      req.TenantID,
		StoreID:       req.StoreID,
		Subtotal:      cart.receipt.Subtotal,
		DiscountTotal: cart.receipt.DiscountTotal,
		TaxTotal:      cart.receipt.TaxTotal,
		GrandTotal:    cart.receipt.GrandTotal,
		PaymentMethod: req.Payment.Method,
		Tendered:      req.Payment.Tendered,
		Change:        change,
	}
	if cart.receipt.CouponApplied {
		sale.CouponCode = req.CouponCode
	}
	if req.ReservationID != 0 {
		id := req.ReservationID
		sale.ReservationID = &id
	}
	if sale.DiscountByRule, err = marshalBreakdown(cart.receipt.DiscountByRule); err != nil {
		return nil, fmt.Errorf("marshal discount breakdown: %w", err)
	}
	if sale.TaxByRule, err = marshalBreakdown(cart.receipt.TaxByRule); err != nil {
		return nil, fmt.Errorf("marshal tax breakdown: %w", err)
	}
	for _, line := range cart.receipt.Lines {
		sale.Lines = append(sale.Lines, domain.SaleLine{
			ID:        s.node.Generate(),
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Base:      line.Base,
			Discount:  line.Discount,
			Net:       line.Net,
			Tax:       line.Tax,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Held quantities are consumed first; any remainder comes out of
		// free stock under the tenant's backorder policy.
		held := make(map[snowflake.ID]int64)
		if req.ReservationID != 0 {
			res, err := s.reservations.CommitTx(ctx, tx, req.TenantID, req.ReservationID)
			if err != nil {
				return err
			}
			for _, line := range res.Lines {
				held[line.VariantID] += line.Quantity
			}
		}

		for _, line := range cart.lines {
			key := invdomain.Key{StoreID: req.StoreID, VariantID: line.VariantID}
			remaining := line.Quantity
			if fromHold := min(remaining, held[line.VariantID]); fromHold > 0 {
				if _, err := s.inventory.CommitReservedTx(ctx, tx, req.TenantID, key, fromHold, sale.ID); err != nil {
					return err
				}
				held[line.VariantID] -= fromHold
				remaining -= fromHold
			}
			if remaining > 0 {
				if _, err := s.inventory.ApplyMovementTx(ctx, tx, invdomain.Movement{
					TenantID:      req.TenantID,
					StoreID:       req.StoreID,
					VariantID:     line.VariantID,
					Delta:         -remaining,
					RefType:       invdomain.RefSale,
					RefID:         sale.ID,
					AllowNegative: cart.tenant.AllowBackorders,
				}); err != nil {
					return err
				}
			}
		}

		// Holds the sale did not use go back to available stock.
		for _, key := range keys {
			if qty := held[key.VariantID]; qty > 0 {
				if err := s.inventory.ReleaseReservedTx(ctx, tx, req.TenantID, key, qty, invdomain.RefReservationRelease, req.ReservationID); err != nil {
					return err
				}
				held[key.VariantID] = 0
			}
		}

		if cart.receipt.CouponApplied {
			if err := s.rules.MarkCouponUsedTx(ctx, tx, cart.coupon.Coupon.ID); err != nil {
				return err
			}
		}

		return s.repo.Create(ctx, tx, sale)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("checkout completed",
		zap.Int64("sale_id", int64(sale.ID)),
		zap.Int64("store_id", int64(req.StoreID)),
		zap.Int("lines", len(sale.Lines)),
		zap.String("grand_total", sale.GrandTotal.StringFixed(2)),
		zap.String("payment_method", string(req.Payment.Method)),
	)
	return sale, nil
}

func (s *service) GetSale(ctx context.Context, tenantID, saleID snowflake.ID) (*domain.Sale, error) {
	sale, err := s.repo.Find(ctx, s.db, tenantID, saleID)
	if err != nil {
		return nil, err
	}
	if sale == nil {
		return nil, domain.ErrSaleNotFound
	}
	return sale, nil
}

// validatePayment returns the change due. Cash must cover the total; card
// must match it exactly.
func validatePayment(p domain.Payment, grandTotal decimal.Decimal) (decimal.Decimal, error) {
	switch p.Method {
	case domain.PaymentCash:
		if p.Tendered.LessThan(grandTotal) {
			return decimal.Zero, domain.ErrPaymentMismatch
		}
		return p.Tendered.Sub(grandTotal), nil
	case domain.PaymentCard:
		if !p.Tendered.Equal(grandTotal) {
			return decimal.Zero, domain.ErrPaymentMismatch
		}
		return decimal.Zero, nil
	default:
		return decimal.Zero, domain.ErrUnknownPaymentMethod
	}
}

func marshalBreakdown(entries []pricingdomain.RuleAmount) (datatypes.JSON, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
