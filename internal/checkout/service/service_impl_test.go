package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	catalogdomain "github.com/smallbiznis/kasira/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/kasira/internal/catalog/repository"
	"github.com/smallbiznis/kasira/internal/checkout/domain"
	"github.com/smallbiznis/kasira/internal/checkout/repository"
	"github.com/smallbiznis/kasira/internal/clock"
	invdomain "github.com/smallbiznis/kasira/internal/inventory/domain"
	"github.com/smallbiznis/kasira/internal/inventory/lock"
	invrepo "github.com/smallbiznis/kasira/internal/inventory/repository"
	invservice "github.com/smallbiznis/kasira/internal/inventory/service"
	pricingdomain "github.com/smallbiznis/kasira/internal/pricing/domain"
	"github.com/smallbiznis/kasira/internal/pricing/engine"
	resdomain "github.com/smallbiznis/kasira/internal/reservation/domain"
	resrepo "github.com/smallbiznis/kasira/internal/reservation/repository"
	resservice "github.com/smallbiznis/kasira/internal/reservation/service"
	rulesdomain "github.com/smallbiznis/kasira/internal/rules/domain"
	rulesrepo "github.com/smallbiznis/kasira/internal/rules/repository"
	rulesservice "github.com/smallbiznis/kasira/internal/rules/service"
	tenantdomain "github.com/smallbiznis/kasira/internal/tenant/domain"
	tenantrepo "github.com/smallbiznis/kasira/internal/tenant/repository"
	"github.com/smallbiznis/kasira/internal/testutil"
)

const (
	testTenant  = snowflake.ID(1)
	testStore   = snowflake.ID(10)
	testProduct = snowflake.ID(50)
	testVariant = snowflake.ID(100)
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fixture struct {
	db           *gorm.DB
	clk          *clock.FakeClock
	node         *snowflake.Node
	inventory    invdomain.Service
	reservations resdomain.Service
	svc          domain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.OpenDB(t,
		&tenantdomain.Tenant{},
		&tenantdomain.Store{},
		&catalogdomain.Product{},
		&catalogdomain.Variant{},
		&rulesdomain.Rule{},
		&rulesdomain.Coupon{},
		&invdomain.InventoryItem{},
		&invdomain.StockLedgerEntry{},
		&resdomain.Reservation{},
		&resdomain.ReservationLine{},
		&domain.Sale{},
		&domain.SaleLine{},
	)
	node := testutil.Node(t)
	locks := lock.NewManager()
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	inv := invservice.New(invservice.Params{
		DB: db, Log: zap.NewNop(), Repo: invrepo.Provide(node), Locks: locks,
	})
	res := resservice.New(resservice.Params{
		DB: db, Log: zap.NewNop(), Node: node, Clock: clk,
		Tenants: tenantrepo.Provide(), Catalog: catalogrepo.Provide(),
		Repo: resrepo.Provide(), Inventory: inv, Locks: locks,
	})
	rules := rulesservice.New(rulesservice.Params{
		DB: db, Log: zap.NewNop(), Repo: rulesrepo.Provide(),
	})
	svc := New(Params{
		DB:           db,
		Log:          zap.NewNop(),
		Node:         node,
		Clock:        clk,
		Tenants:      tenantrepo.Provide(),
		Catalog:      catalogrepo.Provide(),
		Rules:        rules,
		Engine:       engine.New(),
		Inventory:    inv,
		Reservations: res,
		Locks:        locks,
		Repo:         repository.Provide(),
	})

	f := &fixture{db: db, clk: clk, node: node, inventory: inv, reservations: res, svc: svc}
	f.seed(t)
	return f
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	rate := dec("8")
	require.NoError(t, f.db.Create(&tenantdomain.Tenant{ID: testTenant, Name: "acme"}).Error)
	require.NoError(t, f.db.Create(&tenantdomain.Store{ID: testStore, TenantID: testTenant, Code: "main", Name: "Main", Active: true}).Error)
	require.NoError(t, f.db.Create(&catalogdomain.Product{ID: testProduct, TenantID: testTenant, Name: "Coffee", CategoryCode: "FOOD", TaxRate: &rate, Active: true}).Error)
	require.NoError(t, f.db.Create(&catalogdomain.Variant{ID: testVariant, TenantID: testTenant, ProductID: testProduct, SKU: "COF-1", Name: "Coffee 250g", UnitPrice: dec("10.00"), Active: true}).Error)
}

func (f *fixture) seedRule(t *testing.T, r rulesdomain.Rule) {
	t.Helper()
	if r.ID == 0 {
		r.ID = f.node.Generate()
	}
	r.TenantID = testTenant
	require.NoError(t, f.db.Create(&r).Error)
}

func (f *fixture) seedCoupon(t *testing.T, code string, ruleID snowflake.ID, cap *int32, minSubtotal *decimal.Decimal) snowflake.ID {
	t.Helper()
	c := rulesdomain.Coupon{
		ID:          f.node.Generate(),
		TenantID:    testTenant,
		RuleID:      ruleID,
		Code:        code,
		UsageCap:    cap,
		MinSubtotal: minSubtotal,
		Active:      true,
	}
	require.NoError(t, f.db.Create(&c).Error)
	return c.ID
}

func (f *fixture) receive(t *testing.T, variant snowflake.ID, qty int64) {
	t.Helper()
	_, err := f.inventory.ApplyMovement(context.Background(), invdomain.Movement{
		TenantID: testTenant, StoreID: testStore, VariantID: variant,
		Delta: qty, RefType: invdomain.RefPurchaseReceipt, RefID: snowflake.ID(999),
	})
	require.NoError(t, err)
}

func (f *fixture) level(t *testing.T, variant snowflake.ID) *invdomain.StockLevel {
	t.Helper()
	level, err := f.inventory.GetStock(context.Background(), testTenant, invdomain.Key{StoreID: testStore, VariantID: variant})
	require.NoError(t, err)
	return level
}

func cashCheckout(lines []domain.CartLine, tendered string) domain.CheckoutRequest {
	return domain.CheckoutRequest{
		TenantID: testTenant,
		StoreID:  testStore,
		Lines:    lines,
		Payment:  domain.Payment{Method: domain.PaymentCash, Tendered: dec(tendered)},
	}
}

func TestQuoteDoesNotTouchStock(t *testing.T) {
	f := newFixture(t)
	f.receive(t, testVariant, 5)
	f.seedRule(t, rulesdomain.Rule{
		Name: "10 off", Kind: rulesdomain.KindDiscount, Scope: rulesdomain.ScopeGlobal,
		ApplyScope: rulesdomain.ApplyLine, Basis: rulesdomain.BasisPercent,
		Rate: dec("10"), TargetType: rulesdomain.TargetAll, Stackable: false, Active: true,
	})

	receipt, err := f.svc.Quote(context.Background(), domain.QuoteRequest{
		TenantID: testTenant,
		StoreID:  testStore,
		Lines:    []domain.CartLine{{VariantID: testVariant, Quantity: 2}},
	})
	require.NoError(t, err)

	// 20.00 - 2.00 discount, 8% category tax on 18.00.
	assert.True(t, receipt.Subtotal.Equal(dec("20.00")))
	assert.True(t, receipt.DiscountTotal.Equal(dec("2.00")))
	assert.True(t, receipt.TaxTotal.Equal(dec("1.44")))
	assert.True(t, receipt.GrandTotal.Equal(dec("19.44")))

	assert.Equal(t, int64(5), f.level(t, testVariant).OnHand)
}

func TestCheckoutCashHappyPath(t *testing.T) {
	f := newFixture(t)
	f.receive(t, testVariant, 5)

	sale, err := f.svc.Checkout(context.Background(),
		cashCheckout([]domain.CartLine{{VariantID: testVariant, Quantity: 2}}, "25.00"))
	require.NoError(t, err)

	// No rules seeded: 20.00 + 8% category tax = 21.60, change 3.40.
	assert.True(t, sale.GrandTotal.Equal(dec("21.60")))
	assert.True(t, sale.Change.Equal(dec("3.40")))
	require.Len(t, sale.Lines, 1)
	assert.Equal(t, int64(2), sale.Lines[0].Quantity)

	assert.Equal(t, int64(3), f.level(t, testVariant).OnHand)

	var entries []invdomain.StockLedgerEntry
	require.NoError(t, f.db.Where("ref_type = ?", invdomain.RefSale).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(-2), entries[0].Delta)
	assert.Equal(t, int64(3), entries[0].BalanceAfter)
	assert.Equal(t, sale.ID, entries[0].RefID)

	got, err := f.svc.GetSale(context.Background(), testTenant, sale.ID)
	require.NoError(t, err)
	assert.True(t, got.GrandTotal.Equal(sale.GrandTotal))
	require.Len(t, got.Lines, 1)
}

func TestCheckoutInsufficientStockRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	other := snowflake.ID(101)
	require.NoError(t, f.db.Create(&catalogdomain.Variant{
		ID: other, TenantID: testTenant, ProductID: testProduct,
		SKU: "COF-2", Name: "Coffee 1kg", UnitPrice: dec("30.00"), Active: true,
	}).Error)
	f.receive(t, testVariant, 5)
	f.receive(t, other, 1)

	_, err := f.svc.Checkout(context.Background(), cashCheckout([]domain.CartLine{
		{VariantID: testVariant, Quantity: 2},
		{VariantID: other, Quantity: 3},
	}, "500.00"))
	require.Error(t, err)
	assert.ErrorIs(t, err, invdomain.ErrInsufficientStock)

	// First line's consumption rolled back with the transaction.
	assert.Equal(t, int64(5), f.level(t, testVariant).OnHand)
	assert.Equal(t, int64(1), f.level(t, other).OnHand)

	var count int64
	require.NoError(t, f.db.Model(&domain.Sale{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
	require.NoError(t, f.db.Model(&invdomain.StockLedgerEntry{}).
		Where("ref_type = ?", invdomain.RefSale).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestCheckoutPaymentValidation(t *testing.T) {
	f := newFixture(t)
	f.receive(t, testVariant, 5)
	lines := []domain.CartLine{{VariantID: testVariant, Quantity: 1}}

	// Total is 10.80 with the 8% category tax.
	_, err := f.svc.Checkout(context.Background(), cashCheckout(lines, "10.00"))
	assert.ErrorIs(t, err, domain.ErrPaymentMismatch)

	_, err = f.svc.Checkout(context.Background(), domain.CheckoutRequest{
		TenantID: testTenant, StoreID: testStore, Lines: lines,
		Payment: domain.Payment{Method: domain.PaymentCard, Tendered: dec("11.00")},
	})
	assert.ErrorIs(t, err, domain.ErrPaymentMismatch)

	_, err = f.svc.Checkout(context.Background(), domain.CheckoutRequest{
		TenantID: testTenant, StoreID: testStore, Lines: lines,
		Payment: domain.Payment{Method: "VOUCHER", Tendered: dec("10.80")},
	})
	assert.ErrorIs(t, err, domain.ErrUnknownPaymentMethod)

	// Nothing was consumed by the rejected attempts.
	assert.Equal(t, int64(5), f.level(t, testVariant).OnHand)

	sale, err := f.svc.Checkout(context.Background(), domain.CheckoutRequest{
		TenantID: testTenant, StoreID: testStore, Lines: lines,
		Payment: domain.Payment{Method: domain.PaymentCard, Tendered: dec("10.80")},
	})
	require.NoError(t, err)
	assert.True(t, sale.Change.IsZero())
}

func TestCheckoutCouponLifecycle(t *testing.T) {
	f := newFixture(t)
	f.receive(t, testVariant, 10)

	couponRule := rulesdomain.Rule{
		ID: f.node.Generate(), Name: "members", Kind: rulesdomain.KindDiscount,
		Scope: rulesdomain.ScopeGlobal, ApplyScope: rulesdomain.ApplyLine,
		Basis: rulesdomain.BasisPercent, Rate: dec("50"),
		TargetType: rulesdomain.TargetAll, Stackable: false, CouponOnly: true, Active: true,
	}
	f.seedRule(t, couponRule)
	cap := int32(1)
	couponID := f.seedCoupon(t, "HALF", couponRule.ID, &cap, nil)

	req := cashCheckout([]domain.CartLine{{VariantID: testVariant, Quantity: 1}}, "20.00")
	req.CouponCode = "HALF"

	sale, err := f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	// 10.00 - 50% = 5.00 net, 8% tax = 0.40.
	assert.True(t, sale.GrandTotal.Equal(dec("5.40")))
	assert.Equal(t, "HALF", sale.CouponCode)

	var coupon rulesdomain.Coupon
	require.NoError(t, f.db.First(&coupon, "id = ?", couponID).Error)
	assert.Equal(t, int32(1), coupon.UsedCount)

	// The cap is spent; the next resolve refuses the code.
	_, err = f.svc.Checkout(context.Background(), req)
	assert.ErrorIs(t, err, rulesdomain.ErrCouponExhausted)
}

func TestCheckoutCouponBelowMinSubtotalStillSells(t *testing.T) {
	f := newFixture(t)
	f.receive(t, testVariant, 10)

	couponRule := rulesdomain.Rule{
		ID: f.node.Generate(), Name: "big basket", Kind: rulesdomain.KindDiscount,
		Scope: rulesdomain.ScopeGlobal, ApplyScope: rulesdomain.ApplyLine,
		Basis: rulesdomain.BasisPercent, Rate: dec("25"),
		TargetType: rulesdomain.TargetAll, Stackable: true, CouponOnly: true, Active: true,
	}
	f.seedRule(t, couponRule)
	couponID := f.seedCoupon(t, "BIG25", couponRule.ID, nil, decp("50.00"))

	req := cashCheckout([]domain.CartLine{{VariantID: testVariant, Quantity: 1}}, "20.00")
	req.CouponCode = "BIG25"

	sale, err := f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	// Gate failed: full price, no coupon recorded, no usage burned.
	assert.True(t, sale.GrandTotal.Equal(dec("10.80")))
	assert.Empty(t, sale.CouponCode)

	var coupon rulesdomain.Coupon
	require.NoError(t, f.db.First(&coupon, "id = ?", couponID).Error)
	assert.Equal(t, int32(0), coupon.UsedCount)
}

func TestCheckoutBackorderTenantOversells(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(&tenantdomain.Tenant{}).
		Where("id = ?", testTenant).Update("allow_backorders", true).Error)
	f.receive(t, testVariant, 1)

	sale, err := f.svc.Checkout(context.Background(),
		cashCheckout([]domain.CartLine{{VariantID: testVariant, Quantity: 3}}, "40.00"))
	require.NoError(t, err)
	require.NotNil(t, sale)

	assert.Equal(t, int64(-2), f.level(t, testVariant).OnHand)
}

func TestCheckoutWithReservation(t *testing.T) {
	f := newFixture(t)
	f.receive(t, testVariant, 10)
	ctx := context.Background()

	res, err := f.reservations.Reserve(ctx, resdomain.ReserveRequest{
		TenantID: testTenant,
		StoreID:  testStore,
		Lines:    []resdomain.LineRequest{{VariantID: testVariant, Quantity: 5}},
	})
	require.NoError(t, err)

	// Hold of 5, sale of 3: 3 committed, the other 2 go back to available.
	req := cashCheckout([]domain.CartLine{{VariantID: testVariant, Quantity: 3}}, "50.00")
	req.ReservationID = res.ID

	sale, err := f.svc.Checkout(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, sale.ReservationID)
	assert.Equal(t, res.ID, *sale.ReservationID)

	level := f.level(t, testVariant)
	assert.Equal(t, int64(7), level.OnHand)
	assert.Equal(t, int64(0), level.Reserved)

	got, err := f.reservations.Get(ctx, testTenant, res.ID)
	require.NoError(t, err)
	assert.Equal(t, resdomain.StatusCommitted, got.Status)

	// A committed reservation cannot be spent twice.
	_, err = f.svc.Checkout(ctx, req)
	assert.ErrorIs(t, err, resdomain.ErrReservationState)
}

func TestCheckoutExpiredReservationRejected(t *testing.T) {
	f := newFixture(t)
	f.receive(t, testVariant, 10)
	ctx := context.Background()

	res, err := f.reservations.Reserve(ctx, resdomain.ReserveRequest{
		TenantID: testTenant,
		StoreID:  testStore,
		TTL:      time.Minute,
		Lines:    []resdomain.LineRequest{{VariantID: testVariant, Quantity: 5}},
	})
	require.NoError(t, err)

	f.clk.Advance(2 * time.Minute)

	req := cashCheckout([]domain.CartLine{{VariantID: testVariant, Quantity: 3}}, "50.00")
	req.ReservationID = res.ID

	_, err = f.svc.Checkout(ctx, req)
	assert.ErrorIs(t, err, resdomain.ErrReservationExpired)
	assert.Equal(t, int64(5), f.level(t, testVariant).Reserved)
}

func TestCheckoutUnknownVariant(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Checkout(context.Background(),
		cashCheckout([]domain.CartLine{{VariantID: snowflake.ID(777), Quantity: 1}}, "10.00"))
	assert.ErrorIs(t, err, catalogdomain.ErrUnknownVariant)
}

func TestSaleStoresBreakdownJSON(t *testing.T) {
	f := newFixture(t)
	f.receive(t, testVariant, 5)
	f.seedRule(t, rulesdomain.Rule{
		Name: "spring", Kind: rulesdomain.KindDiscount, Scope: rulesdomain.ScopeGlobal,
		ApplyScope: rulesdomain.ApplyLine, Basis: rulesdomain.BasisPercent,
		Rate: dec("10"), TargetType: rulesdomain.TargetAll, Stackable: true, Active: true,
	})

	sale, err := f.svc.Checkout(context.Background(),
		cashCheckout([]domain.CartLine{{VariantID: testVariant, Quantity: 1}}, "20.00"))
	require.NoError(t, err)

	var discounts []pricingdomain.RuleAmount
	require.NoError(t, json.Unmarshal(sale.DiscountByRule, &discounts))
	require.Len(t, discounts, 1)
	assert.True(t, discounts[0].Amount.Equal(dec("1.00")))

	var taxes []pricingdomain.RuleAmount
	require.NoError(t, json.Unmarshal(sale.TaxByRule, &taxes))
	require.Len(t, taxes, 1)
	assert.Equal(t, "category:FOOD", taxes[0].Key)
}

func decp(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestMarshalBreakdownRoundTrips(t *testing.T) {
	got, err := marshalBreakdown(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	id := snowflake.ID(7)
	got, err = marshalBreakdown([]pricingdomain.RuleAmount{
		{Key: "rule:7", RuleID: &id, Label: "promo", Amount: dec("2.50")},
	})
	require.NoError(t, err)

	var entries []pricingdomain.RuleAmount
	require.NoError(t, json.Unmarshal(got, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "rule:7", entries[0].Key)
	assert.True(t, entries[0].Amount.Equal(dec("2.50")))
}
