package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	invdomain "github.com/smallbiznis/kasira/internal/inventory/domain"
	"github.com/smallbiznis/kasira/internal/inventory/lock"
	invrepo "github.com/smallbiznis/kasira/internal/inventory/repository"
	invservice "github.com/smallbiznis/kasira/internal/inventory/service"
	"github.com/smallbiznis/kasira/internal/purchasing/domain"
	"github.com/smallbiznis/kasira/internal/purchasing/repository"
	tenantdomain "github.com/smallbiznis/kasira/internal/tenant/domain"
	tenantrepo "github.com/smallbiznis/kasira/internal/tenant/repository"
	"github.com/smallbiznis/kasira/internal/testutil"
)

const (
	testTenant = snowflake.ID(1)
	testStore  = snowflake.ID(10)
	variantA   = snowflake.ID(100)
	variantB   = snowflake.ID(101)
)

type fixture struct {
	db        *gorm.DB
	inventory invdomain.Service
	svc       domain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.OpenDB(t,
		&tenantdomain.Tenant{},
		&tenantdomain.Store{},
		&invdomain.InventoryItem{},
		&invdomain.StockLedgerEntry{},
		&domain.PurchaseOrder{},
		&domain.PurchaseOrderLine{},
	)
	node := testutil.Node(t)
	locks := lock.NewManager()

	inv := invservice.New(invservice.Params{
		DB: db, Log: zap.NewNop(), Repo: invrepo.Provide(node), Locks: locks,
	})
	svc := New(Params{
		DB: db, Log: zap.NewNop(), Node: node,
		Tenants: tenantrepo.Provide(), Repo: repository.Provide(),
		Inventory: inv, Locks: locks,
	})

	require.NoError(t, db.Create(&tenantdomain.Tenant{ID: testTenant, Name: "acme"}).Error)
	require.NoError(t, db.Create(&tenantdomain.Store{ID: testStore, TenantID: testTenant, Code: "main", Name: "Main", Active: true}).Error)

	return &fixture{db: db, inventory: inv, svc: svc}
}

func (f *fixture) onHand(t *testing.T, variant snowflake.ID) int64 {
	t.Helper()
	level, err := f.inventory.GetStock(context.Background(), testTenant, invdomain.Key{StoreID: testStore, VariantID: variant})
	require.NoError(t, err)
	return level.OnHand
}

func createOrder(t *testing.T, f *fixture) *domain.PurchaseOrder {
	t.Helper()
	po, err := f.svc.Create(context.Background(), domain.CreateRequest{
		TenantID: testTenant,
		StoreID:  testStore,
		Supplier: "roastery",
		Lines: []domain.LineRequest{
			{VariantID: variantA, Quantity: 10},
			{VariantID: variantB, Quantity: 4},
		},
	})
	require.NoError(t, err)
	return po
}

func TestCreateHasNoStockEffect(t *testing.T) {
	f := newFixture(t)

	po := createOrder(t, f)
	assert.Equal(t, domain.StatusOpen, po.Status)
	require.Len(t, po.Lines, 2)

	assert.Equal(t, int64(0), f.onHand(t, variantA))
	assert.Equal(t, int64(0), f.onHand(t, variantB))
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), domain.CreateRequest{
		TenantID: testTenant, StoreID: testStore, Supplier: "roastery",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)

	_, err = f.svc.Create(context.Background(), domain.CreateRequest{
		TenantID: testTenant, StoreID: testStore, Supplier: "roastery",
		Lines: []domain.LineRequest{{VariantID: variantA, Quantity: -1}},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)

	_, err = f.svc.Create(context.Background(), domain.CreateRequest{
		TenantID: testTenant, StoreID: snowflake.ID(999), Supplier: "roastery",
		Lines: []domain.LineRequest{{VariantID: variantA, Quantity: 1}},
	})
	assert.ErrorIs(t, err, tenantdomain.ErrStoreNotFound)
}

func TestPartialThenFullReceive(t *testing.T) {
	f := newFixture(t)
	po := createOrder(t, f)
	ctx := context.Background()

	got, err := f.svc.Receive(ctx, domain.ReceiveRequest{
		TenantID: testTenant,
		OrderID:  po.ID,
		Received: map[snowflake.ID]int64{variantA: 6},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartial, got.Status)
	assert.Equal(t, int64(6), f.onHand(t, variantA))

	got, err = f.svc.Receive(ctx, domain.ReceiveRequest{
		TenantID: testTenant,
		OrderID:  po.ID,
		Received: map[snowflake.ID]int64{variantA: 4, variantB: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReceived, got.Status)
	assert.Equal(t, int64(10), f.onHand(t, variantA))
	assert.Equal(t, int64(4), f.onHand(t, variantB))

	// Every receipt left a ledger row pointing back at the order.
	var entries []invdomain.StockLedgerEntry
	require.NoError(t, f.db.Where("ref_type = ? AND ref_id = ?", invdomain.RefPurchaseReceipt, po.ID).Find(&entries).Error)
	assert.Len(t, entries, 3)

	// The order is closed now.
	_, err = f.svc.Receive(ctx, domain.ReceiveRequest{
		TenantID: testTenant,
		OrderID:  po.ID,
		Received: map[snowflake.ID]int64{variantA: 1},
	})
	assert.ErrorIs(t, err, domain.ErrOrderState)
}

func TestReceiveCannotExceedOrdered(t *testing.T) {
	f := newFixture(t)
	po := createOrder(t, f)
	ctx := context.Background()

	_, err := f.svc.Receive(ctx, domain.ReceiveRequest{
		TenantID: testTenant,
		OrderID:  po.ID,
		Received: map[snowflake.ID]int64{variantA: 11},
	})
	assert.ErrorIs(t, err, domain.ErrReceiveExceeds)
	assert.Equal(t, int64(0), f.onHand(t, variantA))

	// Cumulative receipts are capped too.
	_, err = f.svc.Receive(ctx, domain.ReceiveRequest{
		TenantID: testTenant,
		OrderID:  po.ID,
		Received: map[snowflake.ID]int64{variantA: 8},
	})
	require.NoError(t, err)
	_, err = f.svc.Receive(ctx, domain.ReceiveRequest{
		TenantID: testTenant,
		OrderID:  po.ID,
		Received: map[snowflake.ID]int64{variantA: 3},
	})
	assert.ErrorIs(t, err, domain.ErrReceiveExceeds)
	assert.Equal(t, int64(8), f.onHand(t, variantA))

	// Unknown variants are refused.
	_, err = f.svc.Receive(ctx, domain.ReceiveRequest{
		TenantID: testTenant,
		OrderID:  po.ID,
		Received: map[snowflake.ID]int64{snowflake.ID(777): 1},
	})
	assert.ErrorIs(t, err, domain.ErrReceiveExceeds)
}

func TestCancelOnlyWhileOpen(t *testing.T) {
	f := newFixture(t)
	po := createOrder(t, f)
	ctx := context.Background()

	_, err := f.svc.Receive(ctx, domain.ReceiveRequest{
		TenantID: testTenant,
		OrderID:  po.ID,
		Received: map[snowflake.ID]int64{variantA: 1},
	})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, testTenant, po.ID)
	assert.ErrorIs(t, err, domain.ErrOrderState)

	fresh := createOrder(t, f)
	got, err := f.svc.Cancel(ctx, testTenant, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
}
