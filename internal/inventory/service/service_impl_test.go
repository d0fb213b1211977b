package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/kasira/internal/inventory/domain"
	"github.com/smallbiznis/kasira/internal/inventory/lock"
	"github.com/smallbiznis/kasira/internal/inventory/repository"
	"github.com/smallbiznis/kasira/internal/tenantctx"
	"github.com/smallbiznis/kasira/internal/testutil"
	"github.com/smallbiznis/kasira/pkg/db/pagination"
)

const (
	testTenant  = snowflake.ID(1)
	testStore   = snowflake.ID(10)
	testVariant = snowflake.ID(100)
)

func newService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()
	db := testutil.OpenDB(t, &domain.InventoryItem{}, &domain.StockLedgerEntry{})
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Repo:  repository.Provide(testutil.Node(t)),
		Locks: lock.NewManager(),
	})
	return svc, db
}

func testKey() domain.Key {
	return domain.Key{StoreID: testStore, VariantID: testVariant}
}

func receive(t *testing.T, svc domain.Service, qty int64) {
	t.Helper()
	_, err := svc.ApplyMovement(context.Background(), domain.Movement{
		TenantID:  testTenant,
		StoreID:   testStore,
		VariantID: testVariant,
		Delta:     qty,
		RefType:   domain.RefPurchaseReceipt,
		RefID:     snowflake.ID(999),
	})
	require.NoError(t, err)
}

func TestApplyMovement_CreatesPositionAndLedgerRow(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	entry, err := svc.ApplyMovement(ctx, domain.Movement{
		TenantID:  testTenant,
		StoreID:   testStore,
		VariantID: testVariant,
		Delta:     5,
		RefType:   domain.RefPurchaseReceipt,
		RefID:     snowflake.ID(42),
		Note:      "initial receipt",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), entry.Delta)
	assert.Equal(t, int64(5), entry.BalanceAfter)
	assert.Equal(t, domain.RefPurchaseReceipt, entry.RefType)

	level, err := svc.GetStock(ctx, testTenant, testKey())
	require.NoError(t, err)
	assert.Equal(t, int64(5), level.OnHand)
	assert.Equal(t, int64(0), level.Reserved)
	assert.Equal(t, int64(5), level.Available)
}

func TestApplyMovement_RejectsOversell(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	receive(t, svc, 3)

	_, err := svc.ApplyMovement(ctx, domain.Movement{
		TenantID:  testTenant,
		StoreID:   testStore,
		VariantID: testVariant,
		Delta:     -5,
		RefType:   domain.RefSale,
		RefID:     snowflake.ID(1),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	var ise *domain.InsufficientStockError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, int64(5), ise.Requested)
	assert.Equal(t, int64(3), ise.Available)

	// Rejection leaves no trace: balance unchanged, only the receipt row
	// in the ledger.
	level, err := svc.GetStock(ctx, testTenant, testKey())
	require.NoError(t, err)
	assert.Equal(t, int64(3), level.OnHand)

	var count int64
	require.NoError(t, db.Model(&domain.StockLedgerEntry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestApplyMovement_AllowNegativeGoesBelowZero(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	entry, err := svc.ApplyMovement(ctx, domain.Movement{
		TenantID:      testTenant,
		StoreID:       testStore,
		VariantID:     testVariant,
		Delta:         -2,
		RefType:       domain.RefSale,
		RefID:         snowflake.ID(1),
		AllowNegative: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-2), entry.BalanceAfter)
}

func TestApplyMovement_Validation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.ApplyMovement(ctx, domain.Movement{
		TenantID: testTenant, StoreID: testStore, VariantID: testVariant,
		RefType: domain.RefSale, RefID: 1,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidMovement)

	_, err = svc.ApplyMovement(ctx, domain.Movement{
		TenantID: testTenant, StoreID: testStore, VariantID: testVariant,
		Delta: 1, RefID: 1,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidMovement)
}

func TestReserveCommitFlow(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	receive(t, svc, 10)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.ReserveStockTx(ctx, tx, testTenant, testKey(), 4, false)
	})
	require.NoError(t, err)

	level, err := svc.GetStock(ctx, testTenant, testKey())
	require.NoError(t, err)
	assert.Equal(t, int64(10), level.OnHand)
	assert.Equal(t, int64(4), level.Reserved)
	assert.Equal(t, int64(6), level.Available)

	// A further hold beyond available is refused.
	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.ReserveStockTx(ctx, tx, testTenant, testKey(), 7, false)
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	var entry *domain.StockLedgerEntry
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = svc.CommitReservedTx(ctx, tx, testTenant, testKey(), 4, snowflake.ID(77))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-4), entry.Delta)
	assert.Equal(t, int64(6), entry.BalanceAfter)
	assert.Equal(t, domain.RefReservationCommit, entry.RefType)

	level, err = svc.GetStock(ctx, testTenant, testKey())
	require.NoError(t, err)
	assert.Equal(t, int64(6), level.OnHand)
	assert.Equal(t, int64(0), level.Reserved)
}

func TestReleaseReserved(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	receive(t, svc, 5)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.ReserveStockTx(ctx, tx, testTenant, testKey(), 3, false)
	}))

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.ReleaseReservedTx(ctx, tx, testTenant, testKey(), 3, domain.RefReservationRelease, snowflake.ID(88))
	})
	require.NoError(t, err)

	level, err := svc.GetStock(ctx, testTenant, testKey())
	require.NoError(t, err)
	assert.Equal(t, int64(5), level.OnHand)
	assert.Equal(t, int64(0), level.Reserved)

	// The release leaves a zero-delta audit row.
	var entries []domain.StockLedgerEntry
	require.NoError(t, db.Where("ref_type = ?", domain.RefReservationRelease).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(0), entries[0].Delta)
	assert.Equal(t, int64(5), entries[0].BalanceAfter)

	// Releasing more than is held floors the counter at zero instead of
	// failing, so a damaged counter cannot wedge the release path.
	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.ReleaseReservedTx(ctx, tx, testTenant, testKey(), 1, domain.RefReservationRelease, snowflake.ID(89))
	})
	require.NoError(t, err)

	level, err = svc.GetStock(ctx, testTenant, testKey())
	require.NoError(t, err)
	assert.Equal(t, int64(0), level.Reserved)
	assert.Equal(t, int64(5), level.OnHand)
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	receive(t, svc, 10)

	var wg sync.WaitGroup
	results := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.ApplyMovement(ctx, domain.Movement{
				TenantID:  testTenant,
				StoreID:   testStore,
				VariantID: testVariant,
				Delta:     -1,
				RefType:   domain.RefSale,
				RefID:     snowflake.ID(1000 + n),
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	succeeded, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrInsufficientStock):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 10, rejected)

	level, err := svc.GetStock(ctx, testTenant, testKey())
	require.NoError(t, err)
	assert.Equal(t, int64(0), level.OnHand)

	// One ledger row per successful movement, receipt included, and the
	// balance chain is consistent with the deltas.
	var entries []domain.StockLedgerEntry
	require.NoError(t, db.Order("id ASC").Find(&entries).Error)
	require.Len(t, entries, 11)
	running := int64(0)
	for _, e := range entries {
		running += e.Delta
		assert.Equal(t, running, e.BalanceAfter)
	}
}

func TestListLedgerPaginates(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		receive(t, svc, 1)
	}

	page1, info, err := svc.ListLedger(ctx, testTenant, testKey(), pagination.Pagination{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.True(t, info.HasMore)
	// Newest first.
	assert.Greater(t, int64(page1[0].ID), int64(page1[1].ID))

	page2, info, err := svc.ListLedger(ctx, testTenant, testKey(), pagination.Pagination{PageSize: 2, PageToken: info.NextPageToken})
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.True(t, info.HasMore)
	assert.Greater(t, int64(page1[1].ID), int64(page2[0].ID))

	page3, info, err := svc.ListLedger(ctx, testTenant, testKey(), pagination.Pagination{PageSize: 2, PageToken: info.NextPageToken})
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.False(t, info.HasMore)
}

func TestApplyMovement_RecordsActor(t *testing.T) {
	svc, db := newService(t)

	_, err := svc.ApplyMovement(context.Background(), domain.Movement{
		TenantID:  testTenant,
		StoreID:   testStore,
		VariantID: testVariant,
		Delta:     5,
		RefType:   domain.RefAdjustment,
		RefID:     snowflake.ID(1),
		Actor:     "clerk-7",
	})
	require.NoError(t, err)

	// Without an explicit actor the ledger row carries the principal
	// resolved onto the request context.
	ctx := tenantctx.WithActor(context.Background(), "manager-2")
	_, err = svc.ApplyMovement(ctx, domain.Movement{
		TenantID:  testTenant,
		StoreID:   testStore,
		VariantID: testVariant,
		Delta:     -1,
		RefType:   domain.RefSale,
		RefID:     snowflake.ID(2),
	})
	require.NoError(t, err)

	var entries []domain.StockLedgerEntry
	require.NoError(t, db.Order("id ASC").Find(&entries).Error)
	require.Len(t, entries, 2)
	assert.Equal(t, "clerk-7", entries[0].Actor)
	assert.Equal(t, "manager-2", entries[1].Actor)
}

func TestCommitReserved_RecordsContextActor(t *testing.T) {
	svc, db := newService(t)
	ctx := tenantctx.WithActor(context.Background(), "pos-3")
	receive(t, svc, 4)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.ReserveStockTx(ctx, tx, testTenant, testKey(), 2, false)
	}))
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.CommitReservedTx(ctx, tx, testTenant, testKey(), 2, snowflake.ID(9))
		return err
	}))

	var entry domain.StockLedgerEntry
	require.NoError(t, db.Where("ref_type = ?", domain.RefReservationCommit).First(&entry).Error)
	assert.Equal(t, "pos-3", entry.Actor)
}
