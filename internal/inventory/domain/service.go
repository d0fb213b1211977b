package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/kasira/pkg/db/pagination"
)

// Service owns all stock mutations. The Tx variants run inside a caller
// transaction and assume the caller already holds the process locks for
// every position it will touch, in ascending key order.
type Service interface {
	// ApplyMovement locks the position, opens its own transaction, and
	// applies one movement.
	ApplyMovement(ctx context.Context, m Movement) (*StockLedgerEntry, error)

	// ApplyMovementTx applies one movement inside the caller's transaction.
	ApplyMovementTx(ctx context.Context, tx *gorm.DB, m Movement) (*StockLedgerEntry, error)

	// ReserveStockTx moves available stock into the reserved counter.
	// On-hand is untouched, so no ledger row is written.
	ReserveStockTx(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, key Key, qty int64, allowNegative bool) error

	// ReleaseReservedTx returns reserved stock to available. A zero-delta
	// ledger row records the release for audit.
	ReleaseReservedTx(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, key Key, qty int64, refType string, refID snowflake.ID) error

	// CommitReservedTx consumes reserved stock: both counters drop and a
	// negative-delta ledger row is written.
	CommitReservedTx(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, key Key, qty int64, refID snowflake.ID) (*StockLedgerEntry, error)

	// SetOnHandTx forces a position's on-hand to an absolute quantity,
	// recording the difference as one ledger movement. Returns nil when
	// the position already matches.
	SetOnHandTx(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, key Key, quantity int64, refType string, refID snowflake.ID) (*StockLedgerEntry, error)

	// GetStock returns the current level of one position; absent positions
	// read as zero.
	GetStock(ctx context.Context, tenantID snowflake.ID, key Key) (*StockLevel, error)

	// ListStock returns the levels of every position at one store.
	ListStock(ctx context.Context, tenantID, storeID snowflake.ID) ([]*StockLevel, error)

	// ListLedger pages the ledger of one position, newest first.
	ListLedger(ctx context.Context, tenantID snowflake.ID, key Key, p pagination.Pagination) ([]*StockLedgerEntry, *pagination.PageInfo, error)
}
