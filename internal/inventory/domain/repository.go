package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/kasira/pkg/db/pagination"
)

// Repository is stateless; every method takes the *gorm.DB it should run
// on so services can pass either the pool or an open transaction.
type Repository interface {
	// FindForUpdate loads one position under an exclusive row lock,
	// creating a zero row first when the position does not exist yet.
	// Must run inside a transaction.
	FindForUpdate(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, key Key) (*InventoryItem, error)

	// Save persists the mutated counters of a locked position.
	Save(ctx context.Context, tx *gorm.DB, item *InventoryItem) error

	// AppendLedger inserts one append-only ledger row.
	AppendLedger(ctx context.Context, tx *gorm.DB, entry *StockLedgerEntry) error

	// Find loads one position without locking; returns nil when absent.
	Find(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, key Key) (*InventoryItem, error)

	// ListByStore returns all positions of one store.
	ListByStore(ctx context.Context, db *gorm.DB, tenantID, storeID snowflake.ID) ([]*InventoryItem, error)

	// ListLedger pages ledger rows for one position, newest first.
	ListLedger(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, key Key, p pagination.Pagination) ([]*StockLedgerEntry, *pagination.PageInfo, error)
}
