package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Ledger reference types. Every on-hand mutation records exactly one ledger
// entry tagged with the operation that caused it.
const (
	RefSale               = "SALE"
	RefReservationCommit  = "RESERVATION_COMMIT"
	RefReservationRelease = "RESERVATION_RELEASE"
	RefReservationExpire  = "RESERVATION_EXPIRE"
	RefTransferOut        = "TRANSFER_OUT"
	RefTransferIn         = "TRANSFER_IN"
	RefPurchaseReceipt    = "PURCHASE_RECEIPT"
	RefCycleCount         = "CYCLE_COUNT"
	RefAdjustment         = "ADJUSTMENT"
)

// Key identifies one stock position. Callers that touch several positions
// in a single transaction must lock keys in ascending order.
type Key struct {
	StoreID   snowflake.ID
	VariantID snowflake.ID
}

// Less orders keys by (store, variant).
func (k Key) Less(other Key) bool {
	if k.StoreID != other.StoreID {
		return k.StoreID < other.StoreID
	}
	return k.VariantID < other.VariantID
}

// InventoryItem is the current stock position for one variant at one store.
// OnHand counts physical units; Reserved counts units promised to active
// reservations. Available stock is OnHand - Reserved.
type InventoryItem struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID  snowflake.ID `json:"tenant_id" gorm:"column:tenant_id;not null;index"`
	StoreID   snowflake.ID `json:"store_id" gorm:"column:store_id;not null;uniqueIndex:idx_inventory_position,priority:1"`
	VariantID snowflake.ID `json:"variant_id" gorm:"column:variant_id;not null;uniqueIndex:idx_inventory_position,priority:2"`
	OnHand    int64        `json:"on_hand" gorm:"column:on_hand;not null;default:0"`
	Reserved  int64        `json:"reserved" gorm:"not null;default:0"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (InventoryItem) TableName() string { return "inventory_items" }

// Available returns the sellable quantity.
func (i *InventoryItem) Available() int64 { return i.OnHand - i.Reserved }

// StockLedgerEntry is one append-only row in the stock ledger. BalanceAfter
// snapshots OnHand immediately after the movement, inside the same
// transaction.
type StockLedgerEntry struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID     snowflake.ID `json:"tenant_id" gorm:"column:tenant_id;not null;index"`
	StoreID      snowflake.ID `json:"store_id" gorm:"column:store_id;not null;index:idx_ledger_position"`
	VariantID    snowflake.ID `json:"variant_id" gorm:"column:variant_id;not null;index:idx_ledger_position"`
	Delta        int64        `json:"delta" gorm:"not null"`
	BalanceAfter int64        `json:"balance_after" gorm:"column:balance_after;not null"`
	RefType      string       `json:"ref_type" gorm:"column:ref_type;type:text;not null"`
	RefID        snowflake.ID `json:"ref_id" gorm:"column:ref_id;not null"`
	Note         string       `json:"note,omitempty" gorm:"type:text"`
	Actor        string       `json:"actor,omitempty" gorm:"type:text"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (StockLedgerEntry) TableName() string { return "stock_ledger" }

// Movement describes one stock mutation request. Delta is signed: negative
// consumes stock, positive adds it.
type Movement struct {
	TenantID  snowflake.ID
	StoreID   snowflake.ID
	VariantID snowflake.ID
	Delta     int64
	RefType   string
	RefID     snowflake.ID
	Note      string

	// Actor is who performed the mutation, recorded on the ledger row.
	// When empty the acting principal is taken from the request context.
	Actor string

	// AllowNegative permits the position to go below zero, used by tenants
	// that sell on backorder and by cycle-count corrections.
	AllowNegative bool
}

func (m Movement) Key() Key { return Key{StoreID: m.StoreID, VariantID: m.VariantID} }

// StockLevel is the read-side view of one position.
type StockLevel struct {
	StoreID   snowflake.ID `json:"store_id"`
	VariantID snowflake.ID `json:"variant_id"`
	OnHand    int64        `json:"on_hand"`
	Reserved  int64        `json:"reserved"`
	Available int64        `json:"available"`
}
