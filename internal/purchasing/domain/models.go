package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusPartial   Status = "PARTIALLY_RECEIVED"
	StatusReceived  Status = "RECEIVED"
	StatusCancelled Status = "CANCELLED"
)

var (
	ErrOrderNotFound  = errors.New("purchase_order_not_found")
	ErrOrderState     = errors.New("purchase_order_state")
	ErrInvalidOrder   = errors.New("invalid_purchase_order")
	ErrReceiveExceeds = errors.New("receive_exceeds_ordered")
)

// PurchaseOrder tracks inbound supply for one store. Creating the order
// has no stock effect; goods enter the books as they are received, and
// cumulative receipts never exceed what was ordered.
type PurchaseOrder struct {
	ID        snowflake.ID        `json:"id" gorm:"primaryKey"`
	TenantID  snowflake.ID        `json:"tenant_id" gorm:"column:tenant_id;not null;index"`
	StoreID   snowflake.ID        `json:"store_id" gorm:"column:store_id;not null;index"`
	Supplier  string              `json:"supplier" gorm:"type:text;not null"`
	Status    Status              `json:"status" gorm:"type:text;not null"`
	Note      string              `json:"note,omitempty" gorm:"type:text"`
	CreatedAt time.Time           `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time           `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	Lines     []PurchaseOrderLine `json:"lines" gorm:"-"`
}

func (PurchaseOrder) TableName() string { return "purchase_orders" }

type PurchaseOrderLine struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	OrderID     snowflake.ID `json:"order_id" gorm:"column:order_id;not null;index"`
	VariantID   snowflake.ID `json:"variant_id" gorm:"column:variant_id;not null"`
	OrderedQty  int64        `json:"ordered_qty" gorm:"column:ordered_qty;not null"`
	ReceivedQty int64        `json:"received_qty" gorm:"column:received_qty;not null;default:0"`
}

func (PurchaseOrderLine) TableName() string { return "purchase_order_lines" }

// Outstanding returns how much of the line is still due.
func (l *PurchaseOrderLine) Outstanding() int64 { return l.OrderedQty - l.ReceivedQty }

type CreateRequest struct {
	TenantID snowflake.ID
	StoreID  snowflake.ID
	Supplier string
	Note     string
	Lines    []LineRequest
}

type LineRequest struct {
	VariantID snowflake.ID
	Quantity  int64
}

// ReceiveRequest books a delivery against the order. Variants missing
// from the map receive nothing this time.
type ReceiveRequest struct {
	TenantID snowflake.ID
	OrderID  snowflake.ID
	Received map[snowflake.ID]int64
}
