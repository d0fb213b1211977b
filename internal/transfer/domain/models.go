package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusInTransit Status = "IN_TRANSIT"
	StatusPartial   Status = "PARTIALLY_RECEIVED"
	StatusReceived  Status = "RECEIVED"
	StatusCancelled Status = "CANCELLED"
)

var (
	ErrTransferNotFound = errors.New("transfer_not_found")
	ErrTransferState    = errors.New("transfer_state")
	ErrInvalidTransfer  = errors.New("invalid_transfer")
	ErrReceiveExceeds   = errors.New("receive_exceeds_sent")
)

// Transfer moves stock between two stores of one tenant. Dispatch takes
// the sent quantities out of the source immediately; deliveries are then
// booked cumulatively into the destination, never more than was sent,
// and the transfer stays partially received until every line is full.
type Transfer struct {
	ID          snowflake.ID   `json:"id" gorm:"primaryKey"`
	TenantID    snowflake.ID   `json:"tenant_id" gorm:"column:tenant_id;not null;index"`
	FromStoreID snowflake.ID   `json:"from_store_id" gorm:"column:from_store_id;not null"`
	ToStoreID   snowflake.ID   `json:"to_store_id" gorm:"column:to_store_id;not null"`
	Status      Status         `json:"status" gorm:"type:text;not null"`
	Note        string         `json:"note,omitempty" gorm:"type:text"`
	CreatedAt   time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	Lines       []TransferLine `json:"lines" gorm:"-"`
}

func (Transfer) TableName() string { return "transfers" }

type TransferLine struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	TransferID  snowflake.ID `json:"transfer_id" gorm:"column:transfer_id;not null;index"`
	VariantID   snowflake.ID `json:"variant_id" gorm:"column:variant_id;not null"`
	SentQty     int64        `json:"sent_qty" gorm:"column:sent_qty;not null"`
	ReceivedQty int64        `json:"received_qty" gorm:"column:received_qty;not null;default:0"`
}

func (TransferLine) TableName() string { return "transfer_lines" }

// Outstanding returns how much of the line is still in transit.
func (l *TransferLine) Outstanding() int64 { return l.SentQty - l.ReceivedQty }

type DispatchRequest struct {
	TenantID    snowflake.ID
	FromStoreID snowflake.ID
	ToStoreID   snowflake.ID
	Note        string
	Lines       []LineRequest
}

type LineRequest struct {
	VariantID snowflake.ID
	Quantity  int64
}

// ReceiveRequest books one delivery against the transfer. Quantities add
// to what earlier deliveries already booked; variants missing from the
// map receive nothing this time.
type ReceiveRequest struct {
	TenantID   snowflake.ID
	TransferID snowflake.ID
	Received   map[snowflake.ID]int64
}
