package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/smallbiznis/kasira/pkg/db/pagination"
)

type Status string

// Reservation lifecycle. ACTIVE is the only state that still holds stock;
// every transition out of it gives the hold back or consumes it.
const (
	StatusActive    Status = "ACTIVE"
	StatusCommitted Status = "COMMITTED"
	StatusReleased  Status = "RELEASED"
	StatusExpired   Status = "EXPIRED"
)

var (
	ErrReservationNotFound = errors.New("reservation_not_found")
	ErrReservationState    = errors.New("reservation_state")
	ErrReservationExpired  = errors.New("reservation_expired")
	ErrInvalidReservation  = errors.New("invalid_reservation")
)

// Reservation is a timed hold on stock at one store.
type Reservation struct {
	ID        snowflake.ID      `json:"id" gorm:"primaryKey"`
	TenantID  snowflake.ID      `json:"tenant_id" gorm:"column:tenant_id;not null;index"`
	StoreID   snowflake.ID      `json:"store_id" gorm:"column:store_id;not null;index"`
	Status    Status            `json:"status" gorm:"type:text;not null;index:idx_reservations_due"`
	ExpiresAt time.Time         `json:"expires_at" gorm:"column:expires_at;not null;index:idx_reservations_due"`
	CreatedAt time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	Lines     []ReservationLine `json:"lines" gorm:"-"`
}

func (Reservation) TableName() string { return "reservations" }

type ReservationLine struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	ReservationID snowflake.ID `json:"reservation_id" gorm:"column:reservation_id;not null;index"`
	VariantID     snowflake.ID `json:"variant_id" gorm:"column:variant_id;not null"`
	Quantity      int64        `json:"quantity" gorm:"not null"`
}

func (ReservationLine) TableName() string { return "reservation_lines" }

// ReserveRequest creates one reservation. A zero TTL falls back to the
// service default.
type ReserveRequest struct {
	TenantID snowflake.ID
	StoreID  snowflake.ID
	TTL      time.Duration
	Lines    []LineRequest
}

type LineRequest struct {
	VariantID snowflake.ID
	Quantity  int64
}

// ListRequest pages one store's reservations. Status is optional.
type ListRequest struct {
	TenantID   snowflake.ID
	StoreID    snowflake.ID
	Status     Status
	Pagination pagination.Pagination
}
