package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/kasira/pkg/db/pagination"
)

// Repository is stateless; every method takes the *gorm.DB it should run on.
type Repository interface {
	// Create inserts the reservation and its lines.
	Create(ctx context.Context, tx *gorm.DB, r *Reservation) error

	// Find loads one reservation with its lines; nil when absent.
	Find(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Reservation, error)

	// FindForUpdate loads one reservation with its lines under an
	// exclusive row lock. Must run inside a transaction.
	FindForUpdate(ctx context.Context, tx *gorm.DB, tenantID, id snowflake.ID) (*Reservation, error)

	// UpdateStatus flips the status of a locked reservation.
	UpdateStatus(ctx context.Context, tx *gorm.DB, id snowflake.ID, status Status) error

	// List pages a store's reservations, newest first, optionally
	// filtered by status. Lines are not loaded.
	List(ctx context.Context, db *gorm.DB, tenantID, storeID snowflake.ID, status Status, p pagination.Pagination) ([]*Reservation, *pagination.PageInfo, error)

	// DueIDs returns ACTIVE reservations whose expiry has passed, oldest
	// first, across all tenants.
	DueIDs(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]DueReservation, error)
}

// DueReservation pairs a due reservation with its tenant so the sweeper
// can process holds one reservation at a time.
type DueReservation struct {
	ID       snowflake.ID `gorm:"column:id"`
	TenantID snowflake.ID `gorm:"column:tenant_id"`
}
