package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is stateless; every method takes the *gorm.DB it should run on.
type Repository interface {
	Create(ctx context.Context, tx *gorm.DB, t *Transfer) error
	Find(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Transfer, error)
	FindForUpdate(ctx context.Context, tx *gorm.DB, tenantID, id snowflake.ID) (*Transfer, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id snowflake.ID, status Status) error
	SaveLine(ctx context.Context, tx *gorm.DB, line *TransferLine) error
}

type Service interface {
	// Dispatch creates the transfer and takes the sent quantities out of
	// the source store, all or nothing.
	Dispatch(ctx context.Context, req DispatchRequest) (*Transfer, error)

	// Receive books arrivals into the destination store and closes the
	// transfer. Received must not exceed sent on any line.
	Receive(ctx context.Context, req ReceiveRequest) (*Transfer, error)

	// Cancel returns an in-transit transfer's stock to the source.
	Cancel(ctx context.Context, tenantID, id snowflake.ID) (*Transfer, error)

	Get(ctx context.Context, tenantID, id snowflake.ID) (*Transfer, error)
}
