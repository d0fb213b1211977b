package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is stateless; every method takes the *gorm.DB it should run on.
type Repository interface {
	Create(ctx context.Context, tx *gorm.DB, po *PurchaseOrder) error
	Find(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*PurchaseOrder, error)
	FindForUpdate(ctx context.Context, tx *gorm.DB, tenantID, id snowflake.ID) (*PurchaseOrder, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id snowflake.ID, status Status) error
	SaveLine(ctx context.Context, tx *gorm.DB, line *PurchaseOrderLine) error
}

type Service interface {
	// Create opens an order. No stock moves until goods arrive.
	Create(ctx context.Context, req CreateRequest) (*PurchaseOrder, error)

	// Receive books a delivery, moving the received quantities into the
	// store. Partial deliveries leave the order open.
	Receive(ctx context.Context, req ReceiveRequest) (*PurchaseOrder, error)

	// Cancel closes an order nothing has been received against.
	Cancel(ctx context.Context, tenantID, id snowflake.ID) (*PurchaseOrder, error)

	Get(ctx context.Context, tenantID, id snowflake.ID) (*PurchaseOrder, error)
}
