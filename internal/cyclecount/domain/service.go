package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is stateless; every method takes the *gorm.DB it should run on.
type Repository interface {
	Create(ctx context.Context, tx *gorm.DB, c *CycleCount) error
	Find(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*CycleCount, error)
	FindForUpdate(ctx context.Context, tx *gorm.DB, tenantID, id snowflake.ID) (*CycleCount, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id snowflake.ID, status Status) error
	UpsertLine(ctx context.Context, tx *gorm.DB, line *CycleCountLine) error
	SaveLineDelta(ctx context.Context, tx *gorm.DB, line *CycleCountLine) error
}

type Service interface {
	// Start opens an empty count for one store.
	Start(ctx context.Context, req StartRequest) (*CycleCount, error)

	// Record books counted quantities onto an open count. No stock moves
	// yet.
	Record(ctx context.Context, req RecordRequest) (*CycleCount, error)

	// Finalize adjusts every counted position to its counted quantity,
	// writing one CYCLE_COUNT ledger row per non-zero delta.
	Finalize(ctx context.Context, tenantID, id snowflake.ID) (*CycleCount, error)

	// Cancel discards an open count.
	Cancel(ctx context.Context, tenantID, id snowflake.ID) (*CycleCount, error)

	Get(ctx context.Context, tenantID, id snowflake.ID) (*CycleCount, error)
}
