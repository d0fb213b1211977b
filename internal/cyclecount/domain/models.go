package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusFinalized Status = "FINALIZED"
	StatusCancelled Status = "CANCELLED"
)

var (
	ErrCountNotFound = errors.New("cycle_count_not_found")
	ErrCountState    = errors.New("cycle_count_state")
	ErrInvalidCount  = errors.New("invalid_cycle_count")
	ErrLineNotFound  = errors.New("cycle_count_line_not_found")
)

// CycleCount reconciles physical stock against the books. Counting is
// open-ended; finalizing computes each line's delta against the live
// position and adjusts on-hand to the counted truth.
type CycleCount struct {
	ID        snowflake.ID     `json:"id" gorm:"primaryKey"`
	TenantID  snowflake.ID     `json:"tenant_id" gorm:"column:tenant_id;not null;index"`
	StoreID   snowflake.ID     `json:"store_id" gorm:"column:store_id;not null;index"`
	Status    Status           `json:"status" gorm:"type:text;not null"`
	Note      string           `json:"note,omitempty" gorm:"type:text"`
	CreatedAt time.Time        `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time        `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	Lines     []CycleCountLine `json:"lines" gorm:"-"`
}

func (CycleCount) TableName() string { return "cycle_counts" }

// CycleCountLine records one counted position. Delta is written at
// finalize time: counted minus the on-hand quantity at that instant.
type CycleCountLine struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	CountID    snowflake.ID `json:"count_id" gorm:"column:count_id;not null;uniqueIndex:idx_count_line,priority:1"`
	VariantID  snowflake.ID `json:"variant_id" gorm:"column:variant_id;not null;uniqueIndex:idx_count_line,priority:2"`
	CountedQty int64        `json:"counted_qty" gorm:"column:counted_qty;not null"`
	Delta      int64        `json:"delta" gorm:"not null;default:0"`
}

func (CycleCountLine) TableName() string { return "cycle_count_lines" }

type StartRequest struct {
	TenantID snowflake.ID
	StoreID  snowflake.ID
	Note     string
}

// RecordRequest upserts counted quantities on an open count. Counting the
// same variant again overwrites the earlier figure.
type RecordRequest struct {
	TenantID snowflake.ID
	CountID  snowflake.ID
	Counts   map[snowflake.ID]int64
}
