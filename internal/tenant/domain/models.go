package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Tenant is the isolation boundary for all data. AllowBackorders is the
// tenant policy that lets on_hand go negative when demand exceeds supply.
type Tenant struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	Name            string       `json:"name" gorm:"type:text;not null"`
	AllowBackorders bool         `json:"allow_backorders" gorm:"not null;default:false"`
	CreatedAt       time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Tenant) TableName() string { return "tenants" }

// Store is a physical or logical location with its own inventory.
type Store struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID  snowflake.ID `json:"tenant_id" gorm:"column:tenant_id;not null;index;uniqueIndex:idx_stores_tenant_code,priority:1"`
	Code      string       `json:"code" gorm:"type:text;not null;uniqueIndex:idx_stores_tenant_code,priority:2"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	Active    bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Store) TableName() string { return "stores" }
