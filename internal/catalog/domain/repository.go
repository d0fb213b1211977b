package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrUnknownVariant = errors.New("unknown_variant")

type Repository interface {
	// FindVariants resolves variants with product category and fallback tax
	// rate, tenant scoped. Missing ids are simply absent from the result.
	FindVariants(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ids []snowflake.ID) (map[snowflake.ID]*ResolvedVariant, error)
}
