package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/kasira/pkg/db/pagination"
)

type Service interface {
	// Reserve places a timed hold on stock for every requested line, all
	// or nothing.
	Reserve(ctx context.Context, req ReserveRequest) (*Reservation, error)

	// Get returns one reservation with its lines.
	Get(ctx context.Context, tenantID, id snowflake.ID) (*Reservation, error)

	// List pages a store's reservations, newest first, optionally
	// filtered by status.
	List(ctx context.Context, req ListRequest) ([]*Reservation, *pagination.PageInfo, error)

	// Release gives an ACTIVE hold back to available stock.
	Release(ctx context.Context, tenantID, id snowflake.ID) (*Reservation, error)

	// CommitTx flips an ACTIVE, unexpired reservation to COMMITTED inside
	// the caller's transaction and returns it so the caller can consume
	// the held stock. The caller must hold the process locks for every
	// line's position.
	CommitTx(ctx context.Context, tx *gorm.DB, tenantID, id snowflake.ID) (*Reservation, error)

	// ExpireDue sweeps ACTIVE reservations past their expiry, returning
	// the held stock. Returns how many were expired.
	ExpireDue(ctx context.Context) (int, error)
}
