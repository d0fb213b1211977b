package domain

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidMovement   = errors.New("invalid_movement")
	ErrInsufficientStock = errors.New("insufficient_stock")
	ErrReservedExceeded  = errors.New("reserved_exceeded")
)

// InsufficientStockError carries the position and quantities of a rejected
// consumption. errors.Is(err, ErrInsufficientStock) matches it.
type InsufficientStockError struct {
	StoreID   snowflake.ID
	VariantID snowflake.ID
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient_stock: store=%d variant=%d requested=%d available=%d",
		e.StoreID, e.VariantID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
