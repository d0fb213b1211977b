package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"

	pricingdomain "github.com/smallbiznis/kasira/internal/pricing/domain"
)

type Service interface {
	// Quote prices a cart against the current rules without touching
	// stock or coupon usage.
	Quote(ctx context.Context, req QuoteRequest) (*pricingdomain.Receipt, error)

	// Checkout prices the cart, validates payment, consumes stock, and
	// persists the sale, all in one transaction. Nothing changes when any
	// step fails.
	Checkout(ctx context.Context, req CheckoutRequest) (*Sale, error)

	// GetSale returns one sale with its lines.
	GetSale(ctx context.Context, tenantID, saleID snowflake.ID) (*Sale, error)
}
