package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	checkoutdomain "github.com/smallbiznis/kasira/internal/checkout/domain"
)

type cartLineRequest struct {
	VariantID snowflake.ID `json:"variant_id"`
	Quantity  int64        `json:"quantity"`
}

type quoteRequest struct {
	StoreID    snowflake.ID      `json:"store_id"`
	Lines      []cartLineRequest `json:"lines"`
	CouponCode string            `json:"coupon_code"`
}

func (s *Server) Quote(c *gin.Context) {
	tenant, ok := requireTenant(c)
	if !ok {
		return
	}

	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	receipt, err := s.checkoutSvc.Quote(c.Request.Context(), checkoutdomain.QuoteRequest{
		TenantID:   tenant,
		StoreID:    req.StoreID,
		Lines:      cartLines(req.Lines),
		CouponCode: strings.TrimSpace(req.CouponCode),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": receipt})
}

type paymentRequest struct {
	Method   string          `json:"method"`
	Tendered decimal.Decimal `json:"tendered"`
}

type checkoutRequest struct {
	StoreID       snowflake.ID      `json:"store_id"`
	Lines         []cartLineRequest `json:"lines"`
	CouponCode    string            `json:"coupon_code"`
	ReservationID snowflake.ID      `json:"reservation_id"`
	Payment       paymentRequest    `json:"payment"`
}

func (s *Server) Checkout(c *gin.Context) {
	tenant, ok := requireTenant(c)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sale, err := s.checkoutSvc.Checkout(c.Request.Context(), checkoutdomain.CheckoutRequest{
		TenantID:      tenant,
		StoreID:       req.StoreID,
		Lines:         cartLines(req.Lines),
		CouponCode:    strings.TrimSpace(req.CouponCode),
		ReservationID: req.ReservationID,
		Payment: checkoutdomain.Payment{
			Method:   checkoutdomain.PaymentMethod(strings.ToUpper(strings.TrimSpace(req.Payment.Method))),
			Tendered: req.Payment.Tendered,
		},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": sale})
}

func (s *Server) GetSale(c *gin.Context) {
	tenant, ok := requireTenant(c)
	if !ok {
		return
	}
	id, ok := parsePathID(c, "id")
	if !ok {
		return
	}

	sale, err := s.checkoutSvc.GetSale(c.Request.Context(), tenant, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sale})
}

func cartLines(lines []cartLineRequest) []checkoutdomain.CartLine {
	out := make([]checkoutdomain.CartLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, checkoutdomain.CartLine{
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
		})
	}
	return out
}
