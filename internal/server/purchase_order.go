package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	purchasingdomain "github.com/smallbiznis/kasira/internal/purchasing/domain"
)

type purchaseOrderLineRequest struct {
	VariantID snowflake.ID `json:"variant_id"`
	Quantity  int64        `json:"quantity"`
}

type createPurchaseOrderRequest struct {
	StoreID  snowflake.ID               `json:"store_id"`
	Supplier string                     `json:"supplier"`
	Note     string                     `json:"note"`
	Lines    []purchaseOrderLineRequest `json:"lines"`
}

func (s *Server) CreatePurchaseOrder(c *gin.Context) {
	tenant, ok := requireTenant(c)
	if !ok {
		return
	}

	var req createPurchaseOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	lines := make([]purchasingdomain.LineRequest, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, purchasingdomain.LineRequest{
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
		})
	}

	po, err := s.purchasingSvc.Create(c.Request.Context(), purchasingdomain.CreateRequest{
		TenantID: tenant,
		StoreID:  req.StoreID,
		Supplier: strings.TrimSpace(req.Supplier),
		Note:     strings.TrimSpace(req.Note),
		Lines:    lines,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": po})
}

type receivePurchaseOrderRequest struct {
	Received map[snowflake.ID]int64 `json:"received"`
}

func (s *Server) ReceivePurchaseOrder(c *gin.Context) {
	tenant, ok := requireTenant(c)
	if !ok {
		return
	}
	id, ok := parsePathID(c, "id")
	if !ok {
		return
	}

	var req receivePurchaseOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	po, err := s.purchasingSvc.Receive(c.Request.Context(), purchasingdomain.ReceiveRequest{
		TenantID: tenant,
		OrderID:  id,
		Received: req.Received,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": po})
}

func (s *Server) CancelPurchaseOrder(c *gin.Context) {
	tenant, ok := requireTenant(c)
	if !ok {
		return
	}
	id, ok := parsePathID(c, "id")
	if !ok {
		return
	}

	po, err := s.purchasingSvc.Cancel(c.Request.Context(), tenant, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": po})
}

func (s *Server) GetPurchaseOrder(c *gin.Context) {
	tenant, ok := requireTenant(c)
	if !ok {
		return
	}
	id, ok := parsePathID(c, "id")
	if !ok {
		return
	}

	po, err := s.purchasingSvc.Get(c.Request.Context(), tenant, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": po})
}
