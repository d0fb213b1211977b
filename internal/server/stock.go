package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	inventorydomain "github.com/smallbiznis/kasira/internal/inventory/domain"
	"github.com/smallbiznis/kasira/pkg/db/pagination"
)

func (s *Server) ListStock(c *gin.Context) {
	tenant, ok := requireTenant(c)
	if !ok {
		return
	}
	storeID, ok := parsePathID(c, "store_id")
	if !ok {
		return
	}

	levels, err := s.inventorySvc.ListStock(c.Request.Context(), tenant, storeID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": levels})
}

func (s *Server) GetStock(c *gin.Context) {
	tenant, ok := requireTenant(c)
	if !ok {
		return
	}
	storeID, ok := parsePathID(c, "store_id")
	if !ok {
		return
	}
	variantID, ok := parsePathID(c, "variant_id")
	if !ok {
		return
	}

	level, err := s.inventorySvc.GetStock(c.Request.Context(), tenant, inventorydomain.Key{
		StoreID:   storeID,
		VariantID: variantID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": level})
}

func (s *Server) ListLedger(c *gin.Context) {
	tenant, ok := requireTenant(c)
	if !ok {
		return
	}
	storeID, ok := parsePathID(c, "store_id")
	if !ok {
		return
	}
	variantID, ok := parsePathID(c, "variant_id")
	if !ok {
		return
	}

	var p pagination.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	entries, pageInfo, err := s.inventorySvc.ListLedger(c.Request.Context(), tenant, inventorydomain.Key{
		StoreID:   storeID,
		VariantID: variantID,
	}, p)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      entries,
		"page_info": pageInfo,
	})
}

type adjustStockRequest struct {
	StoreID       snowflake.ID `json:"store_id"`
	VariantID     snowflake.ID `json:"variant_id"`
	Delta         int64        `json:"delta"`
	Note          string       `json:"note"`
	Actor         string       `json:"actor"`
	AllowNegative bool         `json:"allow_negative"`
}

// AdjustStock books a manual correction as one ADJUSTMENT ledger movement.
func (s *Server) AdjustStock(c *gin.Context) {
	tenant, ok := requireTenant(c)
	if !ok {
		return
	}

	var req adjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	entry, err := s.inventorySvc.ApplyMovement(c.Request.Context(), inventorydomain.Movement{
		TenantID:      tenant,
		StoreID:       req.StoreID,
		VariantID:     req.VariantID,
		Delta:         req.Delta,
		RefType:       inventorydomain.RefAdjustment,
		RefID:         s.genID.Generate(),
		Note:          strings.TrimSpace(req.Note),
		Actor:         strings.TrimSpace(req.Actor),
		AllowNegative: req.AllowNegative,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": entry})
}
