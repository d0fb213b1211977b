package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	reservationdomain "github.com/smallbiznis/kasira/internal/reservation/domain"
	"github.com/smallbiznis/kasira/pkg/db/pagination"
)

type reservationLineRequest struct {
	VariantID snowflake.ID `json:"variant_id"`
	Quantity  int64        `json:"quantity"`
}

type createReservationRequest struct {
	StoreID    snowflake.ID             `json:"store_id"`
	TTLSeconds int64                    `json:"ttl_seconds"`
	Lines      []reservationLineRequest `json:"lines"`
}

func (s *Server) CreateReservation(c *gin.Context) {
	tenant, ok := requireTenant(c)
	if !ok {
		return
	}

	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.TTLSeconds < 0 {
		AbortWithError(c, newValidationError("ttl_seconds", "invalid_ttl", "invalid ttl"))
		return
	}

	lines := make([]reservationdomain.LineRequest, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, reservationdomain.LineRequest{
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
		})
	}

	res, err := s.reservationSvc.Reserve(c.Request.Context(), reservationdomain.ReserveRequest{
		TenantID: tenant,
		StoreID:  req.StoreID,
		TTL:      time.Duration(req.TTLSeconds) * time.Second,
		Lines:    lines,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": res})
}

func (s *Server) ListReservations(c *gin.Context) {
	tenant, ok := requireTenant(c)
	if !ok {
		return
	}

	var query struct {
		StoreID string `form:"store_id"`
		Status  string `form:"status"`
		pagination.Pagination
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	storeID, err := snowflake.ParseString(strings.TrimSpace(query.StoreID))
	if err != nil || storeID == 0 {
		AbortWithError(c, newValidationError("store_id", "invalid_store_id", "invalid store id"))
		return
	}

	reservations, pageInfo, err := s.reservationSvc.List(c.Request.Context(), reservationdomain.ListRequest{
		TenantID:   tenant,
		StoreID:    storeID,
		Status:     reservationdomain.Status(strings.ToUpper(strings.TrimSpace(query.Status))),
		Pagination: query.Pagination,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      reservations,
		"page_info": pageInfo,
	})
}

func (s *Server) GetReservation(c *gin.Context) {
	tenant, ok := requireTenant(c)
	if !ok {
		return
	}
	id, ok := parsePathID(c, "id")
	if !ok {
		return
	}

	res, err := s.reservationSvc.Get(c.Request.Context(), tenant, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (s *Server) ReleaseReservation(c *gin.Context) {
	tenant, ok := requireTenant(c)
	if !ok {
		return
	}
	id, ok := parsePathID(c, "id")
	if !ok {
		return
	}

	res, err := s.reservationSvc.Release(c.Request.Context(), tenant, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res})
}
