package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	cyclecountdomain "github.com/smallbiznis/kasira/internal/cyclecount/domain"
)

type startCycleCountRequest struct {
	StoreID snowflake.ID `json:"store_id"`
	Note    string       `json:"note"`
}

func (s *Server) StartCycleCount(c *gin.Context) {
	tenant, ok := requireTenant(c)
	if !ok {
		return
	}

	var req startCycleCountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	count, err := s.cycleCountSvc.Start(c.Request.Context(), cyclecountdomain.StartRequest{
		TenantID: tenant,
		StoreID:  req.StoreID,
		Note:     strings.TrimSpace(req.Note),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": count})
}

type recordCycleCountRequest struct {
	Counts map[snowflake.ID]int64 `json:"counts"`
}

func (s *Server) RecordCycleCount(c *gin.Context) {
	tenant, ok := requireTenant(c)
	if !ok {
		return
	}
	id, ok := parsePathID(c, "id")
	if !ok {
		return
	}

	var req recordCycleCountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	count, err := s.cycleCountSvc.Record(c.Request.Context(), cyclecountdomain.RecordRequest{
		TenantID: tenant,
		CountID:  id,
		Counts:   req.Counts,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": count})
}

func (s *Server) FinalizeCycleCount(c *gin.Context) {
	tenant, ok := requireTenant(c)
	if !ok {
		return
	}
	id, ok := parsePathID(c, "id")
	if !ok {
		return
	}

	count, err := s.cycleCountSvc.Finalize(c.Request.Context(), tenant, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": count})
}

func (s *Server) CancelCycleCount(c *gin.Context) {
	tenant, ok := requireTenant(c)
	if !ok {
		return
	}
	id, ok := parsePathID(c, "id")
	if !ok {
		return
	}

	count, err := s.cycleCountSvc.Cancel(c.Request.Context(), tenant, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": count})
}

func (s *Server) GetCycleCount(c *gin.Context) {
	tenant, ok := requireTenant(c)
	if !ok {
		return
	}
	id, ok := parsePathID(c, "id")
	if !ok {
		return
	}

	count, err := s.cycleCountSvc.Get(c.Request.Context(), tenant, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": count})
}
