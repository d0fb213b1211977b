package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	transferdomain "github.com/smallbiznis/kasira/internal/transfer/domain"
)

type transferLineRequest struct {
	VariantID snowflake.ID `json:"variant_id"`
	Quantity  int64        `json:"quantity"`
}

type dispatchTransferRequest struct {
	FromStoreID snowflake.ID          `json:"from_store_id"`
	ToStoreID   snowflake.ID          `json:"to_store_id"`
	Note        string                `json:"note"`
	Lines       []transferLineRequest `json:"lines"`
}

func (s *Server) DispatchTransfer(c *gin.Context) {
	tenant, ok := requireTenant(c)
	if !ok {
		return
	}

	var req dispatchTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	lines := make([]transferdomain.LineRequest, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, transferdomain.LineRequest{
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
		})
	}

	t, err := s.transferSvc.Dispatch(c.Request.Context(), transferdomain.DispatchRequest{
		TenantID:    tenant,
		FromStoreID: req.FromStoreID,
		ToStoreID:   req.ToStoreID,
		Note:        strings.TrimSpace(req.Note),
		Lines:       lines,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": t})
}

type receiveTransferRequest struct {
	Received map[snowflake.ID]int64 `json:"received"`
}

func (s *Server) ReceiveTransfer(c *gin.Context) {
	tenant, ok := requireTenant(c)
	if !ok {
		return
	}
	id, ok := parsePathID(c, "id")
	if !ok {
		return
	}

	var req receiveTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	t, err := s.transferSvc.Receive(c.Request.Context(), transferdomain.ReceiveRequest{
		TenantID:   tenant,
		TransferID: id,
		Received:   req.Received,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": t})
}

func (s *Server) CancelTransfer(c *gin.Context) {
	tenant, ok := requireTenant(c)
	if !ok {
		return
	}
	id, ok := parsePathID(c, "id")
	if !ok {
		return
	}

	t, err := s.transferSvc.Cancel(c.Request.Context(), tenant, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": t})
}

func (s *Server) GetTransfer(c *gin.Context) {
	tenant, ok := requireTenant(c)
	if !ok {
		return
	}
	id, ok := parsePathID(c, "id")
	if !ok {
		return
	}

	t, err := s.transferSvc.Get(c.Request.Context(), tenant, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": t})
}
