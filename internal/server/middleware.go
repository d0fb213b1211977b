package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/kasira/internal/tenantctx"
)

const (
	HeaderTenant = "X-Tenant-ID"
	HeaderActor  = "X-Actor"
)

// TenantContext resolves the active tenant from the X-Tenant-ID header and
// stores it on the request context. Requests with no header fall back to the
// configured default tenant; single-tenant installs never send the header.
func (s *Server) TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderTenant))
		if raw == "" {
			if s.cfg.DefaultTenantID != 0 {
				ctx := tenantctx.WithTenantID(c.Request.Context(), snowflake.ID(s.cfg.DefaultTenantID))
				c.Request = c.Request.WithContext(ctx)
			}
			c.Next()
			return
		}

		tenantID, err := snowflake.ParseString(raw)
		if err != nil || tenantID == 0 {
			AbortWithError(c, newValidationError("tenant", "invalid_tenant", "invalid tenant"))
			return
		}

		ctx := tenantctx.WithTenantID(c.Request.Context(), tenantID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// ActorContext stores the X-Actor header on the request context so stock
// movements can attribute ledger rows to the acting principal. Absent
// header means an anonymous actor; nothing is enforced here.
func (s *Server) ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor := strings.TrimSpace(c.GetHeader(HeaderActor)); actor != "" {
			ctx := tenantctx.WithActor(c.Request.Context(), actor)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

func tenantID(c *gin.Context) (snowflake.ID, bool) {
	return tenantctx.TenantIDFromContext(c.Request.Context())
}

// requireTenant aborts the request when no tenant could be resolved.
func requireTenant(c *gin.Context) (snowflake.ID, bool) {
	id, ok := tenantID(c)
	if !ok || id == 0 {
		AbortWithError(c, newValidationError("tenant", "invalid_tenant", "invalid tenant"))
		return 0, false
	}
	return id, true
}
