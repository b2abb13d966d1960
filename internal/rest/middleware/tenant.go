package middleware

import (
	"context"
	"strings"

	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/types"
	"github.com/gin-gonic/gin"
)

// TenantMiddleware reads the tenant from the X-Tenant-ID header and sets it
// in the request context. Requests without a tenant are rejected.
// Authentication happens in front of this service.
func TenantMiddleware(logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := strings.TrimSpace(c.GetHeader(types.HeaderTenantID))
		if tenantID == "" {
			logger.Debugw("request without tenant", "path", c.FullPath())
			c.Error(ierr.NewError("missing tenant header").
				WithHintf("The %s header is required", types.HeaderTenantID).
				Mark(ierr.ErrPermissionDenied))
			c.Abort()
			return
		}

		userID := strings.TrimSpace(c.GetHeader(types.HeaderUserID))
		if userID == "" {
			userID = types.DefaultUserID
		}

		ctx := c.Request.Context()
		ctx = context.WithValue(ctx, types.CtxTenantID, tenantID)
		ctx = context.WithValue(ctx, types.CtxUserID, userID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
