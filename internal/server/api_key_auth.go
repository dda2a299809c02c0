package server

import (
	"strings"

	apikeydomain "github.com/edgepulse/edgepulse/internal/apikey/domain"
	"github.com/edgepulse/edgepulse/internal/tenantctx"
	"github.com/gin-gonic/gin"
)

// HeaderAPIKey carries the raw credential. A Bearer Authorization header is
// accepted as an alternative form of the same credential.
const HeaderAPIKey = "X-API-Key"

// APIKeyRequired authenticates the request and stores the resolved tenant in
// the request context. Tenant identity derives solely from the key record.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		rawKey := credentialFromRequest(c)
		if rawKey == "" {
			AbortWithError(c, apikeydomain.ErrUnauthorized)
			return
		}

		tenantID, err := s.verifier.Verify(c.Request.Context(), rawKey)
		if err != nil {
			AbortWithError(c, apikeydomain.ErrUnauthorized)
			return
		}

		ctx := tenantctx.WithTenantID(c.Request.Context(), tenantID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func credentialFromRequest(c *gin.Context) string {
	if key := strings.TrimSpace(c.GetHeader(HeaderAPIKey)); key != "" {
		return key
	}

	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
