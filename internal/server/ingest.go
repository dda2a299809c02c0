package server

import (
	"io"
	"net/http"
	"time"

	ingestdomain "github.com/edgepulse/edgepulse/internal/ingest/domain"
	"github.com/edgepulse/edgepulse/internal/tenantctx"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"service": s.cfg.AppName,
		"ts":      time.Now().UTC().Format(time.RFC3339),
	})
}

// RateLimited throttles per tenant when a limiter is configured. A limiter
// error fails open: throttling protects capacity, it does not gate
// correctness.
func (s *Server) RateLimited() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		tenantID, ok := tenantctx.TenantIDFromContext(c.Request.Context())
		if !ok {
			c.Next()
			return
		}

		allowed, err := s.limiter.AllowTenant(c.Request.Context(), tenantID.String())
		if err != nil {
			s.log.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

// Ingest is the synchronous accept path: authenticate (middleware), decode
// and validate, then hand off to the ingest service.
func (s *Server) Ingest(c *gin.Context) {
	tenantID, ok := tenantctx.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrInternal)
		return
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	req, err := ingestdomain.Decode(raw)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.ingest.Accept(c.Request.Context(), tenantID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":      "accepted",
		"batch_id":    result.BatchID,
		"storage_key": result.StorageKey,
	})
}
