package server

import (
	"errors"
	"net/http"

	apikeydomain "github.com/edgepulse/edgepulse/internal/apikey/domain"
	ingestdomain "github.com/edgepulse/edgepulse/internal/ingest/domain"
	"github.com/gin-gonic/gin"
)

var (
	ErrNotFound    = errors.New("not_found")
	ErrRateLimited = errors.New("rate_limited")
	ErrInternal    = errors.New("internal_error")
)

type errorResponse struct {
	Error   string                    `json:"error"`
	Details []ingestdomain.FieldError `json:"details,omitempty"`
}

// ErrorHandlingMiddleware maps errors recorded on the context to the wire
// envelope. No internal identifiers or stack traces ever reach the client.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorResponse) {
	var verr *ingestdomain.ValidationErrors
	if errors.As(err, &verr) {
		return http.StatusBadRequest, errorResponse{Error: "bad_request", Details: verr.Fields}
	}

	switch {
	case errors.Is(err, apikeydomain.ErrUnauthorized):
		return http.StatusUnauthorized, errorResponse{Error: "unauthorized"}
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: "not_found"}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorResponse{Error: "rate_limited"}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal_error"}
	}
}
