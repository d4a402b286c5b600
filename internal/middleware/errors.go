package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/persistorai/doctrail/internal/httputil"
)

// Error codes written by middleware before a handler runs.
const (
	errCodeInvalidRequest  = "invalid_request"
	errCodeRateLimited     = "rate_limited"
	errCodePayloadTooLarge = "payload_too_large"
)

func respondError(c *gin.Context, code int, errCode, message string) {
	httputil.RespondError(c, code, errCode, message)
}
