package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDKey is the gin context key for the request ID.
	RequestIDKey = "request_id"

	// ClientRequestIDKey holds the caller's own X-Request-ID, if any.
	ClientRequestIDKey = "client_request_id"

	// RequestIDHeader is the HTTP header used to propagate the request ID.
	RequestIDHeader = "X-Request-ID"
)

// maxClientRequestIDLen bounds the echoed client value in logs.
const maxClientRequestIDLen = 128

// RequestID assigns every request a fresh server-side UUID. A client supplied
// X-Request-ID is kept under ClientRequestIDKey for log correlation and never
// becomes the canonical ID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()

		if clientID := c.GetHeader(RequestIDHeader); clientID != "" {
			if len(clientID) > maxClientRequestIDLen {
				clientID = clientID[:maxClientRequestIDLen]
			}

			c.Set(ClientRequestIDKey, clientID)
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestIDOf returns the canonical request ID, or "" outside the middleware.
func RequestIDOf(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}
