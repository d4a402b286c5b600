// Package httputil provides shared HTTP response helpers.
package httputil

import "github.com/gin-gonic/gin"

// ErrorBody is the JSON shape of every API error.
type ErrorBody struct {
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	RequestID string   `json:"request_id,omitempty"`
	Fields    []string `json:"fields,omitempty"`
}

// RespondError writes a standardized JSON error response and aborts the request.
func RespondError(c *gin.Context, status int, code, message string) {
	RespondErrorBody(c, status, ErrorBody{Code: code, Message: message})
}

// RespondErrorBody writes body, stamping the request ID set by the request
// ID middleware, and aborts the request.
func RespondErrorBody(c *gin.Context, status int, body ErrorBody) {
	if body.RequestID == "" {
		body.RequestID = c.GetString("request_id")
	}

	c.AbortWithStatusJSON(status, body)
}
