package middleware

import "github.com/gin-gonic/gin"

// apiSecurityHeaders are set on every response. The API serves JSON, file
// exports and a websocket upgrade, none of which a browser should frame,
// sniff or cache.
var apiSecurityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Strict-Transport-Security", "max-age=63072000; includeSubDomains"},
	{"Cache-Control", "no-store"},
}

// SecurityHeaders returns Gin middleware that sets the API security headers.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, h := range apiSecurityHeaders {
			c.Header(h[0], h[1])
		}

		c.Next()
	}
}
