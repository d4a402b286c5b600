package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/persistorai/doctrail/internal/trackctx"
)

const (
	// ActorHeader names the user performing the request.
	ActorHeader = "X-Actor"

	// TrackingDisabledHeader lists scopes ("*" for all) whose tracking is
	// switched off for the request.
	TrackingDisabledHeader = "X-Tracking-Disabled"

	// ActorKey is the gin context key for the request actor.
	ActorKey = "actor"

	maxActorLen = 255
)

// Tracking attaches the request's tracking state to its context: the actor
// from X-Actor and a fresh flag store seeded from X-Tracking-Disabled.
func Tracking() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader(ActorHeader))
		if len(actor) > maxActorLen {
			respondError(c, http.StatusBadRequest, errCodeInvalidRequest, "actor exceeds maximum length of 255")

			return
		}

		ctx, flags := trackctx.WithFlags(c.Request.Context())

		for _, scope := range strings.Split(c.GetHeader(TrackingDisabledHeader), ",") {
			if scope = strings.TrimSpace(scope); scope != "" {
				flags.Set(scope, false)
			}
		}

		if actor != "" {
			ctx = trackctx.WithActor(ctx, actor)
			c.Set(ActorKey, actor)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
