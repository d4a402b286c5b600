package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/doctrail/internal/middleware"
	"github.com/persistorai/doctrail/internal/models"
	"github.com/persistorai/doctrail/internal/trackctx"
	"github.com/persistorai/doctrail/internal/ws"
)

const maxScopeLen = 255

func wsHandler(appCtx context.Context, log *logrus.Logger, hub *ws.Hub, corsOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope := c.Query("scope")
		if scope == "" || len(scope) > maxScopeLen {
			respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "scope is required")

			return
		}

		// CORS origins are reused as WebSocket origin patterns.
		conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
			OriginPatterns:       corsOrigins,
			CompressionMode:      websocket.CompressionContextTakeover,
			CompressionThreshold: 128,
		})
		if err != nil {
			log.WithError(err).Error("websocket accept failed")

			return
		}

		client := ws.NewClient(hub, conn, scope)
		hub.Register(client)

		// Derive a context that cancels when either the server shuts down or the request ends.
		wsCtx, wsCancel := context.WithCancel(appCtx)
		go func() {
			select {
			case <-c.Request.Context().Done():
				wsCancel()
			case <-wsCtx.Done():
			}
		}()

		go client.WritePump(wsCtx)
		client.ReadPump(wsCtx)
		wsCancel()
	}
}

func ginLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		}
		if rid := middleware.RequestIDOf(c); rid != "" {
			fields["request_id"] = rid
		}
		if crid := c.GetString(middleware.ClientRequestIDKey); crid != "" {
			fields["client_request_id"] = crid
		}
		if actor := c.GetString(middleware.ActorKey); actor != "" {
			fields["actor"] = actor
		}
		log.WithFields(fields).Info("request")
	}
}

// actorOf returns the request actor set by the tracking middleware.
func actorOf(c *gin.Context) string {
	return trackctx.Actor(c.Request.Context())
}

// maxPaginationLimit caps the maximum number of items per page.
const maxPaginationLimit = 1000

// maxPaginationOffset caps the maximum offset for paginated queries.
const maxPaginationOffset = 100000

func parseInt(s string, fallback int) int {
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return fallback
	}

	if v > maxPaginationLimit {
		return maxPaginationLimit
	}

	return v
}

func parseOffset(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0
	}

	if v > maxPaginationOffset {
		return maxPaginationOffset
	}

	return v
}

// validatePathID checks that a path parameter ID is non-empty and within length limits.
func validatePathID(id string) error {
	if id == "" {
		return fmt.Errorf("id must not be empty")
	}
	if len(id) > 255 {
		return fmt.Errorf("id exceeds maximum length of 255")
	}
	return nil
}

// parseRecordID reads the :id path parameter as a history record id.
func parseRecordID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid history record id")

		return uuid.Nil, false
	}

	return id, true
}

// parseHistoryQuery reads the history filters shared by list and export.
func parseHistoryQuery(c *gin.Context) (models.HistoryQuery, error) {
	q := models.HistoryQuery{
		Scope:  c.Query("scope"),
		Type:   c.Query("type"),
		Limit:  parseInt(c.DefaultQuery("limit", "50"), 50),
		Offset: parseOffset(c.DefaultQuery("offset", "0")),
	}

	chain, err := models.ParseChain(c.Query("chain"))
	if err != nil {
		return q, err
	}

	q.Chain = chain

	if a := c.Query("action"); a != "" {
		action, err := models.ParseAction(a)
		if err != nil {
			return q, err
		}

		q.Action = action
	}

	return q, nil
}
