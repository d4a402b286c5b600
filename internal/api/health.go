// Package api provides HTTP handlers for doctrail.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HealthHandler serves health check endpoints.
type HealthHandler struct {
	store     Pinger
	hub       ClientCounter
	log       *logrus.Logger
	version   string
	backend   string
	types     func() []string
	startTime time.Time
}

// NewHealthHandler creates a HealthHandler. types reports the tracked type
// names and may be nil.
func NewHealthHandler(store Pinger, hub ClientCounter, log *logrus.Logger, version, backend string, types func() []string) *HealthHandler {
	return &HealthHandler{
		store:     store,
		hub:       hub,
		log:       log,
		version:   version,
		backend:   backend,
		types:     types,
		startTime: time.Now(),
	}
}

// readinessResponse is the JSON payload returned by the readiness endpoint.
type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// healthResponse is the JSON payload returned by the health/liveness endpoint.
type healthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	Backend       string  `json:"backend"`
	Storage       string  `json:"storage"`
	FeedClients   int     `json:"feed_clients"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Liveness handles GET /api/v1/health.
func (h *HealthHandler) Liveness(c *gin.Context) {
	resp := healthResponse{
		Status:        "ok",
		Version:       h.version,
		Backend:       h.backend,
		Storage:       "connected",
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	}

	// Best-effort storage ping (non-fatal for liveness).
	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := h.store.Ping(ctx); err != nil {
			resp.Storage = "disconnected"
		}
	} else {
		resp.Storage = "not_configured"
	}

	if h.hub != nil {
		resp.FeedClients = h.hub.ClientCount()
	}

	c.JSON(http.StatusOK, resp)
}

// Readiness handles GET /api/v1/ready. It checks storage and that at least
// one type is tracked.
func (h *HealthHandler) Readiness(c *gin.Context) {
	checks := map[string]string{
		"storage":  "ok",
		"tracking": "ok",
	}
	status := "ready"
	statusCode := http.StatusOK

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if h.store == nil {
		checks["storage"] = "error"
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	} else if err := h.store.Ping(ctx); err != nil {
		h.log.WithError(err).Error("readiness: storage ping failed")
		checks["storage"] = "error"
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	if h.types != nil && len(h.types()) == 0 {
		h.log.Warn("readiness: no tracked types registered")
		checks["tracking"] = "degraded"
	}

	c.JSON(statusCode, readinessResponse{
		Status: status,
		Checks: checks,
	})
}
