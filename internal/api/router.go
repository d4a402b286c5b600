package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/doctrail/internal/domain"
	"github.com/persistorai/doctrail/internal/middleware"
	"github.com/persistorai/doctrail/internal/ws"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Log         *logrus.Logger
	Store       Pinger
	Hub         *ws.Hub
	Documents   domain.DocumentService
	History     domain.HistoryService
	Tracking    domain.TrackingService
	CORSOrigins []string
	Version     string
	Backend     string

	// RateLimit falls back to middleware.DefaultRateLimitConfig when zero.
	RateLimit middleware.RateLimitConfig
}

const maxBodySize = 10 << 20 // 10 MB

// setupMiddleware configures all middleware on the Gin engine.
func setupMiddleware(ctx context.Context, r *gin.Engine, deps *RouterDeps) {
	r.SetTrustedProxies(nil) //nolint:errcheck // nil always succeeds.
	r.Use(middleware.RequestID())
	r.Use(ginLogger(deps.Log))
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.MaxBodySize(maxBodySize))
	r.Use(cors.New(cors.Config{
		AllowOrigins: deps.CORSOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			middleware.ActorHeader,
			middleware.TrackingDisabledHeader,
		},
		ExposeHeaders:    []string{"Content-Disposition", "X-Export-Rows", "X-Export-Truncated"},
		MaxAge:           1 * time.Hour,
		AllowCredentials: false,
	}))
	r.Use(middleware.Tracking())
	r.Use(middleware.NewRateLimiter(ctx, deps.RateLimit).Handler())
	r.Use(middleware.PrometheusMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// registerRoutes sets up all API route handlers on the given router group.
func registerRoutes(ctx context.Context, api *gin.RouterGroup, deps *RouterDeps) {
	log := deps.Log

	var hub ClientCounter
	if deps.Hub != nil {
		hub = deps.Hub
	}

	var types func() []string
	if deps.Tracking != nil {
		types = deps.Tracking.TrackedTypes
	}

	health := NewHealthHandler(deps.Store, hub, log, deps.Version, deps.Backend, types)
	docs := NewDocumentHandler(deps.Documents, log)
	history := NewHistoryHandler(deps.History, log)
	tracking := NewTypeHandler(deps.Tracking, log)

	api.GET("/health", health.Liveness)
	api.GET("/ready", health.Readiness)

	// Tracking configuration.
	api.GET("/types", tracking.List)
	api.GET("/types/:type/tracking", tracking.Tracking)

	// Documents.
	api.GET("/documents/:type", docs.List)
	api.POST("/documents/:type", docs.Create)
	api.GET("/documents/:type/:id", docs.Get)
	api.PUT("/documents/:type/:id", docs.Save)
	api.DELETE("/documents/:type/:id", docs.Destroy)
	api.POST("/documents/:type/:id/diff", docs.Diff)

	// History.
	api.GET("/history", history.List)
	api.DELETE("/history", history.Purge)
	api.GET("/history/export", history.Export)
	api.GET("/history/:id", history.Get)
	api.POST("/history/:id/undo", history.Undo)
	api.POST("/history/:id/redo", history.Redo)

	// Live history feed.
	if deps.Hub != nil {
		api.GET("/ws", wsHandler(ctx, log, deps.Hub, deps.CORSOrigins))
	}
}

// NewRouter creates and configures the Gin engine with all middleware and routes.
func NewRouter(ctx context.Context, deps *RouterDeps) http.Handler {
	r := gin.New()
	setupMiddleware(ctx, r, deps)
	registerRoutes(ctx, r.Group("/api/v1"), deps)

	return r
}
