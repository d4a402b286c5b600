package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/doctrail/internal/domain"
)

// TypeHandler serves tracking configuration introspection.
type TypeHandler struct {
	svc domain.TrackingService
	log *logrus.Logger
}

// NewTypeHandler creates a TypeHandler.
func NewTypeHandler(svc domain.TrackingService, log *logrus.Logger) *TypeHandler {
	return &TypeHandler{svc: svc, log: log}
}

// List handles GET /api/v1/types.
func (h *TypeHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"types": h.svc.TrackedTypes()})
}

// Tracking handles GET /api/v1/types/:type/tracking.
func (h *TypeHandler) Tracking(c *gin.Context) {
	typeName, _, ok := pathParams(c, false)
	if !ok {
		return
	}

	prepared, err := h.svc.Prepared(typeName)
	if err != nil {
		respondServiceError(c, h.log, "reading tracking spec", err)

		return
	}

	c.JSON(http.StatusOK, prepared)
}
