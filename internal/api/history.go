package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/doctrail/internal/domain"
	"github.com/persistorai/doctrail/internal/export"
	"github.com/persistorai/doctrail/internal/models"
)

// defaultRetentionDays applies when DELETE /history names no retention.
const defaultRetentionDays = 90

// HistoryHandler serves history query, replay and export endpoints.
type HistoryHandler struct {
	svc domain.HistoryService
	log *logrus.Logger
}

// NewHistoryHandler creates a HistoryHandler with the given service and logger.
func NewHistoryHandler(svc domain.HistoryService, log *logrus.Logger) *HistoryHandler {
	return &HistoryHandler{svc: svc, log: log}
}

// List handles GET /api/v1/history.
func (h *HistoryHandler) List(c *gin.Context) {
	q, err := parseHistoryQuery(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())

		return
	}

	views, hasMore, err := h.svc.ListHistory(c.Request.Context(), q)
	if err != nil {
		respondServiceError(c, h.log, "listing history", err)

		return
	}

	h.log.WithFields(logrus.Fields{
		"action": "history.list",
		"scope":  q.Scope,
		"chain":  q.Chain.String(),
		"count":  len(views),
	}).Info("audit")

	c.JSON(http.StatusOK, gin.H{"data": views, "has_more": hasMore})
}

// Get handles GET /api/v1/history/:id.
func (h *HistoryHandler) Get(c *gin.Context) {
	id, ok := parseRecordID(c)
	if !ok {
		return
	}

	view, err := h.svc.GetHistory(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.log, "getting history record", err)

		return
	}

	c.JSON(http.StatusOK, view)
}

// Undo handles POST /api/v1/history/:id/undo.
func (h *HistoryHandler) Undo(c *gin.Context) {
	h.replay(c, "undo")
}

// Redo handles POST /api/v1/history/:id/redo.
func (h *HistoryHandler) Redo(c *gin.Context) {
	h.replay(c, "redo")
}

func (h *HistoryHandler) replay(c *gin.Context, direction string) {
	id, ok := parseRecordID(c)
	if !ok {
		return
	}

	actor := actorOf(c)
	replay := h.svc.Undo
	if direction == "redo" {
		replay = h.svc.Redo
	}

	doc, err := replay(c.Request.Context(), id, actor)
	if err != nil {
		respondServiceError(c, h.log, "history "+direction, err)

		return
	}

	h.log.WithFields(logrus.Fields{
		"action":   "history." + direction,
		"record":   id.String(),
		"modifier": actor,
	}).Info("audit")

	c.JSON(http.StatusOK, gin.H{"document": doc})
}

// Purge handles DELETE /api/v1/history.
func (h *HistoryHandler) Purge(c *gin.Context) {
	retentionDays := defaultRetentionDays
	if rd := c.Query("retention_days"); rd != "" {
		v, err := strconv.Atoi(rd)
		if err != nil || v < 1 {
			respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "retention_days must be a positive integer")

			return
		}
		retentionDays = v
	}

	deleted, err := h.svc.PurgeHistory(c.Request.Context(), retentionDays)
	if err != nil {
		respondServiceError(c, h.log, "purging history", err)

		return
	}

	h.log.WithFields(logrus.Fields{
		"action":         "history.purge",
		"retention_days": retentionDays,
		"deleted":        deleted,
	}).Info("audit")

	c.JSON(http.StatusOK, gin.H{"deleted": deleted, "retention_days": retentionDays})
}

// Export handles GET /api/v1/history/export. The file is rendered in memory
// so a failure still produces a JSON error response.
func (h *HistoryHandler) Export(c *gin.Context) {
	q, err := parseHistoryQuery(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())

		return
	}

	format, err := models.ParseExportFormat(c.Query("format"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())

		return
	}

	var buf bytes.Buffer

	rows, truncated, err := export.Write(c.Request.Context(), h.svc, q, format, &buf)
	if err != nil {
		respondServiceError(c, h.log, "exporting history", err)

		return
	}

	h.log.WithFields(logrus.Fields{
		"action":    "history.export",
		"scope":     q.Scope,
		"format":    format,
		"rows":      rows,
		"truncated": truncated,
	}).Info("audit")

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", format.Filename()))
	c.Header("X-Export-Rows", strconv.Itoa(rows))
	c.Header("X-Export-Truncated", strconv.FormatBool(truncated))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}
