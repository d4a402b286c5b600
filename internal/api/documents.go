package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/doctrail/internal/domain"
	"github.com/persistorai/doctrail/internal/models"
)

// DocumentHandler serves tracked document endpoints.
type DocumentHandler struct {
	svc domain.DocumentService
	log *logrus.Logger
}

// NewDocumentHandler creates a DocumentHandler with the given service and logger.
func NewDocumentHandler(svc domain.DocumentService, log *logrus.Logger) *DocumentHandler {
	return &DocumentHandler{svc: svc, log: log}
}

// pathParams validates :type and, when withID is set, :id.
func pathParams(c *gin.Context, withID bool) (typeName, id string, ok bool) {
	typeName = c.Param("type")
	if err := validatePathID(typeName); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "type: "+err.Error())

		return "", "", false
	}

	if !withID {
		return typeName, "", true
	}

	id = c.Param("id")
	if err := validatePathID(id); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())

		return "", "", false
	}

	return typeName, id, true
}

// bindSaveRequest decodes and validates a SaveDocumentRequest body.
func bindSaveRequest(c *gin.Context) (models.SaveDocumentRequest, bool) {
	var req models.SaveDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")

		return req, false
	}

	if err := req.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, err.Error())

		return req, false
	}

	return req, true
}

// List handles GET /api/v1/documents/:type.
func (h *DocumentHandler) List(c *gin.Context) {
	typeName, _, ok := pathParams(c, false)
	if !ok {
		return
	}

	limit := parseInt(c.DefaultQuery("limit", "50"), 50)
	offset := parseOffset(c.DefaultQuery("offset", "0"))

	docs, hasMore, err := h.svc.ListDocuments(c.Request.Context(), typeName, limit, offset)
	if err != nil {
		respondServiceError(c, h.log, "listing documents", err)

		return
	}

	h.log.WithFields(logrus.Fields{"action": "document.list", "type": typeName, "count": len(docs)}).Info("audit")

	c.JSON(http.StatusOK, gin.H{"documents": docs, "has_more": hasMore})
}

// Get handles GET /api/v1/documents/:type/:id.
func (h *DocumentHandler) Get(c *gin.Context) {
	typeName, id, ok := pathParams(c, true)
	if !ok {
		return
	}

	doc, err := h.svc.GetDocument(c.Request.Context(), typeName, id)
	if err != nil {
		respondServiceError(c, h.log, "getting document", err)

		return
	}

	c.JSON(http.StatusOK, doc)
}

// Create handles POST /api/v1/documents/:type.
func (h *DocumentHandler) Create(c *gin.Context) {
	typeName, _, ok := pathParams(c, false)
	if !ok {
		return
	}

	req, ok := bindSaveRequest(c)
	if !ok {
		return
	}

	doc, err := h.svc.CreateDocument(c.Request.Context(), typeName, req)
	if err != nil {
		respondServiceError(c, h.log, "creating document", err)

		return
	}

	h.log.WithFields(logrus.Fields{
		"action":   "document.create",
		"type":     typeName,
		"id":       doc.ID,
		"modifier": actorOf(c),
	}).Info("audit")

	c.JSON(http.StatusCreated, doc)
}

// Save handles PUT /api/v1/documents/:type/:id.
func (h *DocumentHandler) Save(c *gin.Context) {
	typeName, id, ok := pathParams(c, true)
	if !ok {
		return
	}

	req, ok := bindSaveRequest(c)
	if !ok {
		return
	}

	doc, err := h.svc.SaveDocument(c.Request.Context(), typeName, id, req)
	if err != nil {
		respondServiceError(c, h.log, "saving document", err)

		return
	}

	h.log.WithFields(logrus.Fields{
		"action":   "document.save",
		"type":     typeName,
		"id":       id,
		"revision": doc.Revision,
		"modifier": actorOf(c),
	}).Info("audit")

	c.JSON(http.StatusOK, doc)
}

// Destroy handles DELETE /api/v1/documents/:type/:id.
func (h *DocumentHandler) Destroy(c *gin.Context) {
	typeName, id, ok := pathParams(c, true)
	if !ok {
		return
	}

	if err := h.svc.DestroyDocument(c.Request.Context(), typeName, id); err != nil {
		respondServiceError(c, h.log, "destroying document", err)

		return
	}

	h.log.WithFields(logrus.Fields{
		"action":   "document.destroy",
		"type":     typeName,
		"id":       id,
		"modifier": actorOf(c),
	}).Info("audit")

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// Diff handles POST /api/v1/documents/:type/:id/diff. It reports the tracked
// changes the body would produce without writing anything.
func (h *DocumentHandler) Diff(c *gin.Context) {
	typeName, id, ok := pathParams(c, true)
	if !ok {
		return
	}

	action, err := models.ParseAction(c.DefaultQuery("action", string(models.ActionUpdate)))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())

		return
	}

	var req models.SaveDocumentRequest
	if action != models.ActionDestroy {
		if req, ok = bindSaveRequest(c); !ok {
			return
		}
	}

	changes, err := h.svc.PreviewDiff(c.Request.Context(), typeName, id, req, action)
	if err != nil {
		respondServiceError(c, h.log, "previewing diff", err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"action": action, "changes": changes})
}
