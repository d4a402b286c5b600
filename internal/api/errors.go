package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/doctrail/internal/httputil"
	"github.com/persistorai/doctrail/internal/metrics"
	"github.com/persistorai/doctrail/internal/models"
)

// Error code constants for standardized API responses.
const (
	ErrCodeInvalidRequest  = "invalid_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeInternalError   = "internal_error"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeValidationError = "validation_error"
	ErrCodeConfiguration   = "configuration_error"
	ErrCodeConflict        = "conflict"
)

// respondError writes a standardized JSON error response, pulling the request
// ID from the Gin context (set by the request ID middleware).
func respondError(c *gin.Context, status int, code, message string) {
	metrics.ErrorsTotal.WithLabelValues(code).Inc()
	httputil.RespondError(c, status, code, message)
}

// respondServiceError maps a service error onto a status code. Unexpected
// errors are logged with op and hidden from the caller.
func respondServiceError(c *gin.Context, log *logrus.Logger, op string, err error) {
	switch {
	case errors.Is(err, models.ErrUnknownType), errors.Is(err, models.ErrNotFound):
		respondError(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, models.ErrConfiguration):
		respondError(c, http.StatusBadRequest, ErrCodeConfiguration, err.Error())
	case errors.Is(err, models.ErrValidation):
		body := httputil.ErrorBody{Code: ErrCodeValidationError, Message: err.Error()}

		var ve *models.ValidationError
		if errors.As(err, &ve) {
			body.Fields = ve.Fields
		}

		metrics.ErrorsTotal.WithLabelValues(body.Code).Inc()
		httputil.RespondErrorBody(c, http.StatusBadRequest, body)
	case errors.Is(err, models.ErrConflict):
		respondError(c, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		log.WithError(err).Error(op)
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
	}
}
