package httpapi

import (
	"errors"
	"net/http"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor переводит ошибку домена в HTTP статус
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrCapacityExceeded),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, model.ErrBelowMinimum),
		errors.Is(err, model.ErrProcessorDeclined):
		return http.StatusPaymentRequired
	case errors.Is(err, model.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorCode машинно-читаемый код ошибки для клиента
func errorCode(err error) string {
	switch {
	case errors.Is(err, model.ErrValidation):
		return "validation"
	case errors.Is(err, model.ErrForbidden):
		return "forbidden"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, model.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, model.ErrConflict):
		return "conflict"
	case errors.Is(err, model.ErrBelowMinimum):
		return "below_minimum"
	case errors.Is(err, model.ErrProcessorDeclined):
		return "processor_declined"
	case errors.Is(err, model.ErrUnavailable):
		return "unavailable"
	default:
		return "internal"
	}
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": errorCode(err)}

	var verr *model.ValidationError
	var below *model.BelowMinimumError
	switch {
	case errors.As(err, &verr):
		body["field"] = verr.Field
		body["reason"] = verr.Reason
	case errors.As(err, &below):
		body["amount"] = below.Amount
		body["floor"] = below.Floor
		body["currency"] = below.Currency
	}

	if status == http.StatusInternalServerError {
		// Внутренние детали клиенту не отдаём
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		body["message"] = err.Error()
	}

	c.AbortWithStatusJSON(status, body)
}
