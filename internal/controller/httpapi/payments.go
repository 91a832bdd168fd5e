package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/Freeeeeet/mentor_scheduler/internal/payment"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBody = 64 << 10

// POST /payments/webhook. Процессор повторяет доставку до ответа 2xx,
// поэтому повторы отвечают 200 без изменений состояния.
func (h *Handler) PaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		badRequest(c, err)
		return
	}

	event, err := h.events.ParseEvent(body)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			h.logger.Warn("Webhook with invalid signature", zap.String("remote_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
		badRequest(c, err)
		return
	}

	ctx := c.Request.Context()

	switch event.Outcome {
	case payment.OutcomePaid:
		outcome, err := h.bookings.ReconcilePayment(ctx, event.ChargeKey, event.ProcessorRef)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": outcome})

	case payment.OutcomeFailed:
		if err := h.bookings.FailPayment(ctx, event.ChargeKey, event.RawStatus); err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "failed"})

	default:
		h.logger.Debug("Webhook ignored",
			zap.String("charge_key", event.ChargeKey),
			zap.String("status", event.RawStatus),
		)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	}
}
