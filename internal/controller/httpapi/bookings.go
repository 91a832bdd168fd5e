package httpapi

import (
	"net/http"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/gin-gonic/gin"
)

// POST /bookings
func (h *Handler) CreateBooking(c *gin.Context) {
	var in struct {
		SessionID    int64             `json:"session_id" binding:"required"`
		Notes        string            `json:"notes" binding:"max=2000"`
		PaymentShape model.ChargeShape `json:"payment_shape"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.bookings.RequestBooking(c.Request.Context(), in.SessionID, currentUser(c), in.Notes, in.PaymentShape)
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Existing {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

// GET /bookings
func (h *Handler) ListMyBookings(c *gin.Context) {
	bookings, err := h.bookings.ListMenteeBookings(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	if bookings == nil {
		bookings = []*model.Booking{}
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

// GET /bookings/:id: актуальное состояние после возврата со страницы оплаты
func (h *Handler) GetBooking(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	b, err := h.bookings.Get(c.Request.Context(), id, currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, b)
}

// POST /bookings/:id/confirm
func (h *Handler) ConfirmBooking(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	b, err := h.bookings.Confirm(c.Request.Context(), id, currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, b)
}

// POST /bookings/:id/cancel
func (h *Handler) CancelBooking(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	b, err := h.bookings.Cancel(c.Request.Context(), id, currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, b)
}
