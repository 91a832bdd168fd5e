// Package httpapi HTTP API поверх сервисов расписания и бронирования
package httpapi

import (
	"net/http"
	"strconv"

	"github.com/Freeeeeet/mentor_scheduler/internal/payment"
	"github.com/Freeeeeet/mentor_scheduler/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// EventParser проверяет подпись уведомления процессора и разбирает его
type EventParser interface {
	ParseEvent(body []byte) (*payment.Event, error)
}

type Handler struct {
	schedule  *service.ScheduleService
	bookings  *service.BookingService
	events    EventParser
	jwtSecret []byte
	logger    *zap.Logger
}

func NewHandler(
	schedule *service.ScheduleService,
	bookings *service.BookingService,
	events EventParser,
	jwtSecret []byte,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		schedule:  schedule,
		bookings:  bookings,
		events:    events,
		jwtSecret: jwtSecret,
		logger:    logger,
	}
}

// Router собирает gin engine со всеми маршрутами
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(h.logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Уведомления процессора подписаны его ключом, JWT не нужен
	r.POST("/payments/webhook", h.PaymentWebhook)

	secured := r.Group("")
	secured.Use(JWTAuth(h.jwtSecret))
	{
		secured.POST("/programs", h.CreateProgram)

		secured.POST("/sessions/generate", h.GenerateSessions)
		secured.GET("/mentors/:id/sessions", h.ListMentorSessions)
		secured.GET("/sessions/:id", h.GetSession)
		secured.PATCH("/sessions/:id/capacity", h.UpdateCapacity)
		secured.DELETE("/sessions/:id", h.DeleteSession)

		secured.POST("/bookings", h.CreateBooking)
		secured.GET("/bookings", h.ListMyBookings)
		secured.GET("/bookings/:id", h.GetBooking)
		secured.POST("/bookings/:id/confirm", h.ConfirmBooking)
		secured.POST("/bookings/:id/cancel", h.CancelBooking)
	}

	return r
}

// pathID разбирает числовой параметр пути; при ошибке сам отвечает 400
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":  "validation",
			"field":  name,
			"reason": "must be a positive integer",
		})
		return 0, false
	}
	return id, true
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "validation", "message": err.Error()})
}
