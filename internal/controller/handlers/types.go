package handlers

import (
	"github.com/Freeeeeet/mentor_scheduler/internal/service"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// Handlers содержит все зависимости для обработки команд.
// Telegram ID пользователя используется как его ID в расписании и бронированиях.
type Handlers struct {
	scheduleService *service.ScheduleService
	bookingService  *service.BookingService
	logger          *zap.Logger
}

// NewHandlers создаёт новый обработчик команд
func NewHandlers(
	scheduleService *service.ScheduleService,
	bookingService *service.BookingService,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		scheduleService: scheduleService,
		bookingService:  bookingService,
		logger:          logger,
	}
}

// reply текст ответа и необязательная клавиатура
type reply struct {
	Text     string
	Keyboard *models.InlineKeyboardMarkup
}

func textReply(text string) reply {
	return reply{Text: text}
}
