package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/Freeeeeet/mentor_scheduler/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// Callback data кнопок под записью
const (
	CancelBooking  = "cancel_booking:"  // cancel_booking:booking_id
	ConfirmBooking = "confirm_booking:" // confirm_booking:booking_id
)

// maxListed сколько занятий показываем в одном сообщении
const maxListed = 10

// HandleSessions обрабатывает команду /sessions <id ментора>
func (h *Handlers) HandleSessions(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	h.send(ctx, b, update.Message.Chat.ID, h.sessionsReply(ctx, update.Message.Text, time.Now()))
}

func (h *Handlers) sessionsReply(ctx context.Context, text string, now time.Time) reply {
	mentorID, ok := parseIDArg(text)
	if !ok {
		return textReply("Использование: /sessions <id ментора>")
	}

	sessions, err := h.scheduleService.ListMentorSessions(ctx, mentorID)
	if err != nil {
		h.logger.Error("Failed to list sessions", zap.Int64("mentor_id", mentorID), zap.Error(err))
		return textReply(ErrorMessage(err))
	}

	var upcoming []*model.SessionInstance
	for _, s := range sessions {
		if s.StartTime.After(now) {
			upcoming = append(upcoming, s)
		}
	}

	if len(upcoming) == 0 {
		return textReply("📭 У ментора нет ближайших занятий")
	}

	out := fmt.Sprintf("📅 Ближайшие занятия ментора #%d (%d %s):\n\n",
		mentorID, len(upcoming), PluralizeSessions(len(upcoming)))
	for i, s := range upcoming {
		if i == maxListed {
			out += fmt.Sprintf("\n...и ещё %d", len(upcoming)-maxListed)
			break
		}
		out += FormatSession(s) + "\n\n"
	}
	out += "Записаться: /book <id занятия>"

	return textReply(out)
}

// HandleBook обрабатывает команду /book <id занятия>
func (h *Handlers) HandleBook(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	h.send(ctx, b, update.Message.Chat.ID, h.bookReply(ctx, update.Message.From.ID, update.Message.Text))
}

func (h *Handlers) bookReply(ctx context.Context, userID int64, text string) reply {
	sessionID, ok := parseIDArg(text)
	if !ok {
		return textReply("Использование: /book <id занятия>")
	}

	result, err := h.bookingService.RequestBooking(ctx, sessionID, userID, "", model.ChargeShapeHosted)
	if err != nil {
		h.logger.Warn("Booking via bot failed",
			zap.Int64("session_id", sessionID),
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		if result != nil && result.Booking != nil {
			// Место занято, но платёж не создан: повторный /book попробует снова
			return textReply(fmt.Sprintf("%s\n\nЗапись #%d сохранена, повторите /book %d",
				ErrorMessage(err), result.Booking.ID, sessionID))
		}
		return textReply(ErrorMessage(err))
	}

	return bookingResultReply(result)
}

func bookingResultReply(result *service.BookingResult) reply {
	bk := result.Booking

	var header string
	switch {
	case result.Existing:
		header = "ℹ️ У вас уже есть запись на это занятие"
	case bk.Status == model.BookingStatusConfirmed:
		header = "✅ Вы записаны!"
	default:
		header = "📝 Запись создана"
	}

	out := header + "\n\n" + FormatBooking(bk)

	var rows [][]models.InlineKeyboardButton

	if ch := result.Charge; ch != nil && bk.Status == model.BookingStatusPending && !bk.IsPaid() && ch.RedirectURL != "" {
		out += fmt.Sprintf("\n\n💳 К оплате: %s", FormatAmount(ch.Amount, ch.Currency))
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: "💳 Оплатить", URL: ch.RedirectURL},
		})
	} else if ch != nil && ch.Covered {
		out += "\n\n💳 Программа уже оплачена"
	}

	if bk.IsActive() {
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: "❌ Отменить запись", CallbackData: CancelBooking + strconv.FormatInt(bk.ID, 10)},
		})
	}

	r := textReply(out)
	if len(rows) > 0 {
		r.Keyboard = &models.InlineKeyboardMarkup{InlineKeyboard: rows}
	}
	return r
}

// HandleMyBookings обрабатывает команду /mybookings
func (h *Handlers) HandleMyBookings(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	h.send(ctx, b, update.Message.Chat.ID, h.myBookingsReply(ctx, update.Message.From.ID))
}

func (h *Handlers) myBookingsReply(ctx context.Context, userID int64) reply {
	bookings, err := h.bookingService.ListMenteeBookings(ctx, userID)
	if err != nil {
		h.logger.Error("Failed to list bookings", zap.Int64("user_id", userID), zap.Error(err))
		return textReply(ErrorMessage(err))
	}

	var active []*model.Booking
	for _, bk := range bookings {
		if bk.IsActive() {
			active = append(active, bk)
		}
	}

	if len(active) == 0 {
		return textReply("📭 У вас нет активных записей\n\nНайти занятия: /sessions <id ментора>")
	}

	out := fmt.Sprintf("📅 Ваши записи (%d):\n\n", len(active))
	for _, bk := range active {
		display := GetBookingStatusDisplay(bk)
		out += fmt.Sprintf("%s #%d на занятие #%d: %s\n", display.Emoji, bk.ID, bk.SessionID, display.Text)
	}
	out += "\nПодробнее: /status <id записи>"

	return textReply(out)
}

// HandleStatus обрабатывает команду /status <id записи>
func (h *Handlers) HandleStatus(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	h.send(ctx, b, update.Message.Chat.ID, h.statusReply(ctx, update.Message.From.ID, update.Message.Text))
}

func (h *Handlers) statusReply(ctx context.Context, userID int64, text string) reply {
	bookingID, ok := parseIDArg(text)
	if !ok {
		return textReply("Использование: /status <id записи>")
	}

	bk, err := h.bookingService.Get(ctx, bookingID, userID)
	if err != nil {
		return textReply(ErrorMessage(err))
	}

	r := textReply(FormatBooking(bk))
	if bk.Status == model.BookingStatusPending && bk.Session != nil && bk.Session.MentorID == userID {
		r.Keyboard = &models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{{confirmButton(bk.ID)}},
		}
	}
	return r
}

// HandleCancel обрабатывает команду /cancel <id записи>
func (h *Handlers) HandleCancel(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	bookingID, ok := parseIDArg(update.Message.Text)
	if !ok {
		h.send(ctx, b, update.Message.Chat.ID, textReply("Использование: /cancel <id записи>"))
		return
	}

	h.send(ctx, b, update.Message.Chat.ID, h.cancelReply(ctx, update.Message.From.ID, bookingID))
}

func (h *Handlers) cancelReply(ctx context.Context, userID, bookingID int64) reply {
	bk, err := h.bookingService.Cancel(ctx, bookingID, userID)
	if err != nil {
		return textReply(ErrorMessage(err))
	}

	out := fmt.Sprintf("✅ Запись #%d отменена", bk.ID)
	if bk.IsPaid() {
		out += "\n\n💸 Запись была оплачена, возврат оформит ментор"
	}
	return textReply(out)
}
