package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// HandleMySessions обрабатывает команду /mysessions (ментор)
func (h *Handlers) HandleMySessions(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	h.send(ctx, b, update.Message.Chat.ID, h.mySessionsReply(ctx, update.Message.From.ID))
}

func (h *Handlers) mySessionsReply(ctx context.Context, mentorID int64) reply {
	sessions, err := h.scheduleService.ListMentorSessions(ctx, mentorID)
	if err != nil {
		h.logger.Error("Failed to list mentor sessions", zap.Int64("mentor_id", mentorID), zap.Error(err))
		return textReply(ErrorMessage(err))
	}

	if len(sessions) == 0 {
		return textReply("📭 У вас пока нет занятий\n\nСоздайте их через POST /sessions/generate")
	}

	out := fmt.Sprintf("🗓 Ваши занятия (%d %s):\n\n", len(sessions), PluralizeSessions(len(sessions)))
	for i, s := range sessions {
		if i == maxListed {
			out += fmt.Sprintf("\n...и ещё %d", len(sessions)-maxListed)
			break
		}
		out += FormatSession(s) + "\n\n"
	}

	return textReply(strings.TrimRight(out, "\n"))
}

// HandleConfirm обрабатывает команду /confirm <id записи> (ментор)
func (h *Handlers) HandleConfirm(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	bookingID, ok := parseIDArg(update.Message.Text)
	if !ok {
		h.send(ctx, b, update.Message.Chat.ID, textReply("Использование: /confirm <id записи>"))
		return
	}

	h.send(ctx, b, update.Message.Chat.ID, h.confirmReply(ctx, update.Message.From.ID, bookingID))
}

func (h *Handlers) confirmReply(ctx context.Context, mentorID, bookingID int64) reply {
	bk, err := h.bookingService.Confirm(ctx, bookingID, mentorID)
	if err != nil {
		return textReply(ErrorMessage(err))
	}

	return textReply(fmt.Sprintf("✅ Запись #%d подтверждена (ученик %d)", bk.ID, bk.MenteeID))
}

// HandleCallbackQuery обрабатывает нажатия на кнопки под записями
func (h *Handlers) HandleCallbackQuery(ctx context.Context, b *bot.Bot, update *models.Update) {
	callback := update.CallbackQuery
	if callback == nil {
		return
	}

	h.logger.Info("Routing callback",
		zap.String("data", callback.Data),
		zap.Int64("user_id", callback.From.ID),
	)

	var r reply
	switch {
	case strings.HasPrefix(callback.Data, CancelBooking):
		id, ok := parseCallbackID(callback.Data, CancelBooking)
		if !ok {
			h.answerCallback(ctx, b, callback.ID, "❌ Неверный формат данных", true)
			return
		}
		r = h.cancelReply(ctx, callback.From.ID, id)

	case strings.HasPrefix(callback.Data, ConfirmBooking):
		id, ok := parseCallbackID(callback.Data, ConfirmBooking)
		if !ok {
			h.answerCallback(ctx, b, callback.ID, "❌ Неверный формат данных", true)
			return
		}
		r = h.confirmReply(ctx, callback.From.ID, id)

	default:
		h.answerCallback(ctx, b, callback.ID, "", false)
		return
	}

	h.answerCallback(ctx, b, callback.ID, "", false)

	if msg := messageFromCallback(callback); msg != nil {
		h.send(ctx, b, msg.Chat.ID, r)
	}
}

// confirmButton кнопка подтверждения для уведомлений ментору
func confirmButton(bookingID int64) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{
		Text:         "✅ Подтвердить",
		CallbackData: ConfirmBooking + strconv.FormatInt(bookingID, 10),
	}
}
