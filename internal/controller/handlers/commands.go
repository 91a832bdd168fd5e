package handlers

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const helpText = "📚 Справка по командам:\n\n" +
	"Для учеников:\n" +
	"/sessions <id ментора> - Ближайшие занятия ментора\n" +
	"/book <id занятия> - Записаться на занятие\n" +
	"/mybookings - Мои записи\n" +
	"/status <id записи> - Статус записи\n" +
	"/cancel <id записи> - Отменить запись\n\n" +
	"Для менторов:\n" +
	"/mysessions - Мои занятия\n" +
	"/confirm <id записи> - Подтвердить запись\n\n" +
	"Занятия создаются через HTTP API: POST /sessions/generate"

// HandleStart обрабатывает команду /start
func (h *Handlers) HandleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	user := update.Message.From

	welcomeText := fmt.Sprintf(
		"👋 Привет, %s!\n\n"+
			"Это бот для записи на занятия с менторами.\n"+
			"Ваш ID: %d - передайте его ментору, чтобы он нашёл вашу запись.\n\n%s",
		user.FirstName,
		user.ID,
		helpText,
	)

	h.send(ctx, b, update.Message.Chat.ID, textReply(welcomeText))
}

// HandleHelp обрабатывает команду /help
func (h *Handlers) HandleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	h.send(ctx, b, update.Message.Chat.ID, textReply(helpText))
}
