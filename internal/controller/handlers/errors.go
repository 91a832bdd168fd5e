package handlers

import (
	"errors"
	"fmt"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
)

// ErrorMessage возвращает пользовательское сообщение для ошибки
func ErrorMessage(err error) string {
	var verr *model.ValidationError
	var below *model.BelowMinimumError

	switch {
	case errors.As(err, &below):
		return fmt.Sprintf("❌ Сумма %s меньше минимальной для оплаты (%s)",
			FormatAmount(below.Amount, below.Currency), FormatAmount(below.Floor, below.Currency))
	case errors.As(err, &verr):
		if verr.Reason == "session already started" {
			return "❌ Занятие уже началось"
		}
		if verr.Reason == "mentor cannot book own session" {
			return "❌ Нельзя записаться на своё занятие"
		}
		return "❌ Неверные данные: " + verr.Error()
	case errors.Is(err, model.ErrNotFound):
		return "❌ Не найдено"
	case errors.Is(err, model.ErrForbidden):
		return "❌ У вас нет доступа к этой записи"
	case errors.Is(err, model.ErrCapacityExceeded):
		return "😔 Мест больше нет"
	case errors.Is(err, model.ErrInvalidTransition):
		return "❌ Действие недоступно для текущего статуса записи"
	case errors.Is(err, model.ErrProcessorDeclined):
		return "❌ Платёжная система отклонила платёж. Попробуйте ещё раз"
	case errors.Is(err, model.ErrUnavailable):
		return "⏳ Сервис временно недоступен. Попробуйте позже"
	default:
		return "❌ Произошла ошибка"
	}
}
