package booking

import "github.com/Freeeeeet/mentor_scheduler/internal/model"

// transitions допустимые переходы статусов; cancelled терминальный
var transitions = map[model.BookingStatus][]model.BookingStatus{
	model.BookingStatusPending:   {model.BookingStatusConfirmed, model.BookingStatusCancelled},
	model.BookingStatusConfirmed: {model.BookingStatusCancelled},
}

// CanTransition проверяет достижим ли next из from за один шаг
func CanTransition(from, next model.BookingStatus) bool {
	for _, to := range transitions[from] {
		if to == next {
			return true
		}
	}
	return false
}

// IsTerminal нет ли из статуса исходящих переходов
func IsTerminal(status model.BookingStatus) bool {
	return len(transitions[status]) == 0
}

// Actor инициатор перехода. System - сверка платежей и фоновая очистка.
type Actor struct {
	UserID int64
	System bool
}

// User актор-пользователь (ментор или ученик)
func User(id int64) Actor {
	return Actor{UserID: id}
}

// SystemActor внутренний актор без проверки прав
var SystemActor = Actor{System: true}

// authorize: ментор сессии может подтверждать и отменять, ученик - только отменять свою запись
func authorize(actor Actor, b *model.Booking, session *model.SessionInstance, next model.BookingStatus) error {
	if actor.System {
		return nil
	}
	if actor.UserID == session.MentorID {
		return nil
	}
	if actor.UserID == b.MenteeID && next == model.BookingStatusCancelled {
		return nil
	}
	return model.ErrForbidden
}
