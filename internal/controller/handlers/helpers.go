package handlers

import (
	"fmt"
	"strings"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
)

const timeLayout = "02.01.2006 15:04 MST"

// Валюты без дробной части в минимальных единицах
var zeroDecimalCurrencies = map[string]bool{
	"IDR": true,
	"JPY": true,
	"KRW": true,
	"VND": true,
}

// BookingStatusDisplay содержит emoji и текст для отображения статуса
type BookingStatusDisplay struct {
	Emoji string
	Text  string
}

// GetBookingStatusDisplay возвращает emoji и текст для статуса бронирования
func GetBookingStatusDisplay(b *model.Booking) BookingStatusDisplay {
	switch b.Status {
	case model.BookingStatusConfirmed:
		return BookingStatusDisplay{Emoji: "✅", Text: "Подтверждено"}
	case model.BookingStatusCancelled:
		return BookingStatusDisplay{Emoji: "❌", Text: "Отменено"}
	case model.BookingStatusPending:
		if b.IsPaid() {
			return BookingStatusDisplay{Emoji: "⏳", Text: "Оплачено, ждёт подтверждения ментора"}
		}
		return BookingStatusDisplay{Emoji: "⏳", Text: "Ожидает оплаты или подтверждения"}
	default:
		return BookingStatusDisplay{Emoji: "❓", Text: string(b.Status)}
	}
}

// FormatAmount форматирует сумму из минимальных единиц валюты
func FormatAmount(amount int64, currency string) string {
	currency = strings.ToUpper(currency)
	if amount == 0 {
		return "бесплатно"
	}
	if zeroDecimalCurrencies[currency] {
		return fmt.Sprintf("%d %s", amount, currency)
	}
	return fmt.Sprintf("%d.%02d %s", amount/100, amount%100, currency)
}

// FormatSession одна строка списка сессий
func FormatSession(s *model.SessionInstance) string {
	title := s.Title
	if title == "" {
		title = "Занятие"
	}

	line := fmt.Sprintf("#%d %s\n   🕐 %s - %s\n   👥 мест: %d, 💰 %s",
		s.ID,
		title,
		s.StartTime.UTC().Format(timeLayout),
		s.EndTime.UTC().Format("15:04"),
		s.Capacity,
		FormatAmount(s.Price, s.Currency),
	)
	if s.InProgram() {
		line += fmt.Sprintf(" (программа #%d)", *s.ProgramID)
	}
	if s.RequiresApproval {
		line += "\n   🔐 запись после подтверждения ментора"
	}
	return line
}

// FormatBooking форматирует бронирование для отображения
func FormatBooking(b *model.Booking) string {
	display := GetBookingStatusDisplay(b)

	text := fmt.Sprintf(
		"%s Запись #%d\n\n"+
			"📊 Статус: %s\n"+
			"📅 Создана: %s",
		display.Emoji,
		b.ID,
		display.Text,
		b.CreatedAt.UTC().Format(timeLayout),
	)

	if b.Session != nil {
		text += "\n🎓 " + FormatSession(b.Session)
	}

	return text
}

// PluralizeSessions возвращает правильное склонение слова "занятие"
func PluralizeSessions(count int) string {
	if count%10 == 1 && count%100 != 11 {
		return "занятие"
	}
	if count%10 >= 2 && count%10 <= 4 && (count%100 < 10 || count%100 >= 20) {
		return "занятия"
	}
	return "занятий"
}
