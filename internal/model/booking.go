package model

import "time"

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"   // Ожидает оплаты или подтверждения ментора
	BookingStatusConfirmed BookingStatus = "confirmed" // Подтверждено
	BookingStatusCancelled BookingStatus = "cancelled" // Отменено, терминальный статус
)

type Booking struct {
	ID         int64         `json:"id"`
	SessionID  int64         `json:"session_id"`
	MenteeID   int64         `json:"mentee_id"`
	Status     BookingStatus `json:"status"`
	Notes      string        `json:"notes"`
	Attempt    int           `json:"attempt"`     // номер попытки записи ученика на эту сессию
	PaymentRef *string       `json:"payment_ref"` // nil для бесплатных и неоплаченных
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`

	// Дополнительные поля для удобства (не из БД)
	Session *SessionInstance `json:"session,omitempty"`
}

// IsActive занимает ли бронирование место в сессии
func (b *Booking) IsActive() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed
}

// IsPaid есть ли у бронирования успешный платёж
func (b *Booking) IsPaid() bool {
	return b.PaymentRef != nil && *b.PaymentRef != ""
}
