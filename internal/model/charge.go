package model

import "time"

// ChargeShape способ, которым пользователь завершает оплату
type ChargeShape string

const (
	ChargeShapeHosted ChargeShape = "hosted" // редирект на страницу процессора
	ChargeShapeInPage ChargeShape = "inpage" // client secret, оплата на нашей странице
)

// Valid проверяет известен ли способ оплаты
func (s ChargeShape) Valid() bool {
	return s == ChargeShapeHosted || s == ChargeShapeInPage
}

type ChargeStatus string

const (
	ChargeStatusCreated ChargeStatus = "created"
	ChargeStatusPaid    ChargeStatus = "paid"
	ChargeStatusFailed  ChargeStatus = "failed"
)

// ChargeIntent попытка оплаты, привязанная к ключу идемпотентности
type ChargeIntent struct {
	Key          string       `json:"key"` // он же order_id у процессора
	BookingID    int64        `json:"booking_id"`
	MenteeID     int64        `json:"mentee_id"`
	SessionID    int64        `json:"session_id"`
	ProgramID    *int64       `json:"program_id"`
	Amount       int64        `json:"amount"`
	Currency     string       `json:"currency"`
	Status       ChargeStatus `json:"status"`
	RedirectURL  string       `json:"redirect_url"`
	ClientSecret string       `json:"client_secret"`
	ProcessorRef *string      `json:"processor_ref"` // transaction_id процессора
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Handle возвращает то, что нужно клиенту для завершения оплаты
func (c *ChargeIntent) Handle(shape ChargeShape) *ChargeHandle {
	h := &ChargeHandle{
		Key:      c.Key,
		Shape:    shape,
		Amount:   c.Amount,
		Currency: c.Currency,
	}
	switch shape {
	case ChargeShapeInPage:
		h.ClientSecret = c.ClientSecret
	default:
		h.RedirectURL = c.RedirectURL
	}
	return h
}

// ChargeHandle ответ вызывающему: куда отправить пользователя или чем оплатить на странице
type ChargeHandle struct {
	Key          string      `json:"key"`
	Shape        ChargeShape `json:"shape"`
	RedirectURL  string      `json:"redirect_url,omitempty"`
	ClientSecret string      `json:"client_secret,omitempty"`
	Amount       int64       `json:"amount"`
	Currency     string      `json:"currency"`
	Covered      bool        `json:"covered,omitempty"` // уже оплачено в рамках программы
}
