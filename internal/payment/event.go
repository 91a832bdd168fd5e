package payment

import "errors"

// ErrInvalidSignature подпись уведомления процессора не сошлась
var ErrInvalidSignature = errors.New("invalid notification signature")

// Outcome итог платежа из уведомления процессора
type Outcome string

const (
	OutcomePaid    Outcome = "paid"
	OutcomeFailed  Outcome = "failed"
	OutcomePending Outcome = "pending"
)

// Event нормализованное уведомление процессора (webhook)
type Event struct {
	ChargeKey    string // наш ключ идемпотентности (order_id)
	ProcessorRef string // идентификатор транзакции у процессора
	Outcome      Outcome
	RawStatus    string
}
