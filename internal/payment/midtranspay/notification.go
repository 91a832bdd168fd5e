package midtranspay

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/Freeeeeet/mentor_scheduler/internal/payment"
)

// Notification тело HTTP уведомления Midtrans
type Notification struct {
	TransactionTime   string `json:"transaction_time"`
	TransactionStatus string `json:"transaction_status"` // capture, settlement, pending, deny, cancel, expire, refund, failure
	StatusCode        string `json:"status_code"`
	SignatureKey      string `json:"signature_key"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	PaymentType       string `json:"payment_type"`
	FraudStatus       string `json:"fraud_status"` // accept / challenge / deny
	TransactionID     string `json:"transaction_id"`
}

// Signature SHA512(order_id + status_code + gross_amount + server_key)
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// ParseEvent разбирает уведомление, проверяет подпись и нормализует статус
func (g *Gateway) ParseEvent(body []byte) (*payment.Event, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, model.NewValidationError("body", "invalid notification payload")
	}

	if n.OrderID == "" {
		return nil, model.NewValidationError("order_id", "required")
	}

	want := Signature(n.OrderID, n.StatusCode, n.GrossAmount, g.serverKey)
	got := strings.ToLower(n.SignatureKey)
	if subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return nil, fmt.Errorf("order %s: %w", n.OrderID, payment.ErrInvalidSignature)
	}

	return &payment.Event{
		ChargeKey:    n.OrderID,
		ProcessorRef: n.TransactionID,
		Outcome:      outcome(n.TransactionStatus, n.FraudStatus),
		RawStatus:    n.TransactionStatus,
	}, nil
}

func outcome(status, fraud string) payment.Outcome {
	switch status {
	case "settlement":
		return payment.OutcomePaid
	case "capture":
		// capture с challenge ждёт ручной проверки на стороне Midtrans
		if fraud == "" || fraud == "accept" {
			return payment.OutcomePaid
		}
		if fraud == "deny" {
			return payment.OutcomeFailed
		}
		return payment.OutcomePending
	case "deny", "cancel", "expire", "failure":
		return payment.OutcomeFailed
	default:
		return payment.OutcomePending
	}
}
