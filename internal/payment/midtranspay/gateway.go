// Package midtranspay платёжный процессор на Midtrans Snap.
// Snap отдаёт и redirect_url (hosted checkout), и token для snap.js (оплата на странице),
// поэтому обе формы платежа идут через один вызов.
package midtranspay

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/Freeeeeet/mentor_scheduler/internal/payment"
	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"go.uber.org/zap"
)

// Currency единственная валюта, которую списывает Snap. Суммы в целых рупиях.
const Currency = "IDR"

type Gateway struct {
	serverKey string
	env       midtrans.EnvironmentType
	logger    *zap.Logger
}

func NewGateway(serverKey string, production bool, logger *zap.Logger) *Gateway {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}

	return &Gateway{
		serverKey: serverKey,
		env:       env,
		logger:    logger,
	}
}

// Currencies валюты, которые шлюз может списать
func (g *Gateway) Currencies() []string {
	return []string{Currency}
}

// CreateCharge создаёт Snap транзакцию. Ключ идемпотентности используется как order_id
// и передаётся в заголовке Idempotency-Key.
func (g *Gateway) CreateCharge(ctx context.Context, req payment.ChargeRequest) (*payment.ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// В запросе Snap нет поля валюты: сумма в другой валюте ушла бы как рупии
	if !strings.EqualFold(req.Currency, Currency) {
		return nil, model.NewValidationError("currency", req.Currency+" is not supported by midtrans, only "+Currency)
	}

	// Клиент на запрос: Options с ключом идемпотентности не должны делиться между горутинами
	var client snap.Client
	client.New(g.serverKey, g.env)
	client.Options.SetPaymentIdempotencyKey(req.Key)

	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.Key,
			GrossAmt: req.Amount,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    "session-" + strconv.FormatInt(req.SessionID, 10),
				Name:  itemName(req),
				Price: req.Amount,
				Qty:   1,
			},
		},
		CustomField1: strconv.FormatInt(req.SessionID, 10),
		CustomField2: strconv.FormatInt(req.MenteeID, 10),
		CustomField3: strconv.FormatInt(req.BookingID, 10),
	}

	resp, merr := client.CreateTransaction(snapReq)
	if merr != nil {
		g.logger.Warn("Midtrans create transaction failed",
			zap.String("order_id", req.Key),
			zap.Int("status_code", merr.StatusCode),
			zap.String("message", merr.Message),
		)
		return nil, classify(merr.StatusCode, merr.Message)
	}

	return &payment.ChargeResult{
		RedirectURL:  resp.RedirectURL,
		ClientSecret: resp.Token,
	}, nil
}

func itemName(req payment.ChargeRequest) string {
	name := req.Description
	if name == "" {
		name = "Mentoring session"
	}
	if req.ProgramID != nil {
		name = "Program: " + name
	}
	// Midtrans режет name до 50 символов
	if len(name) > 50 {
		name = name[:50]
	}
	return name
}

// classify переводит HTTP статус процессора в таксономию ошибок
func classify(status int, message string) error {
	switch {
	case status == 0 || status >= http.StatusInternalServerError || status == http.StatusTooManyRequests:
		return fmt.Errorf("midtrans: %s: %w", message, model.ErrUnavailable)
	case status == http.StatusConflict:
		return fmt.Errorf("midtrans: %s: %w", message, model.ErrConflict)
	default:
		return fmt.Errorf("midtrans: %s: %w", message, model.ErrProcessorDeclined)
	}
}
