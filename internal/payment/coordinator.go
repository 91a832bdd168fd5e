// Package payment решает, брать ли деньги за бронь и сколько, и создаёт
// идемпотентный платёж у процессора.
package payment

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"go.uber.org/zap"
)

// Processor внешний платёжный процессор
type Processor interface {
	// CreateCharge создаёт платёж; req.Key должен уйти в механизм идемпотентности процессора
	CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// ChargeStore хранилище попыток оплаты
type ChargeStore interface {
	GetByKey(ctx context.Context, key string) (*model.ChargeIntent, error)
	Save(ctx context.Context, intent *model.ChargeIntent) (*model.ChargeIntent, error)
	MarkPaid(ctx context.Context, key, processorRef string) (*model.ChargeIntent, error)
	MarkFailed(ctx context.Context, key string) (*model.ChargeIntent, error)
	// FindForProgram действующий (не failed) платёж ученика за программу, оплаченный в приоритете
	FindForProgram(ctx context.Context, menteeID, programID int64) (*model.ChargeIntent, error)
}

// ProgramReader чтение программ для цены пакета
type ProgramReader interface {
	GetByID(ctx context.Context, id int64) (*model.Program, error)
}

// ChargeRequest что отправляем процессору
type ChargeRequest struct {
	Key         string
	Amount      int64
	Currency    string
	Shape       model.ChargeShape
	BookingID   int64
	SessionID   int64
	MenteeID    int64
	ProgramID   *int64
	Description string
}

// ChargeResult ответ процессора: ссылка на hosted checkout и/или client secret
type ChargeResult struct {
	RedirectURL  string
	ClientSecret string
}

// Price итоговая цена брони
type Price struct {
	Amount    int64
	Currency  string
	Free      bool
	ProgramID *int64
}

type Config struct {
	Currency  string // валюта по умолчанию
	MinAmount int64  // минимальная сумма, которую принимает процессор
	// Currencies валюты, которые процессор умеет списывать; пусто - любые
	Currencies []string
}

// maxChargeGenerations сколько раз можно пересоздать платёж после неудачных попыток
const maxChargeGenerations = 10

type Coordinator struct {
	processor Processor
	charges   ChargeStore
	programs  ProgramReader
	cfg       Config
	logger    *zap.Logger
}

func NewCoordinator(processor Processor, charges ChargeStore, programs ProgramReader, cfg Config, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		processor: processor,
		charges:   charges,
		programs:  programs,
		cfg:       cfg,
		logger:    logger,
	}
}

// PriceFor: цена программы, если сессия в программе, иначе цена сессии
func (c *Coordinator) PriceFor(ctx context.Context, session *model.SessionInstance) (Price, error) {
	price := Price{
		Amount:   session.Price,
		Currency: session.Currency,
	}

	if session.ProgramID != nil {
		program, err := c.programs.GetByID(ctx, *session.ProgramID)
		if err != nil {
			return Price{}, fmt.Errorf("get program: %w", err)
		}
		price.Amount = program.TotalPrice
		price.Currency = program.Currency
		price.ProgramID = session.ProgramID
	}

	if price.Currency == "" {
		price.Currency = c.cfg.Currency
	}
	price.Free = price.Amount == 0

	return price, nil
}

// CheckMinimum отклоняет суммы ниже минимума процессора до обращения к нему
func (c *Coordinator) CheckMinimum(price Price) error {
	if price.Free {
		return nil
	}
	if price.Amount < 0 {
		return model.NewValidationError("price", "must not be negative")
	}
	if len(c.cfg.Currencies) > 0 && !slices.Contains(c.cfg.Currencies, price.Currency) {
		return model.NewValidationError("currency", price.Currency+" is not supported by the payment processor")
	}
	if price.Amount < c.cfg.MinAmount {
		return &model.BelowMinimumError{Amount: price.Amount, Floor: c.cfg.MinAmount, Currency: price.Currency}
	}
	return nil
}

// CoveringCharge ищет платёж ученика за программу: оплаченный покрывает бронь сразу,
// созданный, но ещё не оплаченный, переиспользуется вместо нового списания.
func (c *Coordinator) CoveringCharge(ctx context.Context, menteeID int64, price Price) (*model.ChargeIntent, error) {
	if price.ProgramID == nil {
		return nil, nil
	}

	intent, err := c.charges.FindForProgram(ctx, menteeID, *price.ProgramID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find program charge: %w", err)
	}

	return intent, nil
}

// CreateCharge создаёт (или возвращает уже созданный) платёж за бронь.
// Повторный вызов для той же брони не создаёт второй платёж ни у нас, ни у процессора.
func (c *Coordinator) CreateCharge(ctx context.Context, b *model.Booking, session *model.SessionInstance, shape model.ChargeShape) (*model.ChargeHandle, error) {
	if !shape.Valid() {
		return nil, model.NewValidationError("payment_shape", "must be hosted or inpage")
	}

	price, err := c.PriceFor(ctx, session)
	if err != nil {
		return nil, err
	}

	if price.Free {
		return nil, model.NewValidationError("session_id", "session is free, nothing to charge")
	}

	if err := c.CheckMinimum(price); err != nil {
		return nil, err
	}

	key, existing, err := c.resolveKey(ctx, b, price)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		c.logger.Debug("Reusing charge intent",
			zap.String("charge_key", key),
			zap.Int64("booking_id", b.ID),
			zap.String("status", string(existing.Status)),
		)
		return existing.Handle(shape), nil
	}

	req := ChargeRequest{
		Key:         key,
		Amount:      price.Amount,
		Currency:    price.Currency,
		Shape:       shape,
		BookingID:   b.ID,
		SessionID:   session.ID,
		MenteeID:    b.MenteeID,
		ProgramID:   price.ProgramID,
		Description: session.Title,
	}

	result, err := c.processor.CreateCharge(ctx, req)
	if err != nil {
		c.logger.Warn("Processor rejected charge",
			zap.String("charge_key", key),
			zap.Int64("booking_id", b.ID),
			zap.Int64("amount", price.Amount),
			zap.Error(err),
		)
		return nil, fmt.Errorf("create charge: %w", err)
	}

	saved, err := c.charges.Save(ctx, &model.ChargeIntent{
		Key:          key,
		BookingID:    b.ID,
		MenteeID:     b.MenteeID,
		SessionID:    session.ID,
		ProgramID:    price.ProgramID,
		Amount:       price.Amount,
		Currency:     price.Currency,
		Status:       model.ChargeStatusCreated,
		RedirectURL:  result.RedirectURL,
		ClientSecret: result.ClientSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("save charge intent: %w", err)
	}

	c.logger.Info("Charge created",
		zap.String("charge_key", key),
		zap.Int64("booking_id", b.ID),
		zap.Int64("session_id", session.ID),
		zap.Int64("amount", price.Amount),
		zap.String("currency", price.Currency),
		zap.String("shape", string(shape)),
	)

	return saved.Handle(shape), nil
}

// resolveKey находит ключ текущей попытки. Провалившиеся попытки пропускаются,
// чтобы ученик мог оплатить заново.
func (c *Coordinator) resolveKey(ctx context.Context, b *model.Booking, price Price) (string, *model.ChargeIntent, error) {
	for gen := 0; gen < maxChargeGenerations; gen++ {
		key := IdempotencyKey(b.MenteeID, b.SessionID, price.ProgramID, b.Attempt, gen)
		if price.ProgramID != nil {
			key = ProgramChargeKey(b.MenteeID, *price.ProgramID, gen)
		}

		intent, err := c.charges.GetByKey(ctx, key)
		if errors.Is(err, model.ErrNotFound) {
			return key, nil, nil
		}
		if err != nil {
			return "", nil, fmt.Errorf("get charge intent: %w", err)
		}

		if intent.Status != model.ChargeStatusFailed {
			return key, intent, nil
		}
	}

	return "", nil, fmt.Errorf("booking %d: too many failed charge attempts: %w", b.ID, model.ErrConflict)
}

// MarkPaid отмечает платёж успешным; повторные вызовы безопасны
func (c *Coordinator) MarkPaid(ctx context.Context, key, processorRef string) (*model.ChargeIntent, error) {
	intent, err := c.charges.MarkPaid(ctx, key, processorRef)
	if err != nil {
		return nil, fmt.Errorf("mark charge paid: %w", err)
	}
	return intent, nil
}

// MarkFailed отмечает платёж неуспешным, оплаченный не трогает
func (c *Coordinator) MarkFailed(ctx context.Context, key string) (*model.ChargeIntent, error) {
	intent, err := c.charges.MarkFailed(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("mark charge failed: %w", err)
	}
	return intent, nil
}
