package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/mentor_scheduler/internal/booking"
	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/Freeeeeet/mentor_scheduler/internal/payment"
	"go.uber.org/zap"
)

// BookingResult бронь и, для платных сессий, данные для завершения оплаты
type BookingResult struct {
	Booking  *model.Booking      `json:"booking"`
	Charge   *model.ChargeHandle `json:"charge,omitempty"`
	Existing bool                `json:"existing"` // вернули уже существующую активную бронь
}

// ReconcileOutcome что сделала сверка платежа
type ReconcileOutcome string

const (
	ReconcileConfirmed        ReconcileOutcome = "confirmed"
	ReconcileAwaitingApproval ReconcileOutcome = "awaiting_approval"
	ReconcileNoop             ReconcileOutcome = "noop"
	ReconcileOrphaned         ReconcileOutcome = "orphaned" // оплачено, но бронь уже отменена
)

type BookingService struct {
	sessions   SessionStore
	machine    *booking.Machine
	payments   *payment.Coordinator
	holdWindow time.Duration
	retry      RetryPolicy
	logger     *zap.Logger
}

func NewBookingService(
	sessions SessionStore,
	machine *booking.Machine,
	payments *payment.Coordinator,
	holdWindow time.Duration,
	retry RetryPolicy,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		sessions:   sessions,
		machine:    machine,
		payments:   payments,
		holdWindow: holdWindow,
		retry:      retry,
		logger:     logger,
	}
}

// RequestBooking резервирует место; бесплатная сессия подтверждается сразу,
// для платной создаётся платёж, и бронь ждёт его в pending.
func (s *BookingService) RequestBooking(ctx context.Context, sessionID, menteeID int64, notes string, shape model.ChargeShape) (*BookingResult, error) {
	if shape == "" {
		shape = model.ChargeShapeHosted
	}
	if !shape.Valid() {
		return nil, model.NewValidationError("payment_shape", "must be hosted or inpage")
	}

	session, err := withRetry(ctx, s.retry, func(ctx context.Context) (*model.SessionInstance, error) {
		return s.sessions.GetByID(ctx, sessionID)
	})
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	// Цену и минимум проверяем до резерва, чтобы не занимать место бронью, которую нельзя оплатить
	price, err := withRetry(ctx, s.retry, func(ctx context.Context) (payment.Price, error) {
		return s.payments.PriceFor(ctx, session)
	})
	if err != nil {
		return nil, fmt.Errorf("resolve price: %w", err)
	}
	if err := s.payments.CheckMinimum(price); err != nil {
		return nil, err
	}

	type reserved struct {
		booking  *model.Booking
		existing bool
	}
	r, err := withRetry(ctx, s.retry, func(ctx context.Context) (reserved, error) {
		b, existing, err := s.machine.RequestBooking(ctx, sessionID, menteeID, notes)
		return reserved{booking: b, existing: existing}, err
	})
	if err != nil {
		return nil, err
	}

	result := &BookingResult{Booking: r.booking, Existing: r.existing}
	b := r.booking

	switch {
	case b.Status == model.BookingStatusConfirmed || b.IsPaid():
		return result, nil

	case price.Free:
		if session.RequiresApproval {
			return result, nil
		}
		confirmed, err := s.transition(ctx, b.ID, model.BookingStatusConfirmed, booking.SystemActor, nil)
		if err != nil {
			return result, err
		}
		result.Booking = confirmed
		return result, nil
	}

	covering, err := s.payments.CoveringCharge(ctx, menteeID, price)
	if err != nil {
		return result, err
	}
	switch {
	case covering != nil && covering.Status == model.ChargeStatusPaid:
		ref := chargeRef(covering)
		if err := s.applyPayment(ctx, b, session, ref); err != nil {
			return result, err
		}
		handle := covering.Handle(shape)
		handle.Covered = true
		result.Charge = handle
		result.Booking, err = s.machine.Get(ctx, b.ID)
		return result, err

	case covering != nil:
		// Программа уже выставлена к оплате: та же ссылка, бронь подтвердится вебхуком этого платежа
		s.logger.Info("Reusing program charge",
			zap.Int64("booking_id", b.ID),
			zap.Int64("program_id", *price.ProgramID),
			zap.String("charge_key", covering.Key),
		)
		result.Charge = covering.Handle(shape)
		return result, nil
	}

	handle, err := withRetry(ctx, s.retry, func(ctx context.Context) (*model.ChargeHandle, error) {
		return s.payments.CreateCharge(ctx, b, session, shape)
	})
	if err != nil {
		// Бронь остаётся pending: ученик может повторить оплату
		s.logger.Warn("Charge creation failed, booking left pending",
			zap.Int64("booking_id", b.ID),
			zap.Int64("session_id", sessionID),
			zap.Error(err),
		)
		return result, err
	}
	result.Charge = handle

	return result, nil
}

// Confirm подтверждение ментором. Неоплаченную бронь платной сессии подтвердить нельзя.
func (s *BookingService) Confirm(ctx context.Context, bookingID, actorID int64) (*model.Booking, error) {
	b, err := withRetry(ctx, s.retry, func(ctx context.Context) (*model.Booking, error) {
		return s.machine.Get(ctx, bookingID)
	})
	if err != nil {
		return nil, err
	}

	if b.Session != nil && b.Status == model.BookingStatusPending && !b.IsPaid() {
		price, err := s.payments.PriceFor(ctx, b.Session)
		if err != nil {
			return nil, fmt.Errorf("resolve price: %w", err)
		}
		if !price.Free {
			return b, fmt.Errorf("%w: booking %d awaits payment", model.ErrInvalidTransition, bookingID)
		}
	}

	return s.transition(ctx, bookingID, model.BookingStatusConfirmed, booking.User(actorID), nil)
}

// Cancel отмена ментором или учеником
func (s *BookingService) Cancel(ctx context.Context, bookingID, actorID int64) (*model.Booking, error) {
	b, err := s.transition(ctx, bookingID, model.BookingStatusCancelled, booking.User(actorID), nil)
	if err != nil {
		return b, err
	}

	if b.IsPaid() {
		s.logger.Error("Paid booking cancelled, refund required",
			zap.Bool("reconciliation_alert", true),
			zap.Int64("booking_id", b.ID),
			zap.String("payment_ref", *b.PaymentRef),
			zap.Int64("actor_id", actorID),
		)
	}

	return b, nil
}

// Get актуальное состояние брони для ученика или ментора
func (s *BookingService) Get(ctx context.Context, bookingID, actorID int64) (*model.Booking, error) {
	b, err := withRetry(ctx, s.retry, func(ctx context.Context) (*model.Booking, error) {
		return s.machine.Get(ctx, bookingID)
	})
	if err != nil {
		return nil, err
	}

	if b.MenteeID != actorID && (b.Session == nil || b.Session.MentorID != actorID) {
		return nil, model.ErrForbidden
	}

	return b, nil
}

// ListMenteeBookings брони ученика
func (s *BookingService) ListMenteeBookings(ctx context.Context, menteeID int64) ([]*model.Booking, error) {
	return withRetry(ctx, s.retry, func(ctx context.Context) ([]*model.Booking, error) {
		return s.machine.ListByMentee(ctx, menteeID)
	})
}

// ReconcilePayment вызывается из webhook. Повторная доставка того же уведомления ничего не меняет.
// Платёж за программу подтверждает все ожидающие брони ученика в сессиях этой программы.
func (s *BookingService) ReconcilePayment(ctx context.Context, chargeKey, processorRef string) (ReconcileOutcome, error) {
	intent, err := withRetry(ctx, s.retry, func(ctx context.Context) (*model.ChargeIntent, error) {
		return s.payments.MarkPaid(ctx, chargeKey, processorRef)
	})
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			s.logger.Error("Payment for unknown charge",
				zap.Bool("reconciliation_alert", true),
				zap.String("charge_key", chargeKey),
				zap.String("processor_ref", processorRef),
			)
		}
		return "", err
	}

	ref := chargeRef(intent)

	targets := []int64{intent.BookingID}
	if intent.ProgramID != nil {
		others, err := s.pendingProgramBookings(ctx, intent.MenteeID, *intent.ProgramID, intent.BookingID)
		if err != nil {
			return "", err
		}
		targets = append(targets, others...)
	}

	outcome := ReconcileNoop
	var orphaned *model.Booking
	for _, id := range targets {
		settled, b, err := s.settle(ctx, id, ref)
		if err != nil {
			return "", err
		}

		switch settled {
		case ReconcileConfirmed:
			outcome = ReconcileConfirmed
		case ReconcileAwaitingApproval:
			if outcome != ReconcileConfirmed {
				outcome = ReconcileAwaitingApproval
			}
		case ReconcileOrphaned:
			orphaned = b
		}
	}

	// Деньги не пропали, если ими оплачена хотя бы одна другая бронь программы
	if outcome == ReconcileNoop && orphaned != nil {
		s.alertOrphaned(orphaned, ref)
		return ReconcileOrphaned, nil
	}

	return outcome, nil
}

// settle применяет оплату к одной брони
func (s *BookingService) settle(ctx context.Context, bookingID int64, ref string) (ReconcileOutcome, *model.Booking, error) {
	b, err := withRetry(ctx, s.retry, func(ctx context.Context) (*model.Booking, error) {
		return s.machine.Get(ctx, bookingID)
	})
	if err != nil {
		return "", nil, err
	}

	switch {
	case b.Status == model.BookingStatusConfirmed:
		return ReconcileNoop, b, nil
	case b.Status == model.BookingStatusCancelled:
		return ReconcileOrphaned, b, nil
	case b.IsPaid():
		return ReconcileNoop, b, nil
	}

	if b.Session == nil {
		return "", nil, fmt.Errorf("booking %d: session: %w", b.ID, model.ErrNotFound)
	}

	if err := s.applyPayment(ctx, b, b.Session, ref); err != nil {
		if errors.Is(err, model.ErrInvalidTransition) {
			// Бронь отменили параллельно со сверкой
			return ReconcileOrphaned, b, nil
		}
		return "", nil, err
	}

	if b.Session.RequiresApproval {
		return ReconcileAwaitingApproval, b, nil
	}
	return ReconcileConfirmed, b, nil
}

// pendingProgramBookings неоплаченные pending брони ученика в сессиях программы, кроме skip
func (s *BookingService) pendingProgramBookings(ctx context.Context, menteeID, programID, skip int64) ([]int64, error) {
	bookings, err := s.ListMenteeBookings(ctx, menteeID)
	if err != nil {
		return nil, fmt.Errorf("list mentee bookings: %w", err)
	}

	var ids []int64
	for _, b := range bookings {
		if b.ID == skip || b.Status != model.BookingStatusPending || b.IsPaid() {
			continue
		}

		session, err := withRetry(ctx, s.retry, func(ctx context.Context) (*model.SessionInstance, error) {
			return s.sessions.GetByID(ctx, b.SessionID)
		})
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get session: %w", err)
		}

		if session.ProgramID != nil && *session.ProgramID == programID {
			ids = append(ids, b.ID)
		}
	}

	return ids, nil
}

// FailPayment неудачная или просроченная оплата: бронь остаётся pending, ученик может повторить
func (s *BookingService) FailPayment(ctx context.Context, chargeKey, status string) error {
	intent, err := withRetry(ctx, s.retry, func(ctx context.Context) (*model.ChargeIntent, error) {
		return s.payments.MarkFailed(ctx, chargeKey)
	})
	if err != nil {
		return err
	}

	if intent.Status == model.ChargeStatusPaid {
		s.logger.Error("Failure notification for paid charge",
			zap.Bool("reconciliation_alert", true),
			zap.String("charge_key", chargeKey),
			zap.String("status", status),
		)
		return nil
	}

	s.logger.Info("Charge failed, booking kept pending",
		zap.String("charge_key", chargeKey),
		zap.Int64("booking_id", intent.BookingID),
		zap.String("status", status),
	)
	return nil
}

// ExpireStale отменяет неоплаченные pending брони старше окна удержания
func (s *BookingService) ExpireStale(ctx context.Context) (int, error) {
	expired, err := withRetry(ctx, s.retry, func(ctx context.Context) ([]*model.Booking, error) {
		return s.machine.ExpireStale(ctx, s.holdWindow)
	})
	if err != nil {
		return 0, err
	}
	return len(expired), nil
}

// applyPayment: оплата подтверждает бронь, либо только прикрепляется, если сессия требует одобрения ментора
func (s *BookingService) applyPayment(ctx context.Context, b *model.Booking, session *model.SessionInstance, ref string) error {
	if session.RequiresApproval {
		ok, err := withRetry(ctx, s.retry, func(ctx context.Context) (bool, error) {
			return s.machine.AttachPayment(ctx, b.ID, ref)
		})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: booking %d is no longer pending", model.ErrInvalidTransition, b.ID)
		}
		s.logger.Info("Payment attached, awaiting mentor approval",
			zap.Int64("booking_id", b.ID),
			zap.String("payment_ref", ref),
		)
		return nil
	}

	_, err := s.transition(ctx, b.ID, model.BookingStatusConfirmed, booking.SystemActor, &ref)
	return err
}

func (s *BookingService) transition(ctx context.Context, bookingID int64, next model.BookingStatus, actor booking.Actor, paymentRef *string) (*model.Booking, error) {
	return withRetry(ctx, s.retry, func(ctx context.Context) (*model.Booking, error) {
		return s.machine.Transition(ctx, bookingID, next, actor, paymentRef)
	})
}

func (s *BookingService) alertOrphaned(b *model.Booking, ref string) {
	s.logger.Error("Payment succeeded for cancelled booking, refund required",
		zap.Bool("reconciliation_alert", true),
		zap.Int64("booking_id", b.ID),
		zap.Int64("session_id", b.SessionID),
		zap.Int64("mentee_id", b.MenteeID),
		zap.String("payment_ref", ref),
	)
}

// chargeRef ссылка на платёж для брони: id транзакции процессора, иначе наш ключ
func chargeRef(intent *model.ChargeIntent) string {
	if intent.ProcessorRef != nil && *intent.ProcessorRef != "" {
		return *intent.ProcessorRef
	}
	return intent.Key
}
