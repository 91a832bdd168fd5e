// Package booking отвечает за жизненный цикл бронирования и учёт вместимости сессии.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"go.uber.org/zap"
)

// Store хранилище бронирований. Все проверки вместимости выполняются внутри хранилища атомарно.
type Store interface {
	// Reserve в одной транзакции считает активные брони сессии и вставляет новую pending.
	// Если у ученика уже есть активная бронь на эту сессию, возвращает её и existing=true.
	Reserve(ctx context.Context, sessionID, menteeID int64, notes string) (b *model.Booking, existing bool, err error)
	GetByID(ctx context.Context, id int64) (*model.Booking, error)
	// UpdateStatus compare-and-set: меняет статус только если текущий равен from.
	// paymentRef == nil оставляет текущее значение.
	UpdateStatus(ctx context.Context, id int64, from, to model.BookingStatus, paymentRef *string) (bool, error)
	// ExpirePending отменяет неоплаченные pending брони платных сессий, созданные до cutoff
	ExpirePending(ctx context.Context, cutoff time.Time) ([]*model.Booking, error)
	ListByMentee(ctx context.Context, menteeID int64) ([]*model.Booking, error)
}

// SessionReader чтение сессий для проверки прав и времени
type SessionReader interface {
	GetByID(ctx context.Context, id int64) (*model.SessionInstance, error)
}

const maxTransitionAttempts = 3

type Machine struct {
	store    Store
	sessions SessionReader
	logger   *zap.Logger
	now      func() time.Time
}

func NewMachine(store Store, sessions SessionReader, logger *zap.Logger) *Machine {
	return &Machine{
		store:    store,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock подменяет часы (для тестов)
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

// RequestBooking создаёт pending бронь, если в сессии есть место
func (m *Machine) RequestBooking(ctx context.Context, sessionID, menteeID int64, notes string) (*model.Booking, bool, error) {
	session, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, false, fmt.Errorf("get session: %w", err)
	}

	if session.MentorID == menteeID {
		return nil, false, model.NewValidationError("session_id", "mentor cannot book own session")
	}

	if !session.StartTime.After(m.now()) {
		return nil, false, model.NewValidationError("session_id", "session already started")
	}

	b, existing, err := m.store.Reserve(ctx, sessionID, menteeID, notes)
	if err != nil {
		return nil, false, fmt.Errorf("reserve session: %w", err)
	}

	b.Session = session

	if existing {
		m.logger.Info("Existing active booking returned",
			zap.Int64("booking_id", b.ID),
			zap.Int64("session_id", sessionID),
			zap.Int64("mentee_id", menteeID),
		)
	} else {
		m.logger.Info("Booking requested",
			zap.Int64("booking_id", b.ID),
			zap.Int64("session_id", sessionID),
			zap.Int64("mentee_id", menteeID),
			zap.Int("attempt", b.Attempt),
		)
	}

	return b, existing, nil
}

// Transition переводит бронь в next от имени actor.
// Параллельные переходы упорядочиваются compare-and-set по предыдущему статусу.
func (m *Machine) Transition(ctx context.Context, bookingID int64, next model.BookingStatus, actor Actor, paymentRef *string) (*model.Booking, error) {
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		b, err := m.store.GetByID(ctx, bookingID)
		if err != nil {
			return nil, fmt.Errorf("get booking: %w", err)
		}

		if !CanTransition(b.Status, next) {
			return b, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, b.Status, next)
		}

		session, err := m.sessions.GetByID(ctx, b.SessionID)
		if err != nil {
			return nil, fmt.Errorf("get session: %w", err)
		}

		if err := authorize(actor, b, session, next); err != nil {
			return nil, fmt.Errorf("%s booking %d: %w", next, bookingID, err)
		}

		ok, err := m.store.UpdateStatus(ctx, bookingID, b.Status, next, paymentRef)
		if err != nil {
			return nil, fmt.Errorf("update booking status: %w", err)
		}

		if !ok {
			// Кто-то успел изменить статус, перечитываем и проверяем заново
			m.logger.Debug("Booking status changed concurrently, retrying",
				zap.Int64("booking_id", bookingID),
				zap.String("expected", string(b.Status)),
			)
			continue
		}

		m.logger.Info("Booking status changed",
			zap.Int64("booking_id", bookingID),
			zap.String("from", string(b.Status)),
			zap.String("to", string(next)),
			zap.Int64("actor_id", actor.UserID),
			zap.Bool("system", actor.System),
		)

		b.Status = next
		if paymentRef != nil {
			b.PaymentRef = paymentRef
		}
		b.Session = session

		return b, nil
	}

	return nil, fmt.Errorf("booking %d: %w: concurrent status updates", bookingID, model.ErrConflict)
}

// AttachPayment записывает ссылку на платёж, оставляя бронь pending (ждёт подтверждения ментора)
func (m *Machine) AttachPayment(ctx context.Context, bookingID int64, paymentRef string) (bool, error) {
	ok, err := m.store.UpdateStatus(ctx, bookingID, model.BookingStatusPending, model.BookingStatusPending, &paymentRef)
	if err != nil {
		return false, fmt.Errorf("attach payment: %w", err)
	}
	return ok, nil
}

// Get возвращает актуальное состояние брони вместе с сессией
func (m *Machine) Get(ctx context.Context, bookingID int64) (*model.Booking, error) {
	b, err := m.store.GetByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}

	session, err := m.sessions.GetByID(ctx, b.SessionID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("get session: %w", err)
	}
	b.Session = session

	return b, nil
}

// ListByMentee брони ученика
func (m *Machine) ListByMentee(ctx context.Context, menteeID int64) ([]*model.Booking, error) {
	return m.store.ListByMentee(ctx, menteeID)
}

// ExpireStale отменяет неоплаченные pending брони платных сессий, висящие дольше holdWindow
func (m *Machine) ExpireStale(ctx context.Context, holdWindow time.Duration) ([]*model.Booking, error) {
	cutoff := m.now().Add(-holdWindow)

	expired, err := m.store.ExpirePending(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("expire pending bookings: %w", err)
	}

	for _, b := range expired {
		m.logger.Info("Booking expired after hold window",
			zap.Int64("booking_id", b.ID),
			zap.Int64("session_id", b.SessionID),
			zap.Int64("mentee_id", b.MenteeID),
			zap.Duration("hold_window", holdWindow),
		)
	}

	return expired, nil
}
