package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/Freeeeeet/mentor_scheduler/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const bookingColumns = `id, session_id, mentee_id, status, notes, attempt, payment_ref, created_at, updated_at`

type BookingRepository struct {
	*base.Repository
}

func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{Repository: base.NewRepository(pool)}
}

func scanBooking(row scanner) (*model.Booking, error) {
	var b model.Booking
	err := row.Scan(
		&b.ID,
		&b.SessionID,
		&b.MenteeID,
		&b.Status,
		&b.Notes,
		&b.Attempt,
		&b.PaymentRef,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func collectBookings(rows pgx.Rows) ([]*model.Booking, error) {
	defer rows.Close()

	var bookings []*model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}

	if err := rows.Err(); err != nil {
		return nil, base.Classify(fmt.Errorf("iterate bookings: %w", err))
	}

	return bookings, nil
}

// Reserve в одной транзакции блокирует сессию, считает активные брони и вставляет pending.
// Параллельные Reserve на одну сессию сериализуются блокировкой строки сессии.
func (r *BookingRepository) Reserve(ctx context.Context, sessionID, menteeID int64, notes string) (*model.Booking, bool, error) {
	var (
		reserved *model.Booking
		existing bool
	)

	err := r.InTx(ctx, func(tx pgx.Tx) error {
		var capacity int
		err := tx.QueryRow(ctx,
			`SELECT capacity FROM sessions WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`,
			sessionID,
		).Scan(&capacity)
		if err != nil {
			return base.Classify(fmt.Errorf("lock session: %w", err))
		}

		// Повторное нажатие: у ученика уже есть активная бронь
		current, err := scanBooking(tx.QueryRow(ctx, `
			SELECT `+bookingColumns+`
			FROM bookings
			WHERE session_id = $1 AND mentee_id = $2 AND status IN ('pending', 'confirmed')
		`, sessionID, menteeID))
		switch {
		case err == nil:
			reserved, existing = current, true
			return nil
		case !errors.Is(err, pgx.ErrNoRows):
			return base.Classify(fmt.Errorf("get active booking: %w", err))
		}

		var active, previous int
		err = tx.QueryRow(ctx, `
			SELECT
				COUNT(*) FILTER (WHERE status IN ('pending', 'confirmed')),
				COUNT(*) FILTER (WHERE mentee_id = $2)
			FROM bookings
			WHERE session_id = $1
		`, sessionID, menteeID).Scan(&active, &previous)
		if err != nil {
			return base.Classify(fmt.Errorf("count bookings: %w", err))
		}

		if active >= capacity {
			return fmt.Errorf("session %d: %w", sessionID, model.ErrCapacityExceeded)
		}

		reserved, err = scanBooking(tx.QueryRow(ctx, `
			INSERT INTO bookings (session_id, mentee_id, status, notes, attempt)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+bookingColumns,
			sessionID, menteeID, model.BookingStatusPending, notes, previous+1,
		))
		if err != nil {
			return base.Classify(fmt.Errorf("insert booking: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return reserved, existing, nil
}

// GetByID получает бронирование по ID
func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	b, err := scanBooking(r.Pool().QueryRow(ctx, query, id))
	if err != nil {
		return nil, base.Classify(fmt.Errorf("get booking by id: %w", err))
	}

	return b, nil
}

// UpdateStatus compare-and-set по текущему статусу
func (r *BookingRepository) UpdateStatus(ctx context.Context, id int64, from, to model.BookingStatus, paymentRef *string) (bool, error) {
	query := `
		UPDATE bookings
		SET status = $3, payment_ref = COALESCE($4, payment_ref), updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	tag, err := r.Pool().Exec(ctx, query, id, from, to, paymentRef)
	if err != nil {
		return false, base.Classify(fmt.Errorf("update booking status: %w", err))
	}

	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// Отличаем "статус уже другой" от "брони нет"
	var exists bool
	err = r.Pool().QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM bookings WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, base.Classify(fmt.Errorf("check booking: %w", err))
	}
	if !exists {
		return false, fmt.Errorf("booking %d: %w", id, model.ErrNotFound)
	}

	return false, nil
}

// ExpirePending отменяет неоплаченные pending брони платных сессий, созданные до cutoff.
// Бронь с payment_ref не трогаем, даже если она старше окна. Бесплатные брони (цена программы
// или сессии равна нулю) платить не нужно, они ждут решения ментора.
func (r *BookingRepository) ExpirePending(ctx context.Context, cutoff time.Time) ([]*model.Booking, error) {
	query := `
		UPDATE bookings b
		SET status = 'cancelled', updated_at = NOW()
		FROM sessions s
		LEFT JOIN programs p ON p.id = s.program_id
		WHERE b.session_id = s.id
			AND b.status = 'pending'
			AND b.payment_ref IS NULL
			AND b.created_at < $1
			AND COALESCE(p.total_price, s.price) > 0
		RETURNING b.id, b.session_id, b.mentee_id, b.status, b.notes, b.attempt, b.payment_ref,
			b.created_at, b.updated_at
	`

	rows, err := r.Pool().Query(ctx, query, cutoff)
	if err != nil {
		return nil, base.Classify(fmt.Errorf("expire pending bookings: %w", err))
	}

	return collectBookings(rows)
}

// ListByMentee брони ученика, новые первыми
func (r *BookingRepository) ListByMentee(ctx context.Context, menteeID int64) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE mentee_id = $1
		ORDER BY id DESC
	`

	rows, err := r.Pool().Query(ctx, query, menteeID)
	if err != nil {
		return nil, base.Classify(fmt.Errorf("get bookings by mentee: %w", err))
	}

	return collectBookings(rows)
}
