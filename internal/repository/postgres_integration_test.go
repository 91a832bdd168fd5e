//go:build integration

package repository_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/mentor_scheduler/internal/app"
	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/Freeeeeet/mentor_scheduler/internal/repository"
	"github.com/Freeeeeet/mentor_scheduler/migrations"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Запуск: TEST_DB_DSN=postgres://... go test -tags integration ./internal/repository/...

const mentorID int64 = 100

func newPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN is not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	migrator, err := app.NewMigrator(pool, migrations.FS, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = migrator.Close() })
	require.NoError(t, migrator.Run(ctx))

	_, err = pool.Exec(ctx, `TRUNCATE charge_intents, bookings, sessions, programs RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	return pool
}

type sessionOpts struct {
	capacity         int
	price            int64
	programID        *int64
	requiresApproval bool
	startIn          time.Duration
}

func createSession(t *testing.T, pool *pgxpool.Pool, opts sessionOpts) *model.SessionInstance {
	t.Helper()

	if opts.capacity == 0 {
		opts.capacity = 1
	}
	if opts.startIn == 0 {
		opts.startIn = 48 * time.Hour
	}

	start := time.Now().Add(opts.startIn).Truncate(time.Minute)
	inst := &model.SessionInstance{
		MentorID:         mentorID,
		BatchID:          uuid.New(),
		Title:            "System design",
		StartTime:        start,
		EndTime:          start.Add(time.Hour),
		Capacity:         opts.capacity,
		Price:            opts.price,
		Currency:         "IDR",
		ProgramID:        opts.programID,
		RequiresApproval: opts.requiresApproval,
	}

	_, err := repository.NewSessionRepository(pool).CreateBatch(context.Background(), []*model.SessionInstance{inst})
	require.NoError(t, err)
	require.NotZero(t, inst.ID)

	return inst
}

func countActive(t *testing.T, pool *pgxpool.Pool, sessionID int64) int {
	t.Helper()

	var n int
	err := pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM bookings WHERE session_id = $1 AND status IN ('pending', 'confirmed')`,
		sessionID,
	).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestBookingRepository_ReserveConcurrentLastSeats(t *testing.T) {
	pool := newPool(t)
	bookings := repository.NewBookingRepository(pool)

	const capacity = 3
	const contenders = 20
	session := createSession(t, pool, sessionOpts{capacity: capacity, price: 150000})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)

	start := make(chan struct{})
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(mentee int64) {
			defer wg.Done()
			<-start

			_, _, err := bookings.Reserve(context.Background(), session.ID, mentee, "")

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, model.ErrCapacityExceeded):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(1000 + int64(i))
	}
	close(start)
	wg.Wait()

	assert.Equal(t, capacity, succeeded)
	assert.Equal(t, contenders-capacity, rejected)
	assert.Equal(t, capacity, countActive(t, pool, session.ID))
}

func TestBookingRepository_ReserveExistingAndAttempt(t *testing.T) {
	ctx := context.Background()
	pool := newPool(t)
	bookings := repository.NewBookingRepository(pool)
	session := createSession(t, pool, sessionOpts{capacity: 2})

	first, existing, err := bookings.Reserve(ctx, session.ID, 200, "hello")
	require.NoError(t, err)
	assert.False(t, existing)
	assert.Equal(t, model.BookingStatusPending, first.Status)
	assert.Equal(t, 1, first.Attempt)

	again, existing, err := bookings.Reserve(ctx, session.ID, 200, "")
	require.NoError(t, err)
	assert.True(t, existing)
	assert.Equal(t, first.ID, again.ID)

	ok, err := bookings.UpdateStatus(ctx, first.ID, model.BookingStatusPending, model.BookingStatusCancelled, nil)
	require.NoError(t, err)
	require.True(t, ok)

	rebooked, existing, err := bookings.Reserve(ctx, session.ID, 200, "")
	require.NoError(t, err)
	assert.False(t, existing)
	assert.Equal(t, 2, rebooked.Attempt)

	_, _, err = bookings.Reserve(ctx, 999999, 200, "")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestBookingRepository_UpdateStatusCompareAndSet(t *testing.T) {
	ctx := context.Background()
	pool := newPool(t)
	bookings := repository.NewBookingRepository(pool)
	session := createSession(t, pool, sessionOpts{price: 150000})

	b, _, err := bookings.Reserve(ctx, session.ID, 200, "")
	require.NoError(t, err)

	ref := "trx-1"
	ok, err := bookings.UpdateStatus(ctx, b.ID, model.BookingStatusPending, model.BookingStatusConfirmed, &ref)
	require.NoError(t, err)
	assert.True(t, ok)

	// Проигравший CAS: статус уже другой
	ok, err = bookings.UpdateStatus(ctx, b.ID, model.BookingStatusPending, model.BookingStatusCancelled, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := bookings.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusConfirmed, got.Status)
	require.NotNil(t, got.PaymentRef)
	assert.Equal(t, "trx-1", *got.PaymentRef)

	_, err = bookings.UpdateStatus(ctx, 999999, model.BookingStatusPending, model.BookingStatusCancelled, nil)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestBookingRepository_ExpirePendingSkipsFreeAndPaid(t *testing.T) {
	ctx := context.Background()
	pool := newPool(t)
	bookings := repository.NewBookingRepository(pool)
	programs := repository.NewProgramRepository(pool)

	freeProgram := &model.Program{MentorID: mentorID, Title: "Intro calls", TotalPrice: 0, Currency: "IDR"}
	require.NoError(t, programs.Create(ctx, freeProgram))

	priced := createSession(t, pool, sessionOpts{price: 150000, startIn: 24 * time.Hour})
	free := createSession(t, pool, sessionOpts{requiresApproval: true, startIn: 48 * time.Hour})
	inFreeProgram := createSession(t, pool, sessionOpts{price: 150000, programID: &freeProgram.ID, requiresApproval: true, startIn: 72 * time.Hour})
	attached := createSession(t, pool, sessionOpts{price: 150000, requiresApproval: true, startIn: 96 * time.Hour})

	stale, _, err := bookings.Reserve(ctx, priced.ID, 200, "")
	require.NoError(t, err)
	for _, s := range []*model.SessionInstance{free, inFreeProgram} {
		_, _, err := bookings.Reserve(ctx, s.ID, 200, "")
		require.NoError(t, err)
	}

	paidPending, _, err := bookings.Reserve(ctx, attached.ID, 200, "")
	require.NoError(t, err)
	ref := "trx-attached"
	ok, err := bookings.UpdateStatus(ctx, paidPending.ID, model.BookingStatusPending, model.BookingStatusPending, &ref)
	require.NoError(t, err)
	require.True(t, ok)

	expired, err := bookings.ExpirePending(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, stale.ID, expired[0].ID)
	assert.Equal(t, model.BookingStatusCancelled, expired[0].Status)

	assert.Zero(t, countActive(t, pool, priced.ID))
	assert.Equal(t, 1, countActive(t, pool, free.ID))
	assert.Equal(t, 1, countActive(t, pool, inFreeProgram.ID))
	assert.Equal(t, 1, countActive(t, pool, attached.ID))
}

func TestSessionRepository_CreateBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	pool := newPool(t)
	sessions := repository.NewSessionRepository(pool)

	start := time.Now().Add(24 * time.Hour).Truncate(time.Minute)
	batch := uuid.New()
	instance := func(at time.Time) *model.SessionInstance {
		return &model.SessionInstance{
			MentorID:  mentorID,
			BatchID:   batch,
			StartTime: at,
			EndTime:   at.Add(time.Hour),
			Capacity:  1,
			Currency:  "IDR",
		}
	}

	// Две сессии с одинаковым началом нарушают уникальный индекс: не сохраняется ни одна
	_, err := sessions.CreateBatch(ctx, []*model.SessionInstance{
		instance(start),
		instance(start.Add(2 * time.Hour)),
		instance(start),
	})
	require.ErrorIs(t, err, model.ErrConflict)

	listed, err := sessions.ListByMentor(ctx, mentorID)
	require.NoError(t, err)
	assert.Empty(t, listed)

	ids, err := sessions.CreateBatch(ctx, []*model.SessionInstance{instance(start), instance(start.Add(2 * time.Hour))})
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	listed, err = sessions.ListByMentor(ctx, mentorID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.True(t, listed[0].StartTime.Before(listed[1].StartTime))
}

func TestSessionRepository_CapacityAndDeleteGuards(t *testing.T) {
	ctx := context.Background()
	pool := newPool(t)
	sessions := repository.NewSessionRepository(pool)
	bookings := repository.NewBookingRepository(pool)
	session := createSession(t, pool, sessionOpts{capacity: 3})

	b1, _, err := bookings.Reserve(ctx, session.ID, 200, "")
	require.NoError(t, err)
	_, _, err = bookings.Reserve(ctx, session.ID, 201, "")
	require.NoError(t, err)

	_, err = sessions.UpdateCapacity(ctx, session.ID, 1)
	assert.ErrorIs(t, err, model.ErrConflict)

	updated, err := sessions.UpdateCapacity(ctx, session.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Capacity)

	_, _, err = bookings.Reserve(ctx, session.ID, 202, "")
	assert.ErrorIs(t, err, model.ErrCapacityExceeded)

	assert.ErrorIs(t, sessions.Delete(ctx, session.ID), model.ErrConflict)

	_, err = pool.Exec(ctx, `UPDATE bookings SET status = 'cancelled' WHERE session_id = $1`, session.ID)
	require.NoError(t, err)

	require.NoError(t, sessions.Delete(ctx, session.ID))
	_, err = sessions.GetByID(ctx, session.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	// История броней остаётся после мягкого удаления
	got, err := bookings.GetByID(ctx, b1.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCancelled, got.Status)
}

func TestChargeRepository_FindForProgram(t *testing.T) {
	ctx := context.Background()
	pool := newPool(t)
	charges := repository.NewChargeRepository(pool)
	programs := repository.NewProgramRepository(pool)
	bookings := repository.NewBookingRepository(pool)

	program := &model.Program{MentorID: mentorID, Title: "Go in 4 weeks", TotalPrice: 900000, Currency: "IDR"}
	require.NoError(t, programs.Create(ctx, program))
	session := createSession(t, pool, sessionOpts{programID: &program.ID})

	b, _, err := bookings.Reserve(ctx, session.ID, 200, "")
	require.NoError(t, err)

	_, err = charges.FindForProgram(ctx, 200, program.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	intent := func(key string) *model.ChargeIntent {
		return &model.ChargeIntent{
			Key:       key,
			BookingID: b.ID,
			MenteeID:  200,
			SessionID: session.ID,
			ProgramID: &program.ID,
			Amount:    program.TotalPrice,
			Currency:  "IDR",
			Status:    model.ChargeStatusCreated,
		}
	}

	_, err = charges.Save(ctx, intent("gen-0"))
	require.NoError(t, err)
	_, err = charges.MarkFailed(ctx, "gen-0")
	require.NoError(t, err)

	_, err = charges.FindForProgram(ctx, 200, program.ID)
	assert.ErrorIs(t, err, model.ErrNotFound, "failed charge is ignored")

	_, err = charges.Save(ctx, intent("gen-1"))
	require.NoError(t, err)

	found, err := charges.FindForProgram(ctx, 200, program.ID)
	require.NoError(t, err)
	assert.Equal(t, "gen-1", found.Key)
	assert.Equal(t, model.ChargeStatusCreated, found.Status)

	paid, err := charges.MarkPaid(ctx, "gen-1", "trx-1")
	require.NoError(t, err)
	assert.Equal(t, model.ChargeStatusPaid, paid.Status)

	again, err := charges.MarkPaid(ctx, "gen-1", "trx-other")
	require.NoError(t, err)
	assert.Equal(t, "trx-1", *again.ProcessorRef)

	found, err = charges.FindForProgram(ctx, 200, program.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ChargeStatusPaid, found.Status)

	_, err = charges.FindForProgram(ctx, 201, program.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
