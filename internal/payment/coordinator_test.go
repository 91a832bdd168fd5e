package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/Freeeeeet/mentor_scheduler/internal/repository/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type processorMock struct {
	mock.Mock
}

func (p *processorMock) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	args := p.Called(ctx, req)
	res, _ := args.Get(0).(*ChargeResult)
	return res, args.Error(1)
}

type fixture struct {
	db          *memstore.DB
	processor   *processorMock
	coordinator *Coordinator
}

func newFixture() *fixture {
	db := memstore.New()
	processor := &processorMock{}
	return &fixture{
		db:        db,
		processor: processor,
		coordinator: NewCoordinator(processor, db.Charges(), db.Programs(),
			Config{Currency: "USD", MinAmount: 50}, zap.NewNop()),
	}
}

func paidSession(price int64) *model.SessionInstance {
	return &model.SessionInstance{ID: 7, MentorID: 1, Title: "Mock interview", Price: price, Currency: "USD"}
}

func pendingBooking() *model.Booking {
	return &model.Booking{ID: 3, SessionID: 7, MenteeID: 2, Status: model.BookingStatusPending, Attempt: 1}
}

func TestIdempotencyKey(t *testing.T) {
	programID := int64(9)

	key := IdempotencyKey(2, 7, nil, 1, 0)
	assert.Equal(t, key, IdempotencyKey(2, 7, nil, 1, 0), "same inputs give the same key")
	assert.Len(t, key, 36)

	others := []string{
		IdempotencyKey(3, 7, nil, 1, 0),
		IdempotencyKey(2, 8, nil, 1, 0),
		IdempotencyKey(2, 7, &programID, 1, 0),
		IdempotencyKey(2, 7, nil, 2, 0),
		IdempotencyKey(2, 7, nil, 1, 1),
	}
	for _, other := range others {
		assert.NotEqual(t, key, other)
	}

	program := ProgramChargeKey(2, programID, 0)
	assert.Equal(t, program, ProgramChargeKey(2, programID, 0))
	assert.NotEqual(t, program, ProgramChargeKey(3, programID, 0))
	assert.NotEqual(t, program, ProgramChargeKey(2, programID, 1))
	assert.NotEqual(t, program, IdempotencyKey(2, 7, &programID, 1, 0))
}

func TestPriceFor(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	program := &model.Program{MentorID: 1, Title: "Go in 4 weeks", TotalPrice: 40000, Currency: "EUR"}
	require.NoError(t, f.db.Programs().Create(ctx, program))

	t.Run("session price", func(t *testing.T) {
		price, err := f.coordinator.PriceFor(ctx, paidSession(1500))
		require.NoError(t, err)
		assert.Equal(t, Price{Amount: 1500, Currency: "USD"}, price)
	})

	t.Run("free", func(t *testing.T) {
		price, err := f.coordinator.PriceFor(ctx, &model.SessionInstance{})
		require.NoError(t, err)
		assert.True(t, price.Free)
		assert.Equal(t, "USD", price.Currency)
	})

	t.Run("program overrides session price", func(t *testing.T) {
		session := paidSession(1500)
		session.ProgramID = &program.ID

		price, err := f.coordinator.PriceFor(ctx, session)
		require.NoError(t, err)
		assert.Equal(t, int64(40000), price.Amount)
		assert.Equal(t, "EUR", price.Currency)
		assert.Equal(t, &program.ID, price.ProgramID)
	})

	t.Run("missing program", func(t *testing.T) {
		missing := int64(404)
		session := paidSession(1500)
		session.ProgramID = &missing

		_, err := f.coordinator.PriceFor(ctx, session)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func TestCheckMinimum(t *testing.T) {
	c := newFixture().coordinator

	assert.NoError(t, c.CheckMinimum(Price{Free: true}))
	assert.NoError(t, c.CheckMinimum(Price{Amount: 50, Currency: "USD"}))

	err := c.CheckMinimum(Price{Amount: 49, Currency: "USD"})
	require.ErrorIs(t, err, model.ErrBelowMinimum)

	var below *model.BelowMinimumError
	require.True(t, errors.As(err, &below))
	assert.Equal(t, int64(50), below.Floor)
	assert.Equal(t, int64(49), below.Amount)
}

func TestCreateCharge_ReusesIntent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	f.processor.On("CreateCharge", mock.Anything, mock.MatchedBy(func(req ChargeRequest) bool {
		return req.Amount == 1500 && req.Currency == "USD" && req.BookingID == 3 && req.Description == "Mock interview"
	})).Return(&ChargeResult{RedirectURL: "https://pay.example/r/1", ClientSecret: "tok_1"}, nil).Once()

	hosted, err := f.coordinator.CreateCharge(ctx, pendingBooking(), paidSession(1500), model.ChargeShapeHosted)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/r/1", hosted.RedirectURL)
	assert.Empty(t, hosted.ClientSecret)
	assert.Equal(t, IdempotencyKey(2, 7, nil, 1, 0), hosted.Key)

	inpage, err := f.coordinator.CreateCharge(ctx, pendingBooking(), paidSession(1500), model.ChargeShapeInPage)
	require.NoError(t, err)
	assert.Equal(t, hosted.Key, inpage.Key)
	assert.Equal(t, "tok_1", inpage.ClientSecret)

	f.processor.AssertNumberOfCalls(t, "CreateCharge", 1)
}

func TestCreateCharge_RetrySendsSameKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	var keys []string
	f.processor.On("CreateCharge", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { keys = append(keys, args.Get(1).(ChargeRequest).Key) }).
		Return(nil, model.ErrUnavailable).Once()
	f.processor.On("CreateCharge", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { keys = append(keys, args.Get(1).(ChargeRequest).Key) }).
		Return(&ChargeResult{RedirectURL: "https://pay.example/r/2"}, nil).Once()

	_, err := f.coordinator.CreateCharge(ctx, pendingBooking(), paidSession(1500), model.ChargeShapeHosted)
	require.ErrorIs(t, err, model.ErrUnavailable)

	_, err = f.coordinator.CreateCharge(ctx, pendingBooking(), paidSession(1500), model.ChargeShapeHosted)
	require.NoError(t, err)

	require.Len(t, keys, 2)
	assert.Equal(t, keys[0], keys[1])
}

func TestCreateCharge_NewKeyAfterFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	f.processor.On("CreateCharge", mock.Anything, mock.Anything).
		Return(&ChargeResult{RedirectURL: "https://pay.example/r"}, nil)

	first, err := f.coordinator.CreateCharge(ctx, pendingBooking(), paidSession(1500), model.ChargeShapeHosted)
	require.NoError(t, err)

	failed, err := f.coordinator.MarkFailed(ctx, first.Key)
	require.NoError(t, err)
	assert.Equal(t, model.ChargeStatusFailed, failed.Status)

	second, err := f.coordinator.CreateCharge(ctx, pendingBooking(), paidSession(1500), model.ChargeShapeHosted)
	require.NoError(t, err)
	assert.NotEqual(t, first.Key, second.Key)
	assert.Equal(t, IdempotencyKey(2, 7, nil, 1, 1), second.Key)
}

func TestCreateCharge_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.coordinator.CreateCharge(ctx, pendingBooking(), paidSession(0), model.ChargeShapeHosted)
	assert.ErrorIs(t, err, model.ErrValidation, "free session")

	_, err = f.coordinator.CreateCharge(ctx, pendingBooking(), paidSession(10), model.ChargeShapeHosted)
	assert.ErrorIs(t, err, model.ErrBelowMinimum)

	_, err = f.coordinator.CreateCharge(ctx, pendingBooking(), paidSession(1500), model.ChargeShape("crypto"))
	assert.ErrorIs(t, err, model.ErrValidation)

	f.processor.On("CreateCharge", mock.Anything, mock.Anything).Return(nil, model.ErrProcessorDeclined).Once()
	_, err = f.coordinator.CreateCharge(ctx, pendingBooking(), paidSession(1500), model.ChargeShapeHosted)
	assert.ErrorIs(t, err, model.ErrProcessorDeclined)

	f.processor.AssertNumberOfCalls(t, "CreateCharge", 1)
}

func TestMarkPaid_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	f.processor.On("CreateCharge", mock.Anything, mock.Anything).
		Return(&ChargeResult{RedirectURL: "https://pay.example/r"}, nil)

	handle, err := f.coordinator.CreateCharge(ctx, pendingBooking(), paidSession(1500), model.ChargeShapeHosted)
	require.NoError(t, err)

	paid, err := f.coordinator.MarkPaid(ctx, handle.Key, "trx-1")
	require.NoError(t, err)
	assert.Equal(t, model.ChargeStatusPaid, paid.Status)

	again, err := f.coordinator.MarkPaid(ctx, handle.Key, "trx-other")
	require.NoError(t, err)
	require.NotNil(t, again.ProcessorRef)
	assert.Equal(t, "trx-1", *again.ProcessorRef, "first reference wins")

	// Неудача после оплаты ничего не меняет
	after, err := f.coordinator.MarkFailed(ctx, handle.Key)
	require.NoError(t, err)
	assert.Equal(t, model.ChargeStatusPaid, after.Status)

	_, err = f.coordinator.MarkPaid(ctx, "unknown", "trx")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCoveringCharge(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	program := &model.Program{MentorID: 1, Title: "Go in 4 weeks", TotalPrice: 40000, Currency: "USD"}
	require.NoError(t, f.db.Programs().Create(ctx, program))

	session := paidSession(0)
	session.ProgramID = &program.ID
	price, err := f.coordinator.PriceFor(ctx, session)
	require.NoError(t, err)

	covering, err := f.coordinator.CoveringCharge(ctx, 2, price)
	require.NoError(t, err)
	assert.Nil(t, covering)

	f.processor.On("CreateCharge", mock.Anything, mock.Anything).
		Return(&ChargeResult{RedirectURL: "https://pay.example/r"}, nil)
	handle, err := f.coordinator.CreateCharge(ctx, pendingBooking(), session, model.ChargeShapeHosted)
	require.NoError(t, err)
	assert.Equal(t, ProgramChargeKey(2, program.ID, 0), handle.Key)

	// Ещё не оплачен, но уже выставлен: переиспользуется
	covering, err = f.coordinator.CoveringCharge(ctx, 2, price)
	require.NoError(t, err)
	require.NotNil(t, covering)
	assert.Equal(t, handle.Key, covering.Key)
	assert.Equal(t, model.ChargeStatusCreated, covering.Status)

	_, err = f.coordinator.MarkPaid(ctx, handle.Key, "trx-program")
	require.NoError(t, err)

	covering, err = f.coordinator.CoveringCharge(ctx, 2, price)
	require.NoError(t, err)
	require.NotNil(t, covering)
	assert.Equal(t, handle.Key, covering.Key)
	assert.Equal(t, model.ChargeStatusPaid, covering.Status)

	covering, err = f.coordinator.CoveringCharge(ctx, 99, price)
	require.NoError(t, err)
	assert.Nil(t, covering, "other mentee is not covered")

	covering, err = f.coordinator.CoveringCharge(ctx, 2, Price{Amount: 1500})
	require.NoError(t, err)
	assert.Nil(t, covering, "session outside a program")
}

func TestCoveringCharge_FailedProgramChargeIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	program := &model.Program{MentorID: 1, Title: "Go in 4 weeks", TotalPrice: 40000, Currency: "USD"}
	require.NoError(t, f.db.Programs().Create(ctx, program))

	session := paidSession(0)
	session.ProgramID = &program.ID
	price, err := f.coordinator.PriceFor(ctx, session)
	require.NoError(t, err)

	f.processor.On("CreateCharge", mock.Anything, mock.Anything).
		Return(&ChargeResult{RedirectURL: "https://pay.example/r"}, nil)
	first, err := f.coordinator.CreateCharge(ctx, pendingBooking(), session, model.ChargeShapeHosted)
	require.NoError(t, err)
	_, err = f.coordinator.MarkFailed(ctx, first.Key)
	require.NoError(t, err)

	covering, err := f.coordinator.CoveringCharge(ctx, 2, price)
	require.NoError(t, err)
	assert.Nil(t, covering)

	// Другая сессия той же программы получает следующее поколение ключа программы
	other := pendingBooking()
	other.ID, other.SessionID = 4, 8
	second, err := f.coordinator.CreateCharge(ctx, other, session, model.ChargeShapeHosted)
	require.NoError(t, err)
	assert.Equal(t, ProgramChargeKey(2, program.ID, 1), second.Key)
}

func TestCheckMinimum_UnsupportedCurrency(t *testing.T) {
	c := NewCoordinator(&processorMock{}, memstore.New().Charges(), memstore.New().Programs(),
		Config{Currency: "IDR", MinAmount: 1000, Currencies: []string{"IDR"}}, zap.NewNop())

	assert.NoError(t, c.CheckMinimum(Price{Amount: 150000, Currency: "IDR"}))
	assert.NoError(t, c.CheckMinimum(Price{Free: true, Currency: "USD"}), "free sessions never reach the processor")

	err := c.CheckMinimum(Price{Amount: 1200, Currency: "USD"})
	require.ErrorIs(t, err, model.ErrValidation)

	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "currency", verr.Field)
}
