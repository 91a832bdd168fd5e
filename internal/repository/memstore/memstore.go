// Package memstore хранилище в памяти с теми же гарантиями, что и Postgres:
// один мьютекс играет роль сериализуемой транзакции.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
)

// DB общее состояние всех таблиц
type DB struct {
	mu sync.Mutex

	sessions map[int64]*model.SessionInstance
	bookings map[int64]*model.Booking
	programs map[int64]*model.Program
	charges  map[string]*model.ChargeIntent

	nextSessionID int64
	nextBookingID int64
	nextProgramID int64

	now func() time.Time
}

// New создаёт пустое хранилище
func New() *DB {
	return &DB{
		sessions: make(map[int64]*model.SessionInstance),
		bookings: make(map[int64]*model.Booking),
		programs: make(map[int64]*model.Program),
		charges:  make(map[string]*model.ChargeIntent),
		now:      time.Now,
	}
}

// WithClock подменяет часы, которыми проставляются created_at/updated_at
func (db *DB) WithClock(now func() time.Time) *DB {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.now = now
	return db
}

func (db *DB) Sessions() *SessionStore { return &SessionStore{db: db} }
func (db *DB) Bookings() *BookingStore { return &BookingStore{db: db} }
func (db *DB) Programs() *ProgramStore { return &ProgramStore{db: db} }
func (db *DB) Charges() *ChargeStore   { return &ChargeStore{db: db} }

// priced true, если за бронь сессии нужно платить (цена программы или сессии больше нуля).
// Вызывать под мьютексом.
func (db *DB) priced(sessionID int64) bool {
	inst, ok := db.sessions[sessionID]
	if !ok {
		return true
	}
	if inst.ProgramID != nil {
		if p, ok := db.programs[*inst.ProgramID]; ok {
			return p.TotalPrice > 0
		}
	}
	return inst.Price > 0
}

// activeCount количество pending/confirmed броней сессии. Вызывать под мьютексом.
func (db *DB) activeCount(sessionID int64) int {
	count := 0
	for _, b := range db.bookings {
		if b.SessionID == sessionID && b.IsActive() {
			count++
		}
	}
	return count
}

// SessionStore сессии
type SessionStore struct {
	db *DB
}

func (s *SessionStore) CreateBatch(ctx context.Context, instances []*model.SessionInstance) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	// Сначала проверяем всю пачку, потом пишем: либо все, либо ничего
	seen := make(map[[2]int64]struct{}, len(instances))
	for _, inst := range instances {
		key := [2]int64{inst.MentorID, inst.StartTime.UnixNano()}
		if _, dup := seen[key]; dup {
			return nil, model.ErrConflict
		}
		seen[key] = struct{}{}

		for _, existing := range s.db.sessions {
			if existing.DeletedAt == nil && existing.MentorID == inst.MentorID && existing.StartTime.Equal(inst.StartTime) {
				return nil, model.ErrConflict
			}
		}
	}

	now := s.db.now()
	ids := make([]int64, 0, len(instances))
	for _, inst := range instances {
		s.db.nextSessionID++
		inst.ID = s.db.nextSessionID
		inst.CreatedAt = now

		stored := *inst
		s.db.sessions[inst.ID] = &stored
		ids = append(ids, inst.ID)
	}

	return ids, nil
}

func (s *SessionStore) GetByID(ctx context.Context, id int64) (*model.SessionInstance, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	inst, ok := s.db.sessions[id]
	if !ok || inst.DeletedAt != nil {
		return nil, model.ErrNotFound
	}

	out := *inst
	return &out, nil
}

func (s *SessionStore) ListByMentor(ctx context.Context, mentorID int64) ([]*model.SessionInstance, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var out []*model.SessionInstance
	for _, inst := range s.db.sessions {
		if inst.MentorID == mentorID && inst.DeletedAt == nil {
			cp := *inst
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})

	return out, nil
}

func (s *SessionStore) UpdateCapacity(ctx context.Context, id int64, capacity int) (*model.SessionInstance, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	inst, ok := s.db.sessions[id]
	if !ok || inst.DeletedAt != nil {
		return nil, model.ErrNotFound
	}

	if capacity < s.db.activeCount(id) {
		return nil, model.ErrConflict
	}

	inst.Capacity = capacity
	out := *inst
	return &out, nil
}

func (s *SessionStore) Delete(ctx context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	inst, ok := s.db.sessions[id]
	if !ok || inst.DeletedAt != nil {
		return model.ErrNotFound
	}

	if s.db.activeCount(id) > 0 {
		return model.ErrConflict
	}

	now := s.db.now()
	inst.DeletedAt = &now
	return nil
}

// BookingStore бронирования
type BookingStore struct {
	db *DB
}

func (s *BookingStore) Reserve(ctx context.Context, sessionID, menteeID int64, notes string) (*model.Booking, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	inst, ok := s.db.sessions[sessionID]
	if !ok || inst.DeletedAt != nil {
		return nil, false, model.ErrNotFound
	}

	active := 0
	attempts := 0
	for _, b := range s.db.bookings {
		if b.SessionID != sessionID {
			continue
		}
		if b.MenteeID == menteeID {
			if b.IsActive() {
				cp := *b
				return &cp, true, nil
			}
			attempts++
		}
		if b.IsActive() {
			active++
		}
	}

	if active >= inst.Capacity {
		return nil, false, model.ErrCapacityExceeded
	}

	now := s.db.now()
	s.db.nextBookingID++
	b := &model.Booking{
		ID:        s.db.nextBookingID,
		SessionID: sessionID,
		MenteeID:  menteeID,
		Status:    model.BookingStatusPending,
		Notes:     notes,
		Attempt:   attempts + 1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.db.bookings[b.ID] = b

	out := *b
	return &out, false, nil
}

func (s *BookingStore) GetByID(ctx context.Context, id int64) (*model.Booking, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	b, ok := s.db.bookings[id]
	if !ok {
		return nil, model.ErrNotFound
	}

	out := *b
	return &out, nil
}

func (s *BookingStore) UpdateStatus(ctx context.Context, id int64, from, to model.BookingStatus, paymentRef *string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	b, ok := s.db.bookings[id]
	if !ok {
		return false, model.ErrNotFound
	}

	if b.Status != from {
		return false, nil
	}

	b.Status = to
	if paymentRef != nil {
		ref := *paymentRef
		b.PaymentRef = &ref
	}
	b.UpdatedAt = s.db.now()

	return true, nil
}

func (s *BookingStore) ExpirePending(ctx context.Context, cutoff time.Time) ([]*model.Booking, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	now := s.db.now()
	var expired []*model.Booking
	for _, b := range s.db.bookings {
		if b.Status == model.BookingStatusPending && b.PaymentRef == nil && b.CreatedAt.Before(cutoff) && s.db.priced(b.SessionID) {
			b.Status = model.BookingStatusCancelled
			b.UpdatedAt = now
			cp := *b
			expired = append(expired, &cp)
		}
	}

	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	return expired, nil
}

func (s *BookingStore) ListByMentee(ctx context.Context, menteeID int64) ([]*model.Booking, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var out []*model.Booking
	for _, b := range s.db.bookings {
		if b.MenteeID == menteeID {
			cp := *b
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// CountActive количество активных броней сессии
func (s *BookingStore) CountActive(ctx context.Context, sessionID int64) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.activeCount(sessionID), nil
}

// ProgramStore программы
type ProgramStore struct {
	db *DB
}

func (s *ProgramStore) Create(ctx context.Context, p *model.Program) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	s.db.nextProgramID++
	p.ID = s.db.nextProgramID
	p.CreatedAt = s.db.now()

	stored := *p
	s.db.programs[p.ID] = &stored
	return nil
}

func (s *ProgramStore) GetByID(ctx context.Context, id int64) (*model.Program, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	p, ok := s.db.programs[id]
	if !ok {
		return nil, model.ErrNotFound
	}

	out := *p
	return &out, nil
}

// ChargeStore попытки оплаты
type ChargeStore struct {
	db *DB
}

func (s *ChargeStore) GetByKey(ctx context.Context, key string) (*model.ChargeIntent, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	c, ok := s.db.charges[key]
	if !ok {
		return nil, model.ErrNotFound
	}

	out := *c
	return &out, nil
}

// Save вставляет intent; если ключ уже есть, возвращает сохранённый (первый выигрывает)
func (s *ChargeStore) Save(ctx context.Context, intent *model.ChargeIntent) (*model.ChargeIntent, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if existing, ok := s.db.charges[intent.Key]; ok {
		out := *existing
		return &out, nil
	}

	now := s.db.now()
	stored := *intent
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.db.charges[intent.Key] = &stored

	out := stored
	return &out, nil
}

func (s *ChargeStore) MarkPaid(ctx context.Context, key, processorRef string) (*model.ChargeIntent, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	c, ok := s.db.charges[key]
	if !ok {
		return nil, model.ErrNotFound
	}

	if c.Status != model.ChargeStatusPaid {
		ref := processorRef
		c.Status = model.ChargeStatusPaid
		c.ProcessorRef = &ref
		c.UpdatedAt = s.db.now()
	}

	out := *c
	return &out, nil
}

func (s *ChargeStore) MarkFailed(ctx context.Context, key string) (*model.ChargeIntent, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	c, ok := s.db.charges[key]
	if !ok {
		return nil, model.ErrNotFound
	}

	if c.Status == model.ChargeStatusCreated {
		c.Status = model.ChargeStatusFailed
		c.UpdatedAt = s.db.now()
	}

	out := *c
	return &out, nil
}

func (s *ChargeStore) FindForProgram(ctx context.Context, menteeID, programID int64) (*model.ChargeIntent, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var found *model.ChargeIntent
	for _, c := range s.db.charges {
		if c.MenteeID != menteeID || c.ProgramID == nil || *c.ProgramID != programID || c.Status == model.ChargeStatusFailed {
			continue
		}
		switch {
		case found == nil:
			found = c
		case (c.Status == model.ChargeStatusPaid) != (found.Status == model.ChargeStatusPaid):
			if c.Status == model.ChargeStatusPaid {
				found = c
			}
		case c.CreatedAt.After(found.CreatedAt):
			found = c
		}
	}

	if found == nil {
		return nil, model.ErrNotFound
	}

	out := *found
	return &out, nil
}
