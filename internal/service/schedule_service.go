package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/Freeeeeet/mentor_scheduler/internal/schedule"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionStore хранилище сессий (Postgres, память или кэш поверх них)
type SessionStore interface {
	// CreateBatch сохраняет все сессии пачки или ни одной
	CreateBatch(ctx context.Context, instances []*model.SessionInstance) ([]int64, error)
	GetByID(ctx context.Context, id int64) (*model.SessionInstance, error)
	ListByMentor(ctx context.Context, mentorID int64) ([]*model.SessionInstance, error)
	// UpdateCapacity не даёт опустить вместимость ниже числа активных броней
	UpdateCapacity(ctx context.Context, id int64, capacity int) (*model.SessionInstance, error)
	// Delete удаляет только сессию без активных броней
	Delete(ctx context.Context, id int64) error
}

// ProgramStore программы (пакеты сессий с общей ценой)
type ProgramStore interface {
	Create(ctx context.Context, p *model.Program) error
	GetByID(ctx context.Context, id int64) (*model.Program, error)
}

// GenerateRequest параметры генерации сессий ментора
type GenerateRequest struct {
	Rules            []model.AvailabilityRule
	HorizonWeeks     int
	Fallback         *schedule.Fallback
	Price            int64
	Currency         string
	ProgramID        *int64
	RequiresApproval bool
	// Location часовой пояс ментора для времени суток в правилах; nil - пояс сервера
	Location *time.Location
}

type ScheduleService struct {
	sessions SessionStore
	programs ProgramStore
	currency string
	retry    RetryPolicy
	logger   *zap.Logger
	now      func() time.Time
}

func NewScheduleService(sessions SessionStore, programs ProgramStore, currency string, retry RetryPolicy, logger *zap.Logger) *ScheduleService {
	return &ScheduleService{
		sessions: sessions,
		programs: programs,
		currency: currency,
		retry:    retry,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock подменяет часы (для тестов)
func (s *ScheduleService) WithClock(now func() time.Time) *ScheduleService {
	s.now = now
	return s
}

// GenerateSessions раскрывает доступность ментора и сохраняет сессии одной пачкой
func (s *ScheduleService) GenerateSessions(ctx context.Context, mentorID int64, req GenerateRequest) ([]*model.SessionInstance, error) {
	for i := range req.Rules {
		if err := req.Rules[i].Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}

	if req.Price < 0 {
		return nil, model.NewValidationError("price", "must not be negative")
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = s.currency
	}

	if req.ProgramID != nil {
		program, err := withRetry(ctx, s.retry, func(ctx context.Context) (*model.Program, error) {
			return s.programs.GetByID(ctx, *req.ProgramID)
		})
		if err != nil {
			return nil, fmt.Errorf("get program: %w", err)
		}
		if program.MentorID != mentorID {
			return nil, fmt.Errorf("program %d: %w", program.ID, model.ErrForbidden)
		}
		currency = program.Currency
	}

	now := s.now()
	reference := now
	if req.Location != nil {
		reference = now.In(req.Location)
	}

	slots, err := schedule.Generate(req.Rules, req.HorizonWeeks, reference, req.Fallback)
	if err != nil {
		return nil, err
	}

	// Пропускаем слоты в прошлом
	upcoming := slots[:0]
	for _, slot := range slots {
		if slot.Start.After(now) {
			upcoming = append(upcoming, slot)
		}
	}

	if len(upcoming) == 0 {
		return nil, model.NewValidationError("rules", "no valid time ranges")
	}

	instances := schedule.ToInstances(upcoming, schedule.Template{
		MentorID:         mentorID,
		BatchID:          uuid.New(),
		Price:            req.Price,
		Currency:         currency,
		ProgramID:        req.ProgramID,
		RequiresApproval: req.RequiresApproval,
	})

	if _, err := withRetry(ctx, s.retry, func(ctx context.Context) ([]int64, error) {
		return s.sessions.CreateBatch(ctx, instances)
	}); err != nil {
		s.logger.Error("Failed to create sessions",
			zap.Int64("mentor_id", mentorID),
			zap.Int("count", len(instances)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("create sessions: %w", err)
	}

	s.logger.Info("Sessions generated",
		zap.Int64("mentor_id", mentorID),
		zap.String("batch_id", instances[0].BatchID.String()),
		zap.Int("count", len(instances)),
		zap.Int("horizon_weeks", req.HorizonWeeks),
	)

	return instances, nil
}

// ListMentorSessions сессии ментора по времени начала
func (s *ScheduleService) ListMentorSessions(ctx context.Context, mentorID int64) ([]*model.SessionInstance, error) {
	return withRetry(ctx, s.retry, func(ctx context.Context) ([]*model.SessionInstance, error) {
		return s.sessions.ListByMentor(ctx, mentorID)
	})
}

// GetSession сессия по ID
func (s *ScheduleService) GetSession(ctx context.Context, id int64) (*model.SessionInstance, error) {
	return withRetry(ctx, s.retry, func(ctx context.Context) (*model.SessionInstance, error) {
		return s.sessions.GetByID(ctx, id)
	})
}

// UpdateCapacity меняет вместимость сессии ментора
func (s *ScheduleService) UpdateCapacity(ctx context.Context, mentorID, sessionID int64, capacity int) (*model.SessionInstance, error) {
	if capacity < 1 {
		return nil, model.NewValidationError("capacity", "must be at least 1")
	}

	if _, err := s.ownSession(ctx, mentorID, sessionID); err != nil {
		return nil, err
	}

	session, err := withRetry(ctx, s.retry, func(ctx context.Context) (*model.SessionInstance, error) {
		return s.sessions.UpdateCapacity(ctx, sessionID, capacity)
	})
	if err != nil {
		return nil, fmt.Errorf("update capacity: %w", err)
	}

	s.logger.Info("Session capacity updated",
		zap.Int64("session_id", sessionID),
		zap.Int("capacity", capacity),
	)

	return session, nil
}

// DeleteSession удаляет сессию без активных броней
func (s *ScheduleService) DeleteSession(ctx context.Context, mentorID, sessionID int64) error {
	if _, err := s.ownSession(ctx, mentorID, sessionID); err != nil {
		return err
	}

	if _, err := withRetry(ctx, s.retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.sessions.Delete(ctx, sessionID)
	}); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	s.logger.Info("Session deleted",
		zap.Int64("session_id", sessionID),
		zap.Int64("mentor_id", mentorID),
	)

	return nil
}

// CreateProgram создаёт программу с общей ценой за все её сессии
func (s *ScheduleService) CreateProgram(ctx context.Context, mentorID int64, title string, totalPrice int64, currency string) (*model.Program, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, model.NewValidationError("title", "must not be empty")
	}
	if totalPrice < 0 {
		return nil, model.NewValidationError("total_price", "must not be negative")
	}

	currency = strings.ToUpper(currency)
	if currency == "" {
		currency = s.currency
	}

	program := &model.Program{
		MentorID:   mentorID,
		Title:      title,
		TotalPrice: totalPrice,
		Currency:   currency,
	}

	if _, err := withRetry(ctx, s.retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.programs.Create(ctx, program)
	}); err != nil {
		return nil, fmt.Errorf("create program: %w", err)
	}

	s.logger.Info("Program created",
		zap.Int64("program_id", program.ID),
		zap.Int64("mentor_id", mentorID),
		zap.Int64("total_price", totalPrice),
	)

	return program, nil
}

func (s *ScheduleService) ownSession(ctx context.Context, mentorID, sessionID int64) (*model.SessionInstance, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if session.MentorID != mentorID {
		return nil, fmt.Errorf("session %d: %w", sessionID, model.ErrForbidden)
	}

	return session, nil
}
