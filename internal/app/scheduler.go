package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Expirer снимает просроченные неоплаченные брони
type Expirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// sweepTimeout ограничение на один проход очистки
const sweepTimeout = 30 * time.Second

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	expirer  Expirer
	schedule string
	logger   *zap.Logger
	cron     *cron.Cron
	ctx      context.Context
}

// NewScheduler создаёт новый планировщик; schedule в формате cron или "@every 1m"
func NewScheduler(expirer Expirer, schedule string, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		expirer:  expirer,
		schedule: schedule,
		logger:   logger,
		// Следующий проход не стартует, пока не закончился предыдущий
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
	}
}

// Start регистрирует задачу очистки и запускает планировщик
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting background scheduler", zap.String("sweep_schedule", s.schedule))
	s.ctx = ctx

	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return fmt.Errorf("add expiry sweep %q: %w", s.schedule, err)
	}

	// Первый запуск сразу при старте
	s.sweep()

	s.cron.Start()
	return nil
}

// Stop останавливает планировщик и ждёт завершения текущего прохода
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background scheduler")
	<-s.cron.Stop().Done()
}

// sweep отменяет pending брони без оплаты старше окна удержания
func (s *Scheduler) sweep() {
	if s.ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, sweepTimeout)
	defer cancel()

	expired, err := s.expirer.ExpireStale(ctx)
	if err != nil {
		s.logger.Error("Failed to expire stale bookings", zap.Error(err))
		return
	}

	if expired > 0 {
		s.logger.Info("Expired stale bookings", zap.Int("count", expired))
	}
}
