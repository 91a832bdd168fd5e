package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/Freeeeeet/mentor_scheduler/internal/booking"
	"github.com/Freeeeeet/mentor_scheduler/internal/cache"
	"github.com/Freeeeeet/mentor_scheduler/internal/config"
	"github.com/Freeeeeet/mentor_scheduler/internal/controller"
	"github.com/Freeeeeet/mentor_scheduler/internal/controller/httpapi"
	"github.com/Freeeeeet/mentor_scheduler/internal/payment"
	"github.com/Freeeeeet/mentor_scheduler/internal/payment/midtranspay"
	"github.com/Freeeeeet/mentor_scheduler/internal/repository"
	"github.com/Freeeeeet/mentor_scheduler/internal/repository/memstore"
	"github.com/Freeeeeet/mentor_scheduler/internal/service"
	"github.com/Freeeeeet/mentor_scheduler/migrations"
	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// stores набор хранилищ, общий для Postgres и памяти
type stores struct {
	sessions service.SessionStore
	bookings booking.Store
	programs service.ProgramStore
	charges  payment.ChargeStore
}

// App собранное приложение: HTTP API, фоновая очистка и (опционально) Telegram бот
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	server    *http.Server
	scheduler *Scheduler
	bot       *controller.BotController
	closers   []func()
}

// New подключается к хранилищам и собирает все зависимости
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	gateway := midtranspay.NewGateway(cfg.MidtransServerKey, cfg.MidtransProduction, logger)
	if !slices.Contains(gateway.Currencies(), cfg.Currency) {
		return nil, fmt.Errorf("CURRENCY %s is not supported by midtrans (supported: %v)", cfg.Currency, gateway.Currencies())
	}

	st, err := a.openStores(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	sessions := st.sessions
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			// Без кэша работаем напрямую с хранилищем
			logger.Warn("Redis unavailable, session cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			_ = rdb.Close()
		} else {
			logger.Info("✅ Redis connected", zap.String("addr", cfg.RedisAddr))
			sessions = cache.NewSessionCache(st.sessions, rdb, cfg.SessionCacheTTL, logger)
			a.closers = append(a.closers, func() { _ = rdb.Close() })
		}
	}

	retry := service.RetryPolicy{Attempts: cfg.RetryAttempts, BaseDelay: cfg.RetryBaseDelay}

	coordinator := payment.NewCoordinator(gateway, st.charges, st.programs, payment.Config{
		Currency:   cfg.Currency,
		MinAmount:  cfg.MinChargeAmount,
		Currencies: gateway.Currencies(),
	}, logger)
	machine := booking.NewMachine(st.bookings, sessions, logger)

	scheduleService := service.NewScheduleService(sessions, st.programs, cfg.Currency, retry, logger)
	bookingService := service.NewBookingService(sessions, machine, coordinator, cfg.HoldWindow, retry, logger)

	a.scheduler = NewScheduler(bookingService, cfg.SweepSchedule, logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := httpapi.NewHandler(scheduleService, bookingService, gateway, []byte(cfg.JWTSecret), logger)
	a.server = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if cfg.TelegramToken != "" {
		b, err := bot.New(cfg.TelegramToken, bot.WithErrorsHandler(func(err error) {
			logger.Error("Telegram bot error", zap.Error(err))
		}))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create telegram bot: %w", err)
		}
		a.bot = controller.NewBotController(b, scheduleService, bookingService, logger)
	}

	return a, nil
}

func (a *App) openStores(ctx context.Context) (*stores, error) {
	if a.cfg.StoreDriver == config.StoreDriverMemory {
		a.logger.Warn("Using in-memory store, data is lost on restart")
		db := memstore.New()
		return &stores{
			sessions: db.Sessions(),
			bookings: db.Bookings(),
			programs: db.Programs(),
			charges:  db.Charges(),
		}, nil
	}

	pool, err := pgxpool.New(ctx, a.cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	a.closers = append(a.closers, pool.Close)

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	a.logger.Info("✅ Database connected")

	if a.cfg.MigrationsEnabled {
		migrator, err := NewMigrator(pool, migrations.FS, a.logger)
		if err != nil {
			return nil, err
		}
		err = migrator.Run(ctx)
		if cerr := migrator.Close(); cerr != nil {
			a.logger.Warn("Failed to close migrator", zap.Error(cerr))
		}
		if err != nil {
			return nil, err
		}
	}

	return &stores{
		sessions: repository.NewSessionRepository(pool),
		bookings: repository.NewBookingRepository(pool),
		programs: repository.NewProgramRepository(pool),
		charges:  repository.NewChargeRepository(pool),
	}, nil
}

// Run запускает все компоненты и блокируется до отмены ctx, затем останавливает их
func (a *App) Run(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}
	defer a.scheduler.Stop()

	var wg sync.WaitGroup

	if a.bot != nil {
		if err := a.bot.RegisterHandlers(ctx); err != nil {
			// Меню команд не критично, бот работает и без него
			a.logger.Warn("Failed to register bot commands", zap.Error(err))
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = a.bot.Start(ctx)
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serverErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	a.logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	wg.Wait()
	return runErr
}

// Close освобождает соединения с хранилищами в обратном порядке
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
