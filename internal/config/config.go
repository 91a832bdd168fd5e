package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Environment string `envconfig:"ENV" default:"development"`
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`

	// Пусто - уровень и формат по окружению
	LogLevel  string `envconfig:"LOG_LEVEL"`
	LogFormat string `envconfig:"LOG_FORMAT"`

	StoreDriver       string `envconfig:"STORE_DRIVER" default:"postgres"`
	DBDSN             string `envconfig:"DB_DSN"`
	MigrationsEnabled bool   `envconfig:"MIGRATIONS_ENABLED" default:"true"`

	// Пустой адрес отключает кэш сессий
	RedisAddr       string        `envconfig:"REDIS_ADDR"`
	SessionCacheTTL time.Duration `envconfig:"SESSION_CACHE_TTL" default:"1m"`

	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	// Пустой токен отключает бота
	TelegramToken string `envconfig:"TELEGRAM_TOKEN"`

	MidtransServerKey  string `envconfig:"MIDTRANS_SERVER_KEY" required:"true"`
	MidtransProduction bool   `envconfig:"MIDTRANS_PRODUCTION" default:"false"`

	// Суммы в наименьших единицах, которые списывает процессор (для IDR целые рупии)
	Currency        string        `envconfig:"CURRENCY" default:"IDR"`
	MinChargeAmount int64         `envconfig:"MIN_CHARGE_AMOUNT" default:"1000"`
	HoldWindow      time.Duration `envconfig:"HOLD_WINDOW" default:"15m"`
	SweepSchedule   string        `envconfig:"SWEEP_SCHEDULE" default:"@every 1m"`

	RetryAttempts  uint64        `envconfig:"RETRY_ATTEMPTS" default:"3"`
	RetryBaseDelay time.Duration `envconfig:"RETRY_BASE_DELAY" default:"100ms"`
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate проверяет согласованность настроек
func (c *Config) Validate() error {
	c.Currency = strings.ToUpper(c.Currency)

	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("DB_DSN is required for STORE_DRIVER=%s", StoreDriverPostgres)
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.HoldWindow <= 0 {
		return fmt.Errorf("HOLD_WINDOW must be positive, got %s", c.HoldWindow)
	}

	if c.MinChargeAmount < 0 {
		return fmt.Errorf("MIN_CHARGE_AMOUNT must not be negative")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
