package app

import (
	"fmt"

	"github.com/Freeeeeet/mentor_scheduler/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// loggerConfig собирает zap.Config из настроек: пресет по окружению,
// затем LOG_LEVEL и LOG_FORMAT поверх него
func loggerConfig(cfg *config.Config) (zap.Config, error) {
	var zc zap.Config
	if cfg.IsProduction() {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}

	if cfg.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(cfg.LogLevel)
		if err != nil {
			return zap.Config{}, fmt.Errorf("parse LOG_LEVEL: %w", err)
		}
		zc.Level = level
	}

	switch cfg.LogFormat {
	case "":
	case LogFormatJSON, LogFormatConsole:
		zc.Encoding = cfg.LogFormat
	default:
		return zap.Config{}, fmt.Errorf("unknown LOG_FORMAT %q", cfg.LogFormat)
	}

	if zc.Encoding == LogFormatJSON {
		zc.EncoderConfig.TimeKey = "ts"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zc.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	} else {
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zc.OutputPaths = []string{"stdout"}
	zc.InitialFields = map[string]interface{}{
		"service": "mentor_scheduler",
		"env":     cfg.Environment,
	}

	return zc, nil
}

// NewLogger логгер приложения по настройкам окружения
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	zc, err := loggerConfig(cfg)
	if err != nil {
		return nil, err
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	return logger, nil
}
