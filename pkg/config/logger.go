package config

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "order-service"

type LoggerConfig struct {
	Level string
	Env   string
	// Encoding overrides the env preset: "json" or "console".
	Encoding string
}

// NewLogger builds the process logger. prod gets the JSON production preset,
// everything else the development one.
func NewLogger(cfg LoggerConfig) (*zap.Logger, error) {
	zapCfg := zap.NewDevelopmentConfig()
	if cfg.Env == "prod" {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logger level: %w", err)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	switch cfg.Encoding {
	case "":
	case "json", "console":
		zapCfg.Encoding = cfg.Encoding
	default:
		return nil, fmt.Errorf("logger encoding %q: want json or console", cfg.Encoding)
	}

	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.InitialFields = map[string]any{
		"service": serviceName,
		"env":     cfg.Env,
	}

	return zapCfg.Build()
}

func (c *Config) LoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:    c.Logger.Level,
		Env:      c.Env,
		Encoding: c.Logger.Encoding,
	}
}
