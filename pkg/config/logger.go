package config

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LoggerConfig struct {
	Level   string
	Env     string
	Service string
	// Encoding overrides the env default: json in prod, console elsewhere.
	Encoding string
}

func NewLogger(cfg LoggerConfig) (*zap.Logger, error) {
	zapCfg, err := loggerConfig(cfg)
	if err != nil {
		return nil, err
	}

	return zapCfg.Build()
}

func loggerConfig(cfg LoggerConfig) (zap.Config, error) {
	var zapCfg zap.Config

	if cfg.Env == "prod" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return zap.Config{}, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	switch cfg.Encoding {
	case "":
	case "json", "console":
		zapCfg.Encoding = cfg.Encoding
	default:
		return zap.Config{}, fmt.Errorf("invalid log encoding %q", cfg.Encoding)
	}

	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.InitialFields = map[string]any{"env": cfg.Env}
	if cfg.Service != "" {
		zapCfg.InitialFields["service"] = cfg.Service
	}

	return zapCfg, nil
}
