// Package logging builds the service zap logger.
package logging

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Env     string // dev|stage|prod
	Level   string
	Service string
}

// New returns a console logger in dev and a sampled JSON logger elsewhere.
func New(cfg Config) *zap.Logger {
	level := ParseLevel(cfg.Level)

	if cfg.Env == "" || cfg.Env == "dev" {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(os.Stdout), level)
		return zap.New(core, zap.AddCaller()).With(zap.String("service", cfg.Service))
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(os.Stdout), level)

	// sampling for log bursts
	core = zapcore.NewSamplerWithOptions(core, time.Second, 100, 10)

	return zap.New(core, zap.AddCaller()).With(
		zap.String("service", cfg.Service),
		zap.String("env", cfg.Env),
	)
}

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
