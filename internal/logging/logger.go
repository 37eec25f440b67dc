// Package logging provides zap logger helpers.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults for the optional log file.
const (
	DefaultFileMaxSizeMB  = 5
	DefaultFileMaxBackups = 3
	DefaultFileMaxAgeDays = 30
)

// Options select the logger flavor and minimum level.
type Options struct {
	Development bool
	// Level overrides the flavor's default level ("debug", "info", ...).
	Level string
	// File, when set, also writes JSON lines to a size-rotated file.
	File string
}

// New builds a zap.Logger configured for development or production.
func New(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.DisableStacktrace = false
	}
	cfg.EncoderConfig.TimeKey = "ts"
	if lvl := strings.TrimSpace(opts.Level); lvl != "" {
		level, err := zap.ParseAtomicLevel(lvl)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		cfg.Level = level
	}
	var buildOpts []zap.Option
	if file := strings.TrimSpace(opts.File); file != "" {
		buildOpts = append(buildOpts, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore(file, cfg.Level))
		}))
	}
	logger, err := cfg.Build(buildOpts...)
	if err != nil {
		if opts.Development {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}

// fileCore writes uncolored JSON so the file stays machine readable whatever
// the console flavor.
func fileCore(path string, level zapcore.LevelEnabler) zapcore.Core {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    DefaultFileMaxSizeMB,
		MaxBackups: DefaultFileMaxBackups,
		MaxAge:     DefaultFileMaxAgeDays,
		Compress:   true,
	}
	return zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(rotator), level)
}
