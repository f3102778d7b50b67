// Package logger builds the zap logger shared by the server and CLI.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls log level and optional file output.
type Config struct {
	Level      string
	OutputPath string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool

	// Console defaults to stdout.
	Console io.Writer
}

// ParseLevel maps a level name to a zap level; unknown names mean info.
func ParseLevel(name string) zapcore.Level {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return zapcore.InfoLevel
	}
	return level
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// New builds a JSON logger writing to the console and, when OutputPath is
// set, to a size-rotated file.
func New(cfg Config) (*zap.Logger, error) {
	level := ParseLevel(cfg.Level)
	encoder := zapcore.NewJSONEncoder(encoderConfig())

	console := cfg.Console
	if console == nil {
		console = os.Stdout
	}
	core := zapcore.NewCore(encoder, zapcore.AddSync(console), level)

	if cfg.OutputPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		file := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.OutputPath,
			MaxSize:    orDefault(cfg.MaxSize, 50),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
			MaxAge:     orDefault(cfg.MaxAge, 28),
			Compress:   cfg.Compress,
		})
		core = zapcore.NewTee(core, zapcore.NewCore(encoder.Clone(), file, level))
	}

	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	), nil
}

func orDefault(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
