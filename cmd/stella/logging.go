package main

import (
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/koscakluka/stella-core/internal/config"
)

// newLogger writes JSON records to a rotating file so the terminal UI stays
// clean.
func newLogger(cfg config.LogConfig) (*slog.Logger, func()) {
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	return logger, func() { _ = rotator.Close() }
}
