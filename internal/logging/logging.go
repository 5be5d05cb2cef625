// Package logging provides structured logging functionality.
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       false,
		FilePath:   filepath.Join(home, ".config", "synthx", "logs", "synthx.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLogger creates a new logger with default configuration.
func NewLogger() zerolog.Logger {
	return NewLoggerWithConfig(DefaultLogConfig())
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg LogConfig, console io.Writer) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:         console,
			TimeFormat:  time.RFC3339,
			FormatLevel: formatLevel,
		})
	}

	// File writer with rotation
	if cfg.File && cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	return zerolog.New(writer).
		With().
		Timestamp().
		Caller().
		Logger()
}

func formatLevel(i interface{}) string {
	ll, ok := i.(string)
	if !ok {
		return "???"
	}
	switch ll {
	case "debug":
		return "\033[36mDBG\033[0m"
	case "info":
		return "\033[32mINF\033[0m"
	case "warn":
		return "\033[33mWRN\033[0m"
	case "error":
		return "\033[31mERR\033[0m"
	default:
		return ll
	}
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// ContextKey is the type for context keys.
type ContextKey string

// LoggerKey is the context key for the logger.
const LoggerKey ContextKey = "logger"

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from context.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return zerolog.Nop()
}

// WithTicker adds a ticker to the logger context.
func WithTicker(logger zerolog.Logger, ticker string) zerolog.Logger {
	return logger.With().Str("ticker", ticker).Logger()
}

// WithUser adds a user ID to the logger context.
func WithUser(logger zerolog.Logger, userID string) zerolog.Logger {
	return logger.With().Str("user", userID).Logger()
}

// WithOperation adds an operation name to the logger context.
func WithOperation(logger zerolog.Logger, operation string) zerolog.Logger {
	return logger.With().Str("operation", operation).Logger()
}

// LogTrade logs a settled trade.
func LogTrade(logger zerolog.Logger, userID, ticker, side string, qty int64, price, fee float64) {
	logger.Info().
		Str("event", "trade").
		Str("user", userID).
		Str("ticker", ticker).
		Str("side", side).
		Int64("quantity", qty).
		Float64("price", price).
		Float64("fee", fee).
		Msg("Trade executed")
}

// LogTick logs the result of one simulation pass.
func LogTick(logger zerolog.Logger, at time.Time, stocks int, duration time.Duration) {
	logger.Debug().
		Str("event", "tick").
		Time("tick_at", at).
		Int("stocks", stocks).
		Dur("duration", duration).
		Msg("Tick processed")
}

// LogRegimeChange logs a macro regime transition.
func LogRegimeChange(logger zerolog.Logger, kind, from, to string) {
	logger.Info().
		Str("event", "regime_change").
		Str("kind", kind).
		Str("from", from).
		Str("to", to).
		Msg("Macro regime changed")
}
