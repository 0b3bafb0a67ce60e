// Package logger provides structured logging using zap.
package logger

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Faultbox/scenepack/internal/config"
)

// Log is the global logger instance. It discards everything until Init is
// called, so packages can log unconditionally.
var Log = zap.NewNop()

// Rotation limits of the log file.
const (
	maxSizeMB  = 50
	maxBackups = 5
	maxAgeDays = 14
)

// Options describes where and how the global logger writes.
type Options struct {
	Level string
	// Format is "console" or "json".
	Format string
	// Console receives human facing output; nil disables it.
	Console io.Writer
	Color   bool
	// File receives a second, uncolored copy; nil disables it.
	File io.Writer
}

// Init configures the global logger from cfg. Console output goes to
// stderr so stdout carries only command results. A log file is rotated
// with lumberjack.
func Init(cfg config.LoggingConfig) error {
	opts := Options{
		Level:   cfg.Level,
		Format:  cfg.Format,
		Console: os.Stderr,
		Color:   cfg.Format != config.LogFormatJSON,
	}
	if cfg.LogFile != "" {
		opts.File = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   true,
			LocalTime:  true,
		}
	}
	return Setup(opts)
}

// Setup replaces the global logger.
func Setup(opts Options) error {
	lvl, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	var cores []zapcore.Core
	if opts.Console != nil {
		cores = append(cores, zapcore.NewCore(encoder(opts.Format, opts.Color), zapcore.AddSync(opts.Console), lvl))
	}
	if opts.File != nil {
		cores = append(cores, zapcore.NewCore(encoder(opts.Format, false), zapcore.AddSync(opts.File), lvl))
	}

	Log = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return nil
}

func encoder(format string, color bool) zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		NameKey:          "logger",
		MessageKey:       "msg",
		CallerKey:        "caller",
		EncodeTime:       zapcore.TimeEncoderOfLayout("15:04:05"),
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
	if format == config.LogFormatJSON {
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		return zapcore.NewJSONEncoder(cfg)
	}
	if color {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(cfg)
}

// Sync flushes any buffered log entries.
func Sync() {
	_ = Log.Sync()
}

// Named returns a child logger scoped to a pipeline component.
func Named(name string) *zap.Logger {
	return Log.Named(name)
}

// Variant returns a logger tagged with the source file and target of one
// packing pass.
func Variant(source, target string) *zap.Logger {
	return Log.With(zap.String("source", source), zap.String("target", target))
}

// Discard resets the logger to a no-op one.
func Discard() {
	Log = zap.NewNop()
}
