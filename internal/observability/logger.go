// Package observability owns the process-wide zap logger. The console sink
// writes to stderr so stdout stays free for reports; an optional rotating file
// sink always receives JSON.
package observability

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xkilldash9x/sast-agent/internal/config"
)

const defaultServiceName = "sast-agent"

var (
	globalLogger atomic.Pointer[zap.Logger]
	initOnce     sync.Once
)

// Initialize installs the global logger. Only the first call has any effect.
func Initialize(cfg config.LoggerConfig, console zapcore.WriteSyncer) {
	initOnce.Do(func() {
		logger := build(cfg, console)
		globalLogger.Store(logger)
		zap.ReplaceGlobals(logger)
		zap.RedirectStdLog(logger)
	})
}

// InitializeLogger installs the global logger with console output on a locked stderr.
func InitializeLogger(cfg config.LoggerConfig) {
	Initialize(cfg, zapcore.Lock(os.Stderr))
}

// ResetForTest clears the global logger so the next Initialize takes effect.
func ResetForTest() {
	globalLogger.Store(nil)
	initOnce = sync.Once{}
}

func build(cfg config.LoggerConfig, console zapcore.WriteSyncer) *zap.Logger {
	level, levelErr := parseLevel(cfg.Level)

	cores := []zapcore.Core{zapcore.NewCore(newEncoder(cfg.Format, cfg.Colors), console, level)}
	if sink := fileSink(cfg); sink != nil {
		cores = append(cores, zapcore.NewCore(newJSONEncoder(), sink, level))
	}

	opts := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
	if cfg.AddSource {
		opts = append(opts, zap.AddCaller())
	}

	name := cfg.ServiceName
	if name == "" {
		name = defaultServiceName
	}
	logger := zap.New(zapcore.NewTee(cores...), opts...).Named(name)
	if levelErr != nil {
		logger.Warn("Unrecognised log level; using info", zap.String("configured_level", cfg.Level))
	}
	return logger
}

// parseLevel falls back to info for an empty or unknown level.
func parseLevel(s string) (zap.AtomicLevel, error) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if s == "" {
		return level, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return zap.NewAtomicLevelAt(zap.InfoLevel), err
	}
	return level, nil
}

// fileSink returns a rotating writer for cfg.LogFile, or nil when file logging is off.
func fileSink(cfg config.LoggerConfig) zapcore.WriteSyncer {
	if cfg.LogFile == "" {
		return nil
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	})
}

// GetLogger returns the global logger, or a development logger if Initialize
// has not run yet.
func GetLogger() *zap.Logger {
	if logger := globalLogger.Load(); logger != nil {
		return logger
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	l.Warn("Global logger requested before initialization; using fallback.")
	return l.Named("fallback")
}

// Sync flushes buffered entries. Failures from syncing a terminal or pipe are ignored.
func Sync() {
	logger := globalLogger.Load()
	if logger == nil {
		return
	}
	if err := logger.Sync(); err != nil && !ignorableSyncError(err) {
		fmt.Fprintln(os.Stderr, "Error: failed to sync logger:", err)
	}
}

// ignorableSyncError reports whether err is the errno a console or pipe
// returns from fsync.
func ignorableSyncError(err error) bool {
	return errors.Is(err, syscall.EINVAL) ||
		errors.Is(err, syscall.ENOTSUP) ||
		errors.Is(err, syscall.ENOTTY)
}
