// Package logging wraps zap with the package-level helpers the rest of the
// crawler calls.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// L is the process-wide logger. Nil until Init is called; the package-level
// helpers below are no-ops against a nil logger so tests never need to call
// Init first.
var L *zap.Logger

// Init builds the process logger. Debug selects a development config with
// console encoding and debug level; otherwise a production JSON config at
// info level.
func Init(debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}

	L = logger
	return nil
}

// Sync flushes buffered log entries; call on shutdown.
func Sync() {
	if L != nil {
		_ = L.Sync()
	}
}

func Info(msg string, fields ...zap.Field) {
	if L != nil {
		L.Info(msg, fields...)
	}
}

func Debug(msg string, fields ...zap.Field) {
	if L != nil {
		L.Debug(msg, fields...)
	}
}

func Warn(msg string, fields ...zap.Field) {
	if L != nil {
		L.Warn(msg, fields...)
	}
}

func Error(msg string, fields ...zap.Field) {
	if L != nil {
		L.Error(msg, fields...)
	}
}

// F builds a zap field from an arbitrary value so call sites read the same
// way across the codebase regardless of the value's type.
func F(key string, value interface{}) zap.Field {
	switch v := value.(type) {
	case string:
		return zap.String(key, v)
	case int:
		return zap.Int(key, v)
	case int64:
		return zap.Int64(key, v)
	case bool:
		return zap.Bool(key, v)
	case error:
		return zap.String(key, v.Error())
	case zapcore.Field:
		return v
	default:
		return zap.Any(key, value)
	}
}
