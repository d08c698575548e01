package logx

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu sync.RWMutex
	lg *zap.SugaredLogger
)

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

// Init builds the process logger from LOG_LEVEL and LOG_FORMAT (json or console).
func Init() {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(os.Getenv("LOG_LEVEL")))
	cfg.Encoding = "json"
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "console") {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	z, err := cfg.Build()
	if err != nil {
		z = zap.NewNop()
	}
	Replace(z.Sugar())
}

// Replace swaps the process logger; tests use it with zaptest/observer.
func Replace(l *zap.SugaredLogger) {
	mu.Lock()
	lg = l
	mu.Unlock()
}

func L() *zap.SugaredLogger {
	mu.RLock()
	l := lg
	mu.RUnlock()
	if l == nil {
		Init()
		return L()
	}
	return l
}

// Named returns a child logger tagged with a component name.
func Named(component string) *zap.SugaredLogger {
	return L().With("component", component)
}

func Sync() { _ = L().Sync() }
