package logger

import (
	"context"
	"strings"
	"sync"

	"github.com/prohmpiriya/booking-rush-reservation/pkg/telemetry"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration
type Config struct {
	// Level is a zap level name, or an environment name (development => debug)
	Level       string
	ServiceName string
	Development bool
}

// Logger is a thin wrapper over zap.Logger
type Logger struct {
	zl *zap.Logger
}

var (
	global = &Logger{zl: zap.NewNop()}
	mu     sync.RWMutex
)

// Init builds the process-wide logger
func Init(cfg *Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	global = l
	mu.Unlock()
	return nil
}

// New builds a logger without installing it globally
func New(cfg *Config) (*Logger, error) {
	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "timestamp"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	zl, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	if cfg.ServiceName != "" {
		zl = zl.With(zap.String("service", cfg.ServiceName))
	}
	return &Logger{zl: zl}, nil
}

// NewFromZap wraps an existing zap logger, e.g. an observer in tests
func NewFromZap(zl *zap.Logger) *Logger {
	return &Logger{zl: zl}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug", "development":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Get returns the process-wide logger; a no-op logger before Init
func Get() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Sync flushes buffered log entries
func Sync() {
	_ = Get().zl.Sync()
}

// With returns a child logger carrying fields
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{zl: l.zl.With(fields...)}
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.zl.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.zl.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.zl.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.zl.Error(msg, fields...) }
func (l *Logger) Fatal(msg string, fields ...zap.Field) { l.zl.Fatal(msg, fields...) }

// ErrorContext logs at error level with the active trace id attached
func (l *Logger) ErrorContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.zl.Error(msg, append(fields, traceFields(ctx)...)...)
}

// WarnContext logs at warn level with the active trace id attached
func (l *Logger) WarnContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.zl.Warn(msg, append(fields, traceFields(ctx)...)...)
}

func traceFields(ctx context.Context) []zap.Field {
	if traceID := telemetry.GetTraceID(ctx); traceID != "" {
		return []zap.Field{zap.String("trace_id", traceID)}
	}
	return nil
}
