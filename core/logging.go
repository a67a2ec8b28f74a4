package core

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type loggerKey struct{}

var defaultLogger *zap.SugaredLogger

func init() {
	logger, _ := zap.NewProduction()
	defaultLogger = logger.Sugar()
}

// InitLogging reconfigures the default logger with the given level
// ("debug", "info", "warn", "error"). Unknown levels fall back to info.
func InitLogging(level string) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		return
	}
	defaultLogger = logger.Sugar()
}

// WithDefaultLogger attaches a request-scoped logger to the context.
func WithDefaultLogger(parent context.Context, reqID string) context.Context {
	return context.WithValue(parent, loggerKey{}, defaultLogger.With("request_id", reqID))
}

func loggerFrom(ctx context.Context) *zap.SugaredLogger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok {
			return l
		}
	}
	return defaultLogger
}

func Infof(ctx context.Context, tpl string, args ...any) {
	loggerFrom(ctx).Infof(tpl, args...)
}

func Errorf(ctx context.Context, tpl string, args ...any) {
	loggerFrom(ctx).Errorf(tpl, args...)
}

func Debugf(ctx context.Context, tpl string, args ...any) {
	loggerFrom(ctx).Debugf(tpl, args...)
}

func Warnf(ctx context.Context, tpl string, args ...any) {
	loggerFrom(ctx).Warnf(tpl, args...)
}
