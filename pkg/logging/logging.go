package logging

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalMu     sync.RWMutex
	globalLogger Logger
)

func init() {
	// LOG_LEVEL overrides the production default until InitLogger runs.
	cfg := zap.NewProductionConfig()
	if lvl, ok := parseLevel(os.Getenv("LOG_LEVEL")); ok {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	globalLogger = &zapLogger{logger.Sugar()}
}

func parseLevel(level string) (zapcore.Level, bool) {
	if level == "" {
		return zapcore.InfoLevel, false
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return zapcore.InfoLevel, false
	}
	return lvl, true
}

// NewLogger builds a zap-backed logger. format "json" selects the production
// encoder; anything else the colored console encoder. A nil output writes to
// stderr.
func NewLogger(level, format string, output zapcore.WriteSyncer) (Logger, error) {
	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if lvl, ok := parseLevel(level); ok {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	if output == nil {
		logger, err := cfg.Build()
		if err != nil {
			return nil, err
		}
		return &zapLogger{logger.Sugar()}, nil
	}

	var encoder zapcore.Encoder
	if format == "json" {
		encoder = zapcore.NewJSONEncoder(cfg.EncoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(cfg.EncoderConfig)
	}
	core := zapcore.NewCore(encoder, output, cfg.Level)
	return &zapLogger{zap.New(core).Sugar()}, nil
}

// InitLogger replaces the global logger.
func InitLogger(level string, format string, output zapcore.WriteSyncer) {
	logger, err := NewLogger(level, format, output)
	if err != nil {
		panic(err)
	}
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// GetLogger returns the global logger instance.
func GetLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// FromZap wraps an existing zap logger.
func FromZap(l *zap.Logger) Logger {
	return &zapLogger{l.Sugar()}
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger {
	return &zapLogger{zap.NewNop().Sugar()}
}

type zapLogger struct {
	*zap.SugaredLogger
}

func (l *zapLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, keysAndValues...)
}

func (l *zapLogger) Info(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, keysAndValues...)
}

func (l *zapLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, keysAndValues...)
}

func (l *zapLogger) Error(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, keysAndValues...)
}

// With creates a child logger and adds structured context to it.
func (l *zapLogger) With(keysAndValues ...interface{}) Logger {
	return &zapLogger{l.SugaredLogger.With(keysAndValues...)}
}
