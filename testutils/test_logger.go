package testutils

import (
	"io"

	"github.com/gocircum/statefuzz/pkg/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// NewTestLogger creates a debug-level logger that discards output.
func NewTestLogger() logging.Logger {
	logger, err := logging.NewLogger("debug", "console", zapcore.AddSync(io.Discard))
	if err != nil {
		panic(err)
	}
	return logger
}

// NewObservedLogger returns a logger whose entries can be inspected.
func NewObservedLogger(level zapcore.Level) (logging.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return logging.FromZap(zap.New(core)), logs
}
