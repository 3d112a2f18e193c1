package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger("warn", "json", zapcore.AddSync(&buf))
	require.NoError(t, err)

	l.Info("dropped")
	l.With("component", "test").Warn("kept", "nodes", 3)

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"msg":"kept"`)
	assert.Contains(t, out, `"component":"test"`)
	assert.Contains(t, out, `"nodes":3`)
}

func TestFromZapKeepsFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := FromZap(zap.New(core)).With("component", "observer")
	l.Debug("transition", "index", 2)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "transition", entry.Message)
	assert.Equal(t, "observer", entry.ContextMap()["component"])
	assert.EqualValues(t, 2, entry.ContextMap()["index"])
}

func TestOrGlobal(t *testing.T) {
	nop := NewNopLogger()
	assert.Same(t, nop, OrGlobal(nop))
	assert.NotNil(t, OrGlobal(nil))
}
