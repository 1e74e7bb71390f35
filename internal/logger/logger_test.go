package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	defer zap.ReplaceGlobals(zap.NewNop())

	l := New("DEBUG")
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l = New("warn")
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
	assert.Same(t, l, zap.L())

	l = New("shouting")
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel), "unknown levels fall back to info")
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}
