package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapAdapter_FieldsAndErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapAdapter(zap.New(core)).WithFields(map[string]interface{}{"taskType": "endorsement-verify"})

	log.WithError(errors.New("boom")).Error("job failed", map[string]interface{}{
		"jobKey": int64(42),
		"cause":  errors.New("transport down"),
	})

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "endorsement-verify", fields["taskType"])
		assert.Equal(t, "boom", fields["error"])
		assert.Equal(t, "transport down", fields["cause"])
		assert.Equal(t, int64(42), fields["jobKey"])
	}
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	l := New("verbose", "console")
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestNoOpLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		NewNoOpLogger().With(map[string]interface{}{"a": 1}).Info("ignored", nil)
	})
}
