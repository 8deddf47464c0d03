package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestLoggerWritesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := FromZap(zap.New(core)).With(Component("orchestrator"))

	l.Info("content generated", ContentKey("lesson/abc"), Credits(4), Err(errors.New("boom")))

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		ctx := entries[0].ContextMap()
		assert.Equal(t, "content generated", entries[0].Message)
		assert.Equal(t, "orchestrator", ctx["component"])
		assert.Equal(t, "lesson/abc", ctx["content_key"])
		assert.EqualValues(t, 4, ctx["credits"])
		assert.Equal(t, "boom", ctx["error"])
	}
}

func TestContextRoundTrip(t *testing.T) {
	l := NewNop()
	ctx := WithContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}
