package observability_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/trindex/pkg/observability"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level observability.Level
		want  string
	}{
		{1, "TRACE"},
		{observability.LevelVerbose, "DEBUG"},
		{observability.LevelInfo, "INFO"},
		{observability.LevelWarning, "WARN"},
		{observability.LevelError, "ERROR"},
		{21, "FATAL"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.level.String())
	}
}

func TestLevel_SlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, observability.LevelVerbose.SlogLevel())
	assert.Equal(t, slog.LevelInfo, observability.LevelInfo.SlogLevel())
	assert.Equal(t, slog.LevelWarn, observability.LevelWarning.SlogLevel())
	assert.Equal(t, slog.LevelError, observability.LevelError.SlogLevel())
}

func TestSlogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	obs := observability.NewSlogObserver(logger)

	obs.OnEvent(context.Background(), observability.Event{
		Type:   "index.flush.failed",
		Level:  observability.LevelError,
		Source: "index",
		Data:   map[string]any{"count": 3},
	})
	obs.OnEvent(context.Background(), observability.Event{
		Type:  "index.batch.flushed",
		Level: observability.LevelVerbose,
	})

	out := buf.String()
	assert.Contains(t, out, "index.flush.failed")
	assert.Contains(t, out, "source=index")
	assert.Contains(t, out, "count=3")
	assert.NotContains(t, out, "index.batch.flushed")
}

func TestMultiObserver(t *testing.T) {
	var a, b observability.Recorder
	multi := observability.NewMultiObserver(&a, nil, &b)

	multi.OnEvent(context.Background(), observability.Event{Type: "x", Timestamp: time.Now()})

	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
}

func TestRecorder(t *testing.T) {
	var r observability.Recorder
	ctx := context.Background()
	r.OnEvent(ctx, observability.Event{Type: "a"})
	r.OnEvent(ctx, observability.Event{Type: "b"})
	r.OnEvent(ctx, observability.Event{Type: "a"})

	require.Len(t, r.Events(), 3)
	assert.Len(t, r.Filter("a"), 2)
	assert.Empty(t, r.Filter("c"))

	r.Reset()
	assert.Empty(t, r.Events())
}

func TestNoOpObserver(t *testing.T) {
	observability.NoOpObserver{}.OnEvent(context.Background(), observability.Event{Type: "ignored"})
}

func TestEvent_Helpers(t *testing.T) {
	cause := errors.New("disk full")
	e := observability.NewEvent("index.flush.failed", observability.LevelError, "index", map[string]any{
		observability.AttrIndex: "p-1",
		observability.AttrError: cause,
	})

	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, "p-1", e.Index())
	assert.ErrorIs(t, e.Err(), cause)

	empty := observability.NewEvent("x", observability.LevelInfo, "", nil)
	assert.NoError(t, empty.Err())
	assert.Empty(t, empty.Index())
	assert.Empty(t, empty.Attrs())
}

func TestEvent_AttrsAreOrdered(t *testing.T) {
	e := observability.NewEvent("index.batch.flushed", observability.LevelInfo, "index", map[string]any{
		observability.AttrTriples:  4,
		observability.AttrError:    errors.New("boom"),
		observability.AttrDuration: 2 * time.Second,
		observability.AttrIndexes:  2,
	})

	attrs := e.Attrs()
	keys := make([]string, len(attrs))
	for i, a := range attrs {
		keys[i] = a.Key
	}
	assert.Equal(t, []string{"source", "duration", "error", "indexes", "triples"}, keys)
	assert.Equal(t, slog.KindString, attrs[2].Value.Kind())
	assert.Equal(t, "boom", attrs[2].Value.String())
	assert.Equal(t, slog.KindDuration, attrs[1].Value.Kind())
}
