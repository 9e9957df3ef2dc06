package engine

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/argus-labs/deck-engine/pkg/engine/internal/event"
	"github.com/argus-labs/deck-engine/pkg/telemetry"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig()
	require.NoError(t, err)

	opt := Options{}
	cfg.applyToOptions(&opt)
	def := newDefaultOptions()
	assert.Equal(t, def.TickInterval, opt.TickInterval)
	assert.Equal(t, def.CleanupInterval, opt.CleanupInterval)
	assert.Equal(t, def.CleanupMaxAge, opt.CleanupMaxAge)
	assert.Equal(t, def.IdempotencyCacheSize, opt.IdempotencyCacheSize)
	assert.Equal(t, def.DefaultArenaConcurrency, opt.DefaultArenaConcurrency)
	assert.False(t, opt.DisableEventLog)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("DECK_ENGINE_TICK_INTERVAL", "250ms")
	t.Setenv("DECK_ENGINE_DEFAULT_ARENA_CONCURRENCY", "3")
	t.Setenv("DECK_ENGINE_LOG_EVENTS", "false")

	cfg, err := loadConfig()
	require.NoError(t, err)

	opt := newDefaultOptions()
	cfg.applyToOptions(&opt)
	assert.Equal(t, 250*time.Millisecond, opt.TickInterval)
	assert.Equal(t, 3, opt.DefaultArenaConcurrency)
	assert.True(t, opt.DisableEventLog)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "zero tick", key: "DECK_ENGINE_TICK_INTERVAL", value: "0s"},
		{name: "negative max age", key: "DECK_ENGINE_CLEANUP_MAX_AGE", value: "-1m"},
		{name: "zero cache", key: "DECK_ENGINE_IDEMPOTENCY_CACHE_SIZE", value: "0"},
		{name: "zero concurrency", key: "DECK_ENGINE_DEFAULT_ARENA_CONCURRENCY", value: "0"},
		{name: "not a duration", key: "DECK_ENGINE_CLEANUP_INTERVAL", value: "often"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := loadConfig()
			require.Error(t, err)

			_, err = New(Options{})
			require.Error(t, err)
		})
	}
}

func TestOptions_Apply(t *testing.T) {
	t.Parallel()

	opt := newDefaultOptions()
	opt.apply(Options{
		TickInterval:    time.Second,
		StatsdTags:      []string{"env:test"},
		DisableEventLog: true,
	})
	assert.Equal(t, time.Second, opt.TickInterval)
	assert.Equal(t, 5*time.Minute, opt.CleanupInterval, "zero fields keep the current value")
	assert.Equal(t, []string{"env:test"}, opt.StatsdTags)
	assert.True(t, opt.DisableEventLog)
	require.NoError(t, opt.validate())

	opt.Capabilities = []Capability{nil}
	assert.Error(t, opt.validate())
}

func TestEventLogger_LogsEvents(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	tel := telemetry.Nop()
	e, err := New(Options{
		Telemetry:       &tel,
		DisableEventLog: true,
		Capabilities:    []Capability{NewEventLogger(&logger)},
	})
	require.NoError(t, err)

	e.bus.Emit(event.Event{Name: event.MatchVictory, MatchID: "m1", DeckName: "echo", Arena: "default"})
	out := buf.String()
	assert.Contains(t, out, `"event":"match:victory"`)
	assert.Contains(t, out, `"match_id":"m1"`)
	assert.Contains(t, out, `"deck":"echo"`)

	before := e.bus.Count()
	require.NoError(t, e.Shutdown(context.Background()))
	assert.Equal(t, 1, before)
	assert.Contains(t, buf.String(), `"event":"engine:shutdown"`)
}
