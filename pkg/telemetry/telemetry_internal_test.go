package telemetry

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelemetry_ConfigFromEnv(t *testing.T) {
	t.Setenv("DECK_ENGINE_LOG_LEVEL", "WARN")
	t.Setenv("DECK_ENGINE_LOG_FORMAT", "pretty")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, cfg.LogLevel)
	assert.Equal(t, LogFormatPretty, cfg.LogFormat)
	assert.Equal(t, DefaultServiceName, cfg.ServiceName)
	assert.Equal(t, "dev", cfg.Environment)
	assert.False(t, cfg.Tracing)
}

func TestTelemetry_ServiceNameFromEnv(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "deck-engine-worker")

	var buf bytes.Buffer
	tel, err := newWithWriter(&buf, Options{})
	require.NoError(t, err)

	logger := tel.GetLogger("scheduler")
	logger.Info().Msg("tick")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "deck-engine-worker", line["service"])
	assert.Equal(t, "deck-engine-worker.scheduler", line["component"])
}

func TestTelemetry_OptionsDefaults(t *testing.T) {
	opt := newDefaultOptions()
	opt.apply(Options{})
	require.NoError(t, opt.validate())
	assert.Equal(t, DefaultServiceName, opt.ServiceName)
	assert.Equal(t, DefaultServiceName, opt.SentryOptions.Tags["service"])

	opt.apply(Options{ServiceName: "arena.worker"})
	assert.Error(t, opt.validate(), "dots would break component names")
}

func TestTelemetry_InvalidConfig(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad log level", env: map[string]string{"DECK_ENGINE_LOG_LEVEL": "loud"}},
		{name: "bad log format", env: map[string]string{"DECK_ENGINE_LOG_FORMAT": "xml"}},
		{name: "bad sample rate", env: map[string]string{
			"DECK_ENGINE_TRACING": "true", "DECK_ENGINE_TRACE_SAMPLE_RATE": "2",
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := loadConfig()
			assert.Error(t, err)
		})
	}
}

func TestTelemetry_RejectsBadOptions(t *testing.T) {
	_, err := newWithWriter(&bytes.Buffer{}, Options{ServiceName: "deck engine"})
	assert.Error(t, err)
	_, err = newWithWriter(&bytes.Buffer{}, Options{LogLevel: "loud"})
	assert.Error(t, err)
}

func TestTelemetry_ComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	tel, err := newWithWriter(&buf, Options{ServiceName: "deck-engine", LogFormat: LogFormatJSON})
	require.NoError(t, err)

	logger := tel.GetLogger("arena")
	logger.Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "deck-engine.arena", line["component"])
	assert.Equal(t, "hello", line["message"])

	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestTelemetry_CaptureExceptionLogs(t *testing.T) {
	var buf bytes.Buffer
	tel, err := newWithWriter(&buf, Options{ServiceName: "deck-engine", LogFormat: LogFormatJSON})
	require.NoError(t, err)

	tel.CaptureException(context.Background(), errors.New("boom"))
	assert.Contains(t, buf.String(), "boom")

	buf.Reset()
	tel.CaptureException(context.Background(), nil)
	assert.Empty(t, buf.String())
}

func TestParseLogFormat(t *testing.T) {
	assert.Equal(t, LogFormatJSON, ParseLogFormat("JSON"))
	assert.Equal(t, LogFormatPretty, ParseLogFormat("pretty"))
	assert.Equal(t, LogFormatUndefined, ParseLogFormat("yaml"))
	assert.Equal(t, "json", LogFormatJSON.String())
}
