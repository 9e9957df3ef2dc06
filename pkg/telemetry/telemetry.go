// Package telemetry wires logging, tracing and error reporting for deck-engine services.
package telemetry

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/argus-labs/deck-engine/pkg/telemetry/sentry"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type Telemetry struct {
	Logger      zerolog.Logger
	Tracer      trace.Tracer
	serviceName string

	shutdown func(context.Context) error
}

// New builds telemetry from the environment (see Config), overridden by the non-zero fields of opts.
func New(opts Options) (Telemetry, error) {
	return newWithWriter(stdout(), opts)
}

func newWithWriter(out io.Writer, opts Options) (Telemetry, error) {
	config, err := loadConfig()
	if err != nil {
		return Telemetry{}, eris.Wrap(err, "failed to load otel config")
	}

	options := newDefaultOptions()
	config.applyToOptions(&options)
	options.apply(opts)
	if err := options.validate(); err != nil {
		return Telemetry{}, eris.Wrap(err, "invalid otel options")
	}

	if err := sentry.New(options.SentryOptions); err != nil {
		return Telemetry{}, eris.Wrap(err, "failed to setup sentry")
	}

	tracer, shutdown, err := setupTracing(context.Background(), config.Tracing, options)
	if err != nil {
		return Telemetry{}, eris.Wrap(err, "failed to setup tracing")
	}

	return Telemetry{
		Logger:      newLogger(out, options),
		Tracer:      tracer,
		serviceName: options.ServiceName,
		shutdown:    shutdown,
	}, nil
}

// Default returns telemetry backed by the global console logger and a no-op tracer. It never reads
// the environment and is what library callers get when they don't configure telemetry themselves.
func Default(serviceName string) Telemetry {
	return Telemetry{
		Logger:      log.Logger.With().Str("service", serviceName).Logger(),
		Tracer:      noop.NewTracerProvider().Tracer(serviceName),
		serviceName: serviceName,
	}
}

// Nop returns telemetry that discards every log line. Useful in tests.
func Nop() Telemetry {
	return Telemetry{
		Logger:      zerolog.Nop(),
		Tracer:      noop.NewTracerProvider().Tracer("nop"),
		serviceName: "nop",
	}
}

// Shutdown gracefully shuts down the telemetry system.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	sentry.Shutdown(ctx, 5*time.Second)
	if t.shutdown != nil {
		return t.shutdown(ctx)
	}
	return nil
}

// GetLogger returns a component-specific logger.
func (t *Telemetry) GetLogger(component string) zerolog.Logger {
	return t.Logger.With().Str("component", t.serviceName+"."+component).Logger()
}

// GetLoggerWithTrace returns a component-specific logger enriched with trace context.
func (t *Telemetry) GetLoggerWithTrace(ctx context.Context, component string) zerolog.Logger {
	logger := t.Logger.With().Str("component", t.serviceName+"."+component)

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		spanCtx := span.SpanContext()
		logger = logger.
			Str("trace_id", spanCtx.TraceID().String()).
			Str("span_id", spanCtx.SpanID().String())
	}

	return logger.Logger()
}

// CaptureException reports a handled error to Sentry (when configured) and logs it.
func (t *Telemetry) CaptureException(ctx context.Context, err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(ctx, err)
	t.Logger.Error().Err(err).Msg(eris.ToString(err, false))
}

// RecoverAndFlush reports a panic in progress to Sentry and flushes buffered events. It must be
// called directly by defer.
func (t *Telemetry) RecoverAndFlush(repanic bool) {
	if r := recover(); r != nil {
		sentry.CapturePanic(r)
		t.Logger.Error().Interface("panic", r).Msg("recovered from panic")
		if repanic {
			panic(r)
		}
	}
}

func init() { //nolint:gochecknoinits // Its fine
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Logger = zerolog.New(zerolog.ConsoleWriter{ //nolint:reassign // Its fine
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Caller().Logger()
}
