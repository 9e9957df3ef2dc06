package telemetry

import (
	"strings"

	"github.com/argus-labs/deck-engine/pkg/telemetry/sentry"
	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// DefaultServiceName is the service name used when neither OTEL_SERVICE_NAME nor Options set one.
// Component loggers are named "<service>.<component>", e.g. "deck-engine.scheduler".
const DefaultServiceName = "deck-engine"

// Config is the telemetry part of the deck-engine environment.
type Config struct {
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"deck-engine"`

	// Tracing turns on span export to Endpoint. Logging is always on.
	Tracing         bool    `env:"DECK_ENGINE_TRACING" envDefault:"false"`
	Endpoint        string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	TraceSampleRate float64 `env:"DECK_ENGINE_TRACE_SAMPLE_RATE" envDefault:"1.0"`

	LogLevel  zerolog.Level `env:"DECK_ENGINE_LOG_LEVEL" envDefault:"info"`
	LogFormat LogFormat     `env:"DECK_ENGINE_LOG_FORMAT" envDefault:"json"`

	// Sentry reporting is off without a DSN.
	SentryDsn   string `env:"DECK_ENGINE_SENTRY_DSN"`
	Environment string `env:"DECK_ENGINE_ENV" envDefault:"dev"`
}

func loadConfig() (Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return cfg, eris.Wrap(err, "failed to parse telemetry config")
	}
	if err := cfg.validate(); err != nil {
		return cfg, eris.Wrap(err, "failed to validate telemetry config")
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.LogLevel == zerolog.NoLevel {
		return eris.New("DECK_ENGINE_LOG_LEVEL cannot be empty")
	}
	if !cfg.Tracing {
		return nil
	}
	if cfg.Endpoint == "" {
		return eris.New("OTEL_EXPORTER_OTLP_ENDPOINT is required when tracing is on")
	}
	if cfg.TraceSampleRate < 0.0 || cfg.TraceSampleRate > 1.0 {
		return eris.Errorf("trace sample rate %v is outside [0, 1]", cfg.TraceSampleRate)
	}
	return nil
}

func (cfg *Config) applyToOptions(opt *Options) {
	opt.ServiceName = cfg.ServiceName
	opt.Endpoint = cfg.Endpoint
	opt.LogLevel = cfg.LogLevel.String()
	opt.LogFormat = cfg.LogFormat
	opt.TraceSampleRate = cfg.TraceSampleRate
	opt.SentryOptions = sentry.Options{
		Dsn:         cfg.SentryDsn,
		Environment: cfg.Environment,
	}
}

// Options override the environment. Zero fields keep the environment's value.
type Options struct {
	ServiceName     string
	Endpoint        string
	LogLevel        string
	LogFormat       LogFormat
	TraceSampleRate float64

	SentryOptions sentry.Options
}

func newDefaultOptions() Options {
	return Options{
		ServiceName:     DefaultServiceName,
		LogLevel:        zerolog.InfoLevel.String(),
		LogFormat:       LogFormatJSON,
		TraceSampleRate: 1.0,
	}
}

func (opt *Options) apply(newOpt Options) {
	if newOpt.ServiceName != "" {
		opt.ServiceName = newOpt.ServiceName
	}
	if newOpt.Endpoint != "" {
		opt.Endpoint = newOpt.Endpoint
	}
	if newOpt.LogLevel != "" {
		opt.LogLevel = newOpt.LogLevel
	}
	if newOpt.LogFormat != LogFormatUndefined {
		opt.LogFormat = newOpt.LogFormat
	}
	if newOpt.TraceSampleRate != 0.0 {
		opt.TraceSampleRate = newOpt.TraceSampleRate
	}
	if newOpt.SentryOptions.Dsn != "" {
		opt.SentryOptions.Dsn = newOpt.SentryOptions.Dsn
	}
	if newOpt.SentryOptions.Tags != nil {
		opt.SentryOptions.Tags = newOpt.SentryOptions.Tags
	}
	// Sentry events are grouped per service.
	if opt.SentryOptions.Tags == nil {
		opt.SentryOptions.Tags = map[string]string{}
	}
	if _, ok := opt.SentryOptions.Tags["service"]; !ok {
		opt.SentryOptions.Tags["service"] = opt.ServiceName
	}
}

func (opt *Options) validate() error {
	if opt.ServiceName == "" {
		return eris.New("service name cannot be empty")
	}
	if strings.ContainsAny(opt.ServiceName, " .") {
		return eris.Errorf("service name %q must not contain spaces or dots", opt.ServiceName)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(opt.LogLevel)); err != nil {
		return eris.Errorf("invalid log level %q", opt.LogLevel)
	}
	if opt.LogFormat == LogFormatUndefined {
		return eris.New("log format must be json or pretty")
	}
	if opt.TraceSampleRate < 0.0 || opt.TraceSampleRate > 1.0 {
		return eris.New("trace sample rate must be between 0.0 and 1.0")
	}
	return nil
}

// LogFormat selects how log lines are written.
type LogFormat uint8

const (
	LogFormatUndefined LogFormat = iota
	LogFormatJSON
	LogFormatPretty
)

var logFormatNames = map[LogFormat]string{
	LogFormatUndefined: "undefined",
	LogFormatJSON:      "json",
	LogFormatPretty:    "pretty",
}

func (f LogFormat) String() string {
	if name, ok := logFormatNames[f]; ok {
		return name
	}
	return logFormatNames[LogFormatUndefined]
}

// UnmarshalText lets env parse DECK_ENGINE_LOG_FORMAT directly.
func (f *LogFormat) UnmarshalText(text []byte) error {
	parsed := ParseLogFormat(string(text))
	if parsed == LogFormatUndefined {
		return eris.Errorf("invalid log format %q (must be 'json' or 'pretty')", text)
	}
	*f = parsed
	return nil
}

// ParseLogFormat converts a case-insensitive name to a LogFormat.
func ParseLogFormat(s string) LogFormat {
	switch strings.ToLower(s) {
	case "json":
		return LogFormatJSON
	case "pretty":
		return LogFormatPretty
	default:
		return LogFormatUndefined
	}
}
