package engine

import (
	"time"

	"github.com/argus-labs/deck-engine/pkg/telemetry"
	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
)

// engineConfig holds the engine settings that can be set through the environment.
type engineConfig struct {
	// How often the scheduler drains arena queues.
	TickInterval time.Duration `env:"DECK_ENGINE_TICK_INTERVAL" envDefault:"100ms"`

	// How often finished matches are swept.
	CleanupInterval time.Duration `env:"DECK_ENGINE_CLEANUP_INTERVAL" envDefault:"5m"`

	// Finished matches older than this are removed by the periodic sweep.
	CleanupMaxAge time.Duration `env:"DECK_ENGINE_CLEANUP_MAX_AGE" envDefault:"1h"`

	// Size of the idempotency cache in bytes.
	IdempotencyCacheSize int `env:"DECK_ENGINE_IDEMPOTENCY_CACHE_SIZE" envDefault:"1048576"`

	// Concurrency ceiling for arenas whose decks don't set one.
	DefaultArenaConcurrency int `env:"DECK_ENGINE_DEFAULT_ARENA_CONCURRENCY" envDefault:"10"`

	// Address of a statsd agent. Empty disables metric export.
	StatsdAddress string `env:"DECK_ENGINE_STATSD_ADDRESS"`

	// Log every engine event through the built-in event logger.
	LogEvents bool `env:"DECK_ENGINE_LOG_EVENTS" envDefault:"true"`
}

// loadConfig loads the engine configuration from environment variables.
func loadConfig() (engineConfig, error) {
	cfg := engineConfig{}

	if err := env.Parse(&cfg); err != nil {
		return cfg, eris.Wrap(err, "failed to parse engine config")
	}

	if err := cfg.validate(); err != nil {
		return cfg, eris.Wrap(err, "failed to validate config")
	}

	return cfg, nil
}

func (cfg *engineConfig) validate() error {
	if cfg.TickInterval <= 0 {
		return eris.New("tick interval must be positive")
	}
	if cfg.CleanupInterval <= 0 {
		return eris.New("cleanup interval must be positive")
	}
	if cfg.CleanupMaxAge < 0 {
		return eris.New("cleanup max age cannot be negative")
	}
	if cfg.IdempotencyCacheSize <= 0 {
		return eris.New("idempotency cache size must be positive")
	}
	if cfg.DefaultArenaConcurrency <= 0 {
		return eris.New("default arena concurrency must be positive")
	}
	return nil
}

// applyToOptions applies the configuration values to the given Options.
func (cfg *engineConfig) applyToOptions(opt *Options) {
	opt.TickInterval = cfg.TickInterval
	opt.CleanupInterval = cfg.CleanupInterval
	opt.CleanupMaxAge = cfg.CleanupMaxAge
	opt.IdempotencyCacheSize = cfg.IdempotencyCacheSize
	opt.DefaultArenaConcurrency = cfg.DefaultArenaConcurrency
	opt.StatsdAddress = cfg.StatsdAddress
	opt.DisableEventLog = !cfg.LogEvents
}

// Options configures an Engine. Zero values keep the value loaded from the environment.
type Options struct {
	Telemetry               *telemetry.Telemetry // Logging and tracing, defaults to the global console logger
	TickInterval            time.Duration        // How often arena queues are drained
	CleanupInterval         time.Duration        // How often finished matches are swept
	CleanupMaxAge           time.Duration        // Age after which finished matches are swept
	IdempotencyCacheSize    int                  // Idempotency cache size in bytes
	DefaultArenaConcurrency int                  // Ceiling for arenas without one
	StatsdAddress           string               // statsd agent address, empty disables export
	StatsdTags              []string             // Tags added to every statsd metric
	DisableEventLog         bool                 // Don't attach the built-in EventLogger
	Capabilities            []Capability         // Optional modules attached at construction
}

// newDefaultOptions creates Options with default values.
func newDefaultOptions() Options {
	return Options{
		Telemetry:               nil,
		TickInterval:            100 * time.Millisecond,
		CleanupInterval:         5 * time.Minute,
		CleanupMaxAge:           time.Hour,
		IdempotencyCacheSize:    1 << 20,
		DefaultArenaConcurrency: 10,
		StatsdAddress:           "",
		StatsdTags:              nil,
		DisableEventLog:         false,
		Capabilities:            nil,
	}
}

// apply merges the given options into the current options, overriding non-zero values.
func (opt *Options) apply(newOpt Options) {
	if newOpt.Telemetry != nil {
		opt.Telemetry = newOpt.Telemetry
	}
	if newOpt.TickInterval != 0 {
		opt.TickInterval = newOpt.TickInterval
	}
	if newOpt.CleanupInterval != 0 {
		opt.CleanupInterval = newOpt.CleanupInterval
	}
	if newOpt.CleanupMaxAge != 0 {
		opt.CleanupMaxAge = newOpt.CleanupMaxAge
	}
	if newOpt.IdempotencyCacheSize != 0 {
		opt.IdempotencyCacheSize = newOpt.IdempotencyCacheSize
	}
	if newOpt.DefaultArenaConcurrency != 0 {
		opt.DefaultArenaConcurrency = newOpt.DefaultArenaConcurrency
	}
	if newOpt.StatsdAddress != "" {
		opt.StatsdAddress = newOpt.StatsdAddress
	}
	if newOpt.StatsdTags != nil {
		opt.StatsdTags = newOpt.StatsdTags
	}
	if newOpt.DisableEventLog {
		opt.DisableEventLog = true
	}
	if newOpt.Capabilities != nil {
		opt.Capabilities = newOpt.Capabilities
	}
}

// validate checks that all options are usable.
func (opt *Options) validate() error {
	if opt.TickInterval <= 0 {
		return eris.New("tick interval must be positive")
	}
	if opt.CleanupInterval <= 0 {
		return eris.New("cleanup interval must be positive")
	}
	if opt.CleanupMaxAge < 0 {
		return eris.New("cleanup max age cannot be negative")
	}
	if opt.IdempotencyCacheSize <= 0 {
		return eris.New("idempotency cache size must be positive")
	}
	if opt.DefaultArenaConcurrency <= 0 {
		return eris.New("default arena concurrency must be positive")
	}
	for i, c := range opt.Capabilities {
		if c == nil {
			return eris.Errorf("capability %d is nil", i)
		}
	}
	return nil
}
