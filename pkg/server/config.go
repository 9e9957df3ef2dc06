package server

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
)

type serverConfig struct {
	// Address the HTTP server listens on.
	Addr string `env:"DECK_ENGINE_HTTP_ADDR" envDefault:":4040"`

	// How long in-flight requests get to finish on shutdown.
	ShutdownTimeout time.Duration `env:"DECK_ENGINE_HTTP_SHUTDOWN_TIMEOUT" envDefault:"5s"`

	// Allow cross-origin requests.
	EnableCORS bool `env:"DECK_ENGINE_HTTP_CORS" envDefault:"true"`
}

func loadConfig() (serverConfig, error) {
	cfg := serverConfig{}
	if err := env.Parse(&cfg); err != nil {
		return cfg, eris.Wrap(err, "failed to parse server config")
	}
	return cfg, nil
}

func (cfg *serverConfig) applyToOptions(opt *Options) {
	opt.Addr = cfg.Addr
	opt.ShutdownTimeout = cfg.ShutdownTimeout
	opt.DisableCORS = !cfg.EnableCORS
}

// Options configures a Server. Zero values keep the value loaded from the environment.
type Options struct {
	Addr            string
	ShutdownTimeout time.Duration
	DisableCORS     bool
}

func newDefaultOptions() Options {
	return Options{
		Addr:            ":4040",
		ShutdownTimeout: 5 * time.Second,
		DisableCORS:     false,
	}
}

func (opt *Options) apply(newOpt Options) {
	if newOpt.Addr != "" {
		opt.Addr = newOpt.Addr
	}
	if newOpt.ShutdownTimeout != 0 {
		opt.ShutdownTimeout = newOpt.ShutdownTimeout
	}
	if newOpt.DisableCORS {
		opt.DisableCORS = true
	}
}

func (opt *Options) validate() error {
	if opt.Addr == "" {
		return eris.New("listen address cannot be empty")
	}
	if opt.ShutdownTimeout <= 0 {
		return eris.New("shutdown timeout must be positive")
	}
	return nil
}
