// Package server exposes an engine over HTTP.
package server

import (
	"context"

	"github.com/argus-labs/deck-engine/pkg/engine"
	"github.com/argus-labs/deck-engine/pkg/server/handler"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

type Server struct {
	app     *fiber.App
	eng     *engine.Engine
	options Options
	log     zerolog.Logger
}

// New returns an HTTP server serving eng. Options are loaded from the DECK_ENGINE_HTTP_* environment
// and overridden by the non-zero fields of opts.
func New(eng *engine.Engine, opts Options) (*Server, error) {
	if eng == nil {
		return nil, eris.New("server requires a non-nil engine")
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, eris.Wrap(err, "failed to load server config")
	}
	options := newDefaultOptions()
	cfg.applyToOptions(&options)
	options.apply(opts)
	if err := options.validate(); err != nil {
		return nil, eris.Wrap(err, "invalid server options")
	}

	app := fiber.New(fiber.Config{
		Network:               "tcp", // Listen on both ipv4 and ipv6
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})
	if !options.DisableCORS {
		app.Use(cors.New())
	}

	s := &Server{
		app:     app,
		eng:     eng,
		options: options,
		log:     eng.Logger("http"),
	}
	s.setupRoutes()
	return s, nil
}

// Serve listens until ctx is done or the listener fails, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		s.log.Info().Str("addr", s.options.Addr).Msg("starting HTTP server")
		if err := s.app.Listen(s.options.Addr); err != nil {
			serverErr <- eris.Wrap(err, "error starting http server")
		}
	}()

	select {
	case err := <-serverErr:
		return eris.Wrap(err, "server encountered an error")
	case <-ctx.Done():
		if err := s.shutdown(); err != nil {
			return eris.Wrap(err, "error shutting down server")
		}
	}
	return nil
}

func (s *Server) shutdown() error {
	s.log.Info().Msg("shutting down HTTP server")
	if err := s.app.ShutdownWithTimeout(s.options.ShutdownTimeout); err != nil {
		return eris.Wrap(err, "error shutting down server")
	}
	s.log.Info().Msg("HTTP server shut down")
	return nil
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", handler.GetHealth(s.eng))
	s.app.Get("/status", handler.GetStatus(s.eng))

	decks := s.app.Group("/decks")
	decks.Get("/", handler.ListDecks(s.eng))
	decks.Get("/:name", handler.GetDeck(s.eng))
	decks.Post("/:name/matches", handler.PostMatch(s.eng))

	matches := s.app.Group("/matches")
	matches.Get("/", handler.ListMatches(s.eng))
	matches.Get("/:id", handler.GetMatch(s.eng))
	matches.Post("/:id/cancel", handler.ControlMatch(s.eng.CancelMatch))
	matches.Post("/:id/pause", handler.ControlMatch(s.eng.PauseMatch))
	matches.Post("/:id/resume", handler.ControlMatch(s.eng.ResumeMatch))

	arenas := s.app.Group("/arenas")
	arenas.Post("/:name/pause", handler.ControlArena(s.eng.PauseArena))
	arenas.Post("/:name/resume", handler.ControlArena(s.eng.ResumeArena))

	s.app.Get("/metrics", handler.GetMetrics(s.eng))
	s.app.Delete("/metrics", handler.ResetMetrics(s.eng))
	s.app.Post("/cleanup", handler.PostCleanup(s.eng))
}
