package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/argus-labs/deck-engine/pkg/engine"
	"github.com/argus-labs/deck-engine/pkg/server"
	"github.com/argus-labs/deck-engine/pkg/telemetry"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	var (
		envFile string
		addr    string
		demo    bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine and its HTTP API until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// A missing .env is fine, the environment is used as is.
			_ = godotenv.Load(envFile)

			tel, err := telemetry.New(telemetry.Options{})
			if err != nil {
				return eris.Wrap(err, "failed to set up telemetry")
			}
			log := tel.GetLogger("cli")

			eng, err := engine.New(engine.Options{Telemetry: &tel})
			if err != nil {
				return eris.Wrap(err, "failed to create engine")
			}
			if demo {
				if err := registerDemoDecks(eng); err != nil {
					return err
				}
			}

			srv, err := server.New(eng, server.Options{Addr: addr})
			if err != nil {
				return eris.Wrap(err, "failed to create server")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			serveErr := srv.Serve(ctx)
			if serveErr != nil {
				log.Error().Err(serveErr).Msg("server stopped")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := eng.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("engine shutdown failed")
			}
			if err := tel.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("telemetry shutdown failed")
			}
			return serveErr
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides DECK_ENGINE_HTTP_ADDR)")
	cmd.Flags().BoolVar(&demo, "demo", true, "register the built-in echo and always-fails decks")
	return cmd
}
