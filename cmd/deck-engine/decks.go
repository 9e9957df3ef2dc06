package main

import (
	"time"

	"github.com/argus-labs/deck-engine/pkg/engine"
	"github.com/rotisserie/eris"
)

var errDemoFailure = eris.New("this deck always fails")

// registerDemoDecks adds the decks used to try the engine out from the command line.
func registerDemoDecks(eng *engine.Engine) error {
	_, err := eng.CreateDeck("echo", engine.DeckConfig{
		Description: "returns its payload",
		Play: func(ctx engine.Context) (any, error) {
			return ctx.Payload(), nil
		},
		Retry: engine.RetryPolicy{MaxAttempts: 1},
		Arena: engine.ArenaConfig{Name: "demo", ConcurrencyLimit: 1},
	})
	if err != nil {
		return eris.Wrap(err, "failed to create echo deck")
	}

	_, err = eng.CreateDeck("always-fails", engine.DeckConfig{
		Description: "fails every attempt",
		Play: func(engine.Context) (any, error) {
			return nil, errDemoFailure
		},
		Retry: engine.RetryPolicy{
			MaxAttempts:   2,
			BackoffFactor: 2,
			MinTimeout:    100 * time.Millisecond,
			MaxTimeout:    time.Second,
		},
		Arena: engine.ArenaConfig{Name: "demo"},
	})
	if err != nil {
		return eris.Wrap(err, "failed to create always-fails deck")
	}
	return nil
}
