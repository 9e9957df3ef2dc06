package engine

import (
	"context"
)

// DeckFacade is a handle on one deck bound to its engine.
type DeckFacade struct {
	engine *Engine
	name   string
}

func (f *DeckFacade) Name() string { return f.name }

func (f *DeckFacade) PlayMatch(ctx context.Context, payload any, opts PlayOptions) (PlayResult, error) {
	return f.engine.PlayMatch(ctx, f.name, payload, opts)
}

func (f *DeckFacade) PlayAndWait(ctx context.Context, payload any, opts PlayOptions) (MatchResult, error) {
	return f.engine.PlayAndWait(ctx, f.name, payload, opts)
}

func (f *DeckFacade) PlayMatches(ctx context.Context, payloads []any, opts PlayOptions) (BatchResult, error) {
	return f.engine.PlayMatches(ctx, f.name, payloads, opts)
}

func (f *DeckFacade) Status() (DeckStatus, error) {
	return f.engine.DeckStatus(f.name)
}

// Stats returns the deck's aggregated match stats.
func (f *DeckFacade) Stats() DeckStats {
	s, ok := f.engine.metrics.DeckStats(f.name)
	if !ok {
		return DeckStats{DeckName: f.name}
	}
	return s
}

// Info describes the deck.
func (f *DeckFacade) Info() DeckInfo {
	d, _ := f.engine.decks.Get(f.name)
	return d.Info()
}

func (f *DeckFacade) Pause() error   { return f.engine.PauseDeck(f.name) }
func (f *DeckFacade) Resume() error  { return f.engine.ResumeDeck(f.name) }
func (f *DeckFacade) Enable() error  { return f.engine.EnableDeck(f.name) }
func (f *DeckFacade) Disable() error { return f.engine.DisableDeck(f.name) }
