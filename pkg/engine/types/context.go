package types

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Context is handed to every handler, card and hook of a match. The embedded context.Context is
// cancelled when the engine shuts down.
type Context interface {
	context.Context

	MatchID() string
	DeckName() string
	Payload() any
	Metadata() map[string]any
	Attempt() int

	// Logger is scoped to the match. Log additionally appends to the match's own log.
	Logger() *zerolog.Logger
	Log(level zerolog.Level, msg string, fields map[string]any)

	// Wait sleeps for d or until the context is done.
	Wait(d time.Duration) error
	// WaitUntil polls predicate until it returns true, the timeout elapses or the context is done.
	WaitUntil(predicate func() bool, opts WaitOptions) error

	CardIndex() int
	CardsPlayed() []PlayedCard
	TotalCards() int

	// Match control. Pause and cancel are cooperative: they never interrupt the running step, they
	// stop the next one from starting and keep the match from being queued again.
	PauseMatch() error
	ResumeMatch() error
	CancelMatch() error
}

// WaitOptions tune Context.WaitUntil. Zero values fall back to defaults.
type WaitOptions struct {
	Interval time.Duration
	Timeout  time.Duration
}
