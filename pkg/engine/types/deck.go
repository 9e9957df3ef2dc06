package types

import (
	"math"
	"time"
)

// Handler is a unit of work. Its return value becomes a card result, or the match result when used as
// a deck's Play handler.
type Handler func(ctx Context) (any, error)

// Hook runs around the body of a match (Init and Cleanup).
type Hook func(ctx Context) error

type (
	VictoryHook    func(ctx Context, result any) error
	DefeatHook     func(ctx Context, err error) error
	CardPlayedHook func(ctx Context, card PlayedCard) error
)

// Player is implemented by values that can act as a card.
type Player interface {
	Name() string
	Play(ctx Context) (any, error)
}

// CardKind tags how a card was declared.
type CardKind uint8

const (
	CardKindHandler CardKind = iota + 1 // declared with a function
	CardKindObject                      // declared with a Player
)

func (k CardKind) String() string {
	switch k {
	case CardKindHandler:
		return "handler"
	case CardKindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Card is one step of a deck. Both variants resolve to a single play function when the card is built,
// so the executor never inspects how a card was declared.
type Card struct {
	name string
	kind CardKind
	play Handler
}

// HandlerCard declares a card backed by a plain function.
func HandlerCard(name string, fn Handler) Card {
	return Card{name: name, kind: CardKindHandler, play: fn}
}

// ObjectCard declares a card backed by a Player.
func ObjectCard(p Player) Card {
	if p == nil {
		return Card{kind: CardKindObject}
	}
	return Card{name: p.Name(), kind: CardKindObject, play: p.Play}
}

func (c Card) Name() string   { return c.name }
func (c Card) Kind() CardKind { return c.kind }

// Valid reports whether the card can be played.
func (c Card) Valid() bool { return c.name != "" && c.play != nil }

// Play runs the card.
func (c Card) Play(ctx Context) (any, error) { return c.play(ctx) }

// ArenaConfig assigns a deck to an admission lane.
type ArenaConfig struct {
	Name             string `json:"name"`
	ConcurrencyLimit int    `json:"concurrencyLimit"`
	Priority         int    `json:"priority"` // advisory, never used for ordering
}

// RetryPolicy controls how failed attempts are retried. MaxAttempts counts every execution attempt,
// including the first.
type RetryPolicy struct {
	MaxAttempts   int           `json:"maxAttempts"`
	BackoffFactor float64       `json:"backoffFactor"`
	MinTimeout    time.Duration `json:"minTimeout"`
	MaxTimeout    time.Duration `json:"maxTimeout"`
}

// Backoff returns the delay before retry number retryCount (1-based):
// BackoffFactor^retryCount * MinTimeout, clamped to MaxTimeout.
func (p RetryPolicy) Backoff(retryCount int) time.Duration {
	delay := math.Pow(p.BackoffFactor, float64(retryCount)) * float64(p.MinTimeout)
	if p.MaxTimeout > 0 && (delay > float64(p.MaxTimeout) || math.IsInf(delay, 1)) {
		return p.MaxTimeout
	}
	if delay < 0 || math.IsNaN(delay) {
		return 0
	}
	return time.Duration(delay)
}

// DeckConfig describes a deck. Exactly one of Play or Cards must be set.
type DeckConfig struct {
	Description string

	Play  Handler
	Cards []Card

	Arena ArenaConfig
	Retry RetryPolicy

	DisableIdempotency bool
	IdempotencyKeyTTL  time.Duration

	// Init and Cleanup failures count as attempt failures. Cleanup runs after every attempt, and
	// when the body already failed its own error is only logged.
	Init    Hook
	Cleanup Hook

	// Errors from these are logged and never change the outcome.
	OnVictory    VictoryHook
	OnDefeat     DefeatHook
	OnCardPlayed CardPlayedHook

	Metadata map[string]any
}

// DeckInfo is a read-only description of a registered deck.
type DeckInfo struct {
	Name              string         `json:"name"`
	Description       string         `json:"description,omitempty"`
	Enabled           bool           `json:"enabled"`
	Paused            bool           `json:"paused"`
	Arena             ArenaConfig    `json:"arena"`
	Retry             RetryPolicy    `json:"retry"`
	Cards             []string       `json:"cards,omitempty"`
	SingleHandler     bool           `json:"singleHandler"`
	Idempotent        bool           `json:"idempotent"`
	IdempotencyKeyTTL time.Duration  `json:"idempotencyKeyTTL"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
}
