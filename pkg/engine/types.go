package engine

import (
	"github.com/argus-labs/deck-engine/pkg/engine/internal/arena"
	"github.com/argus-labs/deck-engine/pkg/engine/internal/deck"
	"github.com/argus-labs/deck-engine/pkg/engine/internal/event"
	"github.com/argus-labs/deck-engine/pkg/engine/internal/match"
	"github.com/argus-labs/deck-engine/pkg/engine/internal/metrics"
	"github.com/argus-labs/deck-engine/pkg/engine/types"
	"github.com/rotisserie/eris"
)

type (
	Match       = types.Match
	MatchState  = types.MatchState
	DeckConfig  = types.DeckConfig
	DeckInfo    = types.DeckInfo
	Context     = types.Context
	Handler     = types.Handler
	Card        = types.Card
	RetryPolicy = types.RetryPolicy
	ArenaConfig = types.ArenaConfig

	Event          = event.Event
	EventName      = event.Name
	EventHandler   = event.Handler
	SubscriptionID = event.SubscriptionID

	DeckStats   = metrics.DeckStats
	ArenaStatus = arena.Status
	ListFilter  = match.ListFilter
)

const (
	EventAll                     = event.Wildcard
	EventEngineInitialized       = event.EngineInitialized
	EventEngineProcessingStarted = event.EngineProcessingStarted
	EventEngineProcessingStopped = event.EngineProcessingStopped
	EventEngineCleanup           = event.EngineCleanup
	EventEngineShutdown          = event.EngineShutdown
	EventMatchQueued             = event.MatchQueued
	EventMatchStarted            = event.MatchStarted
	EventMatchVictory            = event.MatchVictory
	EventMatchDefeat             = event.MatchDefeat
	EventMatchError              = event.MatchError
	EventMatchRetry              = event.MatchRetry
	EventMatchIdempotent         = event.MatchIdempotent
	EventMatchCancelled          = event.MatchCancelled
	EventMatchPaused             = event.MatchPaused
	EventMatchResumed            = event.MatchResumed
	EventMatchExpired            = event.MatchExpired
	EventDeckCreated             = event.DeckCreated
	EventArenaPaused             = event.ArenaPaused
	EventArenaResumed            = event.ArenaResumed
)

var (
	ErrDeckNotFound     = deck.ErrDeckNotFound
	ErrDuplicateDeck    = deck.ErrDuplicateDeck
	ErrInvalidDeck      = deck.ErrInvalidDeck
	ErrDeckDisabled     = eris.New("deck is disabled")
	ErrDeckPaused       = eris.New("deck is paused")
	ErrArenaNotFound    = eris.New("arena not found")
	ErrMatchNotFound    = match.ErrMatchNotFound
	ErrMatchFinished    = match.ErrInvalidTransition
	ErrWaitTimeout      = eris.New("timed out waiting for match")
	ErrWaitUntilTimeout = match.ErrWaitUntilTimeout
	ErrShutdown         = eris.New("engine is shut down")
)
