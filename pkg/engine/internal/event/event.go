package event

import (
	"fmt"
	"sync"
	"time"

	"github.com/argus-labs/deck-engine/pkg/engine/types"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Name identifies an event.
type Name string

// Wildcard subscribers receive every event after the specific subscribers.
const Wildcard Name = "*"

const (
	EngineInitialized       Name = "engine:initialized"
	EngineProcessingStarted Name = "engine:processing:started"
	EngineProcessingStopped Name = "engine:processing:stopped"
	EngineCleanup           Name = "engine:cleanup"
	EngineShutdown          Name = "engine:shutdown"

	MatchQueued     Name = "match:queued"
	MatchStarted    Name = "match:started"
	MatchVictory    Name = "match:victory"
	MatchDefeat     Name = "match:defeat"
	MatchError      Name = "match:error"
	MatchRetry      Name = "match:retry"
	MatchIdempotent Name = "match:idempotent"
	MatchCancelled  Name = "match:cancelled"
	MatchPaused     Name = "match:paused"
	MatchResumed    Name = "match:resumed"
	MatchExpired    Name = "match:expired"

	DeckCreated Name = "deck:created"

	ArenaPaused  Name = "arena:paused"
	ArenaResumed Name = "arena:resumed"
)

// Event is delivered to every subscriber of its name.
type Event struct {
	Name     Name           `json:"name"`
	At       time.Time      `json:"at"`
	MatchID  string         `json:"matchId,omitempty"`
	DeckName string         `json:"deckName,omitempty"`
	Arena    string         `json:"arena,omitempty"`
	Match    *types.Match   `json:"match,omitempty"` // snapshot, nil for engine events
	Err      error          `json:"-"`
	Data     map[string]any `json:"data,omitempty"`
}

// Handler is called synchronously for each emitted event.
type Handler func(Event) error

// SubscriptionID is returned by On and used to unsubscribe.
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	handler Handler
}

// Bus is an in-process publish/subscribe hub. Emit runs handlers on the caller's goroutine in
// subscription order. A handler that fails or panics is logged and does not affect the others.
type Bus struct {
	log    zerolog.Logger
	mu     sync.RWMutex
	subs   map[Name][]subscription
	nextID SubscriptionID
}

// NewBus creates an empty bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{log: log, subs: make(map[Name][]subscription)}
}

// On subscribes handler to name. Use Wildcard to receive every event.
func (b *Bus) On(name Name, handler Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[name] = append(b.subs[name], subscription{id: b.nextID, handler: handler})
	return b.nextID
}

// Off removes a subscription. It reports whether the subscription existed.
func (b *Bus) Off(name Name, id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[name]
	for i, s := range subs {
		if s.id != id {
			continue
		}
		// Copy so an Emit iterating the old slice is unaffected.
		next := make([]subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(b.subs, name)
		} else {
			b.subs[name] = next
		}
		return true
	}
	return false
}

// Emit delivers e to the subscribers of e.Name and then to wildcard subscribers. It returns the
// number of handlers that failed.
func (b *Bus) Emit(e Event) int {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	specific := b.subs[e.Name]
	var wildcard []subscription
	if e.Name != Wildcard {
		wildcard = b.subs[Wildcard]
	}
	b.mu.RUnlock()

	failed := 0
	for _, s := range specific {
		if err := b.call(s, e); err != nil {
			failed++
		}
	}
	for _, s := range wildcard {
		if err := b.call(s, e); err != nil {
			failed++
		}
	}
	return failed
}

func (b *Bus) call(s subscription, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.New(fmt.Sprintf("event handler panicked: %v", r))
		}
		if err != nil {
			b.log.Error().Err(err).
				Str("event", string(e.Name)).
				Uint64("subscription", uint64(s.id)).
				Msg("event handler failed")
		}
	}()
	return s.handler(e)
}

// Clear removes every subscription.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[Name][]subscription)
}

// Count returns the total number of subscriptions.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, subs := range b.subs {
		n += len(subs)
	}
	return n
}

// CountFor returns the number of subscriptions for name.
func (b *Bus) CountFor(name Name) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}
