package deck

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/argus-labs/deck-engine/pkg/engine/types"
	"github.com/rotisserie/eris"
)

var (
	ErrDuplicateDeck = eris.New("deck already exists")
	ErrInvalidDeck   = eris.New("invalid deck")
	ErrDeckNotFound  = eris.New("deck not found")
)

const (
	DefaultArena          = "default"
	DefaultMaxAttempts    = 3
	DefaultBackoffFactor  = 2.0
	DefaultMinTimeout     = time.Second
	DefaultMaxTimeout     = 30 * time.Second
	DefaultIdempotencyTTL = time.Hour
)

// Deck is a validated, immutable deck definition. Only the enabled and paused flags change after
// creation, and only through the registry.
type Deck struct {
	Name      string
	Config    types.DeckConfig
	CreatedAt time.Time

	enabled atomic.Bool
	paused  atomic.Bool
}

func (d *Deck) Enabled() bool { return d.enabled.Load() }
func (d *Deck) Paused() bool  { return d.paused.Load() }

// TotalCards returns the number of cards a match of this deck plays. A play-handler deck has none.
func (d *Deck) TotalCards() int { return len(d.Config.Cards) }

// Idempotent reports whether idempotency keys are honored for this deck.
func (d *Deck) Idempotent() bool { return !d.Config.DisableIdempotency }

// Info returns a read-only description of the deck.
func (d *Deck) Info() types.DeckInfo {
	names := make([]string, len(d.Config.Cards))
	for i, c := range d.Config.Cards {
		names[i] = c.Name()
	}
	return types.DeckInfo{
		Name:              d.Name,
		Description:       d.Config.Description,
		Enabled:           d.Enabled(),
		Paused:            d.Paused(),
		Arena:             d.Config.Arena,
		Retry:             d.Config.Retry,
		Cards:             names,
		SingleHandler:     d.Config.Play != nil,
		Idempotent:        d.Idempotent(),
		IdempotencyKeyTTL: d.Config.IdempotencyKeyTTL,
		Metadata:          maps.Clone(d.Config.Metadata),
		CreatedAt:         d.CreatedAt,
	}
}

// Registry stores decks by name. Decks are never removed.
type Registry struct {
	mu    sync.RWMutex
	decks map[string]*Deck
	order []string
}

func NewRegistry() *Registry {
	return &Registry{decks: make(map[string]*Deck)}
}

// Create validates cfg, applies defaults and registers the deck under name.
func (r *Registry) Create(name string, cfg types.DeckConfig) (*Deck, error) {
	cfg, err := normalize(name, cfg)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.decks[name]; ok {
		return nil, eris.Wrapf(ErrDuplicateDeck, "deck %q", name)
	}
	d := &Deck{Name: name, Config: cfg, CreatedAt: time.Now()}
	d.enabled.Store(true)
	r.decks[name] = d
	r.order = append(r.order, name)
	return d, nil
}

// Get returns the deck registered under name.
func (r *Registry) Get(name string) (*Deck, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.decks[name]
	return d, ok
}

// List returns every deck in creation order.
func (r *Registry) List() []*Deck {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Deck, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.decks[name])
	}
	return out
}

// Len returns the number of registered decks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Pause stops new matches from being accepted for the deck.
func (r *Registry) Pause(name string) error {
	return r.set(name, func(d *Deck) { d.paused.Store(true) })
}

func (r *Registry) Resume(name string) error {
	return r.set(name, func(d *Deck) { d.paused.Store(false) })
}

func (r *Registry) Enable(name string) error {
	return r.set(name, func(d *Deck) { d.enabled.Store(true) })
}

func (r *Registry) Disable(name string) error {
	return r.set(name, func(d *Deck) { d.enabled.Store(false) })
}

func (r *Registry) set(name string, fn func(*Deck)) error {
	d, ok := r.Get(name)
	if !ok {
		return eris.Wrapf(ErrDeckNotFound, "deck %q", name)
	}
	fn(d)
	return nil
}

// normalize checks cfg and fills defaults. Cards and metadata are copied so later changes by the
// caller do not leak into the registered deck.
func normalize(name string, cfg types.DeckConfig) (types.DeckConfig, error) {
	if name == "" {
		return cfg, eris.Wrap(ErrInvalidDeck, "name is required")
	}

	switch {
	case cfg.Play != nil && len(cfg.Cards) > 0:
		return cfg, eris.Wrapf(ErrInvalidDeck, "deck %q: set either a play handler or cards, not both", name)
	case cfg.Play == nil && len(cfg.Cards) == 0:
		return cfg, eris.Wrapf(ErrInvalidDeck, "deck %q: a play handler or at least one card is required", name)
	}
	for i, c := range cfg.Cards {
		if !c.Valid() {
			return cfg, eris.Wrapf(ErrInvalidDeck, "deck %q: card %d needs a name and a play function", name, i)
		}
	}
	cfg.Cards = slices.Clone(cfg.Cards)
	cfg.Metadata = maps.Clone(cfg.Metadata)

	if cfg.Arena.Name == "" {
		cfg.Arena.Name = DefaultArena
	}
	if cfg.Arena.ConcurrencyLimit < 0 {
		return cfg, eris.Wrapf(ErrInvalidDeck, "deck %q: concurrency limit must not be negative", name)
	}

	rp := &cfg.Retry
	if rp.MaxAttempts < 0 || rp.BackoffFactor < 0 || rp.MinTimeout < 0 || rp.MaxTimeout < 0 {
		return cfg, eris.Wrapf(ErrInvalidDeck, "deck %q: retry values must not be negative", name)
	}
	if rp.MaxAttempts == 0 {
		rp.MaxAttempts = DefaultMaxAttempts
	}
	if rp.BackoffFactor == 0 {
		rp.BackoffFactor = DefaultBackoffFactor
	}
	if rp.BackoffFactor < 1 {
		return cfg, eris.Wrapf(ErrInvalidDeck, "deck %q: backoff factor must be at least 1", name)
	}
	if rp.MinTimeout == 0 {
		rp.MinTimeout = DefaultMinTimeout
	}
	if rp.MaxTimeout == 0 {
		rp.MaxTimeout = max(DefaultMaxTimeout, rp.MinTimeout)
	}
	if rp.MaxTimeout < rp.MinTimeout {
		return cfg, eris.Wrapf(ErrInvalidDeck, "deck %q: max timeout is below min timeout", name)
	}

	if cfg.IdempotencyKeyTTL < 0 {
		return cfg, eris.Wrapf(ErrInvalidDeck, "deck %q: idempotency ttl must not be negative", name)
	}
	if cfg.IdempotencyKeyTTL == 0 {
		cfg.IdempotencyKeyTTL = DefaultIdempotencyTTL
	}
	return cfg, nil
}
