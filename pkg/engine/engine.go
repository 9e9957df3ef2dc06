// Package engine runs decks: named pipelines of cards, played as matches that are queued per arena,
// admitted under a concurrency ceiling, retried with backoff and observed through events and metrics.
package engine

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/argus-labs/deck-engine/pkg/engine/internal/arena"
	"github.com/argus-labs/deck-engine/pkg/engine/internal/deck"
	"github.com/argus-labs/deck-engine/pkg/engine/internal/event"
	"github.com/argus-labs/deck-engine/pkg/engine/internal/match"
	"github.com/argus-labs/deck-engine/pkg/engine/internal/metrics"
	"github.com/argus-labs/deck-engine/pkg/statsd"
	"github.com/argus-labs/deck-engine/pkg/telemetry"
	"github.com/go-co-op/gocron/v2"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Engine composes the deck registry, arena scheduler, match executor, event bus and metrics collector.
// Create one with New and release it with Shutdown.
type Engine struct {
	options Options
	tel     telemetry.Telemetry
	log     zerolog.Logger
	started time.Time

	bus     *event.Bus
	metrics *metrics.Collector
	arenas  *arena.Scheduler
	decks   *deck.Registry
	exec    *match.Executor

	capabilities []Capability
	cron         gocron.Scheduler

	// Parent of every match context, cancelled by Shutdown.
	ctx    context.Context //nolint:containedctx // engine lifetime
	cancel context.CancelFunc

	// Orders admission (idempotency check, enqueue, dequeue) against match control so the arena
	// queues and the executor's queued flags never disagree. Events are never emitted under it.
	schedMu sync.Mutex

	loopMu     sync.Mutex
	processing bool
	stopLoop   chan struct{}
	loopDone   chan struct{}
	wake       chan struct{}

	timersMu sync.Mutex
	timers   map[string]*time.Timer

	inflight sync.WaitGroup
	closed   atomic.Bool
}

// New creates an engine from the DECK_ENGINE_* environment, overridden by the non-zero fields of opts.
func New(opts Options) (*Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, eris.Wrap(err, "failed to load engine config")
	}
	options := newDefaultOptions()
	cfg.applyToOptions(&options)
	options.apply(opts)
	if err := options.validate(); err != nil {
		return nil, eris.Wrap(err, "invalid engine options")
	}

	tel := telemetry.Default(telemetry.DefaultServiceName)
	if options.Telemetry != nil {
		tel = *options.Telemetry
	}

	if options.StatsdAddress != "" {
		if err := statsd.Init(options.StatsdAddress, options.StatsdTags); err != nil {
			return nil, eris.Wrap(err, "failed to initialize statsd")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		options: options,
		tel:     tel,
		log:     tel.GetLogger("engine"),
		started: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
		wake:    make(chan struct{}, 1),
		timers:  make(map[string]*time.Timer),
	}

	e.bus = event.NewBus(tel.GetLogger("events"))
	e.metrics = metrics.NewCollector()
	e.arenas = arena.NewScheduler(options.DefaultArenaConcurrency)
	e.decks = deck.NewRegistry()
	e.exec = match.NewExecutor(match.Options{
		Logger:      tel.GetLogger("match"),
		Tracer:      tel.Tracer,
		Bus:         e.bus,
		Metrics:     e.metrics,
		CacheSize:   options.IdempotencyCacheSize,
		ReportPanic: e.tel.CaptureException,
	})
	e.exec.SetController(e)

	cron, err := gocron.NewScheduler()
	if err != nil {
		cancel()
		return nil, eris.Wrap(err, "failed to create cleanup scheduler")
	}
	_, err = cron.NewJob(
		gocron.DurationJob(options.CleanupInterval),
		gocron.NewTask(e.sweep),
		gocron.WithName("match-cleanup"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		cancel()
		_ = cron.Shutdown()
		return nil, eris.Wrap(err, "failed to schedule match cleanup")
	}
	cron.Start()
	e.cron = cron

	caps := slices.Clone(options.Capabilities)
	if !options.DisableEventLog {
		caps = append([]Capability{NewEventLogger(nil)}, caps...)
	}
	for _, c := range caps {
		if err := c.Attach(e); err != nil {
			_ = e.Shutdown(context.Background())
			return nil, eris.Wrapf(err, "failed to attach capability %s", c.Name())
		}
		e.capabilities = append(e.capabilities, c)
	}

	e.log.Info().
		Dur("tick_interval", options.TickInterval).
		Dur("cleanup_interval", options.CleanupInterval).
		Int("default_arena_concurrency", options.DefaultArenaConcurrency).
		Msg("engine initialized")
	e.bus.Emit(event.Event{Name: event.EngineInitialized})
	return e, nil
}

// Shutdown stops the scheduling loop, the cleanup job and pending retries, cancels the context of
// running matches and waits for them until ctx is done. It is safe to call more than once.
func (e *Engine) Shutdown(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.log.Info().Msg("shutting down engine")

	var errs []error
	e.stopProcessing()
	if e.cron != nil {
		if err := e.cron.Shutdown(); err != nil {
			errs = append(errs, eris.Wrap(err, "failed to stop cleanup scheduler"))
		}
	}
	e.stopTimers()
	e.cancel()

	drained := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		errs = append(errs, eris.Wrap(ctx.Err(), "matches still running at shutdown"))
	}

	e.bus.Emit(event.Event{Name: event.EngineShutdown})

	for _, c := range slices.Backward(e.capabilities) {
		closer, ok := c.(Closer)
		if !ok {
			continue
		}
		if err := closer.Close(ctx); err != nil {
			errs = append(errs, eris.Wrapf(err, "failed to close capability %s", c.Name()))
		}
	}
	e.bus.Clear()

	if e.options.StatsdAddress != "" {
		if err := statsd.Close(); err != nil {
			errs = append(errs, eris.Wrap(err, "failed to close statsd client"))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		e.log.Error().Err(err).Msg("engine shutdown finished with errors")
	} else {
		e.log.Info().Msg("engine shutdown complete")
	}
	return err
}

// On subscribes handler to an event. EventAll receives every event.
func (e *Engine) On(name EventName, handler EventHandler) SubscriptionID {
	return e.bus.On(name, handler)
}

// Off removes a subscription.
func (e *Engine) Off(name EventName, id SubscriptionID) bool {
	return e.bus.Off(name, id)
}

// Logger returns a component logger derived from the engine's telemetry.
func (e *Engine) Logger(component string) zerolog.Logger {
	return e.tel.GetLogger(component)
}

// -------------------------------------------------------------------------------------------------
// Decks
// -------------------------------------------------------------------------------------------------

// CreateDeck validates and registers a deck, creating its arena on first use. An arena keeps the
// ceiling of the first deck that named it.
func (e *Engine) CreateDeck(name string, cfg DeckConfig) (*DeckFacade, error) {
	if e.closed.Load() {
		return nil, ErrShutdown
	}
	d, err := e.decks.Create(name, cfg)
	if err != nil {
		return nil, err
	}
	e.arenas.InitializeArena(d.Config.Arena)
	e.metrics.InitializeDeckStats(name)

	e.log.Debug().Str("deck", name).Str("arena", d.Config.Arena.Name).Msg("deck created")
	e.bus.Emit(event.Event{Name: event.DeckCreated, DeckName: name, Arena: d.Config.Arena.Name})
	return &DeckFacade{engine: e, name: name}, nil
}

// Deck returns the facade of a registered deck.
func (e *Engine) Deck(name string) (*DeckFacade, bool) {
	if _, ok := e.decks.Get(name); !ok {
		return nil, false
	}
	return &DeckFacade{engine: e, name: name}, true
}

// Decks describes every registered deck in creation order.
func (e *Engine) Decks() []DeckInfo {
	list := e.decks.List()
	out := make([]DeckInfo, len(list))
	for i, d := range list {
		out[i] = d.Info()
	}
	return out
}

// PauseDeck makes PlayMatch reject the deck with ErrDeckPaused. Matches already queued still run.
func (e *Engine) PauseDeck(name string) error { return e.decks.Pause(name) }

// ResumeDeck undoes PauseDeck.
func (e *Engine) ResumeDeck(name string) error { return e.decks.Resume(name) }

// DisableDeck makes PlayMatch reject the deck with ErrDeckDisabled.
func (e *Engine) DisableDeck(name string) error { return e.decks.Disable(name) }

// EnableDeck undoes DisableDeck.
func (e *Engine) EnableDeck(name string) error { return e.decks.Enable(name) }

// deckForPlay returns the deck if it exists and currently accepts matches.
func (e *Engine) deckForPlay(name string) (*deck.Deck, error) {
	d, ok := e.decks.Get(name)
	switch {
	case !ok:
		return nil, eris.Wrapf(ErrDeckNotFound, "deck %q", name)
	case !d.Enabled():
		return nil, eris.Wrapf(ErrDeckDisabled, "deck %q", name)
	case d.Paused():
		return nil, eris.Wrapf(ErrDeckPaused, "deck %q", name)
	}
	return d, nil
}
