package match

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/argus-labs/deck-engine/pkg/engine/internal/deck"
	"github.com/argus-labs/deck-engine/pkg/engine/internal/event"
	"github.com/argus-labs/deck-engine/pkg/engine/internal/metrics"
	"github.com/argus-labs/deck-engine/pkg/engine/types"
	"github.com/argus-labs/deck-engine/pkg/statsd"
	"github.com/coocood/freecache"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	ErrMatchNotFound     = eris.New("match not found")
	ErrDuplicateMatch    = eris.New("match id already exists")
	ErrInvalidTransition = eris.New("match is already finished")
	ErrWaitUntilTimeout  = eris.New("wait until timed out")
)

// DefaultCacheSize is the idempotency cache size in bytes. freecache splits it into 256 segments of
// 4 KiB, which holds roughly 10k keys of typical length before live entries are evacuated ahead of
// their ttl.
const DefaultCacheSize = 1 << 20 // 1 MiB

// Controller performs match control on behalf of a running handler. The engine implements it so a
// handler that resumes its own match also puts it back in its arena queue.
type Controller interface {
	CancelMatch(id string) error
	PauseMatch(id string) error
	ResumeMatch(id string) error
}

// Options configures an Executor.
type Options struct {
	Logger  zerolog.Logger
	Tracer  trace.Tracer
	Bus     *event.Bus
	Metrics *metrics.Collector

	CacheSize  int             // idempotency cache size in bytes
	CacheTimer freecache.Timer // nil uses the wall clock

	// ReportPanic is called with every panic recovered from a handler, card or hook.
	ReportPanic func(ctx context.Context, err error)
}

// record is the live state of one match. All fields are guarded by Executor.mu except done, which is
// closed once through doneOnce.
type record struct {
	m    types.Match
	deck *deck.Deck

	enqueued        bool // the id is sitting in an arena queue
	cancelRequested bool
	pauseRequested  bool
	continuation    bool // next run continues the interrupted attempt
	resumeFrom      int  // card index the continuation starts at

	done     chan struct{}
	doneOnce sync.Once
}

func (r *record) signalDone() {
	r.doneOnce.Do(func() { close(r.done) })
}

// Executor owns every match record. It runs the state machine for one attempt at a time and hands
// scheduling decisions (retry delays, requeues) back to the caller instead of acting on them.
type Executor struct {
	log         zerolog.Logger
	tracer      trace.Tracer
	bus         *event.Bus
	metrics     *metrics.Collector
	reportPanic func(ctx context.Context, err error)
	controller  Controller

	cache       *freecache.Cache
	evacuated   atomic.Int64 // last seen cache.EvacuateCount
	warnedEvict atomic.Bool

	mu      sync.RWMutex
	matches map[string]*record
}

// NewExecutor creates an executor.
func NewExecutor(opts Options) *Executor {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("match")
	}
	if opts.Bus == nil {
		opts.Bus = event.NewBus(opts.Logger)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector()
	}

	var cache *freecache.Cache
	if opts.CacheTimer != nil {
		cache = freecache.NewCacheCustomTimer(opts.CacheSize, opts.CacheTimer)
	} else {
		cache = freecache.NewCache(opts.CacheSize)
	}

	e := &Executor{
		log:         opts.Logger,
		tracer:      opts.Tracer,
		bus:         opts.Bus,
		metrics:     opts.Metrics,
		reportPanic: opts.ReportPanic,
		cache:       cache,
		matches:     make(map[string]*record),
	}
	e.controller = e
	return e
}

// SetController routes match control issued from a running handler through c.
func (e *Executor) SetController(c Controller) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.controller = c
}

// CreateOptions are the per-submission options of a match.
type CreateOptions struct {
	IdempotencyKey string
	Metadata       map[string]any
	ExpiresAt      time.Time
}

// CreateMatch registers a new match in the waiting state.
func (e *Executor) CreateMatch(id string, d *deck.Deck, payload any, opts CreateOptions) (types.Match, error) {
	if id == "" {
		return types.Match{}, eris.New("match id is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.matches[id]; ok {
		return types.Match{}, eris.Wrapf(ErrDuplicateMatch, "match %s", id)
	}
	rec := &record{
		m: types.Match{
			ID:             id,
			DeckName:       d.Name,
			State:          types.MatchWaiting,
			Payload:        payload,
			Metadata:       maps.Clone(opts.Metadata),
			IdempotencyKey: opts.IdempotencyKey,
			TotalCards:     d.TotalCards(),
			CreatedAt:      time.Now(),
			ExpiresAt:      opts.ExpiresAt,
		},
		deck: d,
		done: make(chan struct{}),
	}
	e.matches[id] = rec
	return rec.m.Clone(), nil
}

// Get returns a snapshot of a match.
func (e *Executor) Get(id string) (types.Match, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rec, ok := e.matches[id]
	if !ok {
		return types.Match{}, false
	}
	return rec.m.Clone(), true
}

// Done returns a channel that is closed once the match reaches a terminal state.
func (e *Executor) Done(id string) (<-chan struct{}, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rec, ok := e.matches[id]
	if !ok {
		return nil, false
	}
	return rec.done, true
}

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	DeckName string
	States   []types.MatchState
	Limit    int
}

// List returns matching snapshots ordered by creation time, oldest first.
func (e *Executor) List(f ListFilter) []types.Match {
	e.mu.RLock()
	out := make([]types.Match, 0, len(e.matches))
	for _, rec := range e.matches {
		if f.DeckName != "" && rec.m.DeckName != f.DeckName {
			continue
		}
		if len(f.States) > 0 && !slices.Contains(f.States, rec.m.State) {
			continue
		}
		out = append(out, rec.m.Clone())
	}
	e.mu.RUnlock()

	slices.SortFunc(out, func(a, b types.Match) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// Counts returns the number of matches per state.
func (e *Executor) Counts() map[types.MatchState]int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	counts := make(map[types.MatchState]int)
	for _, rec := range e.matches {
		counts[rec.m.State]++
	}
	return counts
}

// Len returns the number of match records held.
func (e *Executor) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.matches)
}

// Cleanup deletes terminal matches that ended at least maxAge ago and returns how many were removed.
func (e *Executor) Cleanup(maxAge time.Duration) int {
	now := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for id, rec := range e.matches {
		if !rec.m.State.IsTerminal() || rec.m.Age(now) < maxAge {
			continue
		}
		delete(e.matches, id)
		removed++
	}
	return removed
}

// -------------------------------------------------------------------------------------------------
// Idempotency
// -------------------------------------------------------------------------------------------------

// CheckIdempotency returns the match previously stored under key. Entries whose match has since been
// cleaned up count as a miss.
func (e *Executor) CheckIdempotency(key string) (types.Match, bool) {
	id, err := e.cache.Get([]byte(key))
	if err != nil {
		return types.Match{}, false
	}
	return e.Get(string(id))
}

// StoreIdempotency maps key to matchID for ttl. The cache works in whole seconds, so ttl is rounded
// up with a floor of one second.
func (e *Executor) StoreIdempotency(key, matchID string, ttl time.Duration) error {
	if err := e.cache.Set([]byte(key), []byte(matchID), ttlSeconds(ttl)); err != nil {
		return eris.Wrap(err, "failed to store idempotency key")
	}
	e.checkEvacuations()
	return nil
}

// checkEvacuations reports live entries the cache pushed out or moved to make room. A growing count
// means idempotency keys may be forgotten before their ttl and the cache size should be raised.
func (e *Executor) checkEvacuations() {
	n := e.cache.EvacuateCount()
	prev := e.evacuated.Swap(n)
	if n <= prev {
		return
	}
	statsd.EmitCacheEvacuations(n - prev)
	if !e.warnedEvict.Swap(true) {
		e.log.Warn().
			Int64("evacuated", n).
			Int64("entries", e.cache.EntryCount()).
			Msg("idempotency cache is full, keys may expire early; raise DECK_ENGINE_IDEMPOTENCY_CACHE_SIZE")
	}
}

// IdempotencyEntries returns the number of live cache entries.
func (e *Executor) IdempotencyEntries() int64 {
	return e.cache.EntryCount()
}

// IdempotencyEvacuations returns how many live entries the cache evacuated for space so far.
func (e *Executor) IdempotencyEvacuations() int64 {
	return e.cache.EvacuateCount()
}

func ttlSeconds(ttl time.Duration) int {
	secs := int((ttl + time.Second - 1) / time.Second)
	return max(secs, 1)
}

// -------------------------------------------------------------------------------------------------
// Events
// -------------------------------------------------------------------------------------------------

// emit publishes a match event. snap must be a snapshot taken under the lock.
func (e *Executor) emit(name event.Name, snap *types.Match, arena string, stepErr *types.MatchError, data map[string]any) {
	var err error
	if stepErr != nil {
		err = stepErr
	}
	e.bus.Emit(event.Event{
		Name:     name,
		MatchID:  snap.ID,
		DeckName: snap.DeckName,
		Arena:    arena,
		Match:    snap,
		Err:      err,
		Data:     data,
	})
}
