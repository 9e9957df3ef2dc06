package engine

import (
	"time"

	"github.com/argus-labs/deck-engine/pkg/engine/internal/event"
	"github.com/argus-labs/deck-engine/pkg/engine/internal/match"
	"github.com/argus-labs/deck-engine/pkg/engine/types"
	"github.com/rotisserie/eris"
)

// GlobalStatus summarizes the whole engine.
type GlobalStatus struct {
	Processing         bool                     `json:"processing"`
	ShuttingDown       bool                     `json:"shuttingDown"`
	Uptime             time.Duration            `json:"uptime"`
	Decks              []DeckInfo               `json:"decks"`
	Arenas             []ArenaStatus            `json:"arenas"`
	Matches            map[types.MatchState]int `json:"matches"`
	Queued             int                      `json:"queued"`
	InFlight           int                      `json:"inFlight"`
	PendingRetries     int                      `json:"pendingRetries"`
	IdempotencyEntries int64                    `json:"idempotencyEntries"`
	// Live idempotency keys evacuated before their ttl. Non-zero means the cache is too small.
	IdempotencyEvictions int64    `json:"idempotencyEvictions"`
	Subscriptions        int      `json:"subscriptions"`
	Capabilities         []string `json:"capabilities"`
}

// DeckStatus summarizes one deck.
type DeckStatus struct {
	Deck    DeckInfo                 `json:"deck"`
	Arena   ArenaStatus              `json:"arena"`
	Stats   DeckStats                `json:"stats"`
	Matches map[types.MatchState]int `json:"matches"`
}

// HealthStatus is a cheap liveness summary.
type HealthStatus struct {
	Healthy    bool          `json:"healthy"`
	Status     string        `json:"status"`
	Processing bool          `json:"processing"`
	Decks      int           `json:"decks"`
	Uptime     time.Duration `json:"uptime"`
	Timestamp  time.Time     `json:"timestamp"`
}

// CleanupResult reports how many finished matches a cleanup removed.
type CleanupResult struct {
	Cleaned int `json:"cleaned"`
}

// GlobalStatus aggregates decks, arenas and matches.
func (e *Engine) GlobalStatus() GlobalStatus {
	queued, inFlight := e.arenas.Totals()
	names := make([]string, len(e.capabilities))
	for i, c := range e.capabilities {
		names[i] = c.Name()
	}
	return GlobalStatus{
		Processing:           e.IsProcessing(),
		ShuttingDown:         e.closed.Load(),
		Uptime:               time.Since(e.started),
		Decks:                e.Decks(),
		Arenas:               e.arenas.Statuses(),
		Matches:              e.exec.Counts(),
		Queued:               queued,
		InFlight:             inFlight,
		PendingRetries:       e.pendingRetries(),
		IdempotencyEntries:   e.exec.IdempotencyEntries(),
		IdempotencyEvictions: e.exec.IdempotencyEvacuations(),
		Subscriptions:        e.bus.Count(),
		Capabilities:         names,
	}
}

// DeckStatus aggregates one deck, its arena and its matches.
func (e *Engine) DeckStatus(name string) (DeckStatus, error) {
	d, ok := e.decks.Get(name)
	if !ok {
		return DeckStatus{}, eris.Wrapf(ErrDeckNotFound, "deck %q", name)
	}
	arenaStatus, _ := e.arenas.Status(d.Config.Arena.Name)
	stats, _ := e.metrics.DeckStats(name)

	counts := make(map[types.MatchState]int)
	for _, m := range e.exec.List(match.ListFilter{DeckName: name}) {
		counts[m.State]++
	}
	return DeckStatus{Deck: d.Info(), Arena: arenaStatus, Stats: stats, Matches: counts}, nil
}

// HealthCheck reports whether the engine accepts work.
func (e *Engine) HealthCheck() HealthStatus {
	h := HealthStatus{
		Healthy:    !e.closed.Load(),
		Status:     "healthy",
		Processing: e.IsProcessing(),
		Decks:      e.decks.Len(),
		Uptime:     time.Since(e.started),
		Timestamp:  time.Now(),
	}
	if !h.Healthy {
		h.Status = "shutdown"
	}
	return h
}

// Metrics returns the stats of every deck in creation order.
func (e *Engine) Metrics() []DeckStats {
	return e.metrics.AllStats()
}

// ResetMetrics zeroes the stats of every known deck.
func (e *Engine) ResetMetrics() {
	e.metrics.Reset()
}

// Cleanup removes finished matches that ended at least maxAge ago.
func (e *Engine) Cleanup(maxAge time.Duration) CleanupResult {
	n := e.exec.Cleanup(maxAge)
	if n > 0 {
		e.log.Debug().Int("cleaned", n).Dur("max_age", maxAge).Msg("finished matches cleaned up")
	}
	e.bus.Emit(event.Event{
		Name: event.EngineCleanup,
		Data: map[string]any{"cleaned": n, "maxAge": maxAge.String()},
	})
	return CleanupResult{Cleaned: n}
}

// sweep is the periodic cleanup job.
func (e *Engine) sweep() {
	e.Cleanup(e.options.CleanupMaxAge)
}
