package metrics

import (
	"slices"
	"sync"
	"time"

	"github.com/argus-labs/deck-engine/pkg/engine/types"
	"github.com/argus-labs/deck-engine/pkg/statsd"
)

// DeckStats is the aggregated outcome of every finished match of one deck.
type DeckStats struct {
	DeckName        string        `json:"deckName"`
	TotalMatches    int64         `json:"totalMatches"`
	Victories       int64         `json:"victories"`
	Defeats         int64         `json:"defeats"`
	TotalDuration   time.Duration `json:"totalDuration"`
	AverageDuration time.Duration `json:"averageDuration"`
	WinRate         float64       `json:"winRate"`
	TotalAttempts   int64         `json:"totalAttempts"`
	LastMatchAt     time.Time     `json:"lastMatchAt,omitzero"`
}

// Collector keeps per-deck counters. It is a read model only and never influences scheduling.
type Collector struct {
	mu    sync.RWMutex
	stats map[string]*DeckStats
	order []string
}

func NewCollector() *Collector {
	return &Collector{stats: make(map[string]*DeckStats)}
}

// InitializeDeckStats creates zeroed stats for name. Existing stats are left untouched.
func (c *Collector) InitializeDeckStats(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.init(name)
}

func (c *Collector) init(name string) *DeckStats {
	if s, ok := c.stats[name]; ok {
		return s
	}
	s := &DeckStats{DeckName: name}
	c.stats[name] = s
	c.order = append(c.order, name)
	return s
}

// UpdateMetrics folds a finished match into its deck's stats. Matches that did not end in victory or
// defeat are ignored. The caller guarantees each match is folded in exactly once.
func (c *Collector) UpdateMetrics(m *types.Match) {
	if m.State != types.MatchVictory && m.State != types.MatchDefeat {
		return
	}

	c.mu.Lock()
	s := c.init(m.DeckName)
	s.TotalMatches++
	if m.State == types.MatchVictory {
		s.Victories++
	} else {
		s.Defeats++
	}
	s.TotalDuration += m.Duration
	s.AverageDuration = s.TotalDuration / time.Duration(s.TotalMatches)
	s.WinRate = float64(s.Victories) / float64(s.TotalMatches)
	s.TotalAttempts += int64(m.Attempts)
	s.LastMatchAt = m.EndedAt
	if s.LastMatchAt.IsZero() {
		s.LastMatchAt = time.Now()
	}
	c.mu.Unlock()

	statsd.EmitMatchStat(m.DeckName, string(m.State), m.Duration)
}

// DeckStats returns a copy of the stats for name.
func (c *Collector) DeckStats(name string) (DeckStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.stats[name]
	if !ok {
		return DeckStats{}, false
	}
	return *s, true
}

// AllStats returns a copy of every deck's stats in initialization order.
func (c *Collector) AllStats() []DeckStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]DeckStats, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, *c.stats[name])
	}
	return out
}

// Reset zeroes the stats of every known deck and keeps the decks registered.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, name := range c.order {
		c.stats[name] = &DeckStats{DeckName: name}
	}
}

// Decks returns the names of every deck with stats.
func (c *Collector) Decks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.order)
}
