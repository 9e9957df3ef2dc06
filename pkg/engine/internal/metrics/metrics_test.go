package metrics_test

import (
	"sync"
	"testing"
	"time"

	"github.com/argus-labs/deck-engine/pkg/engine/internal/metrics"
	"github.com/argus-labs/deck-engine/pkg/engine/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finished(deck string, state types.MatchState, d time.Duration, attempts int) *types.Match {
	return &types.Match{
		DeckName: deck,
		State:    state,
		Duration: d,
		Attempts: attempts,
		EndedAt:  time.Now(),
	}
}

func TestCollector_UpdateMetrics(t *testing.T) {
	t.Parallel()

	c := metrics.NewCollector()
	c.InitializeDeckStats("echo")

	c.UpdateMetrics(finished("echo", types.MatchVictory, 10*time.Millisecond, 1))
	c.UpdateMetrics(finished("echo", types.MatchVictory, 30*time.Millisecond, 1))
	c.UpdateMetrics(finished("echo", types.MatchDefeat, 20*time.Millisecond, 3))

	s, ok := c.DeckStats("echo")
	require.True(t, ok)
	assert.Equal(t, int64(3), s.TotalMatches)
	assert.Equal(t, int64(2), s.Victories)
	assert.Equal(t, int64(1), s.Defeats)
	assert.Equal(t, 60*time.Millisecond, s.TotalDuration)
	assert.Equal(t, 20*time.Millisecond, s.AverageDuration)
	assert.InDelta(t, 2.0/3.0, s.WinRate, 1e-9)
	assert.Equal(t, int64(5), s.TotalAttempts)
	assert.False(t, s.LastMatchAt.IsZero())
}

func TestCollector_IgnoresNonFinalStates(t *testing.T) {
	t.Parallel()

	c := metrics.NewCollector()
	for _, state := range []types.MatchState{types.MatchCancelled, types.MatchExpired, types.MatchQueued} {
		c.UpdateMetrics(finished("echo", state, time.Second, 1))
	}
	_, ok := c.DeckStats("echo")
	assert.False(t, ok)
}

func TestCollector_ResetKeepsDecks(t *testing.T) {
	t.Parallel()

	c := metrics.NewCollector()
	c.InitializeDeckStats("a")
	c.InitializeDeckStats("b")
	c.InitializeDeckStats("a")
	c.UpdateMetrics(finished("b", types.MatchVictory, time.Millisecond, 1))

	c.Reset()
	all := c.AllStats()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].DeckName)
	assert.Equal(t, metrics.DeckStats{DeckName: "b"}, all[1])
	assert.Equal(t, []string{"a", "b"}, c.Decks())
}

func TestCollector_Concurrent(t *testing.T) {
	t.Parallel()

	c := metrics.NewCollector()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state := types.MatchVictory
			if i%5 == 0 {
				state = types.MatchDefeat
			}
			c.UpdateMetrics(finished("load", state, time.Millisecond, 1))
		}()
	}
	wg.Wait()

	s, ok := c.DeckStats("load")
	require.True(t, ok)
	assert.Equal(t, int64(50), s.TotalMatches)
	assert.Equal(t, int64(10), s.Defeats)
	assert.InDelta(t, 0.8, s.WinRate, 1e-9)
}
