package types_test

import (
	"testing"
	"time"

	"github.com/argus-labs/deck-engine/pkg/engine/types"
	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Backoff(t *testing.T) {
	t.Parallel()

	p := types.RetryPolicy{BackoffFactor: 2, MinTimeout: 100 * time.Millisecond, MaxTimeout: time.Second}
	assert.Equal(t, 200*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 800*time.Millisecond, p.Backoff(3))
	assert.Equal(t, time.Second, p.Backoff(4), "clamped to max")
	assert.Equal(t, time.Second, p.Backoff(5000), "overflow is clamped too")

	flat := types.RetryPolicy{BackoffFactor: 1, MinTimeout: 50 * time.Millisecond, MaxTimeout: time.Second}
	assert.Equal(t, 50*time.Millisecond, flat.Backoff(7))
}

func TestMatchState_IsTerminal(t *testing.T) {
	t.Parallel()

	terminal := map[types.MatchState]bool{
		types.MatchVictory:   true,
		types.MatchDefeat:    true,
		types.MatchCancelled: true,
		types.MatchExpired:   true,
		types.MatchCrashed:   true,
		types.MatchTimedOut:  true,
	}
	for _, s := range types.AllMatchStates {
		assert.Equal(t, terminal[s], s.IsTerminal(), "state %s", s)
	}
	assert.True(t, types.MatchWaiting.IsRunnable())
	assert.True(t, types.MatchQueued.IsRunnable())
	assert.False(t, types.MatchPaused.IsRunnable())
}

func TestMatch_CloneIsDeep(t *testing.T) {
	t.Parallel()

	m := types.Match{
		ID:          "m1",
		Metadata:    map[string]any{"k": "v"},
		CardsPlayed: []types.PlayedCard{{Name: "a"}},
		Errors:      []types.MatchError{{Message: "boom"}},
		Log:         []types.LogEntry{{Message: "hello"}},
	}
	c := m.Clone()
	c.Metadata["k"] = "changed"
	c.CardsPlayed[0].Name = "changed"
	c.Errors[0].Message = "changed"
	c.Log[0].Message = "changed"

	assert.Equal(t, "v", m.Metadata["k"])
	assert.Equal(t, "a", m.CardsPlayed[0].Name)
	assert.Equal(t, "boom", m.Errors[0].Message)
	assert.Equal(t, "hello", m.Log[0].Message)
}

func TestCard_Variants(t *testing.T) {
	t.Parallel()

	h := types.HandlerCard("fn", func(types.Context) (any, error) { return 1, nil })
	assert.Equal(t, types.CardKindHandler, h.Kind())
	assert.True(t, h.Valid())

	var nilCard types.Card
	assert.False(t, nilCard.Valid())
	assert.Equal(t, "object", types.CardKindObject.String())
}
