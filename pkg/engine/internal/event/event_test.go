package event_test

import (
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/argus-labs/deck-engine/pkg/engine/internal/event"
	"github.com/argus-labs/deck-engine/pkg/testutils"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_EmitOrder(t *testing.T) {
	t.Parallel()

	bus := event.NewBus(zerolog.Nop())
	var got []string
	bus.On(event.Wildcard, func(e event.Event) error {
		got = append(got, "wildcard:"+string(e.Name))
		return nil
	})
	bus.On(event.MatchQueued, func(event.Event) error {
		got = append(got, "first")
		return nil
	})
	bus.On(event.MatchQueued, func(event.Event) error {
		got = append(got, "second")
		return nil
	})

	failed := bus.Emit(event.Event{Name: event.MatchQueued, MatchID: "m1"})
	assert.Zero(t, failed)
	assert.Equal(t, []string{"first", "second", "wildcard:match:queued"}, got)
}

func TestBus_HandlerIsolation(t *testing.T) {
	t.Parallel()

	bus := event.NewBus(zerolog.Nop())
	var calls int
	bus.On(event.MatchDefeat, func(event.Event) error { panic("boom") })
	bus.On(event.MatchDefeat, func(event.Event) error { return errors.New("nope") })
	bus.On(event.MatchDefeat, func(event.Event) error {
		calls++
		return nil
	})

	failed := bus.Emit(event.Event{Name: event.MatchDefeat})
	assert.Equal(t, 2, failed)
	assert.Equal(t, 1, calls, "healthy handler must still run")
}

func TestBus_Off(t *testing.T) {
	t.Parallel()

	bus := event.NewBus(zerolog.Nop())
	var calls int
	id := bus.On(event.MatchVictory, func(event.Event) error {
		calls++
		return nil
	})
	require.Equal(t, 1, bus.Count())

	assert.True(t, bus.Off(event.MatchVictory, id))
	assert.False(t, bus.Off(event.MatchVictory, id), "second Off is a no-op")
	assert.Zero(t, bus.Count())

	bus.Emit(event.Event{Name: event.MatchVictory})
	assert.Zero(t, calls)
}

func TestBus_OffDuringEmit(t *testing.T) {
	t.Parallel()

	bus := event.NewBus(zerolog.Nop())
	var second int
	var firstID event.SubscriptionID
	firstID = bus.On(event.MatchStarted, func(event.Event) error {
		bus.Off(event.MatchStarted, firstID)
		return nil
	})
	bus.On(event.MatchStarted, func(event.Event) error {
		second++
		return nil
	})

	bus.Emit(event.Event{Name: event.MatchStarted})
	bus.Emit(event.Event{Name: event.MatchStarted})
	assert.Equal(t, 2, second)
	assert.Equal(t, 1, bus.CountFor(event.MatchStarted))
}

func TestBus_Clear(t *testing.T) {
	t.Parallel()

	bus := event.NewBus(zerolog.Nop())
	bus.On(event.MatchQueued, func(event.Event) error { return nil })
	bus.On(event.Wildcard, func(event.Event) error { return nil })
	require.Equal(t, 2, bus.Count())

	bus.Clear()
	assert.Zero(t, bus.Count())
}

func TestBus_ConcurrentEmit(t *testing.T) {
	t.Parallel()

	bus := event.NewBus(zerolog.Nop())
	var mu sync.Mutex
	count := 0
	bus.On(event.MatchVictory, func(event.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				bus.Emit(event.Event{Name: event.MatchVictory})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1600, count)
}

// -------------------------------------------------------------------------------------------------
// Model-based fuzzing bus subscriptions
// -------------------------------------------------------------------------------------------------
// Random sequences of On, Off and Emit are applied to the bus and to a map of live subscriptions.
// After every emit the set of handlers that ran must equal the model's live set, in order.
// -------------------------------------------------------------------------------------------------

func TestBus_ModelFuzz(t *testing.T) {
	t.Parallel()
	prng := testutils.NewRand(t)

	const (
		opsMax = 1 << 12
		opOn   = "on"
		opOff  = "off"
		opEmit = "emit"
	)
	names := []event.Name{event.MatchQueued, event.MatchVictory, event.MatchDefeat, event.Wildcard}

	bus := event.NewBus(zerolog.Nop())
	model := make(map[event.Name][]event.SubscriptionID)
	var ran []event.SubscriptionID

	weights := testutils.RandOpWeights(prng, []string{opOn, opOff, opEmit})
	for range opsMax {
		switch testutils.RandWeightedOp(prng, weights) {
		case opOn:
			name := names[prng.IntN(len(names))]
			var id event.SubscriptionID
			id = bus.On(name, func(event.Event) error {
				ran = append(ran, id)
				return nil
			})
			model[name] = append(model[name], id)

		case opOff:
			if len(model) == 0 {
				continue
			}
			name := testutils.RandMapKey(prng, model)
			ids := model[name]
			i := prng.IntN(len(ids))
			require.True(t, bus.Off(name, ids[i]))
			model[name] = slices.Delete(ids, i, i+1)
			if len(model[name]) == 0 {
				delete(model, name)
			}

		case opEmit:
			name := names[prng.IntN(len(names)-1)] // never emit the wildcard itself
			ran = ran[:0]
			bus.Emit(event.Event{Name: name})

			want := slices.Concat(model[name], model[event.Wildcard])
			if len(want) == 0 {
				assert.Empty(t, ran)
			} else {
				assert.Equal(t, want, ran)
			}

		default:
			panic("unreachable")
		}
	}

	total := 0
	for _, ids := range model {
		total += len(ids)
	}
	assert.Equal(t, total, bus.Count())
}
