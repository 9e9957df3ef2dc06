package arena_test

import (
	"fmt"
	"slices"
	"testing"

	"github.com/argus-labs/deck-engine/pkg/engine/internal/arena"
	"github.com/argus-labs/deck-engine/pkg/engine/types"
	"github.com/argus-labs/deck-engine/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_FIFOWithinLimit(t *testing.T) {
	t.Parallel()

	s := arena.NewScheduler(10)
	require.True(t, s.InitializeArena(types.ArenaConfig{Name: "default", ConcurrencyLimit: 2}))

	for _, id := range []string{"a", "b", "c"} {
		require.True(t, s.Enqueue("default", id))
	}

	id, ok := s.DequeueNext("default")
	require.True(t, ok)
	assert.Equal(t, "a", id)
	id, ok = s.DequeueNext("default")
	require.True(t, ok)
	assert.Equal(t, "b", id)

	// Ceiling reached.
	assert.False(t, s.CanAdmitMore("default"))
	_, ok = s.DequeueNext("default")
	assert.False(t, ok)

	s.CompleteMatch("default", "a", false)
	id, ok = s.DequeueNext("default")
	require.True(t, ok)
	assert.Equal(t, "c", id)

	st, ok := s.Status("default")
	require.True(t, ok)
	assert.Equal(t, 2, st.InFlight)
	assert.Zero(t, st.Queued)
	assert.Equal(t, int64(1), st.Failed)
	assert.InDelta(t, 1.0, st.Utilization, 1e-9)
}

func TestScheduler_InitializeIsIdempotent(t *testing.T) {
	t.Parallel()

	s := arena.NewScheduler(4)
	assert.True(t, s.InitializeArena(types.ArenaConfig{Name: "x", ConcurrencyLimit: 1}))
	assert.False(t, s.InitializeArena(types.ArenaConfig{Name: "x", ConcurrencyLimit: 9}))
	assert.True(t, s.InitializeArena(types.ArenaConfig{Name: "y"}))

	st, _ := s.Status("x")
	assert.Equal(t, 1, st.ConcurrencyLimit)
	st, _ = s.Status("y")
	assert.Equal(t, 4, st.ConcurrencyLimit, "default limit applies")
	assert.Equal(t, []string{"x", "y"}, s.Names())
}

func TestScheduler_UnknownArena(t *testing.T) {
	t.Parallel()

	s := arena.NewScheduler(1)
	assert.False(t, s.Enqueue("nope", "m"))
	assert.False(t, s.CanAdmitMore("nope"))
	_, ok := s.DequeueNext("nope")
	assert.False(t, ok)
	assert.False(t, s.Pause("nope"))
	assert.False(t, s.Remove("nope", "m"))
	s.CompleteMatch("nope", "m", true)
	_, ok = s.Status("nope")
	assert.False(t, ok)
}

func TestScheduler_PauseKeepsQueue(t *testing.T) {
	t.Parallel()

	s := arena.NewScheduler(1)
	s.InitializeArena(types.ArenaConfig{Name: "a"})
	s.Enqueue("a", "m1")
	require.True(t, s.Pause("a"))

	_, ok := s.DequeueNext("a")
	assert.False(t, ok)
	st, _ := s.Status("a")
	assert.True(t, st.Paused)
	assert.Equal(t, 1, st.Queued)

	require.True(t, s.Resume("a"))
	id, ok := s.DequeueNext("a")
	require.True(t, ok)
	assert.Equal(t, "m1", id)
}

func TestScheduler_Remove(t *testing.T) {
	t.Parallel()

	s := arena.NewScheduler(1)
	s.InitializeArena(types.ArenaConfig{Name: "a"})
	s.Enqueue("a", "m1")
	s.Enqueue("a", "m2")

	assert.True(t, s.Remove("a", "m1"))
	assert.False(t, s.Remove("a", "m1"))
	id, _ := s.DequeueNext("a")
	assert.Equal(t, "m2", id)
}

func TestScheduler_CompleteNeverUnderflows(t *testing.T) {
	t.Parallel()

	s := arena.NewScheduler(1)
	s.InitializeArena(types.ArenaConfig{Name: "a"})
	s.CompleteMatch("a", "ghost", true)
	s.Release("a")
	st, _ := s.Status("a")
	assert.Zero(t, st.InFlight)
}

func TestScheduler_ReleaseDoesNotCount(t *testing.T) {
	t.Parallel()

	s := arena.NewScheduler(1)
	s.InitializeArena(types.ArenaConfig{Name: "a"})
	s.Enqueue("a", "m1")
	_, ok := s.DequeueNext("a")
	require.True(t, ok)
	s.Release("a")

	st, _ := s.Status("a")
	assert.Zero(t, st.InFlight)
	assert.Zero(t, st.Completed)
	assert.Zero(t, st.Failed)
}

// -------------------------------------------------------------------------------------------------
// Model-based fuzzing scheduler operations
// -------------------------------------------------------------------------------------------------
// Random operations are applied to the scheduler and to a model made of plain slices and counters.
// After every operation the model and the scheduler must agree, and no arena may ever run more
// matches than its ceiling.
// -------------------------------------------------------------------------------------------------

type arenaModel struct {
	limit    int
	queue    []string
	inFlight []string
	paused   bool
}

func TestScheduler_ModelFuzz(t *testing.T) {
	t.Parallel()
	prng := testutils.NewRand(t)

	const (
		opsMax     = 1 << 14
		opEnqueue  = "enqueue"
		opDequeue  = "dequeue"
		opComplete = "complete"
		opRemove   = "remove"
		opPause    = "pause"
		opResume   = "resume"
	)

	impl := arena.NewScheduler(3)
	model := make(map[string]*arenaModel)
	var names []string

	numArenas := prng.IntN(4) + 1
	for i := range numArenas {
		name := fmt.Sprintf("arena-%d", i)
		limit := prng.IntN(4) + 1
		require.True(t, impl.InitializeArena(types.ArenaConfig{Name: name, ConcurrencyLimit: limit}))
		model[name] = &arenaModel{limit: limit}
		names = append(names, name)
	}

	ops := []string{opEnqueue, opDequeue, opComplete, opRemove, opPause, opResume}
	weights := testutils.RandOpWeights(prng, ops)
	next := 0

	for range opsMax {
		name := names[prng.IntN(len(names))]
		m := model[name]

		switch testutils.RandWeightedOp(prng, weights) {
		case opEnqueue:
			next++
			id := fmt.Sprintf("m%d", next)
			require.True(t, impl.Enqueue(name, id))
			m.queue = append(m.queue, id)

		case opDequeue:
			id, ok := impl.DequeueNext(name)
			admit := !m.paused && len(m.inFlight) < m.limit && len(m.queue) > 0
			require.Equal(t, admit, ok)
			if ok {
				// Property: FIFO.
				require.Equal(t, m.queue[0], id)
				m.queue = m.queue[1:]
				m.inFlight = append(m.inFlight, id)
			}

		case opComplete:
			if len(m.inFlight) == 0 {
				continue
			}
			i := prng.IntN(len(m.inFlight))
			impl.CompleteMatch(name, m.inFlight[i], prng.IntN(2) == 0)
			m.inFlight = slices.Delete(m.inFlight, i, i+1)

		case opRemove:
			if len(m.queue) == 0 {
				continue
			}
			i := prng.IntN(len(m.queue))
			require.True(t, impl.Remove(name, m.queue[i]))
			m.queue = slices.Delete(m.queue, i, i+1)

		case opPause:
			impl.Pause(name)
			m.paused = true

		case opResume:
			impl.Resume(name)
			m.paused = false

		default:
			panic("unreachable")
		}

		st, ok := impl.Status(name)
		require.True(t, ok)
		require.Equal(t, len(m.queue), st.Queued)
		require.Equal(t, len(m.inFlight), st.InFlight)
		require.Equal(t, m.paused, st.Paused)
		// Property: the ceiling is never exceeded.
		require.LessOrEqual(t, st.InFlight, st.ConcurrencyLimit)
		require.Equal(t, !m.paused && len(m.inFlight) < m.limit, impl.CanAdmitMore(name))
	}
}
