package engine

import (
	"fmt"
	"time"

	"github.com/argus-labs/deck-engine/pkg/engine/internal/event"
	"github.com/argus-labs/deck-engine/pkg/engine/internal/match"
	"github.com/argus-labs/deck-engine/pkg/statsd"
	"github.com/rotisserie/eris"
)

// IsProcessing reports whether the scheduling loop is running.
func (e *Engine) IsProcessing() bool {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()
	return e.processing
}

// ensureProcessing starts the scheduling loop unless it is already running.
func (e *Engine) ensureProcessing() {
	e.loopMu.Lock()
	if e.processing || e.closed.Load() {
		e.loopMu.Unlock()
		return
	}
	e.processing = true
	stop, done := make(chan struct{}), make(chan struct{})
	e.stopLoop, e.loopDone = stop, done
	e.loopMu.Unlock()

	go e.loop(stop, done)
	e.log.Debug().Dur("interval", e.options.TickInterval).Msg("scheduling loop started")
	e.bus.Emit(event.Event{Name: event.EngineProcessingStarted})
}

func (e *Engine) stopProcessing() {
	e.loopMu.Lock()
	if !e.processing {
		e.loopMu.Unlock()
		return
	}
	e.processing = false
	stop, done := e.stopLoop, e.loopDone
	e.loopMu.Unlock()

	close(stop)
	<-done
	e.bus.Emit(event.Event{Name: event.EngineProcessingStopped})
}

// kick asks the loop for an early tick. Ticks triggered this way are coalesced.
func (e *Engine) kick() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.options.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		case <-e.wake:
		}
		e.tick()
	}
}

// tick drains every arena, in registration order, until its queue is empty or its ceiling is reached.
func (e *Engine) tick() {
	start := time.Now()
	dispatched := 0
	for _, name := range e.arenas.Names() {
		for {
			more, ran := e.admitNext(name)
			if ran {
				dispatched++
			}
			if !more {
				break
			}
		}
	}
	if dispatched > 0 {
		statsd.EmitTickStat(start, dispatched)
	}
	for _, st := range e.arenas.Statuses() {
		tag := "arena:" + st.Name
		statsd.Gauge("arena.queued", float64(st.Queued), tag)
		statsd.Gauge("arena.in_flight", float64(st.InFlight), tag)
	}
}

// admitNext pops one match from an arena and acts on it. more reports whether the arena may still
// have admissible work, ran whether a match was started.
func (e *Engine) admitNext(arenaName string) (more, ran bool) {
	taken := false
	defer func() {
		if r := recover(); r != nil {
			if taken {
				e.arenas.Release(arenaName)
			}
			e.tel.CaptureException(e.ctx, eris.New(fmt.Sprintf("scheduling tick panicked: %v", r)))
			more, ran = false, false
		}
	}()

	id, decision, ok := e.pop(arenaName)
	if !ok {
		return false, false
	}
	taken = true

	switch decision {
	case match.DecisionRun:
		e.dispatch(arenaName, id)
		return true, true
	case match.DecisionExpired:
		e.arenas.Release(arenaName)
		e.exec.Expire(id)
	case match.DecisionPark, match.DecisionSkip:
		e.arenas.Release(arenaName)
	}
	return true, false
}

func (e *Engine) pop(arenaName string) (string, match.Decision, bool) {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()

	id, ok := e.arenas.DequeueNext(arenaName)
	if !ok {
		return "", 0, false
	}
	return id, e.exec.Admit(id), true
}

// dispatch runs one attempt in its own goroutine and releases the arena slot when it returns.
func (e *Engine) dispatch(arenaName, id string) {
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()

		outcome := match.Outcome{Kind: match.OutcomeSkipped}
		defer func() {
			if r := recover(); r != nil {
				e.tel.CaptureException(e.ctx, eris.New(fmt.Sprintf("match %s panicked outside its handlers: %v", id, r)))
			}
			if outcome.Kind == match.OutcomeSkipped {
				e.arenas.Release(arenaName)
			} else {
				e.arenas.CompleteMatch(arenaName, id, outcome.Success())
			}
			e.kick()
		}()

		outcome = e.exec.Run(e.ctx, id)
		switch outcome.Kind {
		case match.OutcomeRetry:
			e.scheduleRetry(id, outcome.Delay)
		case match.OutcomeRequeue:
			e.requeue(id)
		case match.OutcomeVictory, match.OutcomeDefeat, match.OutcomePaused,
			match.OutcomeCancelled, match.OutcomeSkipped:
		}
	}()
}

// scheduleRetry puts the match back in its arena queue once delay has elapsed.
func (e *Engine) scheduleRetry(id string, delay time.Duration) {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()

	if e.closed.Load() {
		return
	}
	if prev, ok := e.timers[id]; ok {
		prev.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		e.timersMu.Lock()
		if e.timers[id] != t {
			e.timersMu.Unlock()
			return
		}
		delete(e.timers, id)
		e.timersMu.Unlock()
		e.requeue(id)
	})
	e.timers[id] = t
}

// cancelRetry drops the pending retry of a match that was paused, resumed or cancelled.
func (e *Engine) cancelRetry(id string) {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()

	if t, ok := e.timers[id]; ok {
		t.Stop()
		delete(e.timers, id)
	}
}

func (e *Engine) requeue(id string) {
	if e.closed.Load() {
		return
	}

	e.schedMu.Lock()
	arenaName, decision := e.exec.Requeue(id)
	if decision == match.DecisionRun {
		e.arenas.Enqueue(arenaName, id)
	}
	e.schedMu.Unlock()

	if decision == match.DecisionExpired {
		e.exec.Expire(id)
	}
	e.kick()
}

func (e *Engine) stopTimers() {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()

	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
}

// pendingRetries returns the number of matches waiting for a retry delay.
func (e *Engine) pendingRetries() int {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()
	return len(e.timers)
}
