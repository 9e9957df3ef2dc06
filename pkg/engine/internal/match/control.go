package match

import (
	"time"

	"github.com/argus-labs/deck-engine/pkg/assert"
	"github.com/argus-labs/deck-engine/pkg/engine/internal/event"
	"github.com/argus-labs/deck-engine/pkg/engine/types"
	"github.com/rotisserie/eris"
)

// Decision tells the scheduler what to do with a match id it just dequeued or whose retry delay
// elapsed.
type Decision uint8

const (
	DecisionRun     Decision = iota + 1 // run it, or put it back in its arena queue
	DecisionSkip                        // finished, unknown or already queued
	DecisionPark                        // paused, wait for resume
	DecisionExpired                     // deadline passed, call Expire
)

func (d Decision) String() string {
	switch d {
	case DecisionRun:
		return "run"
	case DecisionSkip:
		return "skip"
	case DecisionPark:
		return "park"
	case DecisionExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// ControlResult describes the effect of Cancel, Pause or Resume and what the scheduler must do
// about the arena queue. The state change is already applied; Publish emits the matching event.
type ControlResult struct {
	Match    types.Match
	Arena    string
	Deferred bool       // the match is playing, the request applies at the next step boundary
	Dequeue  bool       // remove the id from its arena queue
	Enqueue  bool       // add the id to its arena queue
	Event    event.Name // empty when nothing observable happened
}

// Publish emits the event of a control result. Call it after releasing any scheduler lock.
func (e *Executor) Publish(res ControlResult) {
	if res.Event == "" {
		return
	}
	e.emit(res.Event, &res.Match, res.Arena, nil, nil)
}

// Enqueue moves a match to queued and marks it as sitting in its arena queue. It returns the arena
// name, or false when the match is unknown, not runnable or already queued.
func (e *Executor) Enqueue(id string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.matches[id]
	if !ok || rec.enqueued || !rec.m.State.IsRunnable() {
		return "", false
	}
	rec.m.State = types.MatchQueued
	if rec.m.ScheduledAt.IsZero() {
		rec.m.ScheduledAt = time.Now()
	}
	rec.enqueued = true
	return rec.deck.Config.Arena.Name, true
}

// Requeue is called when a retry delay elapses. DecisionRun means the match was marked queued again
// and the caller must add it to the returned arena.
func (e *Executor) Requeue(id string) (string, Decision) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.matches[id]
	switch {
	case !ok || rec.enqueued:
		return "", DecisionSkip
	case rec.m.State == types.MatchPaused:
		return "", DecisionPark
	case rec.m.State != types.MatchQueued:
		return "", DecisionSkip
	case rec.expired(time.Now()):
		return "", DecisionExpired
	}
	rec.enqueued = true
	rec.m.NextAttemptAt = time.Time{}
	return rec.deck.Config.Arena.Name, DecisionRun
}

// Admit decides what happens to a match id that was just popped from its arena queue.
func (e *Executor) Admit(id string) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.matches[id]
	if !ok {
		return DecisionSkip
	}
	rec.enqueued = false

	switch {
	case rec.m.State == types.MatchPaused:
		return DecisionPark
	case !rec.m.State.IsRunnable():
		return DecisionSkip
	case rec.expired(time.Now()):
		return DecisionExpired
	default:
		return DecisionRun
	}
}

// Expire moves a match that is not playing to expired. It reports whether the match was expired.
func (e *Executor) Expire(id string) bool {
	e.mu.Lock()
	rec, ok := e.matches[id]
	if !ok || rec.m.State.IsTerminal() || rec.m.State == types.MatchPlaying {
		e.mu.Unlock()
		return false
	}
	rec.enqueued = false
	e.finishLocked(rec, types.MatchExpired, time.Now())
	snap := rec.m.Clone()
	arena := rec.deck.Config.Arena.Name
	e.mu.Unlock()

	e.log.Debug().Str("match_id", snap.ID).Str("deck", snap.DeckName).Msg("match expired before it could run")
	e.emit(event.MatchExpired, &snap, arena, nil, nil)
	rec.signalDone()
	return true
}

// Cancel stops a match for good. Queued and paused matches are cancelled immediately. A playing
// match is cancelled once its current step returns.
func (e *Executor) Cancel(id string) (ControlResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.controllable(id)
	if err != nil {
		return ControlResult{}, err
	}
	res := ControlResult{Arena: rec.deck.Config.Arena.Name}

	if rec.m.State == types.MatchPlaying {
		rec.cancelRequested = true
		res.Deferred = true
	} else {
		res.Dequeue = rec.enqueued
		res.Event = event.MatchCancelled
		rec.enqueued = false
		e.finishLocked(rec, types.MatchCancelled, time.Now())
		rec.signalDone()
	}
	res.Match = rec.m.Clone()
	return res, nil
}

// Pause parks a match. A queued match leaves its arena queue until resumed. A playing match stops
// before its next card.
func (e *Executor) Pause(id string) (ControlResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.controllable(id)
	if err != nil {
		return ControlResult{}, err
	}
	res := ControlResult{Arena: rec.deck.Config.Arena.Name}

	switch rec.m.State {
	case types.MatchPlaying:
		rec.pauseRequested = true
		res.Deferred = true
	case types.MatchWaiting, types.MatchQueued:
		res.Dequeue = rec.enqueued
		res.Event = event.MatchPaused
		rec.enqueued = false
		rec.m.State = types.MatchPaused
	default:
		// Already paused.
	}
	res.Match = rec.m.Clone()
	return res, nil
}

// Resume puts a paused match back in the queue. On a playing match it withdraws a pending pause.
func (e *Executor) Resume(id string) (ControlResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.controllable(id)
	if err != nil {
		return ControlResult{}, err
	}
	res := ControlResult{Arena: rec.deck.Config.Arena.Name}

	switch rec.m.State {
	case types.MatchPlaying:
		rec.pauseRequested = false
		res.Deferred = true
	case types.MatchPaused:
		rec.m.State = types.MatchQueued
		rec.m.NextAttemptAt = time.Time{}
		rec.enqueued = true
		res.Enqueue = true
		res.Event = event.MatchResumed
	default:
		// Not paused, nothing to do.
	}
	res.Match = rec.m.Clone()
	return res, nil
}

// CancelMatch, PauseMatch and ResumeMatch make the executor its own Controller. Without an engine in
// front of it no arena queue needs updating.
func (e *Executor) CancelMatch(id string) error {
	return e.publishControl(e.Cancel(id))
}

func (e *Executor) PauseMatch(id string) error {
	return e.publishControl(e.Pause(id))
}

func (e *Executor) ResumeMatch(id string) error {
	return e.publishControl(e.Resume(id))
}

func (e *Executor) publishControl(res ControlResult, err error) error {
	if err != nil {
		return err
	}
	e.Publish(res)
	return nil
}

// controllable must be called with e.mu held.
func (e *Executor) controllable(id string) (*record, error) {
	rec, ok := e.matches[id]
	if !ok {
		return nil, eris.Wrapf(ErrMatchNotFound, "match %s", id)
	}
	if rec.m.State.IsTerminal() {
		return nil, eris.Wrapf(ErrInvalidTransition, "match %s is %s", id, rec.m.State)
	}
	return rec, nil
}

// finishLocked moves rec to a terminal state.
func (e *Executor) finishLocked(rec *record, state types.MatchState, now time.Time) {
	assert.That(state.IsTerminal(), "match %s cannot finish as %s", rec.m.ID, state)
	assert.That(!rec.m.State.IsTerminal(), "match %s is already %s", rec.m.ID, rec.m.State)
	rec.m.State = state
	rec.m.EndedAt = now
	rec.m.NextAttemptAt = time.Time{}
	if !rec.m.StartedAt.IsZero() {
		rec.m.Duration = now.Sub(rec.m.StartedAt)
	}
}

func (r *record) expired(now time.Time) bool {
	return !r.m.ExpiresAt.IsZero() && !now.Before(r.m.ExpiresAt)
}
