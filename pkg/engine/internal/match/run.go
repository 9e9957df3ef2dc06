package match

import (
	"context"
	"fmt"
	"time"

	"github.com/argus-labs/deck-engine/pkg/engine/internal/deck"
	"github.com/argus-labs/deck-engine/pkg/engine/internal/event"
	"github.com/argus-labs/deck-engine/pkg/engine/types"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OutcomeKind is the result of one call to Run.
type OutcomeKind uint8

const (
	OutcomeVictory   OutcomeKind = iota + 1
	OutcomeDefeat                // retries exhausted
	OutcomeRetry                 // failed, queue again after Outcome.Delay
	OutcomeRequeue               // interrupted then resumed, queue again now
	OutcomePaused                // parked until resumed
	OutcomeCancelled             // cancelled while playing
	OutcomeSkipped               // not runnable any more, nothing happened
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeVictory:
		return "victory"
	case OutcomeDefeat:
		return "defeat"
	case OutcomeRetry:
		return "retry"
	case OutcomeRequeue:
		return "requeue"
	case OutcomePaused:
		return "paused"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Outcome tells the scheduler how an attempt ended.
type Outcome struct {
	Kind  OutcomeKind
	Delay time.Duration
	Match types.Match
}

// Success reports whether the attempt ended the match in victory.
func (o Outcome) Success() bool { return o.Kind == OutcomeVictory }

// Run plays one attempt of a match. It never sleeps for a retry delay and never runs a match twice
// inline. A failed attempt with attempts left returns OutcomeRetry and the caller schedules it.
func (e *Executor) Run(ctx context.Context, id string) Outcome {
	e.mu.Lock()
	rec, ok := e.matches[id]
	if !ok || !rec.m.State.IsRunnable() {
		e.mu.Unlock()
		return Outcome{Kind: OutcomeSkipped}
	}

	now := time.Now()
	start := 0
	if rec.continuation {
		start = rec.resumeFrom
	} else {
		rec.m.Attempts++
		rec.m.CardsPlayed = nil
	}
	rec.continuation = false
	rec.resumeFrom = 0
	rec.m.State = types.MatchPlaying
	rec.m.NextAttemptAt = time.Time{}
	if rec.m.StartedAt.IsZero() {
		rec.m.StartedAt = now
	}
	snap := rec.m.Clone()
	d := rec.deck
	e.mu.Unlock()

	arena := d.Config.Arena.Name
	spanCtx, span := e.tracer.Start(ctx, "match.attempt", trace.WithAttributes(
		attribute.String("match.id", snap.ID),
		attribute.String("match.deck", snap.DeckName),
		attribute.String("match.arena", arena),
		attribute.Int("match.attempt", snap.Attempts),
	))
	mctx := e.newContext(spanCtx, rec, &snap)
	e.emit(event.MatchStarted, &snap, arena, nil, nil)

	result, stepErr, interrupted := e.play(mctx, rec, d, start)

	if d.Config.Cleanup != nil {
		if err := e.invokeHook(mctx, d.Config.Cleanup); err != nil {
			if stepErr == nil && !interrupted {
				stepErr = stepError(mctx, "cleanup", "", err)
			} else {
				// The attempt already ended, keep its outcome.
				mctx.logger.Error().Err(err).Str("hook", "cleanup").Msg("hook failed")
			}
		}
	}

	if stepErr != nil {
		span.RecordError(stepErr)
		span.SetStatus(codes.Error, stepErr.Message)
	}
	outcome := e.settle(mctx, rec, d, result, stepErr, interrupted)
	span.SetAttributes(attribute.String("match.outcome", outcome.Kind.String()))
	span.End()
	return outcome
}

// play runs init and the deck body. It returns the result, the failed step if any, and whether a
// pause or cancel request stopped the sequence early.
func (e *Executor) play(ctx *matchContext, rec *record, d *deck.Deck, start int) (any, *types.MatchError, bool) {
	cfg := d.Config

	if cfg.Init != nil {
		if err := e.invokeHook(ctx, cfg.Init); err != nil {
			return nil, stepError(ctx, "init", "", err), false
		}
	}

	if cfg.Play != nil {
		if e.interrupted(rec, start) {
			return nil, nil, true
		}
		res, err := e.invoke(ctx, cfg.Play)
		if err != nil {
			return nil, stepError(ctx, "play", "", err), false
		}
		return res, nil, false
	}

	for i := start; i < len(cfg.Cards); i++ {
		if e.interrupted(rec, i) {
			return nil, nil, true
		}
		card := cfg.Cards[i]
		ctx.cardIndex.Store(int64(i))

		began := time.Now()
		e.mu.Lock()
		rec.m.CardsPlayed = append(rec.m.CardsPlayed, types.PlayedCard{
			Name:     card.Name(),
			Index:    i,
			State:    types.CardPlaying,
			PlayedAt: began,
		})
		pos := len(rec.m.CardsPlayed) - 1
		e.mu.Unlock()

		res, err := e.invoke(ctx, card.Play)

		e.mu.Lock()
		pc := &rec.m.CardsPlayed[pos]
		pc.Duration = time.Since(began)
		if err != nil {
			pc.State = types.CardFailed
			pc.Error = err.Error()
		} else {
			pc.State = types.CardPlayed
			pc.Result = res
		}
		played := *pc
		e.mu.Unlock()

		if cfg.OnCardPlayed != nil {
			e.runHook(ctx, "on_card_played", func() error { return cfg.OnCardPlayed(ctx, played) })
		}
		if err != nil {
			return nil, stepError(ctx, "card", card.Name(), err), false
		}
	}

	e.mu.RLock()
	results := make([]any, len(rec.m.CardsPlayed))
	for i, pc := range rec.m.CardsPlayed {
		results[i] = pc.Result
	}
	e.mu.RUnlock()
	return results, nil, false
}

// interrupted reports whether a pause or cancel request is pending and, if so, remembers where the
// sequence should continue.
func (e *Executor) interrupted(rec *record, next int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !rec.cancelRequested && !rec.pauseRequested {
		return false
	}
	rec.resumeFrom = next
	return true
}

// settle applies the result of an attempt to the record and fires the matching hooks and events.
func (e *Executor) settle(
	ctx *matchContext, rec *record, d *deck.Deck, result any, stepErr *types.MatchError, interrupted bool,
) Outcome {
	now := time.Now()
	policy := d.Config.Retry
	arena := d.Config.Arena.Name

	e.mu.Lock()
	cancel, pause := rec.cancelRequested, rec.pauseRequested
	rec.cancelRequested, rec.pauseRequested = false, false
	if stepErr != nil {
		rec.m.Errors = append(rec.m.Errors, *stepErr)
	}

	var kind OutcomeKind
	var delay time.Duration
	switch {
	case cancel && (interrupted || stepErr != nil):
		kind = OutcomeCancelled
		e.finishLocked(rec, types.MatchCancelled, now)

	case interrupted && pause:
		kind = OutcomePaused
		rec.continuation = true
		rec.m.State = types.MatchPaused

	case interrupted:
		// The pause was withdrawn after the sequence had already stopped.
		kind = OutcomeRequeue
		rec.continuation = true
		rec.m.State = types.MatchQueued

	case stepErr == nil:
		kind = OutcomeVictory
		rec.m.Result = result
		e.finishLocked(rec, types.MatchVictory, now)

	case rec.m.Attempts < policy.MaxAttempts:
		rec.m.RetryCount++
		if pause {
			kind = OutcomePaused
			rec.m.State = types.MatchPaused
			break
		}
		kind = OutcomeRetry
		delay = policy.Backoff(rec.m.RetryCount)
		rec.m.State = types.MatchQueued
		rec.m.NextAttemptAt = now.Add(delay)

	default:
		kind = OutcomeDefeat
		e.finishLocked(rec, types.MatchDefeat, now)
	}
	snap := rec.m.Clone()
	e.mu.Unlock()

	if stepErr != nil {
		ctx.logger.Warn().
			Str("stage", stepErr.Stage).
			Str("card", stepErr.Card).
			Str("error", stepErr.Message).
			Msg("match attempt failed")
		e.emit(event.MatchError, &snap, arena, stepErr, map[string]any{
			"attempt": stepErr.Attempt,
			"stage":   stepErr.Stage,
		})
	}

	switch kind {
	case OutcomeVictory:
		if d.Config.OnVictory != nil {
			e.runHook(ctx, "on_victory", func() error { return d.Config.OnVictory(ctx, result) })
		}
		e.metrics.UpdateMetrics(&snap)
		e.emit(event.MatchVictory, &snap, arena, nil, nil)
		rec.signalDone()

	case OutcomeDefeat:
		if d.Config.OnDefeat != nil {
			e.runHook(ctx, "on_defeat", func() error { return d.Config.OnDefeat(ctx, stepErr) })
		}
		e.metrics.UpdateMetrics(&snap)
		e.emit(event.MatchDefeat, &snap, arena, stepErr, nil)
		rec.signalDone()

	case OutcomeRetry:
		ctx.logger.Debug().Dur("delay", delay).Int("retry", snap.RetryCount).Msg("match scheduled for retry")
		e.emit(event.MatchRetry, &snap, arena, stepErr, map[string]any{
			"delay":      delay.String(),
			"retryCount": snap.RetryCount,
		})

	case OutcomePaused:
		e.emit(event.MatchPaused, &snap, arena, nil, nil)

	case OutcomeCancelled:
		e.emit(event.MatchCancelled, &snap, arena, nil, nil)
		rec.signalDone()

	case OutcomeRequeue, OutcomeSkipped:
	}

	return Outcome{Kind: kind, Delay: delay, Match: snap}
}

// invoke runs a handler and turns a panic into an error.
func (e *Executor) invoke(ctx *matchContext, fn types.Handler) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = e.recovered(ctx, r)
		}
	}()
	return fn(ctx)
}

func (e *Executor) invokeHook(ctx *matchContext, fn types.Hook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = e.recovered(ctx, r)
		}
	}()
	return fn(ctx)
}

// runHook runs a lifecycle hook whose failure must not affect the match. Errors and panics are logged.
func (e *Executor) runHook(ctx *matchContext, name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			err := e.recovered(ctx, r)
			ctx.logger.Error().Err(err).Str("hook", name).Msg("hook panicked")
		}
	}()
	if err := fn(); err != nil {
		ctx.logger.Error().Err(err).Str("hook", name).Msg("hook failed")
	}
}

func (e *Executor) recovered(ctx *matchContext, r any) error {
	err, ok := r.(error)
	if ok {
		err = eris.Wrap(err, "handler panicked")
	} else {
		err = eris.New(fmt.Sprintf("handler panicked: %v", r))
	}
	if e.reportPanic != nil {
		e.reportPanic(ctx, err)
	}
	return err
}

func stepError(ctx *matchContext, stage, card string, err error) *types.MatchError {
	return &types.MatchError{
		Attempt: ctx.attempt,
		Stage:   stage,
		Card:    card,
		Message: err.Error(),
		At:      time.Now(),
	}
}
