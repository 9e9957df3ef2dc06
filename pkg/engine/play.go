package engine

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/argus-labs/deck-engine/pkg/engine/internal/event"
	"github.com/argus-labs/deck-engine/pkg/engine/internal/match"
	"github.com/argus-labs/deck-engine/pkg/engine/types"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// PlayOptions are the per-submission options of PlayMatch and friends.
type PlayOptions struct {
	// Deduplicates submissions to the same deck while the deck's idempotency TTL lasts.
	IdempotencyKey string
	Metadata       map[string]any
	// Recorded in the match metadata under "priority". Matches are always admitted in FIFO order.
	Priority int
	// A match still queued this long after submission expires instead of running.
	ExpiresIn time.Duration
	// How long PlayAndWait and PlayMatches wait. Zero waits until the match finishes.
	Timeout time.Duration
	// PlayMatches waits for every match when set.
	WaitAll bool
}

// PlayResult is returned when a match is submitted.
type PlayResult struct {
	MatchID string           `json:"matchId"`
	Queued  bool             `json:"queued"`
	Cached  bool             `json:"cached"`
	State   types.MatchState `json:"state"`
}

// MatchResult is the outcome of a finished match.
type MatchResult struct {
	Success bool               `json:"success"`
	Result  any                `json:"result,omitempty"`
	Errors  []types.MatchError `json:"errors"`
	Match   Match              `json:"match"`
}

// BatchResult is returned by PlayMatches. Results is only filled when WaitAll is set.
type BatchResult struct {
	Plays   []PlayResult  `json:"plays"`
	Results []MatchResult `json:"results,omitempty"`
}

// PriorityKey is the metadata key PlayOptions.Priority is stored under.
const PriorityKey = "priority"

func (o PlayOptions) metadata() map[string]any {
	if o.Priority == 0 {
		return o.Metadata
	}
	md := maps.Clone(o.Metadata)
	if md == nil {
		md = make(map[string]any, 1)
	}
	md[PriorityKey] = o.Priority
	return md
}

func resultOf(m Match) MatchResult {
	return MatchResult{
		Success: m.IsVictory(),
		Result:  m.Result,
		Errors:  m.Errors,
		Match:   m,
	}
}

// PlayMatch submits payload to a deck and returns as soon as the match is queued. A repeated
// idempotency key returns the earlier match with Cached set and creates nothing.
func (e *Engine) PlayMatch(ctx context.Context, deckName string, payload any, opts PlayOptions) (PlayResult, error) {
	if e.closed.Load() {
		return PlayResult{}, ErrShutdown
	}
	if err := ctx.Err(); err != nil {
		return PlayResult{}, eris.Wrap(err, "play cancelled")
	}
	d, err := e.deckForPlay(deckName)
	if err != nil {
		return PlayResult{}, err
	}

	key := ""
	if opts.IdempotencyKey != "" && d.Idempotent() {
		key = deckName + "/" + opts.IdempotencyKey
	}

	e.schedMu.Lock()
	if key != "" {
		if prev, ok := e.exec.CheckIdempotency(key); ok {
			e.schedMu.Unlock()
			e.bus.Emit(event.Event{
				Name:     event.MatchIdempotent,
				MatchID:  prev.ID,
				DeckName: deckName,
				Arena:    d.Config.Arena.Name,
				Match:    &prev,
				Data:     map[string]any{"idempotencyKey": opts.IdempotencyKey},
			})
			return PlayResult{MatchID: prev.ID, Cached: true, State: prev.State}, nil
		}
	}

	createOpts := match.CreateOptions{IdempotencyKey: opts.IdempotencyKey, Metadata: opts.metadata()}
	if opts.ExpiresIn > 0 {
		createOpts.ExpiresAt = time.Now().Add(opts.ExpiresIn)
	}
	id := uuid.NewString()
	if _, err := e.exec.CreateMatch(id, d, payload, createOpts); err != nil {
		e.schedMu.Unlock()
		return PlayResult{}, eris.Wrap(err, "failed to create match")
	}
	if key != "" {
		if err := e.exec.StoreIdempotency(key, id, d.Config.IdempotencyKeyTTL); err != nil {
			e.log.Warn().Err(err).Str("match_id", id).Msg("idempotency key not stored")
		}
	}
	arenaName, _ := e.exec.Enqueue(id)
	e.arenas.Enqueue(arenaName, id)
	snap, _ := e.exec.Get(id)
	e.schedMu.Unlock()

	e.bus.Emit(event.Event{
		Name:     event.MatchQueued,
		MatchID:  id,
		DeckName: deckName,
		Arena:    arenaName,
		Match:    &snap,
	})
	e.ensureProcessing()
	e.kick()

	return PlayResult{MatchID: id, Queued: true, State: snap.State}, nil
}

// PlayAndWait submits payload and waits up to opts.Timeout for the match to finish.
func (e *Engine) PlayAndWait(ctx context.Context, deckName string, payload any, opts PlayOptions) (MatchResult, error) {
	res, err := e.PlayMatch(ctx, deckName, payload, opts)
	if err != nil {
		return MatchResult{}, err
	}
	return e.WaitForMatch(ctx, res.MatchID, opts.Timeout)
}

// PlayMatches submits every payload in order. With WaitAll it then waits for all of them
// concurrently. An idempotency key is suffixed with the payload index so each payload keeps its own.
func (e *Engine) PlayMatches(ctx context.Context, deckName string, payloads []any, opts PlayOptions) (BatchResult, error) {
	batch := BatchResult{Plays: make([]PlayResult, 0, len(payloads))}
	for i, payload := range payloads {
		one := opts
		if opts.IdempotencyKey != "" {
			one.IdempotencyKey = fmt.Sprintf("%s:%d", opts.IdempotencyKey, i)
		}
		res, err := e.PlayMatch(ctx, deckName, payload, one)
		if err != nil {
			return batch, eris.Wrapf(err, "failed to submit payload %d", i)
		}
		batch.Plays = append(batch.Plays, res)
	}
	if !opts.WaitAll {
		return batch, nil
	}

	batch.Results = make([]MatchResult, len(batch.Plays))
	g, gctx := errgroup.WithContext(ctx)
	for i, play := range batch.Plays {
		g.Go(func() error {
			res, err := e.WaitForMatch(gctx, play.MatchID, opts.Timeout)
			if err != nil {
				return eris.Wrapf(err, "match %s", play.MatchID)
			}
			batch.Results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return batch, err
	}
	return batch, nil
}

// WaitForMatch blocks until the match finishes, timeout elapses (zero means no timeout), ctx is done
// or the engine shuts down. A timeout abandons only the wait; the match keeps running.
func (e *Engine) WaitForMatch(ctx context.Context, id string, timeout time.Duration) (MatchResult, error) {
	done, ok := e.exec.Done(id)
	if !ok {
		return MatchResult{}, eris.Wrapf(ErrMatchNotFound, "match %s", id)
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-done:
	case <-expired:
		m, _ := e.exec.Get(id)
		return resultOf(m), eris.Wrapf(ErrWaitTimeout, "match %s after %s", id, timeout)
	case <-ctx.Done():
		return MatchResult{}, eris.Wrap(ctx.Err(), "wait cancelled")
	case <-e.ctx.Done():
		return MatchResult{}, ErrShutdown
	}

	m, ok := e.exec.Get(id)
	if !ok {
		return MatchResult{}, eris.Wrapf(ErrMatchNotFound, "match %s was cleaned up", id)
	}
	return resultOf(m), nil
}
