package match

import (
	"context"
	"maps"
	"slices"
	"sync/atomic"
	"time"

	"github.com/argus-labs/deck-engine/pkg/engine/types"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

const (
	defaultWaitInterval = 50 * time.Millisecond
	defaultWaitTimeout  = 30 * time.Second
)

// matchContext implements types.Context for one attempt of one match.
type matchContext struct {
	context.Context

	exec *Executor
	rec  *record

	id         string
	deckName   string
	payload    any
	metadata   map[string]any
	attempt    int
	totalCards int
	cardIndex  atomic.Int64

	logger zerolog.Logger
}

var _ types.Context = (*matchContext)(nil)

func (e *Executor) newContext(ctx context.Context, rec *record, snap *types.Match) *matchContext {
	mc := &matchContext{
		Context:    ctx,
		exec:       e,
		rec:        rec,
		id:         snap.ID,
		deckName:   snap.DeckName,
		payload:    snap.Payload,
		metadata:   snap.Metadata,
		attempt:    snap.Attempts,
		totalCards: snap.TotalCards,
		logger: e.log.With().
			Str("match_id", snap.ID).
			Str("deck", snap.DeckName).
			Int("attempt", snap.Attempts).
			Logger(),
	}
	mc.cardIndex.Store(-1)
	return mc
}

func (c *matchContext) MatchID() string  { return c.id }
func (c *matchContext) DeckName() string { return c.deckName }
func (c *matchContext) Payload() any     { return c.payload }
func (c *matchContext) Attempt() int     { return c.attempt }
func (c *matchContext) TotalCards() int  { return c.totalCards }
func (c *matchContext) CardIndex() int   { return int(c.cardIndex.Load()) }

func (c *matchContext) Metadata() map[string]any { return maps.Clone(c.metadata) }

func (c *matchContext) Logger() *zerolog.Logger { return &c.logger }

func (c *matchContext) Log(level zerolog.Level, msg string, fields map[string]any) {
	entry := types.LogEntry{
		At:      time.Now(),
		Level:   level.String(),
		Message: msg,
		Fields:  maps.Clone(fields),
	}
	c.exec.mu.Lock()
	c.rec.m.Log = append(c.rec.m.Log, entry)
	c.exec.mu.Unlock()

	c.logger.WithLevel(level).Fields(fields).Msg(msg)
}

func (c *matchContext) CardsPlayed() []types.PlayedCard {
	c.exec.mu.RLock()
	defer c.exec.mu.RUnlock()
	return slices.Clone(c.rec.m.CardsPlayed)
}

func (c *matchContext) Wait(d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-c.Done():
		return eris.Wrap(c.Err(), "wait interrupted")
	}
}

func (c *matchContext) WaitUntil(predicate func() bool, opts types.WaitOptions) error {
	if opts.Interval <= 0 {
		opts.Interval = defaultWaitInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultWaitTimeout
	}
	if predicate() {
		return nil
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()
	deadline := time.NewTimer(opts.Timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ticker.C:
			if predicate() {
				return nil
			}
		case <-deadline.C:
			return eris.Wrapf(ErrWaitUntilTimeout, "condition not met within %s", opts.Timeout)
		case <-c.Done():
			return eris.Wrap(c.Err(), "wait interrupted")
		}
	}
}

func (c *matchContext) PauseMatch() error  { return c.exec.control().PauseMatch(c.id) }
func (c *matchContext) ResumeMatch() error { return c.exec.control().ResumeMatch(c.id) }
func (c *matchContext) CancelMatch() error { return c.exec.control().CancelMatch(c.id) }

func (e *Executor) control() Controller {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.controller
}
