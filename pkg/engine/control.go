package engine

import (
	"github.com/argus-labs/deck-engine/pkg/engine/internal/event"
	"github.com/argus-labs/deck-engine/pkg/engine/internal/match"
	"github.com/rotisserie/eris"
)

var _ match.Controller = (*Engine)(nil)

// GetMatch returns a snapshot of a match.
func (e *Engine) GetMatch(id string) (Match, error) {
	m, ok := e.exec.Get(id)
	if !ok {
		return Match{}, eris.Wrapf(ErrMatchNotFound, "match %s", id)
	}
	return m, nil
}

// ListMatches returns snapshots of the matches selected by f, oldest first.
func (e *Engine) ListMatches(f ListFilter) []Match {
	return e.exec.List(f)
}

// CancelMatch cancels a match. A playing match stops after its current step.
func (e *Engine) CancelMatch(id string) error {
	return e.control(id, e.exec.Cancel)
}

// PauseMatch parks a match until ResumeMatch. A playing match stops before its next card.
func (e *Engine) PauseMatch(id string) error {
	return e.control(id, e.exec.Pause)
}

// ResumeMatch queues a paused match again.
func (e *Engine) ResumeMatch(id string) error {
	return e.control(id, e.exec.Resume)
}

func (e *Engine) control(id string, op func(string) (match.ControlResult, error)) error {
	e.schedMu.Lock()
	res, err := op(id)
	if err == nil {
		if res.Dequeue {
			e.arenas.Remove(res.Arena, id)
		}
		if res.Enqueue {
			e.arenas.Enqueue(res.Arena, id)
		}
		if res.Event != "" {
			e.cancelRetry(id)
		}
	}
	e.schedMu.Unlock()
	if err != nil {
		return err
	}

	e.exec.Publish(res)
	if res.Enqueue {
		e.ensureProcessing()
		e.kick()
	}
	return nil
}

// PauseArena stops admission in an arena. Queued matches stay queued.
func (e *Engine) PauseArena(name string) error {
	if !e.arenas.Pause(name) {
		return eris.Wrapf(ErrArenaNotFound, "arena %q", name)
	}
	e.log.Info().Str("arena", name).Msg("arena paused")
	e.bus.Emit(event.Event{Name: event.ArenaPaused, Arena: name})
	return nil
}

// ResumeArena restarts admission in an arena.
func (e *Engine) ResumeArena(name string) error {
	if !e.arenas.Resume(name) {
		return eris.Wrapf(ErrArenaNotFound, "arena %q", name)
	}
	e.log.Info().Str("arena", name).Msg("arena resumed")
	e.bus.Emit(event.Event{Name: event.ArenaResumed, Arena: name})
	e.kick()
	return nil
}
