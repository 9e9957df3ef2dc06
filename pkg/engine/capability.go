package engine

import (
	"context"

	"github.com/rs/zerolog"
)

// Capability is an optional module attached to an engine at construction. Attach runs once, after
// every core component exists and before New returns.
type Capability interface {
	Name() string
	Attach(e *Engine) error
}

// Closer is implemented by capabilities that hold resources. Close runs during Shutdown.
type Closer interface {
	Close(ctx context.Context) error
}

// EventLogger writes every engine event to a zerolog logger. Match outcomes are logged at info,
// everything else at debug.
type EventLogger struct {
	log    zerolog.Logger
	custom bool
	sub    SubscriptionID
	eng    *Engine
}

var _ Capability = (*EventLogger)(nil)
var _ Closer = (*EventLogger)(nil)

// NewEventLogger creates an event logger. A nil logger uses the engine's own logger.
func NewEventLogger(log *zerolog.Logger) *EventLogger {
	l := &EventLogger{}
	if log != nil {
		l.log = *log
		l.custom = true
	}
	return l
}

func (l *EventLogger) Name() string { return "event-logger" }

func (l *EventLogger) Attach(e *Engine) error {
	if !l.custom {
		l.log = e.tel.GetLogger("events")
	}
	l.eng = e
	l.sub = e.On(EventAll, l.handle)
	return nil
}

func (l *EventLogger) Close(context.Context) error {
	if l.eng != nil {
		l.eng.Off(EventAll, l.sub)
	}
	return nil
}

func (l *EventLogger) handle(ev Event) error {
	var e *zerolog.Event
	switch ev.Name {
	case EventMatchVictory, EventMatchDefeat, EventMatchExpired, EventMatchCancelled,
		EventEngineInitialized, EventEngineShutdown:
		e = l.log.Info()
	case EventMatchError:
		e = l.log.Warn().Err(ev.Err)
	default:
		e = l.log.Debug()
	}
	e = e.Str("event", string(ev.Name))
	if ev.MatchID != "" {
		e = e.Str("match_id", ev.MatchID)
	}
	if ev.DeckName != "" {
		e = e.Str("deck", ev.DeckName)
	}
	if ev.Arena != "" {
		e = e.Str("arena", ev.Arena)
	}
	if ev.Match != nil {
		e = e.Int("attempts", ev.Match.Attempts).Str("state", ev.Match.State.String())
	}
	if len(ev.Data) > 0 {
		e = e.Fields(ev.Data)
	}
	e.Msg("engine event")
	return nil
}
