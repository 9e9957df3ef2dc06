package types

import (
	"maps"
	"slices"
	"time"
)

// Match is a snapshot of one execution of a deck. The executor owns the live record; every Match
// handed out of the engine is a copy that is safe to read without synchronization.
type Match struct {
	ID             string         `json:"id"`
	DeckName       string         `json:"deckName"`
	State          MatchState     `json:"state"`
	Payload        any            `json:"payload"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`

	CardsPlayed []PlayedCard `json:"cardsPlayed"`
	TotalCards  int          `json:"totalCards"`
	Result      any          `json:"result,omitempty"`
	Errors      []MatchError `json:"errors"`
	Attempts    int          `json:"attempts"`
	RetryCount  int          `json:"retryCount"`

	CreatedAt     time.Time     `json:"createdAt"`
	ScheduledAt   time.Time     `json:"scheduledAt,omitzero"`
	StartedAt     time.Time     `json:"startedAt,omitzero"`
	EndedAt       time.Time     `json:"endedAt,omitzero"`
	NextAttemptAt time.Time     `json:"nextAttemptAt,omitzero"`
	ExpiresAt     time.Time     `json:"expiresAt,omitzero"`
	Duration      time.Duration `json:"duration"`

	Log []LogEntry `json:"log"`
}

// PlayedCard records the outcome of one card within the current attempt.
type PlayedCard struct {
	Name     string        `json:"name"`
	Index    int           `json:"index"`
	State    CardState     `json:"state"`
	Result   any           `json:"result,omitempty"`
	Error    string        `json:"error,omitempty"`
	PlayedAt time.Time     `json:"playedAt"`
	Duration time.Duration `json:"duration"`
}

// MatchError is one failed attempt.
type MatchError struct {
	Attempt int       `json:"attempt"`
	Stage   string    `json:"stage"` // init, play, card, cleanup
	Card    string    `json:"card,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

func (e MatchError) Error() string { return e.Message }

// LogEntry is one line of a match's own append-only log.
type LogEntry struct {
	At      time.Time      `json:"at"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// IsTerminal reports whether the match has finished for good.
func (m *Match) IsTerminal() bool { return m.State.IsTerminal() }

// IsVictory reports whether the match finished successfully.
func (m *Match) IsVictory() bool { return m.State == MatchVictory }

// Clone returns a copy that shares no slices or maps with m. Payload and results are copied by
// reference since the engine never mutates them.
func (m *Match) Clone() Match {
	c := *m
	c.Metadata = maps.Clone(m.Metadata)
	c.CardsPlayed = slices.Clone(m.CardsPlayed)
	c.Errors = slices.Clone(m.Errors)
	c.Log = slices.Clone(m.Log)
	return c
}

// Age returns how long ago the match ended, or was created if it never ended.
func (m *Match) Age(now time.Time) time.Duration {
	if !m.EndedAt.IsZero() {
		return now.Sub(m.EndedAt)
	}
	return now.Sub(m.CreatedAt)
}
