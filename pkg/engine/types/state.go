package types

// MatchState is the single authoritative lifecycle field of a match.
//
//	waiting -> queued -> playing -> victory | defeat
//
// paused, cancelled and expired are alternate exits. A paused match returns to queued when resumed,
// which is the only transition that moves a match backwards.
type MatchState string

const (
	MatchWaiting   MatchState = "waiting"
	MatchQueued    MatchState = "queued"
	MatchPlaying   MatchState = "playing"
	MatchVictory   MatchState = "victory"
	MatchDefeat    MatchState = "defeat"
	MatchPaused    MatchState = "paused"
	MatchCancelled MatchState = "cancelled"
	MatchExpired   MatchState = "expired"

	// Reserved. Declared terminal, but nothing transitions into them yet.
	MatchCrashed  MatchState = "crashed"
	MatchTimedOut MatchState = "timed_out"
)

// AllMatchStates lists every state in lifecycle order.
var AllMatchStates = []MatchState{ //nolint:gochecknoglobals // read-only table
	MatchWaiting, MatchQueued, MatchPlaying, MatchPaused,
	MatchVictory, MatchDefeat, MatchCancelled, MatchExpired, MatchCrashed, MatchTimedOut,
}

// IsTerminal reports whether no further transition can happen from s.
func (s MatchState) IsTerminal() bool {
	switch s {
	case MatchVictory, MatchDefeat, MatchCancelled, MatchExpired, MatchCrashed, MatchTimedOut:
		return true
	case MatchWaiting, MatchQueued, MatchPlaying, MatchPaused:
		return false
	default:
		return false
	}
}

// IsRunnable reports whether a match in state s may be started by the executor.
func (s MatchState) IsRunnable() bool {
	return s == MatchWaiting || s == MatchQueued
}

func (s MatchState) String() string { return string(s) }

// CardState tracks a single card inside a match.
type CardState string

const (
	CardInHand  CardState = "in_hand"
	CardPlaying CardState = "playing"
	CardPlayed  CardState = "played"
	CardFailed  CardState = "failed"

	// Reserved, cards currently go straight to played or failed.
	CardDiscarded CardState = "discarded"
)
