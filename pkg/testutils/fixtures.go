package testutils

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/argus-labs/deck-engine/pkg/engine/types"
)

// -------------------------------------------------------------------------------------------------
// Handlers
// -------------------------------------------------------------------------------------------------

// Echo returns the match payload unchanged.
func Echo(ctx types.Context) (any, error) {
	return ctx.Payload(), nil
}

// ErrAlwaysFails is returned by AlwaysFails.
var ErrAlwaysFails = errors.New("always fails")

// AlwaysFails never succeeds.
func AlwaysFails(types.Context) (any, error) {
	return nil, ErrAlwaysFails
}

// Sleep returns a handler that waits for d before returning the payload.
func Sleep(d time.Duration) types.Handler {
	return func(ctx types.Context) (any, error) {
		if err := ctx.Wait(d); err != nil {
			return nil, err
		}
		return ctx.Payload(), nil
	}
}

// FailTimes returns a handler that fails the first n calls and then echoes the payload.
func FailTimes(n int32) types.Handler {
	var calls atomic.Int32
	return func(ctx types.Context) (any, error) {
		if calls.Add(1) <= n {
			return nil, ErrAlwaysFails
		}
		return ctx.Payload(), nil
	}
}

// -------------------------------------------------------------------------------------------------
// Players
// -------------------------------------------------------------------------------------------------

// ConstPlayer is a card that always returns Value.
type ConstPlayer struct {
	Label string
	Value any
}

func (p ConstPlayer) Name() string { return p.Label }

func (p ConstPlayer) Play(types.Context) (any, error) { return p.Value, nil }

// FailingPlayer is a card that always returns Err.
type FailingPlayer struct {
	Label string
	Err   error
}

func (p FailingPlayer) Name() string { return p.Label }

func (p FailingPlayer) Play(types.Context) (any, error) { return nil, p.Err }

// CountingPlayer counts how many times it was played.
type CountingPlayer struct {
	Label string
	Calls atomic.Int64
}

func (p *CountingPlayer) Name() string { return p.Label }

func (p *CountingPlayer) Play(ctx types.Context) (any, error) {
	return p.Calls.Add(1), nil
}
