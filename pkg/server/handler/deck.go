package handler

import (
	"time"

	"github.com/argus-labs/deck-engine/pkg/engine"
	"github.com/gofiber/fiber/v2"
)

// PostMatchRequest is the body of POST /decks/:name/matches.
type PostMatchRequest struct {
	Payload        any            `json:"payload"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	// Block until the match finishes and answer with its result.
	Wait bool `json:"wait,omitempty"`
	// Upper bound for Wait. Zero waits until the client goes away.
	TimeoutMs int `json:"timeoutMs,omitempty"`
	// Expire the match if it is still queued after this long.
	ExpiresInMs int `json:"expiresInMs,omitempty"`
}

func ListDecks(eng *engine.Engine) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		return ctx.JSON(eng.Decks())
	}
}

func GetDeck(eng *engine.Engine) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		status, err := eng.DeckStatus(ctx.Params("name"))
		if err != nil {
			return err
		}
		return ctx.JSON(status)
	}
}

// PostMatch submits a match. It answers 202 with the submission, or 200 with the final result when
// the request asks to wait.
func PostMatch(eng *engine.Engine) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		var req PostMatchRequest
		if len(ctx.Body()) > 0 {
			if err := ctx.BodyParser(&req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Bad Request - failed to decode match request")
			}
		}
		if req.TimeoutMs < 0 || req.ExpiresInMs < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Bad Request - durations cannot be negative")
		}

		opts := engine.PlayOptions{
			IdempotencyKey: req.IdempotencyKey,
			Metadata:       req.Metadata,
			ExpiresIn:      millis(req.ExpiresInMs),
			Timeout:        millis(req.TimeoutMs),
		}
		name := ctx.Params("name")

		if !req.Wait {
			res, err := eng.PlayMatch(ctx.UserContext(), name, req.Payload, opts)
			if err != nil {
				return err
			}
			return ctx.Status(fiber.StatusAccepted).JSON(res)
		}

		res, err := eng.PlayAndWait(ctx.UserContext(), name, req.Payload, opts)
		if err != nil {
			return err
		}
		return ctx.JSON(res)
	}
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
