package handler

import (
	"slices"

	"github.com/argus-labs/deck-engine/pkg/engine"
	"github.com/argus-labs/deck-engine/pkg/engine/types"
	"github.com/gofiber/fiber/v2"
)

func GetMatch(eng *engine.Engine) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		m, err := eng.GetMatch(ctx.Params("id"))
		if err != nil {
			return err
		}
		return ctx.JSON(m)
	}
}

// ListMatches lists matches oldest first, filtered by the deck, state (repeatable) and limit query
// parameters.
func ListMatches(eng *engine.Engine) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		filter := engine.ListFilter{
			DeckName: ctx.Query("deck"),
			Limit:    ctx.QueryInt("limit", 0),
		}
		for _, raw := range ctx.Context().QueryArgs().PeekMulti("state") {
			state := types.MatchState(raw)
			if !slices.Contains(types.AllMatchStates, state) {
				return fiber.NewError(fiber.StatusBadRequest, "Bad Request - unknown match state "+string(raw))
			}
			filter.States = append(filter.States, state)
		}
		return ctx.JSON(eng.ListMatches(filter))
	}
}

// ControlMatch adapts a match control operation (cancel, pause, resume) to a route.
func ControlMatch(op func(id string) error) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		if err := op(ctx.Params("id")); err != nil {
			return err
		}
		return ctx.SendStatus(fiber.StatusNoContent)
	}
}

// ControlArena adapts an arena control operation (pause, resume) to a route.
func ControlArena(op func(name string) error) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		if err := op(ctx.Params("name")); err != nil {
			return err
		}
		return ctx.SendStatus(fiber.StatusNoContent)
	}
}
