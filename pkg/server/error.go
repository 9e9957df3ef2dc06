package server

import (
	"errors"

	"github.com/argus-labs/deck-engine/pkg/engine"
	"github.com/gofiber/fiber/v2"
)

type ErrorResponse struct {
	Error Error `json:"error"`
}

type Error struct {
	Message string `json:"message"`
}

// statusOf maps engine errors to HTTP status codes.
func statusOf(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, engine.ErrDeckNotFound),
		errors.Is(err, engine.ErrMatchNotFound),
		errors.Is(err, engine.ErrArenaNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, engine.ErrDeckDisabled),
		errors.Is(err, engine.ErrDeckPaused),
		errors.Is(err, engine.ErrMatchFinished):
		return fiber.StatusConflict
	case errors.Is(err, engine.ErrWaitTimeout):
		return fiber.StatusRequestTimeout
	case errors.Is(err, engine.ErrShutdown):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler renders every error returned by a route as an ErrorResponse.
func ErrorHandler(c *fiber.Ctx, err error) error {
	return c.Status(statusOf(err)).JSON(ErrorResponse{Error: Error{Message: err.Error()}})
}
