package server

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
	"github.com/sicko7947/flowstate"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

// handleError maps tracker errors onto problem responses
func (s *Server) handleError(c fiber.Ctx, err error) error {
	switch {
	case flowstate.IsNotFound(err):
		return notFound(c, err.Error())

	case errors.Is(err, flowstate.ErrValidation):
		return badRequest(c, err.Error())

	case errors.Is(err, flowstate.ErrInvalidTransition):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("invalid_transition").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case flowstate.IsConnectionError(err):
		problem := problems.NewStatusProblem(503).
			WithInstance(c.Path()).
			WithType("backend_unavailable").
			WithDetail("execution state backend is not connected")

		return c.Status(fiber.StatusServiceUnavailable).JSON(problem)

	default:
		s.logger.Error().
			Err(err).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Msg("Request failed")

		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithDetail("internal server error")

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}
