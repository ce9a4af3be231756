package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/planfold/planfold/pkg/services"
	"github.com/planfold/planfold/pkg/workflow"
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

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case services.IsConflictError(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case services.IsInvalidTransitionError(err):
		reason := "invalid_transition"

		var invalidErr *workflow.InvalidTransitionError
		if errors.As(err, &invalidErr) {
			reason = string(invalidErr.Reason)
		}

		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("invalid_transition").
			WithDetail(reason)

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)

	case services.IsNotFoundError(err):
		return notFound(c, err.Error())

	default:
		return internalError(c, err)
	}
}
