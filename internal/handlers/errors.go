package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/jjenkins/lawarchive/internal/model"
)

// errorResponse maps archive errors onto HTTP statuses.
func errorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	var conflict *model.ConflictingCurrentVersionError
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		status = fiber.StatusBadRequest
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrUnknownVersion):
		status = fiber.StatusNotFound
	case errors.Is(err, model.ErrSectionImmutable), errors.As(err, &conflict):
		status = fiber.StatusConflict
	}
	if status == fiber.StatusInternalServerError {
		slog.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
