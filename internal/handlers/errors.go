package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/codebuildervaibhav/abacus/internal/errors"
)

const notFoundMessage = "Dataset not found"

// writeError maps an application error to a status code and a {message} body.
func writeError(c *fiber.Ctx, logger *slog.Logger, err error) error {
	var appErr *apperrors.AppError
	message := "Internal server error"
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	status := fiber.StatusInternalServerError
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeIntake, apperrors.ErrCodeValidation:
		status = fiber.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		status = fiber.StatusNotFound
		message = notFoundMessage
	case apperrors.ErrCodeConflict:
		status = fiber.StatusConflict
	default:
		logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}

	return c.Status(status).JSON(fiber.Map{"message": message})
}
