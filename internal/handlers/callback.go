package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/abacus/internal/types"
)

// CallbackHandler receives results from the analysis worker.
type CallbackHandler struct {
	jobs   Jobs
	logger *slog.Logger
}

// NewCallbackHandler creates a new callback handler
func NewCallbackHandler(jobs Jobs, logger *slog.Logger) *CallbackHandler {
	return &CallbackHandler{jobs: jobs, logger: logger}
}

// Handle applies a reported outcome. A report for a job that is already
// finished is acknowledged with applied=false so the worker can stop retrying.
func (h *CallbackHandler) Handle(c *fiber.Ctx) error {
	var outcome types.Outcome
	if err := c.BodyParser(&outcome); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid result body",
		})
	}

	applied, err := h.jobs.ReportResult(c.UserContext(), c.Params("id"), outcome)
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return c.JSON(fiber.Map{
		"acknowledged": true,
		"applied":      applied,
	})
}
