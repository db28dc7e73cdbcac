package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

// ResultsHandler serves dataset records to clients.
type ResultsHandler struct {
	jobs   Jobs
	logger *slog.Logger
}

// NewResultsHandler creates a new results handler
func NewResultsHandler(jobs Jobs, logger *slog.Logger) *ResultsHandler {
	return &ResultsHandler{jobs: jobs, logger: logger}
}

// Get returns one record by id.
func (h *ResultsHandler) Get(c *fiber.Ctx) error {
	rec, err := h.jobs.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(rec)
}

// List returns records most recent first.
func (h *ResultsHandler) List(c *fiber.Ctx) error {
	recs, err := h.jobs.List(c.UserContext())
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(recs)
}
