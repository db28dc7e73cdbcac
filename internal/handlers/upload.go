package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

// UploadHandler handles dataset uploads
type UploadHandler struct {
	jobs   Jobs
	logger *slog.Logger
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(jobs Jobs, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{jobs: jobs, logger: logger}
}

// Handle accepts a multipart "file" field and starts processing it. The
// response only confirms that the job exists; its outcome is read later.
func (h *UploadHandler) Handle(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "No file uploaded",
		})
	}

	f, err := file.Open()
	if err != nil {
		h.logger.Error("failed to open uploaded file", "filename", file.Filename, "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "No file uploaded",
		})
	}
	defer f.Close()

	rec, err := h.jobs.Submit(c.UserContext(), file.Filename, f)
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return c.JSON(fiber.Map{
		"message": "File uploaded, processing started",
		"id":      rec.ID,
	})
}
