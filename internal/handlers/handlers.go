// Package handlers exposes the dataset job service over fiber.
package handlers

import (
	"context"
	"io"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/abacus/internal/types"
)

// Jobs is the part of jobs.Service the HTTP surface needs.
type Jobs interface {
	Submit(ctx context.Context, sourceName string, r io.Reader) (*types.Record, error)
	ReportResult(ctx context.Context, id string, outcome types.Outcome) (bool, error)
	Get(ctx context.Context, id string) (*types.Record, error)
	List(ctx context.Context) ([]*types.Record, error)
}

// Register mounts every dataset route on router.
func Register(router fiber.Router, jobs Jobs, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	upload := NewUploadHandler(jobs, logger)
	results := NewResultsHandler(jobs, logger)
	callback := NewCallbackHandler(jobs, logger)

	api := router.Group("/api")
	api.Post("/upload", upload.Handle)
	api.Get("/results/:id", results.Get)
	api.Get("/datasets", results.List)
	api.Post("/datasets/:id/result", callback.Handle)
}
