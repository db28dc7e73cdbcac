package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/sync/errgroup"

	"github.com/codebuildervaibhav/abacus/internal/cleanup"
	"github.com/codebuildervaibhav/abacus/internal/config"
	"github.com/codebuildervaibhav/abacus/internal/handlers"
	"github.com/codebuildervaibhav/abacus/internal/jobs"
	"github.com/codebuildervaibhav/abacus/internal/queue"
	"github.com/codebuildervaibhav/abacus/internal/storage"
)

const (
	version         = "1.0.0"
	shutdownTimeout = 15 * time.Second
)

// recordStore is what the server needs from either SQL backend.
type recordStore interface {
	jobs.RecordStore
	cleanup.StaleFailer
	Close() error
}

func main() {
	configPath := os.Getenv("ABACUS_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing components", "storage_driver", cfg.Storage.Driver)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close record store", "error", err)
		}
	}()

	blobs, err := storage.NewLocalBlobStore(cfg.Storage.UploadDir)
	if err != nil {
		return err
	}

	handOff := queue.NewHTTPHandOff(cfg.Worker.BaseURL, cfg.Server.PublicURL, blobs, &http.Client{})
	dispatcher := queue.NewDispatcher(handOff, store,
		queue.WithWorkers(cfg.Workers.Count),
		queue.WithQueueSize(cfg.Workers.QueueSize),
		queue.WithTimeout(cfg.Worker.Timeout),
		queue.WithLogger(log.With("component", "dispatcher")),
	)
	dispatcher.Start()

	svc, err := jobs.NewService(jobs.Options{
		Records:           store,
		Blobs:             blobs,
		Dispatcher:        dispatcher,
		Archivers:         openArchivers(ctx, cfg, log),
		Logger:            log.With("component", "jobs"),
		AllowedExtensions: cfg.Limits.AllowedExtensions,
		ListLimit:         cfg.Server.ListLimit,
	})
	if err != nil {
		return err
	}

	sweeper, err := cleanup.NewSweeper(store, cfg.Sweeper.Schedule, cfg.Sweeper.PendingTimeout, log.With("component", "sweeper"))
	if err != nil {
		return err
	}

	app := newApp(cfg, svc, blobs, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting", "addr", cfg.Addr(), "worker", cfg.Worker.BaseURL, "public_url", cfg.Server.PublicURL)
		if err := app.Listen(cfg.Addr()); err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down gracefully", "dispatches_in_flight", dispatcher.Pending())

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.ShutdownWithContext(sctx); err != nil {
			log.Error("http shutdown failed", "error", err)
		}
		dispatcher.Shutdown(sctx)
		svc.Wait()
		return nil
	})

	return g.Wait()
}

func newApp(cfg *config.Config, svc *jobs.Service, blobs *storage.LocalBlobStore, log *slog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "abacus",
		BodyLimit:             cfg.BodyLimit(),
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"version": version,
		})
	})

	handlers.Register(app, svc, log.With("component", "http"))

	// Stored uploads, addressed by the record's blobRef.
	app.Static("/uploads", blobs.Dir(), fiber.Static{Browse: false})

	return app
}

func openStore(ctx context.Context, cfg *config.Config) (recordStore, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		return storage.NewPostgresStore(ctx, cfg.Storage.PostgresDSN)
	default:
		return storage.NewSQLiteStore(cfg.Storage.Database)
	}
}

// openArchivers returns the configured report archivers. A target that
// cannot be set up is skipped with a warning.
func openArchivers(ctx context.Context, cfg *config.Config, log *slog.Logger) []jobs.Archiver {
	var archivers []jobs.Archiver

	if cfg.Archive.LocalDir != "" {
		archivers = append(archivers, storage.NewLocalArchiver(cfg.Archive.LocalDir))
		log.Info("local report archive enabled", "dir", cfg.Archive.LocalDir)
	}

	if cfg.Archive.GDriveCredentials == "" {
		return archivers
	}
	if _, err := os.Stat(cfg.Archive.GDriveCredentials); err != nil {
		log.Warn("Google Drive credentials not found, skipping drive archive", "path", cfg.Archive.GDriveCredentials)
		return archivers
	}
	drive, err := storage.NewDriveArchiver(ctx, cfg.Archive.GDriveCredentials, cfg.Archive.GDriveToken, cfg.Archive.GDriveFolder)
	if err != nil {
		log.Warn("Google Drive not available", "error", err)
		return archivers
	}
	log.Info("Google Drive report archive enabled", "folder", cfg.Archive.GDriveFolder)
	return append(archivers, drive)
}
