// Package jobs implements the dataset job lifecycle: accepting uploads,
// resolving them from worker callbacks, and reading them back.
package jobs

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/codebuildervaibhav/abacus/internal/errors"
	"github.com/codebuildervaibhav/abacus/internal/types"
)

// RecordStore persists dataset records. Resolve must only change a record
// that is still pending, atomically with respect to readers.
type RecordStore interface {
	Create(ctx context.Context, rec *types.Record) error
	Get(ctx context.Context, id string) (*types.Record, error)
	List(ctx context.Context, limit int) ([]*types.Record, error)
	Resolve(ctx context.Context, id string, outcome types.Outcome) (bool, error)
}

// BlobStore persists uploaded content.
type BlobStore interface {
	Save(ctx context.Context, sourceName string, r io.Reader) (types.BlobRef, error)
}

// Dispatcher starts the hand-off of an upload without waiting for it.
type Dispatcher interface {
	Dispatch(blob types.BlobRef, jobID string)
}

// Archiver keeps a copy of a completed record somewhere else.
type Archiver interface {
	Name() string
	Archive(ctx context.Context, rec *types.Record) (string, error)
}

// Options holds the dependencies of a Service.
type Options struct {
	Records    RecordStore
	Blobs      BlobStore
	Dispatcher Dispatcher
	Archivers  []Archiver
	Logger     *slog.Logger

	// AllowedExtensions restricts upload names, e.g. ".csv". Empty allows all.
	AllowedExtensions []string
	// ListLimit caps List. Zero or less returns every record.
	ListLimit int
	// ArchiveTimeout bounds one archiver call.
	ArchiveTimeout time.Duration
}

// Service is the ingestion gateway, result callback surface and status
// reader over a shared record store.
type Service struct {
	records    RecordStore
	blobs      BlobStore
	dispatcher Dispatcher
	archivers  []Archiver
	logger     *slog.Logger

	allowed        map[string]bool
	listLimit      int
	archiveTimeout time.Duration

	now   func() time.Time
	newID func() string
	wg    sync.WaitGroup
}

// NewService creates a new Service.
func NewService(opts Options) (*Service, error) {
	if opts.Records == nil {
		return nil, apperrors.Internal("record store is required")
	}
	if opts.Blobs == nil {
		return nil, apperrors.Internal("blob store is required")
	}
	if opts.Dispatcher == nil {
		return nil, apperrors.Internal("dispatcher is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ArchiveTimeout <= 0 {
		opts.ArchiveTimeout = time.Minute
	}

	allowed := make(map[string]bool, len(opts.AllowedExtensions))
	for _, ext := range opts.AllowedExtensions {
		if ext != "" {
			allowed[strings.ToLower(ext)] = true
		}
	}

	return &Service{
		records:        opts.Records,
		blobs:          opts.Blobs,
		dispatcher:     opts.Dispatcher,
		archivers:      opts.Archivers,
		logger:         opts.Logger,
		allowed:        allowed,
		listLimit:      opts.ListLimit,
		archiveTimeout: opts.ArchiveTimeout,
		now:            time.Now,
		newID:          uuid.NewString,
	}, nil
}

// Submit stores the upload, creates its pending record and starts the
// hand-off. It returns once the record is readable; the hand-off outcome
// only ever shows up later in the record's status.
func (s *Service) Submit(ctx context.Context, sourceName string, r io.Reader) (*types.Record, error) {
	sourceName = strings.TrimSpace(sourceName)
	if sourceName == "" {
		return nil, apperrors.Intake("No file uploaded")
	}
	if r == nil {
		return nil, apperrors.Intake("No file uploaded")
	}
	if len(s.allowed) > 0 && !s.allowed[strings.ToLower(filepath.Ext(sourceName))] {
		return nil, apperrors.Intake("Unsupported file format")
	}

	// 1. Persist bytes. Nothing else exists yet if this fails.
	blob, err := s.blobs.Save(ctx, sourceName, r)
	if err != nil {
		if apperrors.IsIntake(err) {
			return nil, err
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeStorage, "failed to store upload")
	}

	// 2. Create the pending record.
	now := s.now().UTC()
	rec := &types.Record{
		ID:         s.newID(),
		SourceName: sourceName,
		BlobRef:    blob.Key,
		Status:     types.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.records.Create(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "failed to create dataset record", "blob", blob.Key, "error", err)
		return nil, apperrors.Wrap(err, apperrors.ErrCodeStorage, "failed to create dataset record")
	}

	// 3. Hand off without waiting.
	s.dispatcher.Dispatch(blob, rec.ID)

	s.logger.InfoContext(ctx, "dataset accepted", "job_id", rec.ID, "source_name", sourceName, "blob", blob.Key)
	return rec, nil
}

// ReportResult applies a worker reported outcome to a pending job. Reports
// for a job that is already terminal are acknowledged with applied=false and
// change nothing.
func (s *Service) ReportResult(ctx context.Context, id string, outcome types.Outcome) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, apperrors.Validation("dataset id is required")
	}
	outcome, err := normalizeOutcome(outcome)
	if err != nil {
		return false, err
	}

	applied, err := s.records.Resolve(ctx, id, outcome)
	if err != nil {
		if apperrors.IsNotFound(err) {
			s.logger.WarnContext(ctx, "result reported for unknown dataset", "job_id", id)
		}
		return false, err
	}
	if !applied {
		s.logger.InfoContext(ctx, "duplicate result ignored", "job_id", id, "status", outcome.Status)
		return false, nil
	}

	s.logger.InfoContext(ctx, "dataset resolved", "job_id", id, "status", outcome.Status)
	if outcome.Status == types.StatusCompleted && len(s.archivers) > 0 {
		s.archive(id)
	}
	return true, nil
}

// normalizeOutcome enforces that a completed outcome carries every report
// field and a failed one carries none.
func normalizeOutcome(o types.Outcome) (types.Outcome, error) {
	switch o.Status {
	case types.StatusCompleted:
		var missing []string
		if o.QualityScore == nil {
			missing = append(missing, "qualityScore")
		}
		if o.TotalRows == nil {
			missing = append(missing, "totalRows")
		}
		if o.AnomalyCount == nil {
			missing = append(missing, "anomalyCount")
		}
		if len(o.Report) == 0 || string(o.Report) == "null" {
			missing = append(missing, "report")
		}
		if len(missing) > 0 {
			return o, apperrors.Validationf("completed result is missing %s", strings.Join(missing, ", "))
		}
		if *o.TotalRows < 0 || *o.AnomalyCount < 0 {
			return o, apperrors.Validation("row counts must not be negative")
		}
		o.Error = ""
		return o, nil
	case types.StatusFailed:
		return types.Failure(o.Error), nil
	default:
		return o, apperrors.Validationf("status must be %q or %q", types.StatusCompleted, types.StatusFailed)
	}
}

// archive copies the freshly completed record to every archiver in the
// background. Failures are logged only.
func (s *Service) archive(id string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.archiveTimeout*time.Duration(len(s.archivers)))
		defer cancel()

		rec, err := s.records.Get(ctx, id)
		if err != nil {
			s.logger.Error("archive: failed to load dataset", "job_id", id, "error", err)
			return
		}
		for _, a := range s.archivers {
			actx, acancel := context.WithTimeout(ctx, s.archiveTimeout)
			location, err := a.Archive(actx, rec)
			acancel()
			if err != nil {
				s.logger.Warn("archive failed", "archiver", a.Name(), "job_id", id, "error", err)
				continue
			}
			s.logger.Info("report archived", "archiver", a.Name(), "job_id", id, "location", location)
		}
	}()
}

// Wait blocks until background archiving has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Get returns the record for id.
func (s *Service) Get(ctx context.Context, id string) (*types.Record, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.NotFound("Dataset not found")
	}
	return s.records.Get(ctx, id)
}

// List returns records most recent first.
func (s *Service) List(ctx context.Context) ([]*types.Record, error) {
	return s.records.List(ctx, s.listLimit)
}
