package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codebuildervaibhav/abacus/internal/types"
)

// LocalArchiver writes a JSON copy of each completed dataset record to disk.
type LocalArchiver struct {
	outputDir string
	now       func() time.Time
}

// NewLocalArchiver creates a new local archiver rooted at outputDir.
func NewLocalArchiver(outputDir string) *LocalArchiver {
	return &LocalArchiver{outputDir: outputDir, now: time.Now}
}

// Name identifies the archiver in logs.
func (a *LocalArchiver) Name() string { return "local" }

// Archive saves the record under outputDir/YYYY/MM/DD/ and returns the path.
func (a *LocalArchiver) Archive(ctx context.Context, rec *types.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	now := a.now()
	dateDir := filepath.Join(a.outputDir,
		fmt.Sprintf("%d", now.Year()),
		fmt.Sprintf("%02d", now.Month()),
		fmt.Sprintf("%02d", now.Day()))

	if err := os.MkdirAll(dateDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create date directory: %w", err)
	}

	body, err := archiveDocument(rec)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dateDir, archiveFilename(rec, now))
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}
	return path, nil
}

// archiveFilename builds 20250123_143022_claims_<id>_report.json.
func archiveFilename(rec *types.Record, now time.Time) string {
	base := strings.TrimSuffix(sanitizeFilename(rec.SourceName), filepath.Ext(rec.SourceName))
	return fmt.Sprintf("%s_%s_%s_report.json", now.Format("20060102_150405"), base, rec.ID)
}

func archiveDocument(rec *types.Record) ([]byte, error) {
	body, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return body, nil
}
