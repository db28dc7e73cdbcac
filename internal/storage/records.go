package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/codebuildervaibhav/abacus/internal/errors"
	"github.com/codebuildervaibhav/abacus/internal/types"
)

// sqlRecords implements the record store over database/sql. Dialect
// differences are limited to placeholders and unique-violation detection.
type sqlRecords struct {
	db       *sql.DB
	dollar   bool
	isUnique func(error) bool
	now      func() time.Time
}

const recordColumns = `id, source_name, blob_ref, status, quality_score, total_rows,
	anomaly_count, report, error, created_at, updated_at`

// rebind rewrites ? placeholders to $n for postgres.
func (s *sqlRecords) rebind(query string) string {
	if !s.dollar {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Create inserts a new record.
func (s *sqlRecords) Create(ctx context.Context, rec *types.Record) error {
	if rec == nil {
		return apperrors.Validation("record is nil")
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}

	query := s.rebind(`
	INSERT INTO datasets (` + recordColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.SourceName, rec.BlobRef, string(rec.Status),
		nullFloat(rec.QualityScore), nullInt(rec.TotalRows), nullInt(rec.AnomalyCount),
		nullBytes(rec.Report), nullString(rec.Error),
		rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano(),
	)
	if err != nil {
		if s.isUnique != nil && s.isUnique(err) {
			return apperrors.Conflictf("dataset %s already exists", rec.ID)
		}
		return apperrors.Storage(err, "save dataset record")
	}
	return nil
}

// Get retrieves a record by id.
func (s *sqlRecords) Get(ctx context.Context, id string) (*types.Record, error) {
	query := s.rebind(`SELECT ` + recordColumns + ` FROM datasets WHERE id = ?`)

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("dataset %s not found", id)
		}
		return nil, apperrors.Storage(err, "get dataset record")
	}
	return rec, nil
}

// List returns records most recent first. Records created in the same
// instant come back in reverse insertion order.
func (s *sqlRecords) List(ctx context.Context, limit int) ([]*types.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM datasets ORDER BY created_at DESC, seq DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, apperrors.Storage(err, "list dataset records")
	}
	defer rows.Close()

	records := make([]*types.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, apperrors.Storage(err, "scan dataset record")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Storage(err, "list dataset records")
	}
	return records, nil
}

// Resolve moves a pending record to the outcome's terminal status in a single
// conditional UPDATE. It returns false without error when the record is
// already terminal.
func (s *sqlRecords) Resolve(ctx context.Context, id string, outcome types.Outcome) (bool, error) {
	if !outcome.Status.IsTerminal() {
		return false, apperrors.Validationf("cannot resolve dataset to %q", outcome.Status)
	}
	if outcome.Status == types.StatusFailed {
		outcome = types.Failure(outcome.Error)
	}

	query := s.rebind(`
	UPDATE datasets
	SET status = ?, quality_score = ?, total_rows = ?, anomaly_count = ?,
		report = ?, error = ?, updated_at = ?
	WHERE id = ? AND status = 'pending'
	`)

	res, err := s.db.ExecContext(ctx, query,
		string(outcome.Status),
		nullFloat(outcome.QualityScore), nullInt(outcome.TotalRows), nullInt(outcome.AnomalyCount),
		nullBytes(outcome.Report), nullString(outcome.Error),
		s.now().UTC().UnixNano(), id,
	)
	if err != nil {
		return false, apperrors.Storage(err, "resolve dataset record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.Storage(err, "resolve dataset record")
	}
	if n > 0 {
		return true, nil
	}

	// Nothing changed: either the id is unknown or the record is terminal.
	var status string
	err = s.db.QueryRowContext(ctx, s.rebind(`SELECT status FROM datasets WHERE id = ?`), id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, apperrors.NotFoundf("dataset %s not found", id)
	}
	if err != nil {
		return false, apperrors.Storage(err, "check dataset status")
	}
	return false, nil
}

// FailStalePending fails every pending record created before olderThan.
func (s *sqlRecords) FailStalePending(ctx context.Context, olderThan time.Time, reason string) (int64, error) {
	query := s.rebind(`
	UPDATE datasets
	SET status = 'failed', error = ?, updated_at = ?
	WHERE status = 'pending' AND created_at < ?
	`)

	res, err := s.db.ExecContext(ctx, query, reason, s.now().UTC().UnixNano(), olderThan.UnixNano())
	if err != nil {
		return 0, apperrors.Storage(err, "fail stale datasets")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.Storage(err, "fail stale datasets")
	}
	return n, nil
}

// Close closes the database connection
func (s *sqlRecords) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*types.Record, error) {
	var (
		rec                 types.Record
		status              string
		score               sql.NullFloat64
		totalRows, anomaly  sql.NullInt64
		report, errMsg      sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(&rec.ID, &rec.SourceName, &rec.BlobRef, &status, &score, &totalRows,
		&anomaly, &report, &errMsg, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	rec.Status = types.Status(status)
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	rec.UpdatedAt = time.Unix(0, updatedAt).UTC()
	if score.Valid {
		v := score.Float64
		rec.QualityScore = &v
	}
	if totalRows.Valid {
		v := int(totalRows.Int64)
		rec.TotalRows = &v
	}
	if anomaly.Valid {
		v := int(anomaly.Int64)
		rec.AnomalyCount = &v
	}
	if report.Valid && report.String != "" {
		rec.Report = []byte(report.String)
	}
	rec.Error = errMsg.String
	return &rec, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func schemaError(err error) error {
	return fmt.Errorf("failed to create schema: %w", err)
}
