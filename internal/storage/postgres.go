package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS datasets (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	source_name TEXT NOT NULL,
	blob_ref TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('pending', 'completed', 'failed')),
	quality_score DOUBLE PRECISION,
	total_rows BIGINT,
	anomaly_count BIGINT,
	report JSONB,
	error TEXT,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_datasets_created_at ON datasets(created_at DESC, seq DESC);
CREATE INDEX IF NOT EXISTS idx_datasets_status ON datasets(status, created_at);
`

// PostgresStore is a record store backed by PostgreSQL through pgx.
type PostgresStore struct {
	sqlRecords
}

// NewPostgresStore connects to dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		if closeErr := db.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close database connection: %w", closeErr))
		}
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}
	if _, err := db.ExecContext(pingCtx, postgresSchema); err != nil {
		_ = db.Close()
		return nil, schemaError(err)
	}

	return &PostgresStore{sqlRecords{
		db:       db,
		dollar:   true,
		isUnique: isPostgresUnique,
		now:      time.Now,
	}}, nil
}

func isPostgresUnique(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
