// Package store persists uploads, their validated rows, and API request
// logs in PostgreSQL via pgx.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

const defaultBatchSize = 1000

// Store provides PostgreSQL persistence for uploads and request logs.
type Store struct {
	pool      *pgxpool.Pool
	batchSize int
}

// New creates a Store backed by the given pool. batchSize bounds how many
// row inserts are queued per database round trip during CreateUpload; a
// non-positive value selects the default.
func New(pool *pgxpool.Pool, batchSize int) *Store {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Store{pool: pool, batchSize: batchSize}
}

// schema holds the DDL applied at startup. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS uploads (
		id uuid PRIMARY KEY,
		file_name text NOT NULL,
		headers text[] NOT NULL,
		column_types jsonb NOT NULL,
		total_rows integer NOT NULL,
		valid_rows integer NOT NULL,
		duplicate_rows integer NOT NULL,
		error_rows integer NOT NULL,
		validation_errors jsonb,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS upload_rows (
		upload_id uuid NOT NULL REFERENCES uploads(id) ON DELETE CASCADE,
		row_number integer NOT NULL,
		data jsonb NOT NULL,
		errors text[],
		is_duplicate boolean NOT NULL DEFAULT false,
		is_valid boolean NOT NULL DEFAULT false,
		PRIMARY KEY (upload_id, row_number)
	)`,
	`CREATE TABLE IF NOT EXISTS request_logs (
		id uuid PRIMARY KEY,
		method text NOT NULL,
		path text NOT NULL,
		status integer NOT NULL,
		duration_ms bigint NOT NULL,
		ip text NOT NULL DEFAULT '',
		user_agent text NOT NULL DEFAULT '',
		request_id text NOT NULL DEFAULT '',
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_uploads_created_at ON uploads (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_request_logs_created_at ON request_logs (created_at)`,
}

// Migrate creates the tables and indexes the service needs.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
