package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/csvboard/csvboard/internal/validation"
)

// Upload is a stored dataset: one validated CSV file plus its summary.
type Upload struct {
	ID               string                           `json:"id"`
	FileName         string                           `json:"file_name"`
	Headers          []string                         `json:"headers"`
	ColumnTypes      map[string]validation.ColumnType `json:"column_types"`
	TotalRows        int                              `json:"total_rows"`
	ValidRows        int                              `json:"valid_rows"`
	DuplicateRows    int                              `json:"duplicate_rows"`
	ErrorRows        int                              `json:"error_rows"`
	ValidationErrors []string                         `json:"validation_errors,omitempty"`
	CreatedAt        time.Time                        `json:"created_at"`
}

// Row is one stored, coerced data row.
type Row struct {
	RowNumber int                    `json:"row_number"`
	Data      map[string]interface{} `json:"data"`
}

// RowPage is a page of non-duplicate rows from one upload.
type RowPage struct {
	Rows       []Row `json:"rows"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

// UploadPage is a page of upload summaries, newest first.
type UploadPage struct {
	Uploads    []Upload `json:"uploads"`
	Total      int64    `json:"total"`
	Page       int      `json:"page"`
	Limit      int      `json:"limit"`
	TotalPages int      `json:"total_pages"`
}

// ColumnStat aggregates one numeric column of an upload. Nil pointer
// fields mean the column had no non-null numeric values to aggregate.
type ColumnStat struct {
	Column string   `json:"column"`
	Sum    *float64 `json:"sum"`
	Avg    *float64 `json:"avg"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
	Count  int64    `json:"count"`
}

const selectUpload = `SELECT id::text, file_name, headers, column_types,
	total_rows, valid_rows, duplicate_rows, error_rows, validation_errors, created_at
	FROM uploads`

// CreateUpload stores a validated file and all of its row results in one
// transaction, returning the generated upload ID. Nothing is persisted if
// any insert fails.
func (s *Store) CreateUpload(ctx context.Context, fileName string, file *validation.FileResult) (string, error) {
	uploadID := uuid.New().String()

	columnTypes, err := json.Marshal(file.Summary.ColumnTypes)
	if err != nil {
		return "", fmt.Errorf("marshal column types: %w", err)
	}
	validationErrors, err := json.Marshal(file.Summary.Errors)
	if err != nil {
		return "", fmt.Errorf("marshal validation errors: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `INSERT INTO uploads
		(id, file_name, headers, column_types, total_rows, valid_rows, duplicate_rows, error_rows, validation_errors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uploadID, fileName, file.Header, columnTypes,
		file.Summary.TotalRows, file.Summary.ValidRows,
		file.Summary.DuplicateRows, file.Summary.ErrorRows,
		validationErrors,
	)
	if err != nil {
		return "", fmt.Errorf("insert upload: %w", err)
	}

	const insertRow = `INSERT INTO upload_rows
		(upload_id, row_number, data, errors, is_duplicate, is_valid)
		VALUES ($1, $2, $3, $4, $5, $6)`

	batch := &pgx.Batch{}
	for _, row := range file.Results {
		data, err := json.Marshal(row.Data)
		if err != nil {
			return "", fmt.Errorf("marshal row %d: %w", row.RowNumber, err)
		}
		batch.Queue(insertRow, uploadID, row.RowNumber, data, row.Errors, row.Duplicate, row.Valid)

		if batch.Len() >= s.batchSize {
			if err := sendBatch(ctx, tx, batch); err != nil {
				return "", err
			}
			batch = &pgx.Batch{}
		}
	}
	if err := sendBatch(ctx, tx, batch); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit upload: %w", err)
	}

	return uploadID, nil
}

// sendBatch executes queued row inserts and surfaces the first failure.
func sendBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("insert row batch: %w", err)
		}
	}
	return results.Close()
}

// Upload returns one stored upload summary.
func (s *Store) Upload(ctx context.Context, id string) (*Upload, error) {
	uploadID, err := parseUploadID(id)
	if err != nil {
		return nil, err
	}

	up, err := scanUpload(s.pool.QueryRow(ctx, selectUpload+` WHERE id = $1`, uploadID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get upload: %w", err)
	}
	return up, nil
}

// Uploads returns stored upload summaries, newest first.
func (s *Store) Uploads(ctx context.Context, page, limit int) (*UploadPage, error) {
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM uploads`).Scan(&total); err != nil {
		return nil, fmt.Errorf("count uploads: %w", err)
	}

	win := clampPage(page, limit, total)

	rows, err := s.pool.Query(ctx,
		selectUpload+` ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		win.limit, win.offset)
	if err != nil {
		return nil, fmt.Errorf("query uploads: %w", err)
	}
	defer rows.Close()

	uploads := make([]Upload, 0)
	for rows.Next() {
		up, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		uploads = append(uploads, *up)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &UploadPage{
		Uploads:    uploads,
		Total:      total,
		Page:       win.page,
		Limit:      win.limit,
		TotalPages: win.totalPages,
	}, nil
}

// UploadRows returns a page of an upload's coerced rows for the records
// browser. Duplicate rows are excluded and the original row order is kept.
func (s *Store) UploadRows(ctx context.Context, id string, page, limit int) (*RowPage, error) {
	uploadID, err := parseUploadID(id)
	if err != nil {
		return nil, err
	}

	if err := s.uploadExists(ctx, uploadID); err != nil {
		return nil, err
	}

	var total int64
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM upload_rows WHERE upload_id = $1 AND NOT is_duplicate`,
		uploadID).Scan(&total); err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}

	win := clampPage(page, limit, total)

	rows, err := s.pool.Query(ctx, `SELECT row_number, data FROM upload_rows
		WHERE upload_id = $1 AND NOT is_duplicate
		ORDER BY row_number LIMIT $2 OFFSET $3`,
		uploadID, win.limit, win.offset)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	out := make([]Row, 0, win.limit)
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.RowNumber, &r.Data); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &RowPage{
		Rows:       out,
		Total:      total,
		Page:       win.page,
		Limit:      win.limit,
		TotalPages: win.totalPages,
	}, nil
}

// ColumnStats aggregates every numeric column of an upload across its
// non-duplicate rows. Cells that coerced to null drop out of the
// aggregates, which is why Count can be lower than the row count.
func (s *Store) ColumnStats(ctx context.Context, id string) ([]ColumnStat, error) {
	up, err := s.Upload(ctx, id)
	if err != nil {
		return nil, err
	}

	// Header order keeps chart output stable across calls.
	var numericCols []string
	for _, col := range up.Headers {
		if up.ColumnTypes[col] == validation.TypeNumber {
			numericCols = append(numericCols, col)
		}
	}
	if len(numericCols) == 0 {
		return []ColumnStat{}, nil
	}

	uploadID, err := parseUploadID(id)
	if err != nil {
		return nil, err
	}

	// Column names are jsonb keys, so they ride along as text parameters:
	// $1 is the upload, $2..$n the column names.
	args := make([]interface{}, 0, len(numericCols)+1)
	args = append(args, uploadID)

	selectExprs := make([]string, 0, len(numericCols)*5)
	for i, col := range numericCols {
		expr := fmt.Sprintf("(data->>$%d)::double precision", i+2)
		selectExprs = append(selectExprs,
			fmt.Sprintf("SUM(%s)", expr),
			fmt.Sprintf("AVG(%s)", expr),
			fmt.Sprintf("MIN(%s)", expr),
			fmt.Sprintf("MAX(%s)", expr),
			fmt.Sprintf("COUNT(%s)", expr),
		)
		args = append(args, col)
	}

	query := fmt.Sprintf(
		"SELECT %s FROM upload_rows WHERE upload_id = $1 AND NOT is_duplicate",
		strings.Join(selectExprs, ", "),
	)

	row := s.pool.QueryRow(ctx, query, args...)

	// Five aggregates per column. The float destinations are **float64 so
	// SQL NULL (an empty aggregate) survives the scan as a nil pointer.
	type colAgg struct {
		sum, avg, min, max *float64
		count              int64
	}
	aggs := make([]colAgg, len(numericCols))
	dest := make([]interface{}, 0, len(numericCols)*5)
	for i := range aggs {
		a := &aggs[i]
		dest = append(dest, &a.sum, &a.avg, &a.min, &a.max, &a.count)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan column stats: %w", err)
	}

	stats := make([]ColumnStat, 0, len(numericCols))
	for i, col := range numericCols {
		a := aggs[i]
		stats = append(stats, ColumnStat{
			Column: col,
			Sum:    a.sum,
			Avg:    a.avg,
			Min:    a.min,
			Max:    a.max,
			Count:  a.count,
		})
	}

	return stats, nil
}

// StreamUploadRows invokes fn for every non-duplicate row of an upload in
// row order. Used for CSV export so the dataset is never fully buffered.
func (s *Store) StreamUploadRows(ctx context.Context, id string, fn func(Row) error) error {
	uploadID, err := parseUploadID(id)
	if err != nil {
		return err
	}

	if err := s.uploadExists(ctx, uploadID); err != nil {
		return err
	}

	rows, err := s.pool.Query(ctx, `SELECT row_number, data FROM upload_rows
		WHERE upload_id = $1 AND NOT is_duplicate ORDER BY row_number`, uploadID)
	if err != nil {
		return fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var r Row
		if err := rows.Scan(&r.RowNumber, &r.Data); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}

// DeleteUpload removes an upload and, via cascade, all of its rows.
func (s *Store) DeleteUpload(ctx context.Context, id string) error {
	uploadID, err := parseUploadID(id)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM uploads WHERE id = $1`, uploadID)
	if err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// uploadExists reports ErrNotFound for IDs with no uploads row, so row
// queries against an unknown upload surface a 404 instead of an empty page.
func (s *Store) uploadExists(ctx context.Context, uploadID pgtype.UUID) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM uploads WHERE id = $1)`, uploadID).Scan(&exists); err != nil {
		return fmt.Errorf("check upload: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

// parseUploadID parses a caller-supplied upload ID. An unparseable ID can
// never match a stored upload, so it reports ErrNotFound.
func parseUploadID(id string) (pgtype.UUID, error) {
	var pgUUID pgtype.UUID
	if err := pgUUID.Scan(id); err != nil {
		return pgUUID, fmt.Errorf("invalid upload ID %q: %w", id, ErrNotFound)
	}
	return pgUUID, nil
}

// scanUpload reads one uploads row. pgx.Rows satisfies pgx.Row, so this
// works for both QueryRow and Query results.
func scanUpload(row pgx.Row) (*Upload, error) {
	var (
		up               Upload
		columnTypes      []byte
		validationErrors []byte
	)
	err := row.Scan(&up.ID, &up.FileName, &up.Headers, &columnTypes,
		&up.TotalRows, &up.ValidRows, &up.DuplicateRows, &up.ErrorRows,
		&validationErrors, &up.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(columnTypes, &up.ColumnTypes); err != nil {
		return nil, fmt.Errorf("decode column types: %w", err)
	}
	if len(validationErrors) > 0 {
		if err := json.Unmarshal(validationErrors, &up.ValidationErrors); err != nil {
			return nil, fmt.Errorf("decode validation errors: %w", err)
		}
	}
	return &up, nil
}
