package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// RequestLog is one recorded API request.
type RequestLog struct {
	ID         string    `json:"id"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Status     int       `json:"status"`
	DurationMs int64     `json:"duration_ms"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// RequestLogOptions filters and pages the request log listing. Zero
// values mean "no filter".
type RequestLogOptions struct {
	Method string
	Status int
	Path   string
	Start  time.Time
	End    time.Time
	Page   int
	Limit  int
}

// RequestLogPage is a page of request logs, newest first.
type RequestLogPage struct {
	Logs       []RequestLog `json:"logs"`
	Total      int64        `json:"total"`
	Page       int          `json:"page"`
	Limit      int          `json:"limit"`
	TotalPages int          `json:"total_pages"`
}

// InsertRequestLog stores one request log entry. Missing IDs and
// timestamps are filled in here so callers can pass a bare entry.
func (s *Store) InsertRequestLog(ctx context.Context, entry *RequestLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	var logID pgtype.UUID
	if err := logID.Scan(entry.ID); err != nil {
		return fmt.Errorf("invalid log ID %q: %w", entry.ID, err)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `INSERT INTO request_logs
		(id, method, path, status, duration_ms, ip, user_agent, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		logID, entry.Method, entry.Path, entry.Status, entry.DurationMs,
		entry.IP, entry.UserAgent, entry.RequestID, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert request log: %w", err)
	}
	return nil
}

// RequestLogs returns request logs filtered by opts, newest first.
func (s *Store) RequestLogs(ctx context.Context, opts RequestLogOptions) (*RequestLogPage, error) {
	wb := NewWhereBuilder()
	wb.Add("method", strings.ToUpper(opts.Method))
	wb.AddInt("status", opts.Status)
	wb.AddContains("path", opts.Path)

	if !opts.Start.IsZero() || !opts.End.IsZero() {
		start := opts.Start
		if start.IsZero() {
			start = time.Unix(0, 0).UTC()
		}
		end := opts.End
		if end.IsZero() {
			end = time.Now().UTC().Add(24 * time.Hour)
		}
		wb.AddTimestampRange("created_at", start, end)
	}

	whereClause, args := wb.Build()

	var total int64
	countQuery := `SELECT COUNT(*) FROM request_logs` + whereClause
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count request logs: %w", err)
	}

	win := clampPage(opts.Page, opts.Limit, total)

	query := fmt.Sprintf(`SELECT id::text, method, path, status, duration_ms,
		ip, user_agent, request_id, created_at
		FROM request_logs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		whereClause, wb.NextArgIndex(), wb.NextArgIndex()+1)
	args = append(args, win.limit, win.offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query request logs: %w", err)
	}
	defer rows.Close()

	logs := make([]RequestLog, 0, win.limit)
	for rows.Next() {
		var l RequestLog
		if err := rows.Scan(&l.ID, &l.Method, &l.Path, &l.Status, &l.DurationMs,
			&l.IP, &l.UserAgent, &l.RequestID, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan request log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &RequestLogPage{
		Logs:       logs,
		Total:      total,
		Page:       win.page,
		Limit:      win.limit,
		TotalPages: win.totalPages,
	}, nil
}

// DeleteRequestLogsBefore removes log entries older than cutoff and
// reports how many were deleted. The retention sweeper calls this.
func (s *Store) DeleteRequestLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM request_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete request logs: %w", err)
	}
	return tag.RowsAffected(), nil
}
