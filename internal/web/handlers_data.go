package web

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/csvboard/csvboard/internal/logging"
	"github.com/csvboard/csvboard/internal/store"
)

// ColumnStatsResponse carries the numeric column aggregates for one upload.
type ColumnStatsResponse struct {
	UploadID string             `json:"upload_id"`
	Stats    []store.ColumnStat `json:"stats"`
}

// handleListUploads returns a page of upload summaries, newest first.
func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	page := parseIntParam(r, "page", 1)
	limit := parseIntParam(r, "limit", store.DefaultPageSize)

	result, err := s.data.Uploads(r.Context(), page, limit)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, result)
}

// handleGetUpload returns the summary of a single upload.
func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uploadID")

	result, err := s.data.Upload(r.Context(), id)
	if err != nil {
		respondError(w, r, err, storeErrorStatus(err))
		return
	}

	writeJSON(w, result)
}

// handleDeleteUpload removes an upload and its rows.
func (s *Server) handleDeleteUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uploadID")

	if err := s.data.DeleteUpload(r.Context(), id); err != nil {
		respondError(w, r, err, storeErrorStatus(err))
		return
	}

	writeJSON(w, map[string]string{"status": "deleted", "upload_id": id})
}

// handleUploadRows returns a page of coerced rows for an upload. Duplicate
// rows are excluded, matching what the export produces.
func (s *Server) handleUploadRows(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uploadID")
	page := parseIntParam(r, "page", 1)
	limit := parseIntParam(r, "limit", store.DefaultPageSize)

	result, err := s.data.UploadRows(r.Context(), id, page, limit)
	if err != nil {
		respondError(w, r, err, storeErrorStatus(err))
		return
	}

	writeJSON(w, result)
}

// handleColumnStats returns aggregates for the numeric columns of an upload.
func (s *Server) handleColumnStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uploadID")

	stats, err := s.data.ColumnStats(r.Context(), id)
	if err != nil {
		respondError(w, r, err, storeErrorStatus(err))
		return
	}

	writeJSON(w, ColumnStatsResponse{UploadID: id, Stats: stats})
}

// handleExportUpload streams the deduplicated, coerced rows of an upload as
// a CSV download in the original column order.
func (s *Server) handleExportUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uploadID")

	meta, err := s.data.Upload(r.Context(), id)
	if err != nil {
		respondError(w, r, err, storeErrorStatus(err))
		return
	}

	filename := fmt.Sprintf("upload_%s.csv", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	cw := csv.NewWriter(w)
	if err := cw.Write(meta.Headers); err != nil {
		logging.FromContext(r.Context()).Error("export write failed", "upload_id", id, "error", err)
		return
	}

	err = s.data.StreamUploadRows(r.Context(), id, func(row store.Row) error {
		record := make([]string, len(meta.Headers))
		for i, col := range meta.Headers {
			record[i] = formatCSVValue(row.Data[col])
		}
		return cw.Write(record)
	})
	if err != nil {
		// Headers are already sent, so the best we can do is log and stop.
		logging.FromContext(r.Context()).Error("export stream failed", "upload_id", id, "error", err)
		return
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		logging.FromContext(r.Context()).Error("export flush failed", "upload_id", id, "error", err)
	}
}

// formatCSVValue renders a coerced cell value for CSV export. Numbers keep
// their shortest exact representation and nulls become empty cells.
func formatCSVValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// parseIntParam parses an integer query parameter, falling back to def when
// the parameter is missing or malformed.
func parseIntParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return value
}

// storeErrorStatus picks the HTTP status for a store error.
func storeErrorStatus(err error) int {
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
