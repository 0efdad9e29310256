package web

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/csvboard/csvboard/internal/store"
)

// handleListLogs returns a filtered page of request log entries. Filters are
// combined with AND; omitted filters match everything.
func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	opts := store.RequestLogOptions{
		Method: query.Get("method"),
		Path:   query.Get("path"),
		Page:   parseIntParam(r, "page", 1),
		Limit:  parseIntParam(r, "limit", store.DefaultPageSize),
	}

	if raw := query.Get("status"); raw != "" {
		status, err := strconv.Atoi(raw)
		if err != nil || status < 100 || status > 599 {
			respondError(w, r, fmt.Errorf("invalid status filter %q", raw), http.StatusBadRequest)
			return
		}
		opts.Status = status
	}

	if raw := query.Get("start"); raw != "" {
		start, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, r, fmt.Errorf("invalid start filter %q: expected RFC 3339", raw), http.StatusBadRequest)
			return
		}
		opts.Start = start
	}

	if raw := query.Get("end"); raw != "" {
		end, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, r, fmt.Errorf("invalid end filter %q: expected RFC 3339", raw), http.StatusBadRequest)
			return
		}
		opts.End = end
	}

	result, err := s.data.RequestLogs(r.Context(), opts)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, result)
}

// handleLogStats reports the request log recorder counters.
func (s *Server) handleLogStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.recorder.Stats())
}
