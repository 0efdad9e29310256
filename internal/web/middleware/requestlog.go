package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/csvboard/csvboard/internal/store"
)

// Recorder consumes request log entries. Implementations must not block:
// this middleware sits on every request.
type Recorder interface {
	Record(entry store.RequestLog)
}

// RequestLog hands every completed request to the Recorder so the API can
// serve its own traffic history.
func RequestLog(rec Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}

			next.ServeHTTP(sw, r)

			rec.Record(store.RequestLog{
				Method:     r.Method,
				Path:       r.URL.Path,
				Status:     sw.Status(),
				DurationMs: time.Since(start).Milliseconds(),
				IP:         r.RemoteAddr,
				UserAgent:  r.UserAgent(),
				RequestID:  chimw.GetReqID(r.Context()),
			})
		})
	}
}
