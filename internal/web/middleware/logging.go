// Package middleware provides the HTTP middleware chain for the API
// server: request logging, client IP resolution, and request-log capture.
package middleware

import (
	"net/http"
	"time"

	"github.com/csvboard/csvboard/internal/logging"
)

// Logger emits one structured log line per completed request, carrying
// the request ID when chi's RequestID middleware ran earlier. It also
// runs after TrustedRealIP, so RemoteAddr already holds the client
// address.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}

		next.ServeHTTP(sw, r)

		logging.FromContext(r.Context()).Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.Status(),
			"bytes", sw.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)
	})
}

// statusWriter captures the response status and body size for the logging
// and request-log middleware.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status != 0 {
		return
	}
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

// Status returns the response code, defaulting to 200 for handlers that
// never wrote one.
func (w *statusWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Unwrap exposes the wrapped writer so http.ResponseController can reach
// http.Flusher during streamed CSV exports.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
