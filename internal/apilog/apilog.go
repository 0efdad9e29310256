// Package apilog records API request logs without touching the request
// path's latency. Record hands entries to a buffered channel drained by a
// background worker; when the buffer is full the entry is dropped and
// counted rather than blocking a response.
package apilog

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/csvboard/csvboard/internal/store"
)

// DefaultBufferSize is the channel capacity used when none is configured.
const DefaultBufferSize = 256

// insertTimeout bounds each insert; the originating request is long gone.
const insertTimeout = 5 * time.Second

// Store is the persistence surface the recorder needs. Satisfied by
// *store.Store.
type Store interface {
	InsertRequestLog(ctx context.Context, entry *store.RequestLog) error
	DeleteRequestLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Stats counts what happened to recorded entries.
type Stats struct {
	Recorded int64 `json:"recorded"`
	Dropped  int64 `json:"dropped"`
	Failed   int64 `json:"failed"`
}

// Service is the asynchronous request log recorder.
type Service struct {
	store  Store
	logger *slog.Logger

	entries chan store.RequestLog
	quit    chan struct{}
	done    chan struct{}

	closeOnce sync.Once
	closed    atomic.Bool

	recorded atomic.Int64
	dropped  atomic.Int64
	failed   atomic.Int64
}

// New starts the recorder's worker goroutine. A non-positive bufferSize
// falls back to DefaultBufferSize; a nil logger to slog.Default().
func New(st Store, bufferSize int, logger *slog.Logger) *Service {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		store:   st,
		logger:  logger,
		entries: make(chan store.RequestLog, bufferSize),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Record queues one entry for persistence. It never blocks and never
// fails: a full buffer or a closed recorder drops the entry and counts it.
func (s *Service) Record(entry store.RequestLog) {
	if s.closed.Load() {
		s.dropped.Add(1)
		return
	}
	select {
	case s.entries <- entry:
	default:
		s.dropped.Add(1)
	}
}

// Stats returns a snapshot of the recorder's counters.
func (s *Service) Stats() Stats {
	return Stats{
		Recorded: s.recorded.Load(),
		Dropped:  s.dropped.Load(),
		Failed:   s.failed.Load(),
	}
}

// Close stops intake and drains buffered entries, bounded by ctx. Entries
// recorded after Close count as dropped.
func (s *Service) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.quit)
	})

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the worker loop. It lives until Close, then drains whatever is
// still buffered before signalling done.
func (s *Service) run() {
	for {
		select {
		case entry := <-s.entries:
			s.insert(entry)
		case <-s.quit:
			for {
				select {
				case entry := <-s.entries:
					s.insert(entry)
				default:
					close(s.done)
					return
				}
			}
		}
	}
}

// insert persists one entry. Failures are counted and logged, never
// propagated: losing a log line must not affect anything else.
func (s *Service) insert(entry store.RequestLog) {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	if err := s.store.InsertRequestLog(ctx, &entry); err != nil {
		s.failed.Add(1)
		s.logger.Warn("request log insert failed",
			"error", err,
			"method", entry.Method,
			"path", entry.Path,
		)
		return
	}
	s.recorded.Add(1)
}

// RunSweeper periodically deletes request logs older than retention. It
// runs one sweep immediately, then every interval until ctx is cancelled.
// Sweep failures are logged and the loop keeps going.
func (s *Service) RunSweeper(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}

	s.logger.Info("request log sweeper started",
		"interval", interval,
		"retention", retention,
	)

	s.sweep(ctx, retention)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("request log sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx, retention)
		}
	}
}

// sweep performs one retention pass.
func (s *Service) sweep(ctx context.Context, retention time.Duration) {
	cutoff := time.Now().Add(-retention)

	deleted, err := s.store.DeleteRequestLogsBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("request log sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("request logs swept", "deleted", deleted, "cutoff", cutoff)
	}
}
