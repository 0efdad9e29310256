// Package upload orchestrates CSV upload requests: each file is validated,
// stored, and reported as a per-file outcome, with a semaphore bounding how
// many requests process at once.
package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/csvboard/csvboard/internal/validation"
)

// Store persists a validated file. Satisfied by *store.Store.
type Store interface {
	CreateUpload(ctx context.Context, fileName string, file *validation.FileResult) (string, error)
}

// File is one uploaded file, ready to be read.
type File struct {
	Name   string
	Reader io.Reader
}

// Outcome reports what happened to one file. Successful files carry the
// upload ID, summary, and full row results; failed files carry only an
// error message and store nothing.
type Outcome struct {
	FileName string                 `json:"file_name"`
	UploadID string                 `json:"upload_id,omitempty"`
	Summary  *validation.Summary    `json:"summary,omitempty"`
	Results  []validation.RowResult `json:"results,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// Service validates and persists uploaded CSV files.
type Service struct {
	store   Store
	limiter *Limiter
	logger  *slog.Logger
}

// NewService wires the upload pipeline. A nil limiter or logger falls back
// to defaults.
func NewService(store Store, limiter *Limiter, logger *slog.Logger) *Service {
	if limiter == nil {
		limiter = NewLimiter(0, 0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		limiter: limiter,
		logger:  logger,
	}
}

// Process validates and stores the given files strictly in order: each
// file is fully validated and persisted before the next one starts, and a
// failed file never stops the rest. The whole call holds one limiter slot;
// ErrTooManyUploads is returned when no slot frees up in time.
func (s *Service) Process(ctx context.Context, files []File) ([]Outcome, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	outcomes := make([]Outcome, 0, len(files))
	for _, f := range files {
		outcomes = append(outcomes, s.processOne(ctx, f))
	}
	return outcomes, nil
}

// processOne runs one file through read, validate, store. Every file gets
// a fresh validator, so duplicate detection never leaks across files.
func (s *Service) processOne(ctx context.Context, f File) Outcome {
	out := Outcome{FileName: f.Name}

	if ctx.Err() != nil {
		out.Error = "upload cancelled"
		return out
	}

	contents, err := io.ReadAll(f.Reader)
	if err != nil {
		s.logger.Error("read uploaded file", "file", f.Name, "error", err)
		out.Error = fmt.Sprintf("failed to read file: %v", err)
		return out
	}

	result, err := validation.ValidateFile(string(contents))
	if err != nil {
		s.logger.Warn("file rejected", "file", f.Name, "error", err)
		out.Error = err.Error()
		return out
	}

	id, err := s.store.CreateUpload(ctx, f.Name, result)
	if err != nil {
		s.logger.Error("store upload", "file", f.Name, "error", err)
		out.Error = "failed to store upload results"
		return out
	}

	s.logger.Info("upload stored",
		"file", f.Name,
		"upload_id", id,
		"total_rows", result.Summary.TotalRows,
		"valid_rows", result.Summary.ValidRows,
		"duplicate_rows", result.Summary.DuplicateRows,
		"error_rows", result.Summary.ErrorRows,
	)

	out.UploadID = id
	out.Summary = &result.Summary
	out.Results = result.Results
	return out
}

// LimiterStatus reports current upload slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForDrain blocks until in-flight uploads finish or ctx is cancelled.
func (s *Service) WaitForDrain(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
