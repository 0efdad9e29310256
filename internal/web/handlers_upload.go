package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/csvboard/csvboard/internal/upload"
)

// UploadResponse carries one outcome per submitted file, in submission order.
type UploadResponse struct {
	Outcomes []upload.Outcome `json:"outcomes"`
}

// handleUpload accepts one or more CSV files as multipart form data under
// the "files" field, validates each one, and persists the results. A failure
// in one file is reported in its outcome and does not fail the batch.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)

	if err := r.ParseMultipartForm(s.cfg.Upload.MaxFileSize); err != nil {
		respondError(w, r, fmt.Errorf("invalid multipart form: %w", err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		respondError(w, r, errors.New("no file provided"), http.StatusBadRequest)
		return
	}

	files := make([]upload.File, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			respondError(w, r, fmt.Errorf("invalid multipart form: open %q: %w", header.Filename, err), http.StatusBadRequest)
			return
		}
		defer file.Close()

		files = append(files, upload.File{Name: header.Filename, Reader: file})
	}

	outcomes, err := s.uploads.Process(r.Context(), files)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, upload.ErrTooManyUploads) {
			w.Header().Set("Retry-After", "30")
			status = http.StatusTooManyRequests
		}
		respondError(w, r, err, status)
		return
	}

	writeJSON(w, UploadResponse{Outcomes: outcomes})
}
