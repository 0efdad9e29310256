package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/csvboard/csvboard/internal/assistant"
	"github.com/csvboard/csvboard/internal/logging"
	"github.com/csvboard/csvboard/internal/store"
)

// defaultAskDatasets is how many of the newest uploads are put in front of
// the model when the caller does not name any.
const defaultAskDatasets = 3

// AskRequest is the request body for the assistant endpoint. UploadIDs is
// optional; when empty the newest uploads are used as context.
type AskRequest struct {
	Question  string   `json:"question"`
	UploadIDs []string `json:"upload_ids,omitempty"`
}

// AskResponse carries the assistant's answer and the model that produced it.
type AskResponse struct {
	Answer string `json:"answer"`
	Model  string `json:"model"`
}

// handleAssistantAsk answers a natural-language question about uploaded
// datasets using the configured LLM.
func (s *Server) handleAssistantAsk(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil || !s.assistant.Enabled() {
		respondError(w, r, assistant.ErrNotConfigured, http.StatusServiceUnavailable)
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		respondError(w, r, errors.New("question is required"), http.StatusBadRequest)
		return
	}

	datasets, err := s.datasetContexts(r.Context(), req.UploadIDs)
	if err != nil {
		respondError(w, r, err, storeErrorStatus(err))
		return
	}

	answer, err := s.assistant.Ask(r.Context(), req.Question, datasets)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, assistant.ErrNotConfigured) {
			status = http.StatusServiceUnavailable
		}
		respondError(w, r, err, status)
		return
	}

	writeJSON(w, AskResponse{Answer: answer, Model: s.assistant.Model()})
}

// datasetContexts loads the uploads a question is about: the caller's IDs
// when given, otherwise the newest few uploads. Sample rows are best-effort
// garnish; their absence never fails the request.
func (s *Server) datasetContexts(ctx context.Context, ids []string) ([]assistant.DatasetContext, error) {
	var uploads []store.Upload
	if len(ids) > 0 {
		for _, id := range ids {
			meta, err := s.data.Upload(ctx, id)
			if err != nil {
				return nil, err
			}
			uploads = append(uploads, *meta)
		}
	} else {
		page, err := s.data.Uploads(ctx, 1, defaultAskDatasets)
		if err != nil {
			return nil, err
		}
		uploads = page.Uploads
	}

	datasets := make([]assistant.DatasetContext, 0, len(uploads))
	for _, meta := range uploads {
		dataset := assistant.DatasetContext{
			FileName:      meta.FileName,
			TotalRows:     meta.TotalRows,
			ValidRows:     meta.ValidRows,
			DuplicateRows: meta.DuplicateRows,
			ErrorRows:     meta.ErrorRows,
			ColumnTypes:   meta.ColumnTypes,
			Errors:        meta.ValidationErrors,
		}

		if n := s.cfg.Assistant.MaxSampleRows; n > 0 {
			rows, err := s.data.UploadRows(ctx, meta.ID, 1, n)
			if err != nil {
				logging.FromContext(ctx).Warn("sample rows unavailable", "upload_id", meta.ID, "error", err)
			} else {
				for _, row := range rows.Rows {
					dataset.SampleRows = append(dataset.SampleRows, row.Data)
				}
			}
		}

		datasets = append(datasets, dataset)
	}

	return datasets, nil
}
