// Package assistant answers natural-language questions about stored
// datasets by sending dataset summaries and a question to Google's Gemini
// API.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/csvboard/csvboard/internal/validation"
)

// ErrNotConfigured is returned when the service runs without an API key.
var ErrNotConfigured = errors.New("assistant is not configured: missing API key")

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// DefaultTimeout bounds one Ask round-trip.
const DefaultTimeout = 30 * time.Second

// maxPromptErrors caps how many validation errors one dataset contributes
// to the prompt.
const maxPromptErrors = 10

// DatasetContext is the slice of one stored upload the prompt is built
// from. Callers decide how many sample rows to include.
type DatasetContext struct {
	FileName      string
	TotalRows     int
	ValidRows     int
	DuplicateRows int
	ErrorRows     int
	ColumnTypes   map[string]validation.ColumnType
	Errors        []string
	SampleRows    []map[string]interface{}
}

// Service talks to the Gemini API. A Service built without an API key is
// disabled: Ask fails with ErrNotConfigured and nothing else happens.
type Service struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// New builds the assistant. An empty apiKey yields a disabled service
// rather than an error, so the rest of the application runs unchanged
// without Gemini credentials.
func New(ctx context.Context, apiKey, model string, timeout time.Duration) (*Service, error) {
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	svc := &Service{model: model, timeout: timeout}
	if apiKey == "" {
		return svc, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	svc.client = client
	return svc, nil
}

// Enabled reports whether an API client is configured.
func (s *Service) Enabled() bool {
	return s.client != nil
}

// Model returns the model name answers are generated with.
func (s *Service) Model() string {
	return s.model
}

// Ask sends the question plus dataset context to the model and returns its
// answer. The round-trip is bounded by the configured timeout.
func (s *Service) Ask(ctx context.Context, question string, datasets []DatasetContext) (string, error) {
	if s.client == nil {
		return "", ErrNotConfigured
	}

	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("question is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.Models.GenerateContent(ctx, s.model,
		genai.Text(buildPrompt(question, datasets)),
		&genai.GenerateContentConfig{
			Temperature: genai.Ptr(float32(0.2)),
		},
	)
	if err != nil {
		return "", fmt.Errorf("assistant request failed: %w", err)
	}

	answer := strings.TrimSpace(resp.Text())
	if answer == "" {
		return "", errors.New("assistant returned an empty answer")
	}
	return answer, nil
}

// buildPrompt renders the dataset context and question into one prompt.
// Column listings are sorted so identical input always yields an identical
// prompt.
func buildPrompt(question string, datasets []DatasetContext) string {
	var b strings.Builder

	b.WriteString("You are a data analyst assistant for a CSV validation service.\n")
	b.WriteString("Answer the user's question using only the dataset context below.\n")
	b.WriteString("Be concise. If the context is insufficient, say so.\n\n")

	if len(datasets) == 0 {
		b.WriteString("No datasets are available.\n\n")
	}

	for i, ds := range datasets {
		fmt.Fprintf(&b, "Dataset %d: %s\n", i+1, ds.FileName)
		fmt.Fprintf(&b, "  Rows: %d total, %d valid, %d duplicate, %d with errors\n",
			ds.TotalRows, ds.ValidRows, ds.DuplicateRows, ds.ErrorRows)

		if len(ds.ColumnTypes) > 0 {
			cols := make([]string, 0, len(ds.ColumnTypes))
			for col, typ := range ds.ColumnTypes {
				cols = append(cols, fmt.Sprintf("%s (%s)", col, typ))
			}
			sort.Strings(cols)
			fmt.Fprintf(&b, "  Columns: %s\n", strings.Join(cols, ", "))
		}

		if len(ds.Errors) > 0 {
			errs := ds.Errors
			if len(errs) > maxPromptErrors {
				errs = errs[:maxPromptErrors]
			}
			b.WriteString("  Validation errors:\n")
			for _, e := range errs {
				fmt.Fprintf(&b, "    - %s\n", e)
			}
		}

		if len(ds.SampleRows) > 0 {
			b.WriteString("  Sample rows:\n")
			for _, row := range ds.SampleRows {
				data, err := json.Marshal(row)
				if err != nil {
					continue
				}
				fmt.Fprintf(&b, "    %s\n", data)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n")

	return b.String()
}
