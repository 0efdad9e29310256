package web

// errors.go maps internal errors to the JSON error envelope returned by the
// API. Technical details are logged server-side with the request ID for
// correlation; clients only ever see the mapped message, action, and code.

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/csvboard/csvboard/internal/logging"
)

// ErrorResponse is the JSON structure for API error responses. It carries
// both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// userMessage is a user-facing rendering of an internal error.
type userMessage struct {
	Message string
	Action  string
	Code    string
}

// errorPattern matches substrings of technical error text to a user message.
type errorPattern struct {
	patterns []string
	message  userMessage
}

// errorPatterns is checked in order; the first match wins, so specific
// patterns must come before general ones ("request body too large" before
// "multipart", "assistant request failed" before "timeout").
var errorPatterns = []errorPattern{
	{
		patterns: []string{"too many concurrent uploads"},
		message: userMessage{
			Message: "The server is busy processing other uploads.",
			Action:  "Please wait a moment and try again.",
			Code:    "UPL001",
		},
	},
	{
		patterns: []string{"record not found", "upload not found", "invalid upload id"},
		message: userMessage{
			Message: "The requested upload could not be found.",
			Action:  "Check the upload ID and try again.",
			Code:    "UPL002",
		},
	},
	{
		patterns: []string{"assistant is not configured"},
		message: userMessage{
			Message: "The data assistant is not available on this server.",
			Action:  "Ask the administrator to configure an API key.",
			Code:    "AI001",
		},
	},
	{
		patterns: []string{"assistant request failed", "assistant returned"},
		message: userMessage{
			Message: "The data assistant could not answer your question.",
			Action:  "Please try again in a moment.",
			Code:    "AI002",
		},
	},
	{
		patterns: []string{"request body too large", "file too large"},
		message: userMessage{
			Message: "The uploaded file is too large.",
			Action:  "Split the file into smaller pieces and upload them separately.",
			Code:    "FILE001",
		},
	},
	{
		patterns: []string{"empty file"},
		message: userMessage{
			Message: "The uploaded file contains no data rows.",
			Action:  "Make sure the file has a header row and at least one data row.",
			Code:    "FILE002",
		},
	},
	{
		patterns: []string{"invalid multipart form", "multipart", "encoding error"},
		message: userMessage{
			Message: "The upload could not be read.",
			Action:  "Re-submit the form with the file attached as multipart form data.",
			Code:    "FILE003",
		},
	},
	{
		patterns: []string{"no file provided"},
		message: userMessage{
			Message: "No file was included in the upload.",
			Action:  `Attach one or more CSV files under the form field "files".`,
			Code:    "FILE004",
		},
	},
	{
		patterns: []string{"question is required"},
		message: userMessage{
			Message: "The question text is missing.",
			Action:  "Provide a non-empty question in the request body.",
			Code:    "AI003",
		},
	},
	{
		patterns: []string{"rate limit"},
		message: userMessage{
			Message: "Too many requests from your address.",
			Action:  "Slow down and retry after a short pause.",
			Code:    "RATE001",
		},
	},
	{
		patterns: []string{"connection refused", "connection reset", "failed to connect"},
		message: userMessage{
			Message: "The database is currently unreachable.",
			Action:  "Please try again shortly.",
			Code:    "DB001",
		},
	},
	{
		patterns: []string{"deadlock", "timeout", "context deadline exceeded"},
		message: userMessage{
			Message: "The operation took too long to complete.",
			Action:  "Please try again. If the problem persists, contact support.",
			Code:    "DB002",
		},
	},
}

// fallbackMessage is returned when no pattern matches.
var fallbackMessage = userMessage{
	Message: "Something went wrong while processing your request.",
	Action:  "Please try again. If the problem persists, contact support.",
	Code:    "ERR000",
}

// mapError converts a technical error into a user-facing message by matching
// known substrings of the error text.
func mapError(err error) userMessage {
	if err == nil {
		return fallbackMessage
	}
	text := strings.ToLower(err.Error())
	for _, entry := range errorPatterns {
		for _, pattern := range entry.patterns {
			if strings.Contains(text, pattern) {
				return entry.message
			}
		}
	}
	return fallbackMessage
}

// respondError logs the technical error with request context and writes the
// mapped user-facing message as JSON. Internal details never reach the body.
func respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := mapError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// writeJSON writes v as a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
