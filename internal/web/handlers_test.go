package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/csvboard/csvboard/internal/apilog"
	"github.com/csvboard/csvboard/internal/assistant"
	"github.com/csvboard/csvboard/internal/config"
	"github.com/csvboard/csvboard/internal/store"
	"github.com/csvboard/csvboard/internal/upload"
)

// --- fakes -----------------------------------------------------------------

type fakeUploader struct {
	outcomes []upload.Outcome
	err      error
	status   upload.LimiterStatus

	gotNames    []string
	gotContents []string
}

func (f *fakeUploader) Process(ctx context.Context, files []upload.File) ([]upload.Outcome, error) {
	for _, file := range files {
		f.gotNames = append(f.gotNames, file.Name)
		contents, _ := io.ReadAll(file.Reader)
		f.gotContents = append(f.gotContents, string(contents))
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.outcomes != nil {
		return f.outcomes, nil
	}
	outcomes := make([]upload.Outcome, len(files))
	for i, file := range files {
		outcomes[i] = upload.Outcome{FileName: file.Name, UploadID: "upload-" + strconv.Itoa(i)}
	}
	return outcomes, nil
}

func (f *fakeUploader) LimiterStatus() upload.LimiterStatus { return f.status }

type fakeDataStore struct {
	uploadMeta *store.Upload
	uploadErr  error
	uploadPage *store.UploadPage
	pageErr    error
	rowPage    *store.RowPage
	rowsErr    error
	stats      []store.ColumnStat
	statsErr   error
	streamRows []store.Row
	streamErr  error
	deleteErr  error
	logPage    *store.RequestLogPage
	logsErr    error
	pingErr    error

	gotUploadID string
	gotPage     int
	gotLimit    int
	gotLogOpts  store.RequestLogOptions
	deletedID   string
}

func (f *fakeDataStore) Upload(ctx context.Context, id string) (*store.Upload, error) {
	f.gotUploadID = id
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	if f.uploadMeta != nil {
		return f.uploadMeta, nil
	}
	return &store.Upload{ID: id, FileName: "data.csv"}, nil
}

func (f *fakeDataStore) Uploads(ctx context.Context, page, limit int) (*store.UploadPage, error) {
	f.gotPage, f.gotLimit = page, limit
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	if f.uploadPage != nil {
		return f.uploadPage, nil
	}
	return &store.UploadPage{Uploads: []store.Upload{}, Page: page, Limit: limit}, nil
}

func (f *fakeDataStore) UploadRows(ctx context.Context, id string, page, limit int) (*store.RowPage, error) {
	f.gotUploadID = id
	f.gotPage, f.gotLimit = page, limit
	if f.rowsErr != nil {
		return nil, f.rowsErr
	}
	if f.rowPage != nil {
		return f.rowPage, nil
	}
	return &store.RowPage{Rows: []store.Row{}, Page: page, Limit: limit}, nil
}

func (f *fakeDataStore) ColumnStats(ctx context.Context, id string) ([]store.ColumnStat, error) {
	f.gotUploadID = id
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	return f.stats, nil
}

func (f *fakeDataStore) StreamUploadRows(ctx context.Context, id string, fn func(store.Row) error) error {
	f.gotUploadID = id
	if f.streamErr != nil {
		return f.streamErr
	}
	for _, row := range f.streamRows {
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeDataStore) DeleteUpload(ctx context.Context, id string) error {
	f.deletedID = id
	return f.deleteErr
}

func (f *fakeDataStore) RequestLogs(ctx context.Context, opts store.RequestLogOptions) (*store.RequestLogPage, error) {
	f.gotLogOpts = opts
	if f.logsErr != nil {
		return nil, f.logsErr
	}
	if f.logPage != nil {
		return f.logPage, nil
	}
	return &store.RequestLogPage{Logs: []store.RequestLog{}, Page: opts.Page, Limit: opts.Limit}, nil
}

func (f *fakeDataStore) Ping(ctx context.Context) error { return f.pingErr }

type fakeRecorder struct {
	mu      sync.Mutex
	entries []store.RequestLog
	stats   apilog.Stats
}

func (f *fakeRecorder) Record(entry store.RequestLog) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
}

func (f *fakeRecorder) Stats() apilog.Stats { return f.stats }

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type fakeAsker struct {
	enabled bool
	model   string
	answer  string
	err     error

	gotQuestion string
	gotDatasets []assistant.DatasetContext
}

func (f *fakeAsker) Enabled() bool { return f.enabled }

func (f *fakeAsker) Model() string {
	if f.model == "" {
		return "test-model"
	}
	return f.model
}

func (f *fakeAsker) Ask(ctx context.Context, question string, datasets []assistant.DatasetContext) (string, error) {
	f.gotQuestion = question
	f.gotDatasets = datasets
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

// --- helpers ---------------------------------------------------------------

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			RequestTimeout: 30 * time.Second,
		},
		Upload: config.UploadConfig{
			MaxFileSize:   10 << 20,
			MaxConcurrent: 2,
			MaxWaitTime:   time.Second,
		},
		Assistant: config.AssistantConfig{
			MaxSampleRows: 2,
		},
	}
}

func newTestServer(cfg *config.Config, up Uploader, data DataStore, rec Recorder, ai Asker) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(cfg, up, data, rec, ai, logger)
}

func doRequest(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

type filePart struct {
	name     string
	contents string
}

func multipartBody(t *testing.T, parts []filePart) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, part := range parts {
		fw, err := w.CreateFormFile("files", part.name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write([]byte(part.contents)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func decodeErrorResponse(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v (body: %s)", err, rec.Body.String())
	}
	return resp
}

// --- upload ----------------------------------------------------------------

func TestHandleUpload_ReturnsOutcomePerFile(t *testing.T) {
	up := &fakeUploader{}
	s := newTestServer(testConfig(), up, &fakeDataStore{}, &fakeRecorder{}, &fakeAsker{})

	body, contentType := multipartBody(t, []filePart{
		{name: "people.csv", contents: "name,email\nAlice,alice@example.com\n"},
		{name: "orders.csv", contents: "id,total\n1,9.99\n"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(s, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}

	var resp UploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(resp.Outcomes))
	}
	if resp.Outcomes[0].FileName != "people.csv" || resp.Outcomes[1].FileName != "orders.csv" {
		t.Errorf("outcomes out of order: %+v", resp.Outcomes)
	}

	if len(up.gotNames) != 2 || up.gotNames[0] != "people.csv" {
		t.Errorf("uploader got files %v", up.gotNames)
	}
	if up.gotContents[1] != "id,total\n1,9.99\n" {
		t.Errorf("uploader got contents %q", up.gotContents[1])
	}
}

func TestHandleUpload_MissingFileField(t *testing.T) {
	s := newTestServer(testConfig(), &fakeUploader{}, &fakeDataStore{}, &fakeRecorder{}, &fakeAsker{})

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("note", "no files here"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())

	rec := doRequest(s, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp := decodeErrorResponse(t, rec); resp.Code != "FILE004" {
		t.Errorf("code = %q, want FILE004", resp.Code)
	}
}

func TestHandleUpload_NotMultipart(t *testing.T) {
	s := newTestServer(testConfig(), &fakeUploader{}, &fakeDataStore{}, &fakeRecorder{}, &fakeAsker{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", strings.NewReader("name,email\n"))
	req.Header.Set("Content-Type", "text/csv")

	rec := doRequest(s, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp := decodeErrorResponse(t, rec); resp.Code != "FILE003" {
		t.Errorf("code = %q, want FILE003", resp.Code)
	}
}

func TestHandleUpload_BodyTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.MaxFileSize = 64

	s := newTestServer(cfg, &fakeUploader{}, &fakeDataStore{}, &fakeRecorder{}, &fakeAsker{})

	body, contentType := multipartBody(t, []filePart{
		{name: "big.csv", contents: strings.Repeat("x", 1024)},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(s, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp := decodeErrorResponse(t, rec); resp.Code != "FILE001" {
		t.Errorf("code = %q, want FILE001", resp.Code)
	}
}

func TestHandleUpload_LimiterSaturated(t *testing.T) {
	up := &fakeUploader{err: upload.ErrTooManyUploads}
	s := newTestServer(testConfig(), up, &fakeDataStore{}, &fakeRecorder{}, &fakeAsker{})

	body, contentType := multipartBody(t, []filePart{{name: "a.csv", contents: "h\n1\n"}})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(s, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if resp := decodeErrorResponse(t, rec); resp.Code != "UPL001" {
		t.Errorf("code = %q, want UPL001", resp.Code)
	}
}

// --- uploads browsing ------------------------------------------------------

func TestHandleListUploads_PassesPagination(t *testing.T) {
	data := &fakeDataStore{
		uploadPage: &store.UploadPage{
			Uploads:    []store.Upload{{ID: "abc", FileName: "data.csv", TotalRows: 3}},
			Total:      1,
			Page:       2,
			Limit:      10,
			TotalPages: 1,
		},
	}
	s := newTestServer(testConfig(), &fakeUploader{}, data, &fakeRecorder{}, &fakeAsker{})

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/v1/uploads?page=2&limit=10", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if data.gotPage != 2 || data.gotLimit != 10 {
		t.Errorf("store called with page=%d limit=%d, want 2/10", data.gotPage, data.gotLimit)
	}

	var page store.UploadPage
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if page.Total != 1 || len(page.Uploads) != 1 || page.Uploads[0].FileName != "data.csv" {
		t.Errorf("unexpected page %+v", page)
	}
}

func TestHandleGetUpload_NotFound(t *testing.T) {
	data := &fakeDataStore{uploadErr: store.ErrNotFound}
	s := newTestServer(testConfig(), &fakeUploader{}, data, &fakeRecorder{}, &fakeAsker{})

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/v1/uploads/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if resp := decodeErrorResponse(t, rec); resp.Code != "UPL002" {
		t.Errorf("code = %q, want UPL002", resp.Code)
	}
	if data.gotUploadID != "missing" {
		t.Errorf("store asked for %q, want %q", data.gotUploadID, "missing")
	}
}

func TestHandleDeleteUpload(t *testing.T) {
	data := &fakeDataStore{}
	s := newTestServer(testConfig(), &fakeUploader{}, data, &fakeRecorder{}, &fakeAsker{})

	rec := doRequest(s, httptest.NewRequest(http.MethodDelete, "/api/v1/uploads/abc-123", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if data.deletedID != "abc-123" {
		t.Errorf("deleted %q, want abc-123", data.deletedID)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "deleted" || resp["upload_id"] != "abc-123" {
		t.Errorf("unexpected response %v", resp)
	}
}

func TestHandleDeleteUpload_NotFound(t *testing.T) {
	data := &fakeDataStore{deleteErr: store.ErrNotFound}
	s := newTestServer(testConfig(), &fakeUploader{}, data, &fakeRecorder{}, &fakeAsker{})

	rec := doRequest(s, httptest.NewRequest(http.MethodDelete, "/api/v1/uploads/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleUploadRows_NotFound(t *testing.T) {
	data := &fakeDataStore{rowsErr: store.ErrNotFound}
	s := newTestServer(testConfig(), &fakeUploader{}, data, &fakeRecorder{}, &fakeAsker{})

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/v1/uploads/missing/rows", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleColumnStats(t *testing.T) {
	sum, avg := 42.5, 21.25
	data := &fakeDataStore{
		stats: []store.ColumnStat{{Column: "price", Sum: &sum, Avg: &avg, Count: 2}},
	}
	s := newTestServer(testConfig(), &fakeUploader{}, data, &fakeRecorder{}, &fakeAsker{})

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/v1/uploads/abc/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp ColumnStatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.UploadID != "abc" || len(resp.Stats) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Stats[0].Column != "price" || resp.Stats[0].Sum == nil || *resp.Stats[0].Sum != 42.5 {
		t.Errorf("unexpected stat %+v", resp.Stats[0])
	}
}

func TestHandleExportUpload_StreamsCSV(t *testing.T) {
	data := &fakeDataStore{
		uploadMeta: &store.Upload{
			ID:       "abc",
			FileName: "products.csv",
			Headers:  []string{"name", "price", "active", "note"},
		},
		streamRows: []store.Row{
			{RowNumber: 1, Data: map[string]interface{}{"name": "Widget", "price": 9.99, "active": true, "note": nil}},
			{RowNumber: 2, Data: map[string]interface{}{"name": "Gadget, Large", "price": 120.0, "active": false, "note": "ok"}},
		},
	}
	s := newTestServer(testConfig(), &fakeUploader{}, data, &fakeRecorder{}, &fakeAsker{})

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/v1/uploads/abc/export", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, `attachment; filename="upload_`) {
		t.Errorf("Content-Disposition = %q", cd)
	}

	want := "name,price,active,note\n" +
		"Widget,9.99,true,\n" +
		"\"Gadget, Large\",120,false,ok\n"
	if got := rec.Body.String(); got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}

// --- request logs ----------------------------------------------------------

func TestHandleListLogs_ParsesFilters(t *testing.T) {
	data := &fakeDataStore{}
	s := newTestServer(testConfig(), &fakeUploader{}, data, &fakeRecorder{}, &fakeAsker{})

	url := "/api/v1/logs?method=get&status=404&path=/api/v1/uploads&page=3&limit=25&start=2026-01-02T15:04:05Z&end=2026-01-03T00:00:00Z"
	rec := doRequest(s, httptest.NewRequest(http.MethodGet, url, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}

	opts := data.gotLogOpts
	if opts.Method != "get" || opts.Status != 404 || opts.Path != "/api/v1/uploads" {
		t.Errorf("unexpected filters %+v", opts)
	}
	if opts.Page != 3 || opts.Limit != 25 {
		t.Errorf("pagination = %d/%d, want 3/25", opts.Page, opts.Limit)
	}
	wantStart, _ := time.Parse(time.RFC3339, "2026-01-02T15:04:05Z")
	if !opts.Start.Equal(wantStart) {
		t.Errorf("start = %v, want %v", opts.Start, wantStart)
	}
	if opts.End.IsZero() {
		t.Error("end filter was not parsed")
	}
}

func TestHandleListLogs_RejectsBadStatus(t *testing.T) {
	s := newTestServer(testConfig(), &fakeUploader{}, &fakeDataStore{}, &fakeRecorder{}, &fakeAsker{})

	for _, raw := range []string{"abc", "99", "600"} {
		rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/v1/logs?status="+raw, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status filter %q: got %d, want 400", raw, rec.Code)
		}
	}
}

func TestHandleLogStats(t *testing.T) {
	rec := &fakeRecorder{stats: apilog.Stats{Recorded: 10, Dropped: 2, Failed: 1}}
	s := newTestServer(testConfig(), &fakeUploader{}, &fakeDataStore{}, rec, &fakeAsker{})

	res := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/v1/logs/stats", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Code)
	}

	var stats apilog.Stats
	if err := json.Unmarshal(res.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats != rec.stats {
		t.Errorf("stats = %+v, want %+v", stats, rec.stats)
	}
}

func TestRequestLogMiddleware_RecordsRequests(t *testing.T) {
	rec := &fakeRecorder{}
	s := newTestServer(testConfig(), &fakeUploader{}, &fakeDataStore{}, rec, &fakeAsker{})

	doRequest(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	doRequest(s, httptest.NewRequest(http.MethodGet, "/api/v1/uploads", nil))

	if got := rec.count(); got != 2 {
		t.Fatalf("recorded %d entries, want 2", got)
	}
	entry := rec.entries[0]
	if entry.Method != http.MethodGet || entry.Path != "/healthz" || entry.Status != http.StatusOK {
		t.Errorf("unexpected entry %+v", entry)
	}
	if entry.RequestID == "" {
		t.Error("entry missing request ID")
	}
}

// --- assistant -------------------------------------------------------------

func TestHandleAssistantAsk(t *testing.T) {
	ai := &fakeAsker{enabled: true, answer: "42 rows look fine.", model: "gemini-2.5-flash"}
	data := &fakeDataStore{
		uploadMeta: &store.Upload{
			ID:        "abc",
			FileName:  "people.csv",
			TotalRows: 42,
			ValidRows: 42,
		},
		rowPage: &store.RowPage{
			Rows: []store.Row{{RowNumber: 1, Data: map[string]interface{}{"name": "Alice"}}},
		},
	}
	s := newTestServer(testConfig(), &fakeUploader{}, data, &fakeRecorder{}, ai)

	body := `{"question": "Are the rows healthy?", "upload_ids": ["abc"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/assistant/ask", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := doRequest(s, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}

	var resp AskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != "42 rows look fine." || resp.Model != "gemini-2.5-flash" {
		t.Errorf("unexpected response %+v", resp)
	}

	if ai.gotQuestion != "Are the rows healthy?" {
		t.Errorf("question = %q", ai.gotQuestion)
	}
	if len(ai.gotDatasets) != 1 {
		t.Fatalf("got %d datasets, want 1", len(ai.gotDatasets))
	}
	ds := ai.gotDatasets[0]
	if ds.FileName != "people.csv" || ds.TotalRows != 42 {
		t.Errorf("unexpected dataset %+v", ds)
	}
	if len(ds.SampleRows) != 1 || ds.SampleRows[0]["name"] != "Alice" {
		t.Errorf("unexpected sample rows %+v", ds.SampleRows)
	}
}

func TestHandleAssistantAsk_UsesNewestUploadsWhenNoIDs(t *testing.T) {
	ai := &fakeAsker{enabled: true, answer: "ok"}
	data := &fakeDataStore{
		uploadPage: &store.UploadPage{
			Uploads: []store.Upload{
				{ID: "new", FileName: "new.csv"},
				{ID: "old", FileName: "old.csv"},
			},
		},
	}
	s := newTestServer(testConfig(), &fakeUploader{}, data, &fakeRecorder{}, ai)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/assistant/ask", strings.NewReader(`{"question":"summary?"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := doRequest(s, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
	if data.gotPage != 1 || data.gotLimit != defaultAskDatasets {
		t.Errorf("uploads queried with page=%d limit=%d, want 1/%d", data.gotPage, data.gotLimit, defaultAskDatasets)
	}
	if len(ai.gotDatasets) != 2 {
		t.Errorf("got %d datasets, want 2", len(ai.gotDatasets))
	}
}

func TestHandleAssistantAsk_Disabled(t *testing.T) {
	s := newTestServer(testConfig(), &fakeUploader{}, &fakeDataStore{}, &fakeRecorder{}, &fakeAsker{enabled: false})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/assistant/ask", strings.NewReader(`{"question":"hi"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := doRequest(s, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if resp := decodeErrorResponse(t, rec); resp.Code != "AI001" {
		t.Errorf("code = %q, want AI001", resp.Code)
	}
}

func TestHandleAssistantAsk_BlankQuestion(t *testing.T) {
	s := newTestServer(testConfig(), &fakeUploader{}, &fakeDataStore{}, &fakeRecorder{}, &fakeAsker{enabled: true})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/assistant/ask", strings.NewReader(`{"question":"   "}`))
	req.Header.Set("Content-Type", "application/json")

	rec := doRequest(s, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp := decodeErrorResponse(t, rec); resp.Code != "AI003" {
		t.Errorf("code = %q, want AI003", resp.Code)
	}
}

func TestHandleAssistantAsk_UpstreamFailure(t *testing.T) {
	ai := &fakeAsker{enabled: true, err: errors.New("assistant request failed: boom")}
	s := newTestServer(testConfig(), &fakeUploader{}, &fakeDataStore{}, &fakeRecorder{}, ai)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/assistant/ask", strings.NewReader(`{"question":"hi","upload_ids":["abc"]}`))
	req.Header.Set("Content-Type", "application/json")

	rec := doRequest(s, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if resp := decodeErrorResponse(t, rec); resp.Code != "AI002" {
		t.Errorf("code = %q, want AI002", resp.Code)
	}
}

// --- health and status -----------------------------------------------------

func TestHandleHealth(t *testing.T) {
	s := newTestServer(testConfig(), &fakeUploader{}, &fakeDataStore{}, &fakeRecorder{}, &fakeAsker{})

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleHealth_DatabaseDown(t *testing.T) {
	data := &fakeDataStore{pingErr: errors.New("dial tcp: connection refused")}
	s := newTestServer(testConfig(), &fakeUploader{}, data, &fakeRecorder{}, &fakeAsker{})

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if resp := decodeErrorResponse(t, rec); resp.Code != "DB001" {
		t.Errorf("code = %q, want DB001", resp.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	up := &fakeUploader{status: upload.LimiterStatus{Active: 1, Available: 4, MaxConcurrent: 5}}
	s := newTestServer(testConfig(), up, &fakeDataStore{}, &fakeRecorder{}, &fakeAsker{})

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var status upload.LimiterStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if status != up.status {
		t.Errorf("status = %+v, want %+v", status, up.status)
	}
}

func TestSecurityHeaders(t *testing.T) {
	cfg := testConfig()
	cfg.Security.EnableCSP = true
	s := newTestServer(cfg, &fakeUploader{}, &fakeDataStore{}, &fakeRecorder{}, &fakeAsker{})

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if csp := rec.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "default-src 'none'") {
		t.Errorf("Content-Security-Policy = %q", csp)
	}
}

// --- rate limiting ---------------------------------------------------------

func TestIPLimiter_Take(t *testing.T) {
	l := newIPLimiter(2, time.Minute)

	if !l.take("10.0.0.1") || !l.take("10.0.0.1") {
		t.Fatal("first two requests should be allowed")
	}
	if l.take("10.0.0.1") {
		t.Error("third request within the window should be denied")
	}
	if !l.take("10.0.0.2") {
		t.Error("different IP should have its own budget")
	}
}

func TestIPLimiter_WindowReset(t *testing.T) {
	l := newIPLimiter(1, 10*time.Millisecond)

	if !l.take("10.0.0.1") {
		t.Fatal("first request should be allowed")
	}
	if l.take("10.0.0.1") {
		t.Fatal("second request should be denied")
	}

	time.Sleep(15 * time.Millisecond)

	if !l.take("10.0.0.1") {
		t.Error("request after window reset should be allowed")
	}
}

func TestUploadRateLimit_Integration(t *testing.T) {
	cfg := testConfig()
	cfg.Rate.Enabled = true
	cfg.Rate.RequestsPerMinute = 100
	cfg.Rate.UploadLimit = 1

	s := newTestServer(cfg, &fakeUploader{}, &fakeDataStore{}, &fakeRecorder{}, &fakeAsker{})

	send := func() *httptest.ResponseRecorder {
		body, contentType := multipartBody(t, []filePart{{name: "a.csv", contents: "h\n1\n"}})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
		req.Header.Set("Content-Type", contentType)
		return doRequest(s, req)
	}

	if rec := send(); rec.Code != http.StatusOK {
		t.Fatalf("first upload: status = %d, want 200", rec.Code)
	}

	rec := send()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second upload: status = %d, want 429", rec.Code)
	}
	if resp := decodeErrorResponse(t, rec); resp.Code != "RATE001" {
		t.Errorf("code = %q, want RATE001", resp.Code)
	}

	// Reads are unaffected by the upload limiter.
	if rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/v1/uploads", nil)); rec.Code != http.StatusOK {
		t.Errorf("list after limit: status = %d, want 200", rec.Code)
	}
}
