package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rotisserie/eris"

	"github.com/mauv0809/factledger/internal/db"
	"github.com/mauv0809/factledger/internal/ingest"
	"github.com/mauv0809/factledger/internal/models"
)

type fakeRunner struct {
	report  *models.IngestionReport
	err     error
	started chan struct{}
	release chan struct{}
	limit   int
	local   bool
}

func (f *fakeRunner) Run(_ context.Context, limit int, local bool) (*models.IngestionReport, error) {
	f.limit, f.local = limit, local
	if f.started != nil {
		close(f.started)
		<-f.release
	}
	return f.report, f.err
}

func serve(h echo.HandlerFunc, method, target string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(New(false).Health, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["database"] != "unavailable" {
		t.Errorf("body = %v", body)
	}
}

func TestIngestFacts(t *testing.T) {
	report := models.NewIngestionReport("archive.zip")
	report.Income.Created = 3
	report.EntriesProcessed = 2
	runner := &fakeRunner{report: report}
	h := NewIngestHandler(runner, db.NewMemoryStore(), nil)

	rec := serve(h.IngestFacts, http.MethodPost, "/admin/ingest/facts?limit=5&local=true")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if runner.limit != 5 || !runner.local {
		t.Errorf("runner got limit=%d local=%v", runner.limit, runner.local)
	}
	var resp IngestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Count != 3 || resp.Report == nil || resp.Report.RunID != report.RunID {
		t.Errorf("resp = %+v", resp)
	}
}

func TestIngestFactsBadLimit(t *testing.T) {
	h := NewIngestHandler(&fakeRunner{}, db.NewMemoryStore(), nil)
	if rec := serve(h.IngestFacts, http.MethodPost, "/admin/ingest/facts?limit=abc"); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestIngestFactsErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{eris.Wrap(ingest.ErrSourceUnavailable, "download"), http.StatusBadGateway},
		{eris.New("company table missing"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		h := NewIngestHandler(&fakeRunner{err: tt.err}, db.NewMemoryStore(), nil)
		if rec := serve(h.IngestFacts, http.MethodPost, "/admin/ingest/facts"); rec.Code != tt.want {
			t.Errorf("%v: status = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}

	// A failure-rate breach still returns the report.
	report := models.NewIngestionReport("x")
	h := NewIngestHandler(&fakeRunner{report: report, err: eris.Wrap(ingest.ErrFailureRateExceeded, "60%")}, db.NewMemoryStore(), nil)
	rec := serve(h.IngestFacts, http.MethodPost, "/admin/ingest/facts")
	var resp IngestResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if rec.Code != http.StatusOK || resp.Success || resp.Report == nil {
		t.Errorf("status = %d, resp = %+v", rec.Code, resp)
	}
}

func TestIngestFactsConflict(t *testing.T) {
	runner := &fakeRunner{
		report:  models.NewIngestionReport("x"),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	h := NewIngestHandler(runner, db.NewMemoryStore(), nil)

	done := make(chan int)
	go func() {
		done <- serve(h.IngestFacts, http.MethodPost, "/admin/ingest/facts").Code
	}()
	<-runner.started

	if rec := serve(h.IngestFacts, http.MethodPost, "/admin/ingest/facts"); rec.Code != http.StatusConflict {
		t.Errorf("concurrent run status = %d, want 409", rec.Code)
	}
	status := serve(h.IngestStatus, http.MethodGet, "/admin/ingest/status")
	var body map[string]any
	_ = json.Unmarshal(status.Body.Bytes(), &body)
	if body["running"] != true {
		t.Errorf("status body = %v", body)
	}

	close(runner.release)
	if code := <-done; code != http.StatusOK {
		t.Errorf("first run status = %d", code)
	}
}

func TestIngestStatus(t *testing.T) {
	store := db.NewMemoryStore()
	report := models.NewIngestionReport("archive.zip")
	_ = store.SaveRun(context.Background(), report)
	h := NewIngestHandler(&fakeRunner{}, store, nil)

	rec := serve(h.IngestStatus, http.MethodGet, "/admin/ingest/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Running bool                    `json:"running"`
		Counts  map[string]int          `json:"counts"`
		LastRun *models.IngestionReport `json:"last_run"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Running || body.LastRun == nil || body.LastRun.RunID != report.RunID {
		t.Errorf("body = %+v", body)
	}
	if _, ok := body.Counts["balance_sheets"]; !ok {
		t.Errorf("counts = %v", body.Counts)
	}
}
