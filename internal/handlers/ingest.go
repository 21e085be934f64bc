package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/mauv0809/factledger/internal/ingest"
	"github.com/mauv0809/factledger/internal/models"
)

// Runner executes one ingestion run.
type Runner interface {
	Run(ctx context.Context, limit int, local bool) (*models.IngestionReport, error)
}

// StatusStore reports stored totals and the last run.
type StatusStore interface {
	StatementCounts(ctx context.Context) (map[string]int, error)
	LastRun(ctx context.Context) (*models.IngestionReport, error)
}

// IngestHandler handles data ingestion endpoints.
type IngestHandler struct {
	runner  Runner
	store   StatusStore
	logger  *zap.Logger
	running atomic.Bool
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(runner Runner, store StatusStore, logger *zap.Logger) *IngestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestHandler{
		runner: runner,
		store:  store,
		logger: logger.With(zap.String("component", "admin")),
	}
}

// IngestResponse is the JSON response for ingestion endpoints.
type IngestResponse struct {
	Success bool                    `json:"success"`
	Message string                  `json:"message"`
	Count   int                     `json:"count,omitempty"`
	Elapsed string                  `json:"elapsed,omitempty"`
	Report  *models.IngestionReport `json:"report,omitempty"`
}

// IngestFacts handles POST /admin/ingest/facts
// Runs one ingestion over the company facts archive. Query params:
// - limit: maximum number of archive entries (optional)
// - local: if "true", use previously downloaded files
func (h *IngestHandler) IngestFacts(c echo.Context) error {
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, IngestResponse{
				Success: false,
				Message: fmt.Sprintf("invalid limit %q", v),
			})
		}
		limit = n
	}
	local := c.QueryParam("local") == "true"

	if !h.running.CompareAndSwap(false, true) {
		return c.JSON(http.StatusConflict, IngestResponse{
			Success: false,
			Message: "an ingestion run is already in progress",
		})
	}
	defer h.running.Store(false)

	start := time.Now()
	h.logger.Info("starting facts ingestion", zap.Int("limit", limit), zap.Bool("local", local))

	report, err := h.runner.Run(c.Request().Context(), limit, local)
	elapsed := time.Since(start)
	if err != nil && !errors.Is(err, ingest.ErrFailureRateExceeded) {
		h.logger.Error("facts ingestion failed", zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, ingest.ErrSourceUnavailable) {
			status = http.StatusBadGateway
		}
		return c.JSON(status, IngestResponse{
			Success: false,
			Message: fmt.Sprintf("Ingestion failed: %v", err),
			Elapsed: elapsed.String(),
		})
	}

	resp := IngestResponse{
		Success: err == nil,
		Message: fmt.Sprintf("Ingested %d statement records from %d entries", report.Created(), report.EntriesProcessed),
		Count:   report.Created(),
		Elapsed: elapsed.String(),
		Report:  report,
	}
	if err != nil {
		resp.Message = err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

// IngestStatus handles GET /admin/ingest/status
// Returns stored counts, the last run and whether a run is active.
func (h *IngestHandler) IngestStatus(c echo.Context) error {
	ctx := c.Request().Context()

	counts, err := h.store.StatementCounts(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, IngestResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to count statements: %v", err),
		})
	}
	last, err := h.store.LastRun(ctx)
	if err != nil {
		h.logger.Warn("loading last run", zap.Error(err))
	}

	return c.JSON(http.StatusOK, map[string]any{
		"running":  h.running.Load(),
		"counts":   counts,
		"last_run": last,
	})
}
