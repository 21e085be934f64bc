package models

import (
	"time"

	"github.com/google/uuid"
)

// StatementCounts holds per-statement persistence counters.
type StatementCounts struct {
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// IngestionReport aggregates every recoverable condition of a run.
type IngestionReport struct {
	RunID      uuid.UUID `json:"run_id"`
	Source     string    `json:"source"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	EntriesTotal        int `json:"entries_total"`
	EntriesProcessed    int `json:"entries_processed"`
	EntriesNoData       int `json:"entries_no_data"`
	EntriesUnresolved   int `json:"entries_unresolved"`
	EntriesFailedDecode int `json:"entries_failed_decode"`

	Income   StatementCounts `json:"income"`
	Balance  StatementCounts `json:"balance"`
	CashFlow StatementCounts `json:"cashflow"`

	FlushFailures int  `json:"flush_failures"`
	Truncated     bool `json:"truncated"` // stopped by the wall-clock budget or cancellation
}

// NewIngestionReport starts a report for a run reading source.
func NewIngestionReport(source string) *IngestionReport {
	return &IngestionReport{
		RunID:     uuid.New(),
		Source:    source,
		StartedAt: time.Now().UTC(),
	}
}

// Counts returns the counters for one statement kind.
func (r *IngestionReport) Counts(s Statement) *StatementCounts {
	switch s {
	case Balance:
		return &r.Balance
	case CashFlow:
		return &r.CashFlow
	}
	return &r.Income
}

// Created is the number of records inserted across all statements.
func (r *IngestionReport) Created() int {
	return r.Income.Created + r.Balance.Created + r.CashFlow.Created
}

// FailedRecords is the number of records discarded by failed flushes.
func (r *IngestionReport) FailedRecords() int {
	return r.Income.Failed + r.Balance.Failed + r.CashFlow.Failed
}

// FailureRate is the share of read entries that could not be decoded.
func (r *IngestionReport) FailureRate() float64 {
	seen := r.EntriesProcessed + r.EntriesUnresolved + r.EntriesFailedDecode
	if seen == 0 {
		return 0
	}
	return float64(r.EntriesFailedDecode) / float64(seen)
}

// Elapsed is the run's wall-clock duration.
func (r *IngestionReport) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
