package ingest

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mauv0809/factledger/internal/models"
)

// DefaultFlushThreshold is the combined buffer size that triggers a flush.
const DefaultFlushThreshold = 1000

// maxLoggedFailures caps how many flush failures are logged individually.
const maxLoggedFailures = 10

// Store persists statement records. InsertStatements writes all records of
// one statement kind in a single transaction, skipping rows whose
// (company, fiscal_year, fiscal_quarter) already exists, and returns the
// number of rows actually inserted.
type Store interface {
	InsertStatements(ctx context.Context, st models.Statement, records []models.StatementRecord) (int, error)
}

// BatchIngestor buffers reconciled records and flushes them in bounded
// transactional batches. It is not safe for concurrent use; a run funnels
// all records through one instance so flushes stay serialized.
type BatchIngestor struct {
	store     Store
	threshold int
	report    *models.IngestionReport
	logger    *zap.Logger
	buffers   map[models.Statement][]models.StatementRecord
}

// NewBatchIngestor creates an ingestor that records its counters in report.
func NewBatchIngestor(store Store, threshold int, report *models.IngestionReport, logger *zap.Logger) *BatchIngestor {
	if threshold <= 0 {
		threshold = DefaultFlushThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchIngestor{
		store:     store,
		threshold: threshold,
		report:    report,
		logger:    logger.With(zap.String("component", "batch")),
		buffers:   make(map[models.Statement][]models.StatementRecord, len(models.Statements)),
	}
}

// Add buffers records and flushes once the combined buffer reaches the
// threshold.
func (b *BatchIngestor) Add(ctx context.Context, st models.Statement, records ...models.StatementRecord) {
	if len(records) == 0 {
		return
	}
	b.buffers[st] = append(b.buffers[st], records...)
	if b.Pending() >= b.threshold {
		b.Flush(ctx)
	}
}

// Pending is the number of buffered records across all statements.
func (b *BatchIngestor) Pending() int {
	n := 0
	for _, recs := range b.buffers {
		n += len(recs)
	}
	return n
}

// Flush writes every buffer, one transaction per statement kind. A failed
// transaction discards its records, which are counted as failed; the other
// statements are still written. Flushes ignore cancellation of ctx so
// reconciled records are persisted even when the run is stopping.
func (b *BatchIngestor) Flush(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for _, st := range models.Statements {
		recs := b.buffers[st]
		if len(recs) == 0 {
			continue
		}
		b.buffers[st] = nil

		counts := b.report.Counts(st)
		inserted, err := b.store.InsertStatements(ctx, st, recs)
		if err != nil {
			err = eris.Wrapf(ErrPersistence, "%s flush: %v", st, err)
			counts.Failed += len(recs)
			b.report.FlushFailures++
			if b.report.FlushFailures <= maxLoggedFailures {
				b.logger.Warn("flush failed",
					zap.Stringer("statement", st),
					zap.Int("records", len(recs)),
					zap.Error(err))
			}
			continue
		}
		counts.Created += inserted
		counts.Duplicates += len(recs) - inserted
		b.logger.Debug("flushed",
			zap.Stringer("statement", st),
			zap.Int("records", len(recs)),
			zap.Int("inserted", inserted))
	}
}
