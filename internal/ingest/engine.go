package ingest

import (
	"context"
	"runtime"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mauv0809/factledger/internal/concepts"
	"github.com/mauv0809/factledger/internal/models"
	"github.com/mauv0809/factledger/internal/reconcile"
)

// DefaultSubBatchSize is the number of archive entries per checkpoint.
const DefaultSubBatchSize = 200

// Options parameterize one ingestion run.
type Options struct {
	ArchivePath    string
	Directory      Directory
	Companies      []models.Company
	FlushThreshold int
	EntryLimit     int           // 0 processes every entry
	SubBatchSize   int           // entries per checkpoint flush
	Workers        int           // 0 uses GOMAXPROCS
	MaxDuration    time.Duration // 0 disables the wall-clock budget
	Taxonomies     []string      // defaults to us-gaap
}

// Engine runs archive ingestion: decode, resolve, reconcile, persist.
type Engine struct {
	mapper     *concepts.Mapper
	reconciler *reconcile.Reconciler
	store      Store
	logger     *zap.Logger
}

// NewEngine wires an engine.
func NewEngine(mapper *concepts.Mapper, rec *reconcile.Reconciler, store Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		mapper:     mapper,
		reconciler: rec,
		store:      store,
		logger:     logger.With(zap.String("component", "ingest")),
	}
}

// Ingest opens the archive at opts.ArchivePath and ingests it. The only
// error returned is ErrSourceUnavailable; every per-entry and per-batch
// failure is counted in the report instead.
func (e *Engine) Ingest(ctx context.Context, opts Options) (*models.IngestionReport, error) {
	archive, err := OpenArchive(opts.ArchivePath)
	if err != nil {
		return nil, err
	}
	defer archive.Close()

	return e.IngestArchive(ctx, archive, opts), nil
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeNoData
	outcomeUnresolved
	outcomeDecodeFailed
	outcomeCancelled
)

type entryResult struct {
	outcome    outcome
	company    models.Company
	statements reconcile.Statements
}

// IngestArchive ingests an already opened archive.
func (e *Engine) IngestArchive(ctx context.Context, archive *Archive, opts Options) *models.IngestionReport {
	opts = withDefaults(opts)
	report := models.NewIngestionReport(opts.ArchivePath)
	resolver := NewResolver(opts.Directory, opts.Companies)
	batch := NewBatchIngestor(e.store, opts.FlushThreshold, report, e.logger)

	batches := archive.Batches(opts.SubBatchSize, opts.EntryLimit)
	for _, b := range batches {
		report.EntriesTotal += len(b)
	}

	e.logger.Info("starting ingestion",
		zap.Stringer("run_id", report.RunID),
		zap.String("archive", opts.ArchivePath),
		zap.Int("entries", report.EntriesTotal),
		zap.Int("companies", resolver.Companies()),
		zap.Int("workers", opts.Workers),
		zap.String("concepts", e.mapper.Version()))

	done := 0
	for i, entries := range batches {
		if ctx.Err() != nil {
			report.Truncated = true
			break
		}
		if opts.MaxDuration > 0 && time.Since(report.StartedAt) > opts.MaxDuration {
			e.logger.Warn("wall-clock budget exhausted", zap.Duration("budget", opts.MaxDuration), zap.Int("entries_done", done))
			report.Truncated = true
			break
		}

		results := e.processBatch(ctx, entries, resolver, opts)
		for _, res := range results {
			switch res.outcome {
			case outcomeCancelled:
				report.Truncated = true
				continue
			case outcomeDecodeFailed:
				report.EntriesFailedDecode++
			case outcomeUnresolved:
				report.EntriesUnresolved++
			case outcomeNoData:
				report.EntriesProcessed++
				report.EntriesNoData++
			case outcomeProcessed:
				report.EntriesProcessed++
				for _, st := range models.Statements {
					batch.Add(ctx, st, res.statements.Get(st)...)
				}
			}
			done++
		}

		// Accumulated records survive cancellation.
		batch.Flush(ctx)
		e.logProgress(report, i+1, len(batches), done)
	}
	batch.Flush(ctx)

	report.FinishedAt = time.Now().UTC()
	e.logger.Info("ingestion complete",
		zap.Stringer("run_id", report.RunID),
		zap.Int("entries_total", report.EntriesTotal),
		zap.Int("entries_processed", report.EntriesProcessed),
		zap.Int("entries_no_data", report.EntriesNoData),
		zap.Int("entries_unresolved", report.EntriesUnresolved),
		zap.Int("entries_failed_decode", report.EntriesFailedDecode),
		zap.Int("income_created", report.Income.Created),
		zap.Int("balance_created", report.Balance.Created),
		zap.Int("cashflow_created", report.CashFlow.Created),
		zap.Int("records_failed", report.FailedRecords()),
		zap.Int("flush_failures", report.FlushFailures),
		zap.Bool("truncated", report.Truncated),
		zap.Duration("elapsed", report.Elapsed()))
	return report
}

// processBatch decodes and reconciles entries on a bounded worker pool.
// Results keep archive order so the caller feeds a single ingestor.
func (e *Engine) processBatch(ctx context.Context, entries []Entry, resolver *Resolver, opts Options) []entryResult {
	results := make([]entryResult, len(entries))

	var g errgroup.Group
	g.SetLimit(opts.Workers)
	for i, entry := range entries {
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = entryResult{outcome: outcomeCancelled}
				return nil
			}
			results[i] = e.processEntry(entry, resolver, opts.Taxonomies)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Engine) processEntry(entry Entry, resolver *Resolver, taxonomies []string) entryResult {
	cf, err := entry.Decode()
	if err != nil {
		e.logger.Debug("skipping corrupt entry", zap.String("entry", entry.Name), zap.Error(err))
		return entryResult{outcome: outcomeDecodeFailed}
	}
	return e.processFacts(entry.Name, cf, resolver, taxonomies)
}

func (e *Engine) processFacts(name string, cf *CompanyFacts, resolver *Resolver, taxonomies []string) entryResult {
	company, ok := resolver.Resolve(int64(cf.CIK))
	if !ok {
		e.logger.Debug("skipping entry", zap.String("entry", name), zap.Int64("cik", int64(cf.CIK)), zap.Error(ErrUnresolvedCompany))
		return entryResult{outcome: outcomeUnresolved}
	}

	facts := cf.Flatten(taxonomies, e.mapper.Maps)
	stmts := e.reconciler.ReconcileAll(facts)
	if stmts.Len() == 0 {
		e.logger.Debug("no statements", zap.String("entry", name), zap.String("ticker", company.Ticker), zap.Error(ErrNoExtractableData))
		return entryResult{outcome: outcomeNoData, company: company}
	}

	for _, recs := range [][]models.StatementRecord{stmts.Income, stmts.Balance, stmts.CashFlow} {
		for i := range recs {
			recs[i].CompanyID = company.ID
			recs[i].Ticker = company.Ticker
		}
	}
	return entryResult{outcome: outcomeProcessed, company: company, statements: stmts}
}

func (e *Engine) logProgress(r *models.IngestionReport, batchNo, batches, done int) {
	elapsed := time.Since(r.StartedAt)
	var remaining time.Duration
	if done > 0 {
		remaining = time.Duration(float64(elapsed) / float64(done) * float64(r.EntriesTotal-done))
	}
	e.logger.Info("sub-batch complete",
		zap.Int("batch", batchNo),
		zap.Int("batches", batches),
		zap.Int("entries_done", done),
		zap.Int("entries_total", r.EntriesTotal),
		zap.Int("records_created", r.Created()),
		zap.Duration("elapsed", elapsed.Round(time.Second)),
		zap.Duration("remaining", remaining.Round(time.Second)))
}

func withDefaults(opts Options) Options {
	if opts.SubBatchSize <= 0 {
		opts.SubBatchSize = DefaultSubBatchSize
	}
	if opts.FlushThreshold <= 0 {
		opts.FlushThreshold = DefaultFlushThreshold
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if len(opts.Taxonomies) == 0 {
		opts.Taxonomies = []string{"us-gaap"}
	}
	if opts.Directory == nil {
		opts.Directory = Directory{}
	}
	return opts
}

// Check returns ErrFailureRateExceeded when more than maxRate of the read
// entries failed to decode. A non-positive maxRate disables the check.
func Check(r *models.IngestionReport, maxRate float64) error {
	if maxRate <= 0 || r.FailureRate() <= maxRate {
		return nil
	}
	return eris.Wrapf(ErrFailureRateExceeded, "decode failure rate %.2f%% above %.2f%%", r.FailureRate()*100, maxRate*100)
}
