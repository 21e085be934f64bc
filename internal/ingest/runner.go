package ingest

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mauv0809/factledger/internal/models"
)

// RunStore is the storage a full run needs beyond statement inserts.
type RunStore interface {
	Store
	LoadCompanies(ctx context.Context) ([]models.Company, error)
	UpsertCompanies(ctx context.Context, companies []models.Company) (int, error)
	SaveRun(ctx context.Context, report *models.IngestionReport) error
}

// RunConfig describes where a run reads from and how it is tuned.
type RunConfig struct {
	Archive        string // local path, https:// or gs:// URL
	Tickers        string // local path, https:// or gs:// URL
	DownloadDir    string
	SeedCompanies  bool // upsert the ticker directory into the company table first
	MaxFailureRate float64
	Options        Options // ArchivePath, Directory and Companies are filled per run
}

// Runner executes complete ingestion runs: fetch, resolve, ingest, record.
type Runner struct {
	engine *Engine
	client *Client
	store  RunStore
	cfg    RunConfig
	logger *zap.Logger
}

// NewRunner wires a runner.
func NewRunner(engine *Engine, client *Client, store RunStore, cfg RunConfig, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = os.TempDir()
	}
	return &Runner{engine: engine, client: client, store: store, cfg: cfg, logger: logger.With(zap.String("component", "runner"))}
}

// Run performs one ingestion. With local set, sources are expected at the
// paths a previous download left them. limit overrides the configured entry
// limit when positive. The report is returned whenever ingestion ran, even
// alongside ErrFailureRateExceeded.
func (r *Runner) Run(ctx context.Context, limit int, local bool) (*models.IngestionReport, error) {
	archive, err := r.materialize(ctx, r.cfg.Archive, local)
	if err != nil {
		return nil, err
	}
	tickers, err := r.materialize(ctx, r.cfg.Tickers, local)
	if err != nil {
		return nil, err
	}

	listings, err := LoadListings(tickers)
	if err != nil {
		return nil, err
	}
	if r.cfg.SeedCompanies {
		companies := make([]models.Company, 0, len(listings))
		for _, l := range listings {
			companies = append(companies, l.Company())
		}
		n, err := r.store.UpsertCompanies(ctx, companies)
		if err != nil {
			return nil, eris.Wrap(err, "seeding companies")
		}
		r.logger.Info("seeded companies", zap.Int("count", n))
	}

	companies, err := r.store.LoadCompanies(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "loading companies")
	}
	if len(companies) == 0 {
		r.logger.Warn("company table is empty, every entry will be unresolved")
	}

	opts := r.cfg.Options
	opts.ArchivePath = archive
	opts.Directory = NewDirectory(listings)
	opts.Companies = companies
	if limit > 0 {
		opts.EntryLimit = limit
	}

	report, err := r.engine.Ingest(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := r.store.SaveRun(context.WithoutCancel(ctx), report); err != nil {
		r.logger.Warn("saving run report", zap.Stringer("run_id", report.RunID), zap.Error(err))
	}
	return report, Check(report, r.cfg.MaxFailureRate)
}

func (r *Runner) materialize(ctx context.Context, source string, local bool) (string, error) {
	if source == "" {
		return "", &SourceError{Err: eris.New("no source configured")}
	}
	if local {
		source = Target(source, r.cfg.DownloadDir)
	}
	return r.client.Fetch(ctx, source, r.cfg.DownloadDir)
}
