package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/mauv0809/factledger/internal/app"
	"github.com/mauv0809/factledger/internal/config"
	"github.com/mauv0809/factledger/internal/db"
	"github.com/mauv0809/factledger/internal/ingest"
	"github.com/mauv0809/factledger/internal/logging"
)

func main() {
	cliApp := &cli.App{
		Name:  "ingest",
		Usage: "load SEC company facts into normalized statement tables",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "archive", Usage: "company facts archive: path, https:// or gs:// URL"},
			&cli.StringFlag{Name: "tickers", Usage: "ticker directory: path, https:// or gs:// URL"},
			&cli.StringFlag{Name: "user-agent", Usage: "User-Agent sent to SEC endpoints (overrides SEC_USER_AGENT)"},
			&cli.StringFlag{Name: "download-dir", Usage: "where remote sources are stored"},
			&cli.BoolFlag{Name: "local", Usage: "use previously downloaded sources"},
			&cli.IntFlag{Name: "limit", Usage: "process at most this many archive entries"},
			&cli.IntFlag{Name: "flush-threshold", Usage: "buffered records that trigger a flush"},
			&cli.IntFlag{Name: "sub-batch", Usage: "archive entries per checkpoint"},
			&cli.IntFlag{Name: "workers", Usage: "decode workers (default GOMAXPROCS)"},
			&cli.DurationFlag{Name: "max-duration", Usage: "stop after this wall-clock budget"},
			&cli.Float64Flag{Name: "max-failure-rate", Usage: "exit non-zero when more entries fail to decode"},
			&cli.StringFlag{Name: "concepts", Usage: "YAML concept table override"},
			&cli.BoolFlag{Name: "seed-companies", Usage: "upsert the ticker directory into the company table first"},
			&cli.BoolFlag{Name: "dry-run", Usage: "reconcile into memory without a database"},
			&cli.BoolFlag{Name: "json", Usage: "print the final report as JSON"},
		},
		Action: run,
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var exit cli.ExitCoder
		if errors.As(err, &exit) {
			os.Exit(exit.ExitCode())
		}
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Read()
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), 2)
	}
	applyFlags(c, &cfg)
	if err := cfg.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), 2)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	mapper, err := app.LoadMapper(cfg.Ingest.ConceptsFile)
	if err != nil {
		return cli.Exit(fmt.Sprintf("loading concept tables: %v", err), 2)
	}

	var store ingest.RunStore
	if c.Bool("dry-run") {
		store = db.NewMemoryStore()
		cfg.Ingest.SeedCompanies = true
		logger.Info("dry run, records are kept in memory")
	} else {
		if cfg.Database.URL == "" {
			return cli.Exit("DATABASE_URL is required unless --dry-run is set", 2)
		}
		if err := db.RunMigrations(cfg.Database.URL); err != nil {
			return cli.Exit(fmt.Sprintf("running migrations: %v", err), 1)
		}
		pool, err := db.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return cli.Exit(fmt.Sprintf("connecting to database: %v", err), 1)
		}
		defer pool.Close()
		store = db.NewRepository(pool, mapper)
	}

	runner, err := app.NewRunner(cfg, mapper, store, logger)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	report, err := runner.Run(ctx, 0, c.Bool("local"))
	if report != nil && c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ingest.ErrFailureRateExceeded):
		logger.Error("failure rate exceeded", zap.Error(err))
		return cli.Exit(err.Error(), 3)
	default:
		logger.Error("ingestion aborted", zap.String("trace", eris.ToString(err, true)))
		return cli.Exit(err.Error(), 1)
	}
}

// applyFlags overrides configuration with explicitly set flags.
func applyFlags(c *cli.Context, cfg *config.Config) {
	in := &cfg.Ingest
	if c.IsSet("archive") {
		in.Archive = c.String("archive")
	}
	if c.IsSet("tickers") {
		in.Tickers = c.String("tickers")
	}
	if c.IsSet("user-agent") {
		cfg.SEC.UserAgent = c.String("user-agent")
	}
	if c.IsSet("download-dir") {
		in.DownloadDir = c.String("download-dir")
	}
	if c.IsSet("limit") {
		in.EntryLimit = c.Int("limit")
	}
	if c.IsSet("flush-threshold") {
		in.FlushThreshold = c.Int("flush-threshold")
	}
	if c.IsSet("sub-batch") {
		in.SubBatchSize = c.Int("sub-batch")
	}
	if c.IsSet("workers") {
		in.Workers = c.Int("workers")
	}
	if c.IsSet("max-duration") {
		in.MaxDuration = c.Duration("max-duration")
	}
	if c.IsSet("max-failure-rate") {
		in.MaxFailureRate = c.Float64("max-failure-rate")
	}
	if c.IsSet("concepts") {
		in.ConceptsFile = c.String("concepts")
	}
	if c.IsSet("seed-companies") {
		in.SeedCompanies = c.Bool("seed-companies")
	}
}
