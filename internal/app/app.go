// Package app assembles ingestion components from configuration for the
// server and CLI binaries.
package app

import (
	"go.uber.org/zap"

	"github.com/mauv0809/factledger/internal/concepts"
	"github.com/mauv0809/factledger/internal/config"
	"github.com/mauv0809/factledger/internal/ingest"
	"github.com/mauv0809/factledger/internal/period"
	"github.com/mauv0809/factledger/internal/reconcile"
)

// LoadMapper returns the concept tables from path, or the built-in tables.
func LoadMapper(path string) (*concepts.Mapper, error) {
	if path == "" {
		return concepts.Default(), nil
	}
	return concepts.LoadFile(path)
}

// NewRunner wires the engine, download client and store into a runner.
func NewRunner(cfg config.Config, mapper *concepts.Mapper, store ingest.RunStore, logger *zap.Logger) (*ingest.Runner, error) {
	policy, err := period.ParsePolicy(cfg.Ingest.CumulativePolicy)
	if err != nil {
		return nil, err
	}
	tb, err := reconcile.ParseTieBreak(cfg.Ingest.TieBreak)
	if err != nil {
		return nil, err
	}

	rec := reconcile.New(mapper, period.New(period.WithCumulativePolicy(policy)), tb)
	engine := ingest.NewEngine(mapper, rec, store, logger)
	client := ingest.NewClient(ingest.ClientConfig{
		UserAgent:         cfg.SEC.UserAgent,
		RequestsPerSecond: cfg.SEC.RequestsPerSecond,
		MaxRetries:        cfg.SEC.MaxRetries,
	}, logger)

	return ingest.NewRunner(engine, client, store, ingest.RunConfig{
		Archive:        cfg.ArchiveSource(),
		Tickers:        cfg.TickersSource(),
		DownloadDir:    cfg.Ingest.DownloadDir,
		SeedCompanies:  cfg.Ingest.SeedCompanies,
		MaxFailureRate: cfg.Ingest.MaxFailureRate,
		Options: ingest.Options{
			FlushThreshold: cfg.Ingest.FlushThreshold,
			EntryLimit:     cfg.Ingest.EntryLimit,
			SubBatchSize:   cfg.Ingest.SubBatchSize,
			Workers:        cfg.Ingest.Workers,
			MaxDuration:    cfg.Ingest.MaxDuration,
			Taxonomies:     cfg.Ingest.Taxonomies,
		},
	}, logger), nil
}
