package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/mauv0809/factledger/internal/concepts"
	"github.com/mauv0809/factledger/internal/models"
)

// Repository handles database operations for ingested data.
type Repository struct {
	pool   *pgxpool.Pool
	mapper *concepts.Mapper
}

// NewRepository creates a new repository. The mapper supplies the statement
// table layouts.
func NewRepository(pool *pgxpool.Pool, mapper *concepts.Mapper) *Repository {
	if mapper == nil {
		mapper = concepts.Default()
	}
	return &Repository{pool: pool, mapper: mapper}
}

// LoadCompanies returns the active company directory.
func (r *Repository) LoadCompanies(ctx context.Context) ([]models.Company, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, ticker, name, COALESCE(cik, 0), sector, active, created_at, updated_at
		FROM companies
		WHERE active = true
		ORDER BY ticker
	`)
	if err != nil {
		return nil, eris.Wrap(err, "querying companies")
	}
	defer rows.Close()

	var companies []models.Company
	for rows.Next() {
		var c models.Company
		if err := rows.Scan(&c.ID, &c.Ticker, &c.Name, &c.CIK, &c.Sector, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "scanning company")
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// UpsertCompanies inserts or updates companies keyed by ticker.
// Returns the number of rows affected.
func (r *Repository) UpsertCompanies(ctx context.Context, companies []models.Company) (int, error) {
	if len(companies) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, c := range companies {
		batch.Queue(`
			INSERT INTO companies (ticker, name, cik, sector, active, updated_at)
			VALUES ($1, $2, NULLIF($3::BIGINT, 0), $4, $5, NOW())
			ON CONFLICT (ticker) DO UPDATE SET
				name = EXCLUDED.name,
				cik = COALESCE(EXCLUDED.cik, companies.cik),
				sector = CASE WHEN EXCLUDED.sector = '' THEN companies.sector ELSE EXCLUDED.sector END,
				active = EXCLUDED.active,
				updated_at = NOW()
		`, c.Ticker, c.Name, c.CIK, c.Sector, c.Active)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	count := 0
	for range companies {
		if _, err := br.Exec(); err != nil {
			return count, eris.Wrap(err, "upserting company")
		}
		count++
	}
	return count, nil
}

// InsertStatements writes records of one statement kind in a single
// transaction. Rows whose (company_id, fiscal_year, fiscal_quarter) already
// exist are skipped; the number of inserted rows is returned.
func (r *Repository) InsertStatements(ctx context.Context, st models.Statement, records []models.StatementRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	schema := r.mapper.Schema(st)

	batch := &pgx.Batch{}
	chunk := rowsPerStatement(schema)
	for start := 0; start < len(records); start += chunk {
		end := min(start+chunk, len(records))
		query, args, err := BuildInsert(schema, records[start:end])
		if err != nil {
			return 0, err
		}
		batch.Queue(query, args...)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	inserted := 0
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, eris.Wrapf(err, "inserting into %s", schema.Table)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, eris.Wrap(err, "closing batch")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "committing transaction")
	}
	return inserted, nil
}

// SaveRun stores a finished run report.
func (r *Repository) SaveRun(ctx context.Context, report *models.IngestionReport) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "encoding report")
	}

	query, args, err := psql.Insert("ingest_runs").
		Columns(
			"id", "source", "started_at", "finished_at",
			"entries_total", "entries_processed", "entries_unresolved", "entries_failed_decode",
			"records_created", "flush_failures", "truncated", "report",
		).
		Values(
			report.RunID, report.Source, report.StartedAt, report.FinishedAt,
			report.EntriesTotal, report.EntriesProcessed, report.EntriesUnresolved, report.EntriesFailedDecode,
			report.Created(), report.FlushFailures, report.Truncated, raw,
		).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return eris.Wrap(err, "building run insert")
	}

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return eris.Wrap(err, "saving run")
	}
	return nil
}

// LastRun returns the most recent run report, or nil when none is stored.
func (r *Repository) LastRun(ctx context.Context) (*models.IngestionReport, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, "SELECT report FROM ingest_runs ORDER BY started_at DESC LIMIT 1").Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "querying last run")
	}

	var report models.IngestionReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, eris.Wrap(err, "decoding report")
	}
	return &report, nil
}

// StatementCounts returns row counts for the company and statement tables.
func (r *Repository) StatementCounts(ctx context.Context) (map[string]int, error) {
	tables := []string{"companies"}
	for _, st := range models.Statements {
		tables = append(tables, r.mapper.Schema(st).Table)
	}

	counts := make(map[string]int, len(tables))
	for _, t := range tables {
		var n int
		// Table names come from the schema, never from input.
		if err := r.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", t)).Scan(&n); err != nil {
			return nil, eris.Wrapf(err, "counting %s", t)
		}
		counts[t] = n
	}
	return counts, nil
}
