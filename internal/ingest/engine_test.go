package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mauv0809/factledger/internal/concepts"
	"github.com/mauv0809/factledger/internal/db"
	"github.com/mauv0809/factledger/internal/models"
	"github.com/mauv0809/factledger/internal/period"
	"github.com/mauv0809/factledger/internal/reconcile"
)

const acmeFacts = `{
	"cik": 1001,
	"entityName": "Acme Corp",
	"facts": {"us-gaap": {
		"Revenues": {"units": {"USD": [
			{"start": "2023-04-01", "end": "2023-06-30", "val": 100, "form": "10-Q", "filed": "2023-08-01"},
			{"start": "2023-04-01", "end": "2023-06-30", "val": 120, "form": "10-Q/A", "filed": "2023-11-01"},
			{"start": "2023-01-01", "end": "2023-12-31", "val": 450, "form": "10-K", "filed": "2024-02-15"}
		]}},
		"Assets": {"units": {"USD": [
			{"end": "2023-12-31", "val": 900, "form": "10-K", "filed": "2024-02-15"}
		]}},
		"NetCashProvidedByUsedInOperatingActivities": {"units": {"USD": [
			{"start": "2023-01-01", "end": "2023-12-31", "val": 75, "form": "10-K", "filed": "2024-02-15"}
		]}}
	}}
}`

const globexFacts = `{
	"cik": "0000002002",
	"entityName": "Globex",
	"facts": {"us-gaap": {
		"ResearchAndDevelopmentExpense": {"units": {"USD": [
			{"start": "2023-01-01", "end": "2023-12-31", "val": 5, "form": "10-K", "filed": "2024-02-15"}
		]}}
	}}
}`

const unknownFacts = `{"cik": 9999, "facts": {"us-gaap": {"Revenues": {"units": {"USD": [{"start": "2023-01-01", "end": "2023-12-31", "val": 1, "form": "10-K", "filed": "2024-01-01"}]}}}}}`

func newTestEngine(store Store) *Engine {
	clock := func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	m := concepts.Default()
	return NewEngine(m, reconcile.New(m, period.New(period.WithClock(clock)), reconcile.LastWins), store, nil)
}

func testOptions(path string) Options {
	return Options{
		ArchivePath: path,
		Directory:   Directory{1001: {"ACME"}, 2002: {"GBX"}},
		Companies:   []models.Company{{ID: 1, Ticker: "ACME"}, {ID: 2, Ticker: "GBX"}},
		Workers:     2,
	}
}

func TestIngestCorruptEntryIsCounted(t *testing.T) {
	path := writeArchive(t,
		archiveFile{"CIK0000001001.json", acmeFacts},
		archiveFile{"CIK0000000005.json", `{"cik": 5, "facts": {"us-gaap": {`},
		archiveFile{"CIK0000002002.json", globexFacts},
	)
	store := db.NewMemoryStore()
	report, err := newTestEngine(store).Ingest(context.Background(), testOptions(path))
	if err != nil {
		t.Fatal(err)
	}

	if report.EntriesTotal != 3 || report.EntriesFailedDecode != 1 || report.EntriesProcessed != 2 {
		t.Errorf("report = %+v", report)
	}
	if report.EntriesNoData != 1 {
		t.Errorf("no-data entries = %d, want 1 (R&D only yields no anchored record)", report.EntriesNoData)
	}

	income := store.Records(models.Income)
	if len(income) != 2 {
		t.Fatalf("income records = %d, want 2", len(income))
	}
	q2 := income[0]
	if q2.Quarter != models.Q2 || q2.Values["revenue"].Amount != 120 || q2.FormType != "10-Q/A" {
		t.Errorf("q2 = %+v", q2)
	}
	if q2.CompanyID != 1 || q2.Ticker != "ACME" {
		t.Errorf("company not attached: %+v", q2)
	}
	if store.Len(models.Balance) != 1 || store.Len(models.CashFlow) != 1 {
		t.Errorf("balance = %d, cashflow = %d", store.Len(models.Balance), store.Len(models.CashFlow))
	}
	if err := Check(report, 0.5); err != nil {
		t.Errorf("Check(0.5) = %v", err)
	}
	if err := Check(report, 0.2); !errors.Is(err, ErrFailureRateExceeded) {
		t.Errorf("Check(0.2) = %v, want ErrFailureRateExceeded", err)
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	path := writeArchive(t, archiveFile{"a.json", acmeFacts}, archiveFile{"b.json", globexFacts})
	store := db.NewMemoryStore()
	e := newTestEngine(store)

	first, err := e.Ingest(context.Background(), testOptions(path))
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Ingest(context.Background(), testOptions(path))
	if err != nil {
		t.Fatal(err)
	}

	if first.Created() == 0 {
		t.Fatal("first run created nothing")
	}
	if second.Created() != 0 {
		t.Errorf("second run created %d records", second.Created())
	}
	dups := second.Income.Duplicates + second.Balance.Duplicates + second.CashFlow.Duplicates
	if dups != first.Created() {
		t.Errorf("duplicates = %d, want %d", dups, first.Created())
	}
	if first.RunID == second.RunID {
		t.Error("run ids must differ")
	}
}

func TestIngestUnresolvedAndLimit(t *testing.T) {
	path := writeArchive(t,
		archiveFile{"a.json", unknownFacts},
		archiveFile{"b.json", `{"facts": {}}`},
		archiveFile{"c.json", acmeFacts},
	)
	opts := testOptions(path)
	opts.EntryLimit = 2
	opts.SubBatchSize = 1

	report, err := newTestEngine(db.NewMemoryStore()).Ingest(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if report.EntriesTotal != 2 || report.EntriesUnresolved != 2 || report.Created() != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestIngestCancelled(t *testing.T) {
	path := writeArchive(t, archiveFile{"a.json", acmeFacts})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newTestEngine(db.NewMemoryStore()).Ingest(ctx, testOptions(path))
	if err != nil {
		t.Fatal(err)
	}
	if !report.Truncated || report.EntriesProcessed != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestIngestMissingArchive(t *testing.T) {
	_, err := newTestEngine(db.NewMemoryStore()).Ingest(context.Background(), Options{ArchivePath: "/does/not/exist.zip"})
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
}

func TestIngestFlushFailureContinues(t *testing.T) {
	path := writeArchive(t, archiveFile{"a.json", acmeFacts})
	store := db.NewMemoryStore()
	store.FailOn = map[models.Statement]error{models.Income: errors.New("disk full")}

	report, err := newTestEngine(store).Ingest(context.Background(), testOptions(path))
	if err != nil {
		t.Fatal(err)
	}
	if report.FlushFailures != 1 || report.Income.Failed != 2 {
		t.Errorf("report = %+v", report)
	}
	if report.Balance.Created != 1 || report.CashFlow.Created != 1 {
		t.Errorf("other statements not persisted: %+v", report)
	}
}

func TestIngestCancelledMidFlushKeepsRecords(t *testing.T) {
	path := writeArchive(t, archiveFile{"a.json", acmeFacts})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &cancellingStore{MemoryStore: db.NewMemoryStore(), cancel: cancel}
	opts := testOptions(path)
	opts.FlushThreshold = 1

	report, err := newTestEngine(store).Ingest(ctx, opts)
	if err != nil {
		t.Fatal(err)
	}
	if report.FlushFailures != 0 || report.FailedRecords() != 0 {
		t.Errorf("flush failures = %d, failed = %d", report.FlushFailures, report.FailedRecords())
	}
	if report.Created() != 4 {
		t.Errorf("created = %d, want 4: %+v", report.Created(), report)
	}
}
