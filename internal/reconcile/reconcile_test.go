package reconcile

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/mauv0809/factledger/internal/concepts"
	"github.com/mauv0809/factledger/internal/models"
	"github.com/mauv0809/factledger/internal/period"
)

func newTestReconciler(tb TieBreak) *Reconciler {
	clock := func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	return New(concepts.Default(), period.New(period.WithClock(clock)), tb)
}

func val(v float64) *float64 { return &v }

func fact(concept string, v *float64, start, end, form, filed string) models.Fact {
	return models.Fact{Concept: concept, Unit: "USD", Value: v, Start: start, End: end, Form: form, Filed: filed}
}

func TestLastFilingWins(t *testing.T) {
	r := newTestReconciler(LastWins)
	facts := []models.Fact{
		fact("Revenues", val(100), "2023-04-01", "2023-06-30", "10-Q", "2023-08-01"),
		fact("Revenues", val(120), "2023-04-01", "2023-06-30", "10-Q", "2023-11-01"),
	}
	recs := r.Reconcile(models.Income, facts)
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if got := recs[0].Values["revenue"].Amount; got != 120 {
		t.Errorf("revenue = %d, want 120", got)
	}
	if recs[0].FilingDate != "2023-11-01" {
		t.Errorf("filing date = %s", recs[0].FilingDate)
	}
}

func TestOlderFilingNeverOverwrites(t *testing.T) {
	r := newTestReconciler(LastWins)
	facts := []models.Fact{
		fact("Revenues", val(120), "2023-04-01", "2023-06-30", "10-Q/A", "2023-11-01"),
		fact("Revenues", val(100), "2023-04-01", "2023-06-30", "10-Q", "2023-08-01"),
	}
	recs := r.Reconcile(models.Income, facts)
	if got := recs[0].Values["revenue"].Amount; got != 120 {
		t.Errorf("revenue = %d, want 120", got)
	}
	if recs[0].FormType != "10-Q/A" {
		t.Errorf("form type = %s", recs[0].FormType)
	}
}

func TestPerFieldBackingDate(t *testing.T) {
	r := newTestReconciler(LastWins)
	facts := []models.Fact{
		fact("NetIncomeLoss", val(10), "2023-04-01", "2023-06-30", "10-Q", "2023-11-01"),
		// Older filing, but revenue is still unset so it is accepted.
		fact("Revenues", val(100), "2023-04-01", "2023-06-30", "10-Q", "2023-08-01"),
		fact("Revenues", val(90), "2023-04-01", "2023-06-30", "10-Q", "2023-07-15"),
	}
	recs := r.Reconcile(models.Income, facts)
	got := recs[0]
	if got.Values["revenue"].Amount != 100 || got.Values["net_income"].Amount != 10 {
		t.Errorf("values = %v", got.Values)
	}
	if got.FilingDate != "2023-11-01" {
		t.Errorf("filing date = %s, want newest", got.FilingDate)
	}
}

func TestZeroAndNullSuppression(t *testing.T) {
	r := newTestReconciler(LastWins)

	facts := []models.Fact{
		fact("Revenues", val(100), "2023-04-01", "2023-06-30", "10-Q", "2023-08-01"),
		fact("Revenues", val(0), "2023-04-01", "2023-06-30", "10-Q", "2023-11-01"),
		fact("Revenues", nil, "2023-04-01", "2023-06-30", "10-Q", "2023-12-01"),
	}
	recs := r.Reconcile(models.Income, facts)
	if got := recs[0].Values["revenue"].Amount; got != 100 {
		t.Errorf("revenue = %d, want 100", got)
	}

	empty := []models.Fact{
		fact("Revenues", val(0), "2022-04-01", "2022-06-30", "10-Q", "2022-08-01"),
		fact("NetIncomeLoss", nil, "2022-04-01", "2022-06-30", "10-Q", "2022-08-01"),
	}
	if recs := r.Reconcile(models.Income, empty); len(recs) != 0 {
		t.Errorf("zero/null facts produced %d records", len(recs))
	}
}

func TestAnchorFilter(t *testing.T) {
	r := newTestReconciler(LastWins)
	facts := []models.Fact{
		fact("ResearchAndDevelopmentExpense", val(50), "2023-04-01", "2023-06-30", "10-Q", "2023-08-01"),
		fact("Revenues", val(500), "2023-07-01", "2023-09-30", "10-Q", "2023-11-01"),
	}
	recs := r.Reconcile(models.Income, facts)
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0].Quarter != models.Q3 {
		t.Errorf("kept record quarter = %v, want Q3", recs[0].Quarter)
	}
}

func TestAmountOutOfRangeSkipped(t *testing.T) {
	r := newTestReconciler(LastWins)
	facts := []models.Fact{
		fact("Revenues", val(100), "2023-04-01", "2023-06-30", "10-Q", "2023-08-01"),
		fact("Revenues", val(1e19), "2023-04-01", "2023-06-30", "10-Q/A", "2023-11-01"),
		fact("Revenues", val(-1e19), "2023-07-01", "2023-09-30", "10-Q", "2023-11-01"),
	}
	recs := r.Reconcile(models.Income, facts)
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if got := recs[0].Values["revenue"].Amount; got != 100 {
		t.Errorf("revenue = %d, want 100", got)
	}
	if recs[0].FilingDate != "2023-08-01" || recs[0].FormType != "10-Q" {
		t.Errorf("filing = %s %s, want 2023-08-01 10-Q", recs[0].FilingDate, recs[0].FormType)
	}
}

func TestTieBreak(t *testing.T) {
	facts := []models.Fact{
		fact("Revenues", val(100), "2023-04-01", "2023-06-30", "10-Q", "2023-08-01"),
		fact("SalesRevenueNet", val(105), "2023-04-01", "2023-06-30", "10-Q", "2023-08-01"),
	}
	tests := []struct {
		tb   TieBreak
		want int64
	}{
		{LastWins, 105},
		{FirstWins, 100},
	}
	for _, tt := range tests {
		t.Run(string(tt.tb), func(t *testing.T) {
			recs := newTestReconciler(tt.tb).Reconcile(models.Income, facts)
			if got := recs[0].Values["revenue"].Amount; got != tt.want {
				t.Errorf("revenue = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPeriodEndExtendsToMaximum(t *testing.T) {
	r := newTestReconciler(LastWins)
	facts := []models.Fact{
		fact("Revenues", val(100), "2023-04-01", "2023-06-24", "10-Q", "2023-08-01"),
		fact("NetIncomeLoss", val(10), "2023-04-02", "2023-07-01", "10-Q", "2023-08-01"),
	}
	recs := r.Reconcile(models.Income, facts)
	if len(recs) != 1 {
		t.Fatalf("got %d records", len(recs))
	}
	want := time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC)
	if !recs[0].PeriodEnd.Equal(want) {
		t.Errorf("period end = %v, want %v", recs[0].PeriodEnd, want)
	}
}

func TestPerShareAndTruncation(t *testing.T) {
	r := newTestReconciler(LastWins)
	facts := []models.Fact{
		fact("Revenues", val(1234.9), "", "2023-12-31", "10-K", "2024-02-01"),
		{Concept: "EarningsPerShareBasic", Unit: "USD/shares", Value: val(1.53), End: "2023-12-31", Form: "10-K", Filed: "2024-02-01"},
	}
	recs := r.Reconcile(models.Income, facts)
	if len(recs) != 1 {
		t.Fatalf("got %d records", len(recs))
	}
	got := recs[0]
	if got.Quarter != models.Annual {
		t.Errorf("quarter = %v", got.Quarter)
	}
	if got.Values["revenue"].Amount != 1234 {
		t.Errorf("revenue = %d, want truncated 1234", got.Values["revenue"].Amount)
	}
	eps := got.Values["earnings_per_share_basic"]
	if !eps.IsShare || !eps.PerShare.Equal(decimal.RequireFromString("1.53")) {
		t.Errorf("eps = %+v", eps)
	}
}

func TestUnitFilter(t *testing.T) {
	r := newTestReconciler(LastWins)
	facts := []models.Fact{
		{Concept: "Revenues", Unit: "shares", Value: val(100), Start: "2023-04-01", End: "2023-06-30", Form: "10-Q", Filed: "2023-08-01"},
	}
	if recs := r.Reconcile(models.Income, facts); len(recs) != 0 {
		t.Errorf("share-denominated revenue produced %d records", len(recs))
	}
}

func TestReconcileAllSharesNetIncome(t *testing.T) {
	r := newTestReconciler(LastWins)
	facts := []models.Fact{
		fact("NetIncomeLoss", val(42), "2023-01-01", "2023-03-31", "10-Q", "2023-05-01"),
		fact("NetCashProvidedByUsedInOperatingActivities", val(70), "2023-01-01", "2023-03-31", "10-Q", "2023-05-01"),
		fact("Assets", val(1000), "", "2023-03-31", "10-Q", "2023-05-01"),
	}
	out := r.ReconcileAll(facts)
	if len(out.Income) != 1 || len(out.Balance) != 1 || len(out.CashFlow) != 1 {
		t.Fatalf("records = %d/%d/%d", len(out.Income), len(out.Balance), len(out.CashFlow))
	}
	if out.CashFlow[0].Values["net_income"].Amount != 42 {
		t.Errorf("cash flow net income = %v", out.CashFlow[0].Values["net_income"])
	}
	for _, st := range models.Statements {
		for _, rec := range out.Get(st) {
			if rec.Statement != st {
				t.Errorf("record statement = %v, want %v", rec.Statement, st)
			}
		}
	}
	if out.Len() != 3 {
		t.Errorf("Len() = %d", out.Len())
	}
}

func TestRecordsOrderedAndIndependent(t *testing.T) {
	r := newTestReconciler(LastWins)
	facts := []models.Fact{
		fact("Revenues", val(3), "2023-07-01", "2023-09-30", "10-Q", "2023-11-01"),
		fact("Revenues", val(1), "", "2022-12-31", "10-K", "2023-02-01"),
		fact("Revenues", val(2), "2023-01-01", "2023-03-31", "10-Q", "2023-05-01"),
	}
	recs := r.Reconcile(models.Income, facts)
	var keys []models.PeriodKey
	for _, rec := range recs {
		keys = append(keys, rec.Key())
	}
	want := []models.PeriodKey{
		{FiscalYear: 2022, Quarter: models.Annual},
		{FiscalYear: 2023, Quarter: models.Q1},
		{FiscalYear: 2023, Quarter: models.Q3},
	}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestSeedFromFirstFact(t *testing.T) {
	r := newTestReconciler(LastWins)
	facts := []models.Fact{
		fact("Revenues", val(0), "2023-04-01", "2023-06-30", "10-Q", "2023-08-01"),
		fact("NetIncomeLoss", val(5), "2023-04-01", "2023-06-30", "10-Q", ""),
	}
	recs := r.Reconcile(models.Income, facts)
	if len(recs) != 1 {
		t.Fatalf("got %d records", len(recs))
	}
	if recs[0].FilingDate != "2023-08-01" || recs[0].FormType != "10-Q" {
		t.Errorf("seed = %s %s", recs[0].FormType, recs[0].FilingDate)
	}
	if recs[0].Has("revenue") {
		t.Error("zero revenue must not be stored")
	}
}

func TestParseTieBreak(t *testing.T) {
	if tb, err := ParseTieBreak(""); err != nil || tb != LastWins {
		t.Errorf("ParseTieBreak(\"\") = %v, %v", tb, err)
	}
	if _, err := ParseTieBreak("random"); err == nil {
		t.Error("expected error")
	}
}
