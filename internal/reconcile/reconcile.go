// Package reconcile folds a company's raw facts into one record per fiscal
// period and statement.
package reconcile

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/mauv0809/factledger/internal/concepts"
	"github.com/mauv0809/factledger/internal/models"
	"github.com/mauv0809/factledger/internal/period"
)

// TieBreak decides between two facts with the same filed date.
type TieBreak string

const (
	// LastWins keeps the later-seen fact on a filed-date tie.
	LastWins TieBreak = "last-wins"
	// FirstWins keeps the first-seen fact on a filed-date tie.
	FirstWins TieBreak = "first-wins"
)

// maxAmount bounds monetary values; int64 holds [-maxAmount, maxAmount).
const maxAmount = 1 << 63

// ParseTieBreak validates a tie-break name; empty selects LastWins.
func ParseTieBreak(s string) (TieBreak, error) {
	switch t := TieBreak(s); t {
	case "":
		return LastWins, nil
	case LastWins, FirstWins:
		return t, nil
	}
	return "", eris.Errorf("reconcile: unknown tie-break %q", s)
}

// Reconciler is safe for concurrent use; each call builds its own arena.
type Reconciler struct {
	mapper     *concepts.Mapper
	classifier *period.Classifier
	tieBreak   TieBreak
}

// New returns a Reconciler. A nil classifier uses period.New().
func New(mapper *concepts.Mapper, classifier *period.Classifier, tb TieBreak) *Reconciler {
	if classifier == nil {
		classifier = period.New()
	}
	if tb == "" {
		tb = LastWins
	}
	return &Reconciler{mapper: mapper, classifier: classifier, tieBreak: tb}
}

// Statements is the output of reconciling all three statement kinds.
type Statements struct {
	Income   []models.StatementRecord
	Balance  []models.StatementRecord
	CashFlow []models.StatementRecord
}

// Get returns the records for one statement.
func (s Statements) Get(st models.Statement) []models.StatementRecord {
	switch st {
	case models.Balance:
		return s.Balance
	case models.CashFlow:
		return s.CashFlow
	}
	return s.Income
}

// Len is the total number of records.
func (s Statements) Len() int { return len(s.Income) + len(s.Balance) + len(s.CashFlow) }

// ReconcileAll runs Reconcile for every statement kind over the same facts.
func (r *Reconciler) ReconcileAll(facts []models.Fact) Statements {
	return Statements{
		Income:   r.Reconcile(models.Income, facts),
		Balance:  r.Reconcile(models.Balance, facts),
		CashFlow: r.Reconcile(models.CashFlow, facts),
	}
}

// Reconcile folds facts into anchored records for one statement, ordered by
// fiscal year and quarter. Facts are consumed in slice order, which decides
// ties between identical filed dates.
func (r *Reconciler) Reconcile(st models.Statement, facts []models.Fact) []models.StatementRecord {
	schema := r.mapper.Schema(st)
	a := newArena(st)

	for _, f := range facts {
		field, ok := r.mapper.Lookup(st, f.Concept)
		if !ok || !r.mapper.AcceptsUnit(field, f.Unit) {
			continue
		}
		p, err := r.classifier.Classify(f.End, f.Start, f.Form)
		if err != nil {
			continue
		}
		b := a.builder(p, f)
		b.apply(field, p, f, r.tieBreak)
	}

	return a.records(schema)
}

// arena holds one builder per (fiscal_year, quarter) key.
type arena struct {
	statement models.Statement
	index     map[models.PeriodKey]int
	builders  []*builder
}

func newArena(st models.Statement) *arena {
	return &arena{statement: st, index: make(map[models.PeriodKey]int)}
}

func (a *arena) builder(p models.FiscalPeriod, seed models.Fact) *builder {
	key := p.Key()
	if i, ok := a.index[key]; ok {
		return a.builders[i]
	}
	b := &builder{rec: models.StatementRecord{
		Statement:  a.statement,
		FiscalYear: p.FiscalYear,
		Quarter:    p.Quarter,
		FormType:   seed.Form,
		FilingDate: seed.Filed,
		PeriodEnd:  p.End,
		Values:     make(map[string]models.Value),
	}}
	a.index[key] = len(a.builders)
	a.builders = append(a.builders, b)
	return b
}

func (a *arena) records(schema concepts.Schema) []models.StatementRecord {
	out := make([]models.StatementRecord, 0, len(a.builders))
	for _, b := range a.builders {
		if schema.Anchored(b.rec) {
			out = append(out, b.rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out
}

type builder struct {
	rec models.StatementRecord
}

func (b *builder) apply(field concepts.Field, p models.FiscalPeriod, f models.Fact, tb TieBreak) {
	// Zero is treated as "no information", the same as a missing value.
	if f.Value == nil || *f.Value == 0 {
		return
	}
	if !field.PerShare && (*f.Value >= maxAmount || *f.Value < -maxAmount) {
		return
	}
	if cur, ok := b.rec.Values[field.Name]; ok && !newer(f.Filed, cur.Filed, tb) {
		return
	}

	v := models.Value{IsShare: field.PerShare, Filed: f.Filed}
	if field.PerShare {
		v.PerShare = decimal.NewFromFloat(*f.Value)
	} else {
		v.Amount = int64(*f.Value)
	}
	b.rec.Values[field.Name] = v

	if f.Filed != "" && f.Filed > b.rec.FilingDate {
		b.rec.FilingDate = f.Filed
		b.rec.FormType = f.Form
	}
	if p.End.After(b.rec.PeriodEnd) {
		b.rec.PeriodEnd = p.End
	}
}

// newer reports whether a fact filed on candidate replaces a value backed by
// current. ISO dates compare correctly as strings.
func newer(candidate, current string, tb TieBreak) bool {
	if candidate == "" {
		return false
	}
	if candidate == current {
		return tb == LastWins
	}
	return candidate > current
}
