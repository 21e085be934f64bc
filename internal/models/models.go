package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Company is a row of the externally maintained stock registry.
type Company struct {
	ID        int64     `json:"id"`
	Ticker    string    `json:"ticker"`
	Name      string    `json:"name"`
	CIK       int64     `json:"cik,omitempty"` // 0 when unknown
	Sector    string    `json:"sector"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Statement identifies one of the three financial statement schemas.
type Statement int

const (
	// Income is the income statement; its facts span a duration.
	Income Statement = iota
	// Balance is the balance sheet; its facts are point-in-time.
	Balance
	// CashFlow is the cash-flow statement; its facts span a duration.
	CashFlow
)

// Statements lists every statement kind in flush order.
var Statements = []Statement{Income, Balance, CashFlow}

func (s Statement) String() string {
	switch s {
	case Income:
		return "income"
	case Balance:
		return "balance"
	case CashFlow:
		return "cashflow"
	}
	return fmt.Sprintf("statement(%d)", int(s))
}

// ParseStatement is the inverse of Statement.String.
func ParseStatement(s string) (Statement, error) {
	for _, st := range Statements {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown statement %q", s)
}

// Quarter is a fiscal quarter, or one of the Annual / Unknown markers.
type Quarter int8

const (
	// Unknown marks a period whose quarter could not be derived. It is
	// persisted as NULL.
	Unknown Quarter = -1
	// Annual marks a full fiscal year.
	Annual Quarter = 0
	// Q1 through Q4 are the fiscal quarters, bucketed by end month.
	Q1 Quarter = 1
	Q2 Quarter = 2
	Q3 Quarter = 3
	Q4 Quarter = 4
)

func (q Quarter) String() string {
	switch {
	case q == Annual:
		return "FY"
	case q >= Q1 && q <= Q4:
		return fmt.Sprintf("Q%d", int(q))
	}
	return "unknown"
}

// Column converts the quarter to its persisted form: 0 for annual, 1-4 for
// quarters and NULL (nil) for unknown.
func (q Quarter) Column() *int16 {
	if q < Annual || q > Q4 {
		return nil
	}
	v := int16(q)
	return &v
}

// FiscalPeriod is the grouping key for reconciliation.
type FiscalPeriod struct {
	FiscalYear int
	Quarter    Quarter
	End        time.Time
}

// Key drops the end date; two facts with the same key belong to the same record.
func (p FiscalPeriod) Key() PeriodKey {
	return PeriodKey{FiscalYear: p.FiscalYear, Quarter: p.Quarter}
}

func (p FiscalPeriod) String() string {
	return fmt.Sprintf("%d %s (%s)", p.FiscalYear, p.Quarter, p.End.Format("2006-01-02"))
}

// PeriodKey is the (fiscal_year, fiscal_quarter) composite key.
type PeriodKey struct {
	FiscalYear int
	Quarter    Quarter
}

// Less orders keys by year, then quarter (unknown, annual, Q1..Q4).
func (k PeriodKey) Less(o PeriodKey) bool {
	if k.FiscalYear != o.FiscalYear {
		return k.FiscalYear < o.FiscalYear
	}
	return k.Quarter < o.Quarter
}

// Fact is one numeric observation decoded from a company facts document.
type Fact struct {
	Concept string
	Unit    string
	Value   *float64
	Start   string // YYYY-MM-DD, empty for instant facts
	End     string
	Form    string // 10-K, 10-Q, ...
	Filed   string // YYYY-MM-DD
	CIK     int64
}

// Value is a reconciled field value together with the filing that backs it.
type Value struct {
	Amount   int64           // monetary fields, truncated toward zero
	PerShare decimal.Decimal // per-share fields
	IsShare  bool
	Filed    string
}

// SQL returns the value in the form the statement tables store it.
func (v Value) SQL() any {
	if v.IsShare {
		return v.PerShare
	}
	return v.Amount
}

func (v Value) String() string {
	if v.IsShare {
		return v.PerShare.String()
	}
	return fmt.Sprintf("%d", v.Amount)
}

// StatementRecord is one normalized statement for a company and fiscal period.
type StatementRecord struct {
	Statement  Statement        `json:"statement"`
	CompanyID  int64            `json:"company_id"`
	Ticker     string           `json:"ticker"`
	FiscalYear int              `json:"fiscal_year"`
	Quarter    Quarter          `json:"fiscal_quarter"`
	FormType   string           `json:"form_type"`
	FilingDate string           `json:"filing_date"`
	PeriodEnd  time.Time        `json:"period_end_date"`
	Values     map[string]Value `json:"values"`
}

// Key returns the record's (fiscal_year, fiscal_quarter) key.
func (r StatementRecord) Key() PeriodKey {
	return PeriodKey{FiscalYear: r.FiscalYear, Quarter: r.Quarter}
}

// Has reports whether field holds a value.
func (r StatementRecord) Has(field string) bool {
	_, ok := r.Values[field]
	return ok
}

// FilingTime parses FilingDate; a malformed or empty date yields nil.
func (r StatementRecord) FilingTime() *time.Time {
	if r.FilingDate == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", r.FilingDate)
	if err != nil {
		return nil
	}
	return &t
}
