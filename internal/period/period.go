// Package period derives fiscal periods from fact dates and form types.
package period

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/mauv0809/factledger/internal/models"
)

const dateLayout = "2006-01-02"

// Duration bounds, in days, of a single-quarter fact.
const (
	minQuarterDays = 60
	maxQuarterDays = 120
)

var (
	// ErrNoEndDate is returned for facts without an end date.
	ErrNoEndDate = eris.New("period: missing end date")
	// ErrBadEndDate is returned when the end date is not YYYY-MM-DD.
	ErrBadEndDate = eris.New("period: unparseable end date")
	// ErrFutureYear is returned for fiscal years after next year.
	ErrFutureYear = eris.New("period: fiscal year too far in the future")
	// ErrDiscarded is returned for cumulative facts under the Discard policy.
	ErrDiscarded = eris.New("period: cumulative period discarded")
)

// Policy selects how facts spanning more than one quarter are classified.
type Policy string

const (
	// MonthBucket assigns the end-month quarter, the same as for single
	// quarters. Year-to-date figures therefore land on a quarter key, which
	// is a known accuracy limitation for cumulative cash-flow facts.
	MonthBucket Policy = "month-bucket"
	// AnnualPolicy classifies every cumulative fact as annual.
	AnnualPolicy Policy = "annual"
	// Discard drops cumulative facts.
	Discard Policy = "discard"
)

// ParsePolicy validates a policy name; empty selects MonthBucket.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case "":
		return MonthBucket, nil
	case MonthBucket, AnnualPolicy, Discard:
		return p, nil
	}
	return "", eris.Errorf("period: unknown cumulative policy %q", s)
}

// Classifier maps (end, start, form) to a fiscal period. It holds no mutable
// state and is safe for concurrent use.
type Classifier struct {
	now            func() time.Time
	cumulative     Policy
	quarterlyForms map[string]bool
	annualForms    map[string]bool
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithClock fixes the processing time used by the future-year check.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) { c.now = now }
}

// WithCumulativePolicy sets the treatment of periods longer than a quarter.
func WithCumulativePolicy(p Policy) Option {
	return func(c *Classifier) { c.cumulative = p }
}

// WithForms replaces the quarterly and annual form type sets.
func WithForms(quarterly, annual []string) Option {
	return func(c *Classifier) {
		c.quarterlyForms = set(quarterly)
		c.annualForms = set(annual)
	}
}

// New returns a Classifier with the given options applied.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		now:            time.Now,
		cumulative:     MonthBucket,
		quarterlyForms: set([]string{"10-Q", "10-Q/A"}),
		annualForms:    set([]string{"10-K", "10-K/A", "10-KT", "20-F", "20-F/A", "40-F", "40-F/A"}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the fiscal period of a fact. start may be empty for
// point-in-time facts.
func (c *Classifier) Classify(end, start, form string) (models.FiscalPeriod, error) {
	if end == "" {
		return models.FiscalPeriod{}, ErrNoEndDate
	}
	endDate, err := time.Parse(dateLayout, end)
	if err != nil {
		return models.FiscalPeriod{}, eris.Wrapf(ErrBadEndDate, "end %q", end)
	}

	p := models.FiscalPeriod{
		FiscalYear: endDate.Year(),
		Quarter:    models.Unknown,
		End:        endDate,
	}
	if p.FiscalYear > c.now().Year()+1 {
		return models.FiscalPeriod{}, eris.Wrapf(ErrFutureYear, "end %q", end)
	}

	if start != "" {
		startDate, err := time.Parse(dateLayout, start)
		if err != nil {
			return p, nil
		}
		days := int(endDate.Sub(startDate).Hours() / 24)
		switch {
		case days >= minQuarterDays && days <= maxQuarterDays:
			p.Quarter = MonthQuarter(endDate.Month())
		case days > maxQuarterDays:
			switch c.cumulative {
			case AnnualPolicy:
				p.Quarter = models.Annual
			case Discard:
				return models.FiscalPeriod{}, ErrDiscarded
			default:
				p.Quarter = MonthQuarter(endDate.Month())
			}
		}
		return p, nil
	}

	switch {
	case c.quarterlyForms[form]:
		p.Quarter = MonthQuarter(endDate.Month())
	case c.annualForms[form]:
		p.Quarter = models.Annual
	}
	return p, nil
}

// MonthQuarter buckets an end month into a calendar-approximated quarter:
// Mar-May Q1, Jun-Aug Q2, Sep-Nov Q3, Dec-Feb Q4.
func MonthQuarter(m time.Month) models.Quarter {
	switch m {
	case time.March, time.April, time.May:
		return models.Q1
	case time.June, time.July, time.August:
		return models.Q2
	case time.September, time.October, time.November:
		return models.Q3
	}
	return models.Q4
}

func set(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[s] = true
	}
	return m
}
