package db

import (
	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"

	"github.com/mauv0809/factledger/internal/concepts"
	"github.com/mauv0809/factledger/internal/models"
)

// maxParams is PostgreSQL's limit on bind parameters per statement.
const maxParams = 65535

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var baseColumns = []string{
	"company_id", "fiscal_year", "fiscal_quarter",
	"form_type", "filing_date", "period_end_date",
}

// BuildInsert renders a multi-row INSERT for records into schema's table.
// Existing (company_id, fiscal_year, fiscal_quarter) rows are left untouched.
func BuildInsert(schema concepts.Schema, records []models.StatementRecord) (string, []any, error) {
	if len(records) == 0 {
		return "", nil, eris.New("no records to insert")
	}
	fields := schema.Columns()
	columns := append(append([]string{}, baseColumns...), fields...)

	q := psql.Insert(schema.Table).Columns(columns...)
	for _, r := range records {
		row := make([]any, 0, len(columns))
		row = append(row,
			r.CompanyID,
			r.FiscalYear,
			r.Quarter.Column(),
			r.FormType,
			r.FilingTime(),
			periodEnd(r),
		)
		for _, f := range fields {
			if v, ok := r.Values[f]; ok {
				row = append(row, v.SQL())
			} else {
				row = append(row, nil)
			}
		}
		q = q.Values(row...)
	}
	q = q.Suffix("ON CONFLICT (company_id, fiscal_year, fiscal_quarter) DO NOTHING")

	query, args, err := q.ToSql()
	if err != nil {
		return "", nil, eris.Wrapf(err, "building %s insert", schema.Table)
	}
	return query, args, nil
}

// rowsPerStatement is how many records fit in one INSERT for schema.
func rowsPerStatement(schema concepts.Schema) int {
	return maxParams / (len(baseColumns) + len(schema.Fields))
}

func periodEnd(r models.StatementRecord) any {
	if r.PeriodEnd.IsZero() {
		return nil
	}
	return r.PeriodEnd
}
