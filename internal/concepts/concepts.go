// Package concepts maps standardized accounting concepts to statement fields.
//
// A Mapper is built once at startup, either from the built-in tables or from a
// YAML override, and is read-only afterwards so it can be shared between
// reconciliation workers.
package concepts

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/mauv0809/factledger/internal/models"
)

// Field is a column of a statement schema.
type Field struct {
	Name     string
	PerShare bool // stored as a decimal instead of a truncated integer
}

// Schema describes one statement table.
type Schema struct {
	Statement models.Statement
	Table     string
	Fields    []Field
	Anchors   []string // at least one must be set for a record to be kept
}

// Field returns the named field.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Columns returns the field names in schema order.
func (s Schema) Columns() []string {
	cols := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		cols[i] = f.Name
	}
	return cols
}

// Anchored reports whether a record carries any anchor field.
func (s Schema) Anchored(r models.StatementRecord) bool {
	for _, a := range s.Anchors {
		if r.Has(a) {
			return true
		}
	}
	return false
}

// Table maps concept names to field names for one statement.
type Table map[string]string

// Mapper holds the concept tables for all three statements.
type Mapper struct {
	version    string
	currencies []string
	schemas    map[models.Statement]Schema
	tables     map[models.Statement]Table
}

// Default returns a Mapper over the built-in US-GAAP tables.
func Default() *Mapper {
	m := &Mapper{
		version:    DefaultVersion,
		currencies: []string{"USD"},
		schemas: map[models.Statement]Schema{
			models.Income:   incomeSchema,
			models.Balance:  balanceSchema,
			models.CashFlow: cashFlowSchema,
		},
		tables: make(map[models.Statement]Table, 3),
	}
	for st, t := range defaultTables {
		m.tables[st] = copyTable(t)
	}
	return m
}

// New builds a Mapper from explicit tables. Statements missing from tables
// fall back to the built-in table. Every mapped field must exist in the
// statement's schema.
func New(version string, currencies []string, tables map[models.Statement]Table) (*Mapper, error) {
	m := Default()
	if version != "" {
		m.version = version
	}
	if len(currencies) > 0 {
		m.currencies = upper(currencies)
	}
	for st, t := range tables {
		schema, ok := m.schemas[st]
		if !ok {
			return nil, eris.Errorf("concepts: unknown statement %d", int(st))
		}
		for concept, field := range t {
			if _, ok := schema.Field(field); !ok {
				return nil, eris.Errorf("concepts: %s concept %s maps to unknown field %q", st, concept, field)
			}
		}
		m.tables[st] = copyTable(t)
	}
	return m, nil
}

// Version identifies the tables in use.
func (m *Mapper) Version() string { return m.version }

// Schema returns the schema for a statement.
func (m *Mapper) Schema(st models.Statement) Schema { return m.schemas[st] }

// Lookup returns the field a concept feeds in the given statement.
func (m *Mapper) Lookup(st models.Statement, concept string) (Field, bool) {
	name, ok := m.tables[st][concept]
	if !ok {
		return Field{}, false
	}
	return m.schemas[st].Field(name)
}

// Maps reports whether the concept feeds any statement.
func (m *Mapper) Maps(concept string) bool {
	for _, t := range m.tables {
		if _, ok := t[concept]; ok {
			return true
		}
	}
	return false
}

// AcceptsUnit reports whether a fact reported in unit may populate field.
// Monetary fields need a currency unit; per-share fields (USD/shares) also
// accept share-denominated units.
func (m *Mapper) AcceptsUnit(f Field, unit string) bool {
	u := strings.ToUpper(unit)
	for _, c := range m.currencies {
		if strings.Contains(u, c) {
			return true
		}
	}
	return f.PerShare && strings.Contains(u, "SHARES")
}

type fileFormat struct {
	Version    string            `yaml:"version"`
	Currencies []string          `yaml:"currencies"`
	Income     map[string]string `yaml:"income"`
	Balance    map[string]string `yaml:"balance"`
	CashFlow   map[string]string `yaml:"cashflow"`
}

// LoadFile reads a YAML concept table override.
func LoadFile(path string) (*Mapper, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "concepts: read %s", path)
	}
	return Parse(raw)
}

// Parse decodes a YAML concept table override.
func Parse(raw []byte) (*Mapper, error) {
	var f fileFormat
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, eris.Wrap(err, "concepts: parse")
	}
	tables := make(map[models.Statement]Table)
	if len(f.Income) > 0 {
		tables[models.Income] = f.Income
	}
	if len(f.Balance) > 0 {
		tables[models.Balance] = f.Balance
	}
	if len(f.CashFlow) > 0 {
		tables[models.CashFlow] = f.CashFlow
	}
	return New(f.Version, f.Currencies, tables)
}

func copyTable(t Table) Table {
	out := make(Table, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

func upper(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	return out
}
