package db

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mauv0809/factledger/internal/concepts"
	"github.com/mauv0809/factledger/internal/models"
)

type rowKey struct {
	companyID int64
	year      int
	quarter   models.Quarter
}

// MemoryStore keeps statements in memory with the same uniqueness rule as the
// statement tables. It backs dry runs and tests.
type MemoryStore struct {
	mu        sync.Mutex
	tables    map[models.Statement]map[rowKey]models.StatementRecord
	companies map[string]models.Company
	nextID    int64
	runs      []models.IngestionReport

	// FailOn makes InsertStatements fail for that statement kind.
	FailOn map[models.Statement]error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables:    make(map[models.Statement]map[rowKey]models.StatementRecord),
		companies: make(map[string]models.Company),
	}
}

// UpsertCompanies adds or replaces companies keyed by upper-case ticker.
// New companies get sequential IDs starting at 1.
func (m *MemoryStore) UpsertCompanies(_ context.Context, companies []models.Company) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for _, c := range companies {
		key := strings.ToUpper(c.Ticker)
		if old, ok := m.companies[key]; ok {
			c.ID, c.CreatedAt = old.ID, old.CreatedAt
			if c.CIK == 0 {
				c.CIK = old.CIK
			}
		} else {
			m.nextID++
			c.ID, c.CreatedAt = m.nextID, now
		}
		c.Ticker = key
		c.UpdatedAt = now
		m.companies[key] = c
	}
	return len(companies), nil
}

// LoadCompanies returns the active companies ordered by ticker.
func (m *MemoryStore) LoadCompanies(context.Context) ([]models.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Company, 0, len(m.companies))
	for _, c := range m.companies {
		if c.Active {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

// SaveRun records a run report.
func (m *MemoryStore) SaveRun(_ context.Context, report *models.IngestionReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, *report)
	return nil
}

// LastRun returns the most recently saved report, or nil.
func (m *MemoryStore) LastRun(context.Context) (*models.IngestionReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.runs) == 0 {
		return nil, nil
	}
	r := m.runs[len(m.runs)-1]
	return &r, nil
}

// StatementCounts mirrors Repository.StatementCounts.
func (m *MemoryStore) StatementCounts(context.Context) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mapper := concepts.Default()
	counts := map[string]int{"companies": len(m.companies)}
	for _, st := range models.Statements {
		counts[mapper.Schema(st).Table] = len(m.tables[st])
	}
	return counts, nil
}

// InsertStatements inserts records atomically; existing keys are skipped.
func (m *MemoryStore) InsertStatements(_ context.Context, st models.Statement, records []models.StatementRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.FailOn[st]; err != nil {
		return 0, err
	}

	t := m.tables[st]
	if t == nil {
		t = make(map[rowKey]models.StatementRecord)
		m.tables[st] = t
	}
	inserted := 0
	for _, r := range records {
		k := rowKey{companyID: r.CompanyID, year: r.FiscalYear, quarter: r.Quarter}
		if _, exists := t[k]; exists {
			continue
		}
		t[k] = r
		inserted++
	}
	return inserted, nil
}

// Records returns the stored records of one statement kind ordered by
// company and period.
func (m *MemoryStore) Records(st models.Statement) []models.StatementRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.StatementRecord, 0, len(m.tables[st]))
	for _, r := range m.tables[st] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CompanyID != out[j].CompanyID {
			return out[i].CompanyID < out[j].CompanyID
		}
		return out[i].Key().Less(out[j].Key())
	})
	return out
}

// Len is the number of stored records of one statement kind.
func (m *MemoryStore) Len(st models.Statement) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[st])
}
