package ingest

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/mauv0809/factledger/internal/models"
)

// CIK is a registrant code. SEC documents carry it either as a JSON number
// or as a zero-padded string.
type CIK int64

func (c *CIK) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = 0
		return nil
	}
	s := string(bytes.Trim(b, `"`))
	if s == "" {
		*c = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return eris.Wrapf(err, "invalid cik %s", string(b))
	}
	*c = CIK(n)
	return nil
}

// CompanyFacts is one archive entry: every fact reported by a registrant.
type CompanyFacts struct {
	CIK        CIK                           `json:"cik"`
	EntityName string                        `json:"entityName"`
	Facts      map[string]map[string]Concept `json:"facts"` // taxonomy -> concept -> data
}

// Concept holds the facts of one concept keyed by unit.
type Concept struct {
	Label       string                `json:"label"`
	Description string                `json:"description"`
	Units       map[string][]UnitFact `json:"units"`
}

// UnitFact is a single reported value as it appears in the document.
type UnitFact struct {
	Start string   `json:"start,omitempty"`
	End   string   `json:"end"`
	Val   *float64 `json:"val"`
	Accn  string   `json:"accn"`
	FY    *int     `json:"fy"`
	FP    string   `json:"fp"`
	Form  string   `json:"form"`
	Filed string   `json:"filed"`
	Frame string   `json:"frame,omitempty"`
}

// Flatten lists the facts of the given taxonomies in a stable order:
// taxonomy as given, then concept name, unit name and document order.
// Concepts rejected by keep are skipped; a nil keep accepts everything.
func (cf *CompanyFacts) Flatten(taxonomies []string, keep func(concept string) bool) []models.Fact {
	var out []models.Fact
	for _, tax := range taxonomies {
		concepts := cf.Facts[tax]
		names := make([]string, 0, len(concepts))
		for name := range concepts {
			if keep == nil || keep(name) {
				names = append(names, name)
			}
		}
		sort.Strings(names)

		for _, name := range names {
			units := concepts[name].Units
			unitNames := make([]string, 0, len(units))
			for u := range units {
				unitNames = append(unitNames, u)
			}
			sort.Strings(unitNames)

			for _, u := range unitNames {
				for _, uf := range units[u] {
					out = append(out, models.Fact{
						Concept: name,
						Unit:    u,
						Value:   uf.Val,
						Start:   uf.Start,
						End:     uf.End,
						Form:    uf.Form,
						Filed:   uf.Filed,
						CIK:     int64(cf.CIK),
					})
				}
			}
		}
	}
	return out
}

// DecodeCompanyFacts parses one company facts document. Failures match
// ErrEntryDecode.
func DecodeCompanyFacts(data []byte) (*CompanyFacts, error) {
	var cf CompanyFacts
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, &EntryError{Err: err}
	}
	return &cf, nil
}

// tickerEntry is one row of company_tickers.json.
type tickerEntry struct {
	CIK    CIK    `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}
