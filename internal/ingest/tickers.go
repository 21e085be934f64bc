package ingest

import (
	"encoding/json"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/mauv0809/factledger/internal/models"
)

// Directory maps registrant codes to ticker symbols. A registrant may carry
// several tickers (share classes, corporate actions); they are kept in the
// order the source lists them.
type Directory map[int64][]string

// Add appends a ticker for cik, ignoring duplicates.
func (d Directory) Add(cik int64, ticker string) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return
	}
	for _, t := range d[cik] {
		if t == ticker {
			return
		}
	}
	d[cik] = append(d[cik], ticker)
}

// Listing is one row of the SEC ticker directory.
type Listing struct {
	CIK    int64
	Ticker string
	Title  string
}

// Company converts the listing into a company row; ID is assigned by storage.
func (l Listing) Company() models.Company {
	return models.Company{
		Ticker: strings.ToUpper(strings.TrimSpace(l.Ticker)),
		Name:   l.Title,
		CIK:    l.CIK,
		Active: true,
	}
}

// ParseListings decodes SEC company_tickers.json in index order:
// {"0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."}, ...}
func ParseListings(r io.Reader) ([]Listing, error) {
	var raw map[string]tickerEntry
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, eris.Wrap(err, "parsing ticker directory")
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA != nil || errB != nil {
			return keys[i] < keys[j]
		}
		return a < b
	})

	out := make([]Listing, 0, len(raw))
	for _, k := range keys {
		e := raw[k]
		if e.CIK == 0 || strings.TrimSpace(e.Ticker) == "" {
			continue
		}
		out = append(out, Listing{CIK: int64(e.CIK), Ticker: e.Ticker, Title: e.Title})
	}
	return out, nil
}

// NewDirectory indexes listings by registrant code.
func NewDirectory(listings []Listing) Directory {
	d := make(Directory, len(listings))
	for _, l := range listings {
		d.Add(l.CIK, l.Ticker)
	}
	return d
}

// LoadListings reads a ticker directory file.
func LoadListings(path string) ([]Listing, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &SourceError{Source: path, Err: eris.Wrap(err, "opening ticker directory")}
	}
	defer f.Close()
	return ParseListings(f)
}

// Resolver matches registrant codes to known companies. It is read-only after
// construction and safe for concurrent use.
type Resolver struct {
	directory Directory
	byTicker  map[string]models.Company
	byCIK     map[int64]models.Company
}

// NewResolver indexes the company directory.
func NewResolver(dir Directory, companies []models.Company) *Resolver {
	r := &Resolver{
		directory: dir,
		byTicker:  make(map[string]models.Company, len(companies)),
		byCIK:     make(map[int64]models.Company),
	}
	for _, c := range companies {
		r.byTicker[strings.ToUpper(c.Ticker)] = c
		if c.CIK != 0 {
			if _, dup := r.byCIK[c.CIK]; !dup {
				r.byCIK[c.CIK] = c
			}
		}
	}
	return r
}

// Resolve tries each ticker of the registrant in order, then a company that
// records the registrant code itself.
func (r *Resolver) Resolve(cik int64) (models.Company, bool) {
	for _, t := range r.directory[cik] {
		if c, ok := r.byTicker[t]; ok {
			return c, true
		}
	}
	c, ok := r.byCIK[cik]
	return c, ok
}

// Companies is the number of indexed companies.
func (r *Resolver) Companies() int { return len(r.byTicker) }
