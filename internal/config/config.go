// Package config loads runtime settings from .env, an optional YAML file and
// the environment, in that order of increasing precedence.
package config

import (
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/mauv0809/factledger/internal/ingest"
	"github.com/mauv0809/factledger/internal/period"
	"github.com/mauv0809/factledger/internal/reconcile"
)

// FileEnv names the environment variable pointing at the YAML config file.
const FileEnv = "FACTLEDGER_CONFIG"

type Config struct {
	Database Database `yaml:"database"`
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
	SEC      SEC      `yaml:"sec"`
	Ingest   Ingest   `yaml:"ingest"`
}

type Database struct {
	URL string `yaml:"url"`
}

type Server struct {
	Port string `yaml:"port"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type SEC struct {
	UserAgent         string `yaml:"userAgent"`
	FactsURL          string `yaml:"factsURL"`
	TickersURL        string `yaml:"tickersURL"`
	RequestsPerSecond int    `yaml:"requestsPerSecond"`
	MaxRetries        int    `yaml:"maxRetries"`
}

type Ingest struct {
	Archive          string        `yaml:"archive"`
	Tickers          string        `yaml:"tickers"`
	SeedCompanies    bool          `yaml:"seedCompanies"`
	DownloadDir      string        `yaml:"downloadDir"`
	SubBatchSize     int           `yaml:"subBatchSize"`
	FlushThreshold   int           `yaml:"flushThreshold"`
	EntryLimit       int           `yaml:"entryLimit"`
	Workers          int           `yaml:"workers"`
	MaxDuration      time.Duration `yaml:"maxDuration"`
	MaxFailureRate   float64       `yaml:"maxFailureRate"`
	ConceptsFile     string        `yaml:"conceptsFile"`
	CumulativePolicy string        `yaml:"cumulativePolicy"`
	TieBreak         string        `yaml:"tieBreak"`
	Taxonomies       []string      `yaml:"taxonomies"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Server:  Server{Port: "8080"},
		Logging: Logging{Level: "info", Format: "json"},
		SEC: SEC{
			FactsURL:          ingest.DefaultFactsURL,
			TickersURL:        ingest.DefaultTickersURL,
			RequestsPerSecond: 10,
			MaxRetries:        3,
		},
		Ingest: Ingest{
			SubBatchSize:     ingest.DefaultSubBatchSize,
			FlushThreshold:   ingest.DefaultFlushThreshold,
			CumulativePolicy: string(period.MonthBucket),
			TieBreak:         string(reconcile.LastWins),
			Taxonomies:       []string{"us-gaap"},
		},
	}
}

// Load reads and validates the configuration. A missing .env file is not an
// error.
func Load() (Config, error) {
	cfg, err := Read()
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Read layers the configuration sources without validating the result, so
// callers can apply overrides such as command-line flags first.
func Read() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv(FileEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, eris.Wrapf(err, "reading config %s", path)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, eris.Wrapf(err, "parsing config %s", path)
		}
	}
	return cfg, cfg.applyEnv()
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"DATABASE_URL":      &c.Database.URL,
		"PORT":              &c.Server.Port,
		"LOG_LEVEL":         &c.Logging.Level,
		"LOG_FORMAT":        &c.Logging.Format,
		"SEC_USER_AGENT":    &c.SEC.UserAgent,
		"FACTS_ARCHIVE":     &c.Ingest.Archive,
		"TICKER_DIRECTORY":  &c.Ingest.Tickers,
		"CONCEPTS_FILE":     &c.Ingest.ConceptsFile,
		"CUMULATIVE_POLICY": &c.Ingest.CumulativePolicy,
		"TIE_BREAK":         &c.Ingest.TieBreak,
	}
	for k, dst := range str {
		if v, ok := os.LookupEnv(k); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"INGEST_SUB_BATCH":       &c.Ingest.SubBatchSize,
		"INGEST_FLUSH_THRESHOLD": &c.Ingest.FlushThreshold,
		"INGEST_ENTRY_LIMIT":     &c.Ingest.EntryLimit,
		"INGEST_WORKERS":         &c.Ingest.Workers,
	}
	for k, dst := range ints {
		v, ok := os.LookupEnv(k)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return eris.Wrapf(err, "%s", k)
		}
		*dst = n
	}

	if v := os.Getenv("INGEST_MAX_DURATION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return eris.Wrap(err, "INGEST_MAX_DURATION")
		}
		c.Ingest.MaxDuration = d
	}
	if v := os.Getenv("INGEST_MAX_FAILURE_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return eris.Wrap(err, "INGEST_MAX_FAILURE_RATE")
		}
		c.Ingest.MaxFailureRate = f
	}
	return nil
}

// Validate rejects settings an ingestion run cannot use.
func (c Config) Validate() error {
	in := c.Ingest
	if in.SubBatchSize <= 0 {
		return eris.Errorf("ingest.subBatchSize must be positive, got %d", in.SubBatchSize)
	}
	if in.FlushThreshold <= 0 {
		return eris.Errorf("ingest.flushThreshold must be positive, got %d", in.FlushThreshold)
	}
	if in.EntryLimit < 0 || in.Workers < 0 || in.MaxDuration < 0 {
		return eris.New("ingest.entryLimit, ingest.workers and ingest.maxDuration must not be negative")
	}
	if in.MaxFailureRate < 0 || in.MaxFailureRate > 1 {
		return eris.Errorf("ingest.maxFailureRate must be within [0, 1], got %v", in.MaxFailureRate)
	}
	if _, err := period.ParsePolicy(in.CumulativePolicy); err != nil {
		return err
	}
	if _, err := reconcile.ParseTieBreak(in.TieBreak); err != nil {
		return err
	}
	// SEC rejects requests without a User-Agent.
	if c.SEC.UserAgent == "" {
		for _, src := range []string{c.ArchiveSource(), c.TickersSource()} {
			if isHTTP(src) {
				return eris.Errorf("sec.userAgent (SEC_USER_AGENT) is required to fetch %s", src)
			}
		}
	}
	return nil
}

// ArchiveSource is the configured archive, falling back to the SEC URL.
func (c Config) ArchiveSource() string {
	if c.Ingest.Archive != "" {
		return c.Ingest.Archive
	}
	return c.SEC.FactsURL
}

// TickersSource is the configured ticker directory, falling back to the SEC URL.
func (c Config) TickersSource() string {
	if c.Ingest.Tickers != "" {
		return c.Ingest.Tickers
	}
	return c.SEC.TickersURL
}

func isHTTP(source string) bool {
	u, err := url.Parse(source)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}
