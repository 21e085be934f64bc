package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rotisserie/eris"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultFactsURL   = "https://www.sec.gov/Archives/edgar/daily-index/xbrl/companyfacts.zip"
	DefaultTickersURL = "https://www.sec.gov/files/company_tickers.json"

	defaultTimeout    = 30 * time.Minute // the bulk archive is several gigabytes
	defaultRateLimit  = 10               // SEC fair-access limit, requests per second
	defaultMaxRetries = 3
)

// ClientConfig configures the download client.
type ClientConfig struct {
	UserAgent         string
	RequestsPerSecond int
	MaxRetries        int
	Timeout           time.Duration
	BaseBackoff       time.Duration
}

// Client fetches archives and ticker directories from local paths, HTTPS
// endpoints or Cloud Storage.
type Client struct {
	userAgent   string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxRetries  uint64
	baseBackoff time.Duration
	logger      *zap.Logger
}

// NewClient creates a rate-limited download client.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRateLimit
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		userAgent:   cfg.UserAgent,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		limiter:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestsPerSecond),
		maxRetries:  uint64(cfg.MaxRetries),
		baseBackoff: cfg.BaseBackoff,
		logger:      logger.With(zap.String("component", "fetch")),
	}
}

// Fetch makes source available as a local file and returns its path. Local
// paths are returned unchanged; http(s) and gs:// sources are streamed into
// dir. Failures are a *SourceError, which matches ErrSourceUnavailable.
func (c *Client) Fetch(ctx context.Context, source, dir string) (string, error) {
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" || u.Scheme == "file" || len(u.Scheme) == 1 {
		p := source
		if err == nil && u.Scheme == "file" {
			p = u.Path
		}
		if _, statErr := os.Stat(p); statErr != nil {
			return "", &SourceError{Source: p, Err: statErr}
		}
		return p, nil
	}

	dst := filepath.Join(dir, path.Base(u.Path))
	switch u.Scheme {
	case "http", "https":
		err = c.download(ctx, u.String(), dst)
	case "gs":
		err = c.fetchGCS(ctx, u.Host, strings.TrimPrefix(u.Path, "/"), dst)
	default:
		err = eris.Errorf("unsupported scheme %q", u.Scheme)
	}
	if err != nil {
		return "", &SourceError{Source: source, Err: err}
	}
	return dst, nil
}

// Target is the local path Fetch would produce for source without fetching
// anything.
func Target(source, dir string) string {
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		return source
	}
	if u.Scheme == "file" {
		return u.Path
	}
	return filepath.Join(dir, path.Base(u.Path))
}

// download fetches urlStr into dst, retrying transient failures with
// exponential backoff.
func (c *Client) download(ctx context.Context, urlStr, dst string) error {
	b := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.baseBackoff))

	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		start := time.Now()
		n, err := c.doDownload(ctx, urlStr, dst)
		if err == nil {
			c.logger.Info("downloaded",
				zap.String("url", urlStr),
				zap.Float64("mb", float64(n)/1024/1024),
				zap.Duration("elapsed", time.Since(start)))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if transient(err) {
			c.logger.Warn("download failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *Client) doDownload(ctx context.Context, urlStr, dst string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return 0, eris.Wrap(err, "creating request")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, eris.Wrap(err, "executing request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}
	return writeFile(dst, resp.Body)
}

func (c *Client) fetchGCS(ctx context.Context, bucket, object, dst string) error {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return eris.Wrap(err, "creating storage client")
	}
	defer client.Close()

	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return eris.Wrapf(err, "opening gs://%s/%s", bucket, object)
	}
	defer r.Close()

	n, err := writeFile(dst, r)
	if err != nil {
		return err
	}
	c.logger.Info("downloaded", zap.String("bucket", bucket), zap.String("object", object), zap.Int64("bytes", n))
	return nil
}

// writeFile streams r into dst through a temporary file so a failed attempt
// never leaves a truncated archive behind.
func writeFile(dst string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, eris.Wrap(err, "creating directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.part")
	if err != nil {
		return 0, eris.Wrap(err, "creating temp file")
	}
	n, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return n, eris.Wrapf(err, "writing %s", dst)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return n, eris.Wrapf(err, "renaming %s", dst)
	}
	return n, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.code == http.StatusTooManyRequests {
		return "rate limited (429)"
	}
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

// transient reports whether a download error is worth retrying.
func transient(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}
