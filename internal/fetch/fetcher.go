// Package fetch retrieves the tile images of a grid over HTTP with a bounded pool of
// workers.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/paulmach/orb/maptile"

	"github.com/kiesman99/tilemosaic/internal/metrics"
	"github.com/kiesman99/tilemosaic/pkg/tile"
)

const (
	// DefaultUserAgent mimics a desktop browser; several providers reject library agents.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

	DefaultTimeout  = 60 * time.Second
	DefaultAttempts = 3
)

// Fetcher returns the encoded image of one tile. A nil slice with a nil error means the
// tile is absent (404 or empty body) and must be treated as transparent filler.
type Fetcher interface {
	Fetch(ctx context.Context, t maptile.Tile) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, t maptile.Tile) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, t maptile.Tile) ([]byte, error) {
	return f(ctx, t)
}

type config struct {
	userAgent  string
	headers    map[string]string
	timeout    time.Duration
	attempts   int
	backoffMin time.Duration
	backoffMax time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Collector
}

// Option configures an HTTPFetcher.
type Option func(*config)

func WithUserAgent(ua string) Option {
	return func(c *config) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithHeaders adds headers to every tile request. A User-Agent entry overrides the
// configured agent.
func WithHeaders(headers map[string]string) Option {
	return func(c *config) { c.headers = headers }
}

// WithTimeout sets the timeout of a single request attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithAttempts sets the total number of attempts per tile, first try included.
func WithAttempts(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithBackoff bounds the wait between attempts.
func WithBackoff(min, max time.Duration) Option {
	return func(c *config) { c.backoffMin, c.backoffMax = min, max }
}

// WithHTTPClient replaces the underlying pooled client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(c *config) { c.metrics = m }
}

// HTTPFetcher downloads tiles of one source. It is safe for concurrent use; all
// workers share its connection pool.
type HTTPFetcher struct {
	source  tile.Source
	client  *retryablehttp.Client
	config  config
	logger  *slog.Logger
	metrics *metrics.Collector
}

// NewHTTPFetcher creates a fetcher for src.
func NewHTTPFetcher(src tile.Source, opts ...Option) *HTTPFetcher {
	cfg := config{
		userAgent:  DefaultUserAgent,
		timeout:    DefaultTimeout,
		attempts:   DefaultAttempts,
		backoffMin: 500 * time.Millisecond,
		backoffMax: 5 * time.Second,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	client := retryablehttp.NewClient()
	if cfg.httpClient != nil {
		client.HTTPClient = cfg.httpClient
	}
	client.HTTPClient.Timeout = cfg.timeout
	client.RetryMax = cfg.attempts - 1
	client.RetryWaitMin = cfg.backoffMin
	client.RetryWaitMax = cfg.backoffMax
	client.Logger = cfg.logger
	// hand back the last response so 4xx/5xx can be classified below
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &HTTPFetcher{
		source:  src,
		client:  client,
		config:  cfg,
		logger:  cfg.logger,
		metrics: cfg.metrics,
	}
}

// Source returns the tile source of the fetcher.
func (f *HTTPFetcher) Source() tile.Source {
	return f.source
}

// Fetch downloads a single tile.
func (f *HTTPFetcher) Fetch(ctx context.Context, t maptile.Tile) ([]byte, error) {
	url := f.source.URL(t)
	start := time.Now()

	data, err := f.download(ctx, t, url)
	switch {
	case err != nil:
		f.metrics.ObserveTile(metrics.TileError, time.Since(start))
	case data == nil:
		f.metrics.ObserveTile(metrics.TileAbsent, time.Since(start))
		f.logger.Debug("tile absent", "url", url)
	default:
		f.metrics.ObserveTile(metrics.TileOK, time.Since(start))
	}
	return data, err
}

func (f *HTTPFetcher) download(ctx context.Context, t maptile.Tile, url string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TileError{Tile: t, URL: url, Err: err}
	}

	req.Header.Set("User-Agent", f.config.userAgent)
	for key, value := range f.config.headers {
		req.Header.Set(key, value)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &TileError{Tile: t, URL: url, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &TileError{
			Tile:       t,
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TileError{Tile: t, URL: url, Err: fmt.Errorf("reading body: %w", err)}
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}
