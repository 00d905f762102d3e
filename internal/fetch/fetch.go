// Package fetch downloads the media and template files an in-app needs
// before it may be shown.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/lalithlochan/beacon/internal/metrics"
)

var (
	// ErrEmptyBody is returned when a download succeeds with no content.
	ErrEmptyBody = errors.New("fetch: empty body")
	// ErrTooLarge is returned when a body exceeds MaxBytes.
	ErrTooLarge = errors.New("fetch: body too large")
)

// Config holds fetcher settings.
type Config struct {
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
	MaxBytes  int64
}

// Client fetches URLs over HTTP. Bodies are cached by URL and concurrent
// requests for one URL share a single download.
type Client struct {
	http   *http.Client
	cache  *cache
	group  singleflight.Group
	config Config
	logger *zap.Logger
}

// New creates a fetch client. httpClient may be nil.
func New(httpClient *http.Client, cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 64
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 20 << 20
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		http:   httpClient,
		cache:  newCache(cfg.CacheSize, cfg.CacheTTL),
		config: cfg,
		logger: logger,
	}
}

// Cached reports whether rawURL is served from the cache.
func (c *Client) Cached(rawURL string) bool {
	_, ok := c.cache.get(rawURL)
	return ok
}

// Fetch returns the body at rawURL.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	return c.fetch(ctx, "bytes", rawURL)
}

// FetchImage downloads and decodes a PNG, JPEG or GIF image.
func (c *Client) FetchImage(ctx context.Context, rawURL string) (image.Image, error) {
	data, err := c.fetch(ctx, "image", rawURL)
	if err != nil {
		return nil, err
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		metrics.RecordFetch("image", "decode_error", 0)
		return nil, fmt.Errorf("decode image %s: %w", rawURL, err)
	}

	c.logger.Debug("image decoded",
		zap.String("url", rawURL),
		zap.String("format", format),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()),
	)
	return img, nil
}

func (c *Client) fetch(ctx context.Context, kind, rawURL string) ([]byte, error) {
	if data, ok := c.cache.get(rawURL); ok {
		metrics.RecordFetch(kind, "cached", 0)
		return data, nil
	}

	v, err, shared := c.group.Do(rawURL, func() (interface{}, error) {
		return c.download(ctx, rawURL)
	})
	if err != nil {
		metrics.RecordFetch(kind, "error", 0)
		c.logger.Debug("fetch failed",
			zap.String("url", rawURL),
			zap.Error(err),
		)
		return nil, err
	}
	if shared {
		c.logger.Debug("fetch shared with concurrent caller", zap.String("url", rawURL))
	}
	return v.([]byte), nil
}

func (c *Client) download(ctx context.Context, rawURL string) ([]byte, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", rawURL, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("get %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	if int64(len(data)) > c.config.MaxBytes {
		return nil, fmt.Errorf("get %s: %w", rawURL, ErrTooLarge)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("get %s: %w", rawURL, ErrEmptyBody)
	}

	c.cache.set(rawURL, data)
	metrics.RecordFetch("download", "ok", time.Since(start))

	c.logger.Debug("fetched",
		zap.String("url", rawURL),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", time.Since(start)),
	)
	return data, nil
}

// Purge empties the cache.
func (c *Client) Purge() {
	c.cache.clear()
}
