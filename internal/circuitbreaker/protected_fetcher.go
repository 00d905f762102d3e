package circuitbreaker

import (
	"context"
	"fmt"
	"image"
	"net/url"

	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/metrics"
)

// Fetcher mirrors the fetch client so this package does not import it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
	FetchImage(ctx context.Context, rawURL string) (image.Image, error)
	Cached(rawURL string) bool
}

// ProtectedFetcher wraps a Fetcher with one breaker per host. Cached URLs
// bypass the breaker since they make no network call.
type ProtectedFetcher struct {
	fetcher  Fetcher
	breakers *Group
	logger   *zap.Logger
}

// NewProtectedFetcher wraps fetcher. Breaker transitions are published as
// metrics.
func NewProtectedFetcher(fetcher Fetcher, cfg Config, logger *zap.Logger) *ProtectedFetcher {
	user := cfg.OnStateChange
	cfg.OnStateChange = func(name string, from, to State) {
		metrics.SetBreakerState(name, int(to))
		if user != nil {
			user(name, from, to)
		}
	}
	return &ProtectedFetcher{
		fetcher:  fetcher,
		breakers: NewGroup(cfg, logger),
		logger:   logger,
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

func (p *ProtectedFetcher) guard(ctx context.Context, rawURL string, call func() error) error {
	if p.fetcher.Cached(rawURL) {
		return call()
	}

	cb := p.breakers.Get(hostOf(rawURL))
	if !cb.Allow() {
		p.logger.Warn("circuit breaker rejected fetch",
			zap.String("breaker", cb.Name()),
			zap.String("url", rawURL),
			zap.String("state", cb.GetState().String()),
		)
		metrics.RecordFetch("any", "open", 0)
		return fmt.Errorf("%w: %s", ErrCircuitOpen, cb.Name())
	}

	if err := call(); err != nil {
		// a cancelled caller says nothing about the host
		if ctx.Err() == nil {
			cb.RecordFailure()
		}
		p.logger.Debug("circuit breaker recorded failure",
			zap.String("breaker", cb.Name()),
			zap.Error(err),
		)
		return err
	}

	cb.RecordSuccess()
	return nil
}

// Fetch fetches raw bytes through the host's breaker.
func (p *ProtectedFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var data []byte
	err := p.guard(ctx, rawURL, func() error {
		var err error
		data, err = p.fetcher.Fetch(ctx, rawURL)
		return err
	})
	return data, err
}

// FetchImage fetches and decodes an image through the host's breaker.
func (p *ProtectedFetcher) FetchImage(ctx context.Context, rawURL string) (image.Image, error) {
	var img image.Image
	err := p.guard(ctx, rawURL, func() error {
		var err error
		img, err = p.fetcher.FetchImage(ctx, rawURL)
		return err
	})
	return img, err
}

// Cached delegates to the wrapped fetcher.
func (p *ProtectedFetcher) Cached(rawURL string) bool {
	return p.fetcher.Cached(rawURL)
}

// Breakers returns the per-host breakers for the debug API.
func (p *ProtectedFetcher) Breakers() *Group {
	return p.breakers
}
