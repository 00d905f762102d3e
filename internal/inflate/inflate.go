// Package inflate turns a raw payload into a Notification ready to show:
// it parses the payload and downloads whatever the notification renders.
package inflate

import (
	"context"
	"encoding/json"
	"image"

	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/metrics"
	"github.com/lalithlochan/beacon/internal/notification"
)

// Fetcher downloads notification resources.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
	FetchImage(ctx context.Context, rawURL string) (image.Image, error)
}

// Templates resolves the file arguments of a custom-code notification.
type Templates interface {
	FileURLs(n *notification.Notification) []string
}

// Pool runs background work.
type Pool interface {
	Go(task func()) bool
}

// Config holds pipeline settings.
type Config struct {
	VideoSupported bool
}

// Pipeline parses and prefetches notifications on the background pool.
type Pipeline struct {
	fetcher   Fetcher
	templates Templates
	pool      Pool
	config    Config
	logger    *zap.Logger
}

// New creates a pipeline.
func New(fetcher Fetcher, templates Templates, pool Pool, cfg Config, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		fetcher:   fetcher,
		templates: templates,
		pool:      pool,
		config:    cfg,
		logger:    logger,
	}
}

// Inflate parses raw and prepares it on the pool, then calls done with the
// result. done always runs, with a notification that may carry an error.
func (p *Pipeline) Inflate(ctx context.Context, raw json.RawMessage, done func(*notification.Notification)) {
	p.pool.Go(func() {
		n := notification.FromJSON(raw, p.config.VideoSupported)
		done(p.Prepare(ctx, n))
	})
}

// Prepare fetches every resource n needs. The first failure is recorded on
// n and stops the remaining fetches. Notifications that already carry an
// error are returned untouched.
func (p *Pipeline) Prepare(ctx context.Context, n *notification.Notification) *notification.Notification {
	if n.HasError() {
		metrics.RecordInflationFailure("parse")
		p.logger.Debug("payload rejected",
			zap.String("campaign_id", n.CampaignID),
			zap.String("error", n.Err()),
		)
		return n
	}

	if n.InAppType == notification.InAppTypeCustomCode {
		p.prepareTemplate(ctx, n)
	} else {
		p.prepareMedia(ctx, n)
	}

	if n.HasError() {
		p.logger.Info("inflation failed",
			zap.String("campaign_id", n.CampaignID),
			zap.String("inapp_type", n.InAppType.String()),
			zap.String("error", n.Err()),
		)
	}
	return n
}

func (p *Pipeline) prepareTemplate(ctx context.Context, n *notification.Notification) {
	for _, url := range p.templates.FileURLs(n) {
		if _, err := p.fetcher.Fetch(ctx, url); err != nil {
			p.logger.Debug("template file download failed",
				zap.String("url", url),
				zap.Error(err),
			)
			metrics.RecordInflationFailure("template_file")
			n.SetError(notification.ErrTemplateFiles)
			return
		}
	}
}

func (p *Pipeline) prepareMedia(ctx context.Context, n *notification.Notification) {
	for _, m := range n.Media {
		switch m.Kind() {
		case notification.MediaGIF:
			if data, err := p.fetcher.Fetch(ctx, m.URL); err != nil || len(data) == 0 {
				p.fail(n, m, "gif", notification.ErrGIFFetch, err)
				return
			}
		case notification.MediaImage:
			if img, err := p.fetcher.FetchImage(ctx, m.URL); err != nil || img == nil {
				p.fail(n, m, "image", notification.ErrImageFetch, err)
				return
			}
		case notification.MediaVideo, notification.MediaAudio:
			if !n.VideoSupported {
				p.fail(n, m, "video_unsupported", notification.ErrVideoUnsupported, nil)
				return
			}
		}
	}
}

func (p *Pipeline) fail(n *notification.Notification, m notification.Media, reason, msg string, err error) {
	p.logger.Debug("media preparation failed",
		zap.String("url", m.URL),
		zap.String("content_type", m.ContentType),
		zap.String("orientation", m.Orientation.String()),
		zap.Error(err),
	)
	metrics.RecordInflationFailure(reason)
	n.SetError(msg)
}
