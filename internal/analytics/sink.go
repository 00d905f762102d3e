package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/metrics"
)

// Sink delivers events somewhere.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Name() string
}

// LogSink writes events to the log. Used in development and when no
// remote sink is configured.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(ctx context.Context, e Event) error {
	s.logger.Info("analytics event",
		zap.String("event", e.Name),
		zap.String("event_id", e.ID),
		zap.String("campaign_id", e.CampaignID),
		zap.String("notification_id", e.NotificationID),
		zap.String("cta", e.CallToAction),
		zap.Any("extras", e.Extras),
	)
	return nil
}

func (s *LogSink) Name() string { return "log" }

// Fanout sends every event to all of its sinks. One failing sink does not
// stop the others.
type Fanout struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewFanout creates a sink writing to each of sinks.
func NewFanout(logger *zap.Logger, sinks ...Sink) *Fanout {
	return &Fanout{
		sinks:  sinks,
		logger: logger,
	}
}

func (f *Fanout) Send(ctx context.Context, e Event) error {
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Send(ctx, e); err != nil {
			metrics.RecordAnalyticsEvent(sink.Name(), "error")
			f.logger.Warn("analytics sink failed",
				zap.String("sink", sink.Name()),
				zap.String("event_id", e.ID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		metrics.RecordAnalyticsEvent(sink.Name(), "ok")
	}
	return errors.Join(errs...)
}

func (f *Fanout) Name() string { return "fanout" }

// WebhookSink posts each event as JSON to a URL.
type WebhookSink struct {
	client *http.Client
	url    string
	logger *zap.Logger
}

type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

// NewWebhookSink creates a webhook sink.
func NewWebhookSink(cfg WebhookConfig, logger *zap.Logger) *WebhookSink {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &WebhookSink{
		client: &http.Client{Timeout: timeout},
		url:    cfg.URL,
		logger: logger,
	}
}

func (s *WebhookSink) Send(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Beacon/1.0.0")
	req.Header.Set("X-Beacon-Event-ID", e.ID)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	preview, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d, body: %s", resp.StatusCode, string(preview))
	}

	s.logger.Debug("analytics webhook delivered",
		zap.String("event_id", e.ID),
		zap.Int("status_code", resp.StatusCode),
	)
	return nil
}

func (s *WebhookSink) Name() string { return "webhook" }
