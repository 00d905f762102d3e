// Package worker polls the server in-app feed and hands each batch to the
// engine.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/metrics"
	"github.com/lalithlochan/beacon/internal/sqs"
)

// Consumer receives feed messages.
type Consumer interface {
	Receive(ctx context.Context) ([]sqs.Delivery, error)
	Delete(ctx context.Context, receiptHandle string) error
	ChangeVisibility(ctx context.Context, receiptHandle string, seconds int32) error
}

// Engine takes the in-apps a feed message carries.
type Engine interface {
	AddPayloads(ctx context.Context, payloads []json.RawMessage) error
	OnAppLaunchServerSide(ctx context.Context, payloads []json.RawMessage) error
}

// ClientSide stores the in-apps evaluated on device.
type ClientSide interface {
	SetClientSide(ctx context.Context, payloads []json.RawMessage) error
}

// Limits receives global cap changes.
type Limits interface {
	UpdateLimits(maxPerSession, maxPerDay *int)
}

type Worker struct {
	consumer   Consumer
	engine     Engine
	clientSide ClientSide
	limits     Limits
	config     Config
	logger     *zap.Logger
}

type Config struct {
	AccountID    string
	PollInterval time.Duration
}

func New(consumer Consumer, engine Engine, clientSide ClientSide, limits Limits, cfg Config, logger *zap.Logger) *Worker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}

	return &Worker{
		consumer:   consumer,
		engine:     engine,
		clientSide: clientSide,
		limits:     limits,
		config:     cfg,
		logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("feed worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx)
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) {
	deliveries, err := w.consumer.Receive(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("failed to receive feed messages", zap.Error(err))
		}
		return
	}

	for _, d := range deliveries {
		w.processDelivery(ctx, d)
	}
}

func (w *Worker) processDelivery(ctx context.Context, d sqs.Delivery) {
	msg := d.Message

	if w.config.AccountID != "" && msg.AccountID != "" && msg.AccountID != w.config.AccountID {
		w.logger.Warn("dropping feed message for another account",
			zap.String("message_id", d.MessageID),
			zap.String("account_id", msg.AccountID),
		)
		metrics.RecordFeedMessage("foreign_account")
		w.ack(ctx, d)
		return
	}

	if err := w.Apply(ctx, msg); err != nil {
		delay := retryDelay(d.ReceiveCount)
		w.logger.Error("failed to apply feed message",
			zap.Error(err),
			zap.String("message_id", d.MessageID),
			zap.Int("receive_count", d.ReceiveCount),
			zap.Duration("retry_in", delay),
		)
		metrics.RecordFeedMessage("error")
		if err := w.consumer.ChangeVisibility(ctx, d.ReceiptHandle, int32(delay.Seconds())); err != nil {
			w.logger.Warn("failed to reschedule feed message", zap.Error(err))
		}
		return
	}

	w.logger.Info("feed message applied",
		zap.String("message_id", d.MessageID),
		zap.Int("inapps", len(msg.InApps)),
		zap.Int("client_side", len(msg.ClientSide)),
		zap.Int("app_launch_server_side", len(msg.AppLaunchServerSide)),
	)
	metrics.RecordFeedMessage("ok")
	w.ack(ctx, d)
}

// Apply hands msg to its consumers. Caps and client side in-apps go first
// so the in-apps in the same message are checked against them.
func (w *Worker) Apply(ctx context.Context, msg *sqs.FeedMessage) error {
	if msg.MaxPerSession != nil || msg.MaxPerDay != nil {
		w.limits.UpdateLimits(msg.MaxPerSession, msg.MaxPerDay)
	}
	if msg.ClientSide != nil {
		if err := w.clientSide.SetClientSide(ctx, msg.ClientSide); err != nil {
			return fmt.Errorf("store client side in-apps: %w", err)
		}
	}
	if len(msg.AppLaunchServerSide) > 0 {
		if err := w.engine.OnAppLaunchServerSide(ctx, msg.AppLaunchServerSide); err != nil {
			return fmt.Errorf("evaluate app launch in-apps: %w", err)
		}
	}
	if len(msg.InApps) > 0 {
		if err := w.engine.AddPayloads(ctx, msg.InApps); err != nil {
			return fmt.Errorf("add in-apps: %w", err)
		}
	}
	return nil
}

func (w *Worker) ack(ctx context.Context, d sqs.Delivery) {
	if err := w.consumer.Delete(ctx, d.ReceiptHandle); err != nil {
		w.logger.Error("failed to delete feed message",
			zap.String("message_id", d.MessageID),
			zap.Error(err),
		)
	}
}

// retryDelay backs off with each delivery of the same message.
func retryDelay(receiveCount int) time.Duration {
	delays := []time.Duration{
		10 * time.Second,
		1 * time.Minute,
		5 * time.Minute,
	}

	idx := receiveCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(delays) {
		idx = len(delays) - 1
	}
	return delays[idx]
}
