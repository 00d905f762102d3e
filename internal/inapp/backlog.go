package inapp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/metrics"
	"github.com/lalithlochan/beacon/internal/notification"
	"github.com/lalithlochan/beacon/internal/store"
)

const backlogKey = "inapp:pending"

// Backlog holds in-apps whose display was deferred. It is drained before the
// queue. Entries are mirrored to the store so they survive a restart.
type Backlog struct {
	mu     sync.Mutex
	items  []*notification.Notification
	store  store.Store
	logger *zap.Logger
}

// NewBacklog creates an empty backlog mirrored to s.
func NewBacklog(s store.Store, logger *zap.Logger) *Backlog {
	return &Backlog{
		store:  s,
		logger: logger,
	}
}

// Restore loads the persisted backlog, replacing what is in memory.
// Entries that no longer decode are skipped.
func (b *Backlog) Restore(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	raws, err := b.store.Range(ctx, backlogKey)
	if err != nil {
		return fmt.Errorf("restore backlog: %w", err)
	}

	items := make([]*notification.Notification, 0, len(raws))
	for _, raw := range raws {
		n, err := notification.Decode(raw)
		if err != nil {
			b.logger.Warn("dropping undecodable backlog entry", zap.Error(err))
			continue
		}
		items = append(items, n)
	}
	if len(items) != len(raws) {
		if err := b.rewriteLocked(ctx, items); err != nil {
			return err
		}
	}

	b.items = items
	metrics.SetBacklogSize(len(b.items))
	b.logger.Info("backlog restored", zap.Int("size", len(items)))
	return nil
}

func (b *Backlog) rewriteLocked(ctx context.Context, items []*notification.Notification) error {
	if err := b.store.Delete(ctx, backlogKey); err != nil {
		return fmt.Errorf("rewrite backlog: %w", err)
	}
	for _, n := range items {
		data, err := n.Encode()
		if err != nil {
			return err
		}
		if err := b.store.PushBack(ctx, backlogKey, data); err != nil {
			return fmt.Errorf("rewrite backlog: %w", err)
		}
	}
	return nil
}

// Push appends n.
func (b *Backlog) Push(ctx context.Context, n *notification.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = append(b.items, n)
	metrics.SetBacklogSize(len(b.items))

	data, err := n.Encode()
	if err == nil {
		err = b.store.PushBack(ctx, backlogKey, data)
	}
	if err != nil {
		b.logger.Warn("failed to persist backlog entry",
			zap.String("campaign_id", n.CampaignID),
			zap.Error(err),
		)
	}
}

// Pop removes and returns the oldest entry, or nil.
func (b *Backlog) Pop(ctx context.Context) *notification.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) == 0 {
		return nil
	}
	n := b.items[0]
	b.items[0] = nil
	b.items = b.items[1:]
	metrics.SetBacklogSize(len(b.items))

	if _, err := b.store.PopFront(ctx, backlogKey); err != nil && !errors.Is(err, store.ErrNotFound) {
		b.logger.Warn("failed to pop persisted backlog entry", zap.Error(err))
	}
	return n
}

// Len returns the number of deferred in-apps.
func (b *Backlog) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Snapshot returns the deferred in-apps in order.
func (b *Backlog) Snapshot() []*notification.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*notification.Notification, len(b.items))
	copy(out, b.items)
	return out
}
