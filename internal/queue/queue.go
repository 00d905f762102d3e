// Package queue is the persisted FIFO of raw in-app payloads waiting for a
// display attempt.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/metrics"
	"github.com/lalithlochan/beacon/internal/store"
)

// ErrEmpty is returned by Dequeue when nothing is waiting.
var ErrEmpty = errors.New("queue: empty")

const storeKey = "inapp:queue"

// Templates answers whether a custom template name is registered.
type Templates interface {
	IsRegistered(name string) bool
}

// Queue keeps payloads in arrival order in a store list. Producers may call
// it from any goroutine; the display lane is the only consumer.
type Queue struct {
	mu        sync.Mutex
	store     store.Store
	templates Templates
	logger    *zap.Logger
}

// New creates a queue over s.
func New(s store.Store, templates Templates, logger *zap.Logger) *Queue {
	return &Queue{
		store:     s,
		templates: templates,
		logger:    logger,
	}
}

// templateRefs is the part of a payload naming custom templates.
type templateRefs struct {
	Type         string `json:"type"`
	TemplateName string `json:"templateName"`
	Buttons      []struct {
		Actions struct {
			Type         string `json:"type"`
			TemplateName string `json:"templateName"`
		} `json:"actions"`
	} `json:"buttons"`
}

// missingTemplate returns the first template payload refers to that is not
// registered, or "".
func (q *Queue) missingTemplate(payload json.RawMessage) string {
	var refs templateRefs
	if err := json.Unmarshal(payload, &refs); err != nil {
		// left for the parser to reject with a proper diagnostic
		return ""
	}

	const customCode = "custom-code"
	if refs.Type == customCode && !q.templates.IsRegistered(refs.TemplateName) {
		return refs.TemplateName
	}
	for _, b := range refs.Buttons {
		if b.Actions.Type == customCode && !q.templates.IsRegistered(b.Actions.TemplateName) {
			return b.Actions.TemplateName
		}
	}
	return ""
}

func (q *Queue) filter(payloads []json.RawMessage) [][]byte {
	kept := make([][]byte, 0, len(payloads))
	for _, p := range payloads {
		if name := q.missingTemplate(p); name != "" {
			q.logger.Info("dropping in-app for unregistered template",
				zap.String("template", name),
			)
			continue
		}
		kept = append(kept, []byte(p))
	}
	if dropped := len(payloads) - len(kept); dropped > 0 {
		metrics.RecordFiltered(dropped)
	}
	return kept
}

// EnqueueAll appends payloads in order, skipping any that reference an
// unregistered custom template. It returns how many were kept.
func (q *Queue) EnqueueAll(ctx context.Context, payloads []json.RawMessage) (int, error) {
	kept := q.filter(payloads)
	if len(kept) == 0 {
		return 0, nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.PushBack(ctx, storeKey, kept...); err != nil {
		return 0, fmt.Errorf("enqueue in-apps: %w", err)
	}
	q.publishLength(ctx)

	q.logger.Debug("in-apps enqueued", zap.Int("count", len(kept)))
	return len(kept), nil
}

// InsertInFront puts payload ahead of everything queued. It reports false
// when the payload was filtered out.
func (q *Queue) InsertInFront(ctx context.Context, payload json.RawMessage) (bool, error) {
	kept := q.filter([]json.RawMessage{payload})
	if len(kept) == 0 {
		return false, nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.PushFront(ctx, storeKey, kept[0]); err != nil {
		return false, fmt.Errorf("insert in-app in front: %w", err)
	}
	q.publishLength(ctx)
	return true, nil
}

// Dequeue removes and returns the oldest payload, or ErrEmpty.
func (q *Queue) Dequeue(ctx context.Context) (json.RawMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, err := q.store.PopFront(ctx, storeKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue in-app: %w", err)
	}

	metrics.RecordDequeued()
	q.publishLength(ctx)
	return json.RawMessage(item), nil
}

// Len returns how many payloads are waiting.
func (q *Queue) Len(ctx context.Context) (int, error) {
	n, err := q.store.Len(ctx, storeKey)
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return int(n), nil
}

// Snapshot returns the waiting payloads without removing them.
func (q *Queue) Snapshot(ctx context.Context) ([]json.RawMessage, error) {
	items, err := q.store.Range(ctx, storeKey)
	if err != nil {
		return nil, fmt.Errorf("queue snapshot: %w", err)
	}
	out := make([]json.RawMessage, len(items))
	for i, item := range items {
		out[i] = json.RawMessage(item)
	}
	return out, nil
}

// Clear drops everything waiting.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.Delete(ctx, storeKey); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	metrics.SetQueueLength(0)
	return nil
}

// publishLength must be called with mu held.
func (q *Queue) publishLength(ctx context.Context) {
	n, err := q.store.Len(ctx, storeKey)
	if err != nil {
		q.logger.Debug("queue length unavailable", zap.Error(err))
		return
	}
	metrics.SetQueueLength(int(n))
}
