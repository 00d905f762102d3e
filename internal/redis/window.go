package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// WindowConfig defines a sliding window.
type WindowConfig struct {
	Limit  int           // Maximum events allowed by Allow
	Window time.Duration // Length of the window
	Prefix string        // Key namespace, "window" when empty
}

// WindowResult contains the result of an Allow check.
type WindowResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Window counts events per key over a sliding window using Redis sorted
// sets. It backs the debug API rate limit and the rolling daily in-app caps.
type Window struct {
	client *Client
	logger *zap.Logger
	config WindowConfig
	now    func() time.Time
}

// NewWindow creates a sliding window counter with the given configuration.
func NewWindow(client *Client, logger *zap.Logger, config WindowConfig) *Window {
	if config.Prefix == "" {
		config.Prefix = "window"
	}
	return &Window{
		client: client,
		logger: logger,
		config: config,
		now:    time.Now,
	}
}

func (w *Window) key(key string) string {
	return fmt.Sprintf("%s:%s", w.config.Prefix, key)
}

// count trims expired entries and returns what is left.
func (w *Window) count(ctx context.Context, redisKey string, now time.Time) (int, error) {
	windowStart := now.Add(-w.config.Window)

	pipe := w.client.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis pipeline failed: %w", err)
	}
	return int(countCmd.Val()), nil
}

func (w *Window) record(ctx context.Context, redisKey string, now time.Time, n int) error {
	pipe := w.client.rdb.Pipeline()
	for i := 0; i < n; i++ {
		score := float64(now.UnixNano()) + float64(i)
		pipe.ZAdd(ctx, redisKey, redis.Z{Score: score, Member: uuid.NewString()})
	}
	pipe.Expire(ctx, redisKey, w.config.Window+time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis zadd failed: %w", err)
	}
	return nil
}

// Count returns how many events key has recorded inside the window.
func (w *Window) Count(ctx context.Context, key string) (int, error) {
	return w.count(ctx, w.key(key), w.now())
}

// Record adds one event for key.
func (w *Window) Record(ctx context.Context, key string) error {
	return w.record(ctx, w.key(key), w.now(), 1)
}

// Allow checks whether one more event fits under the limit and records it
// if so.
func (w *Window) Allow(ctx context.Context, key string) (*WindowResult, error) {
	return w.AllowN(ctx, key, 1)
}

// AllowN checks whether n more events fit under the limit and records them
// if so.
func (w *Window) AllowN(ctx context.Context, key string, n int) (*WindowResult, error) {
	now := w.now()
	resetAt := now.Add(w.config.Window)
	redisKey := w.key(key)

	current, err := w.count(ctx, redisKey, now)
	if err != nil {
		return nil, err
	}
	remaining := w.config.Limit - current

	if current+n > w.config.Limit {
		w.logger.Debug("window limit exceeded",
			zap.String("key", key),
			zap.Int("current", current),
			zap.Int("limit", w.config.Limit),
		)
		return &WindowResult{
			Allowed:   false,
			Remaining: max(0, remaining),
			ResetAt:   resetAt,
		}, nil
	}

	if err := w.record(ctx, redisKey, now, n); err != nil {
		return nil, err
	}

	return &WindowResult{
		Allowed:   true,
		Remaining: remaining - n,
		ResetAt:   resetAt,
	}, nil
}
