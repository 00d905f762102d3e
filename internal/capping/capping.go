// Package capping decides whether a notification may show given how often
// it, and in-apps overall, have already been shown.
package capping

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/metrics"
	"github.com/lalithlochan/beacon/internal/notification"
	"github.com/lalithlochan/beacon/internal/store"
)

const (
	lifetimeKeyPrefix = "inapp:cap:lifetime:"
	dayKeyPrefix      = "inapp:cap:day:"
	globalKey         = "global"
)

// Window counts events per key over a rolling window. When set, daily caps
// are rolling 24 hour caps instead of calendar-day counters.
type Window interface {
	Count(ctx context.Context, key string) (int, error)
	Record(ctx context.Context, key string) error
}

// Config holds the global caps. Zero means unlimited.
type Config struct {
	MaxPerSession int
	MaxPerDay     int
}

// Gate tracks display counts. Session counts live in memory and reset with
// the session; lifetime and daily counts are persisted.
type Gate struct {
	store  store.Store
	window Window
	logger *zap.Logger
	now    func() time.Time

	mu           sync.Mutex
	config       Config
	sessionID    string
	sessionShown map[string]int
	sessionTotal int
}

// New creates a gate. window may be nil.
func New(s store.Store, window Window, cfg Config, logger *zap.Logger) *Gate {
	return &Gate{
		store:        s,
		window:       window,
		logger:       logger,
		now:          time.Now,
		config:       cfg,
		sessionID:    uuid.NewString(),
		sessionShown: make(map[string]int),
	}
}

// campaignKey identifies n for counting, "" when it cannot be counted.
func campaignKey(n *notification.Notification) string {
	if n.CampaignID != "" {
		return n.CampaignID
	}
	return n.ID
}

// CanShow reports whether n is within its caps and then asks whenLimits,
// if given, for the evaluator's own limits. Notifications excluded from
// caps always pass. A count that cannot be read blocks display.
func (g *Gate) CanShow(ctx context.Context, n *notification.Notification, whenLimits func(*notification.Notification) bool) bool {
	if n == nil {
		return false
	}
	id := campaignKey(n)
	if id == "" || n.ExcludeFromCaps {
		return true
	}

	reason, err := g.capped(ctx, n, id)
	if err != nil {
		g.logger.Warn("cap check failed, not showing",
			zap.String("campaign_id", id),
			zap.Error(err),
		)
		metrics.RecordGateRejection()
		return false
	}
	if reason != "" {
		g.logger.Debug("in-app capped",
			zap.String("campaign_id", id),
			zap.String("reason", reason),
			zap.String("session_id", g.SessionID()),
		)
		metrics.RecordGateRejection()
		return false
	}

	if whenLimits != nil && !whenLimits(n) {
		g.logger.Debug("in-app rejected by when limits", zap.String("campaign_id", id))
		metrics.RecordGateRejection()
		return false
	}
	return true
}

// capped returns the name of the first cap n has reached, or "".
func (g *Gate) capped(ctx context.Context, n *notification.Notification, id string) (string, error) {
	g.mu.Lock()
	cfg := g.config
	shown := g.sessionShown[id]
	total := g.sessionTotal
	g.mu.Unlock()

	if n.MaxPerSession >= 0 && shown >= n.MaxPerSession {
		return "session", nil
	}
	if !n.ExcludeGlobalCaps && cfg.MaxPerSession > 0 && total >= cfg.MaxPerSession {
		return "global_session", nil
	}

	if n.TotalLifetimeCount >= 0 {
		count, err := g.getInt(ctx, lifetimeKeyPrefix+id)
		if err != nil {
			return "", err
		}
		if count >= int64(n.TotalLifetimeCount) {
			return "lifetime", nil
		}
	}

	if n.TotalDailyCount >= 0 {
		count, err := g.dayCount(ctx, id)
		if err != nil {
			return "", err
		}
		if count >= n.TotalDailyCount {
			return "daily", nil
		}
	}
	if !n.ExcludeGlobalCaps && cfg.MaxPerDay > 0 {
		count, err := g.dayCount(ctx, globalKey)
		if err != nil {
			return "", err
		}
		if count >= cfg.MaxPerDay {
			return "global_daily", nil
		}
	}
	return "", nil
}

// DidShow counts a display of n.
func (g *Gate) DidShow(ctx context.Context, n *notification.Notification) {
	id := campaignKey(n)
	if id == "" || n.ExcludeFromCaps {
		return
	}

	g.mu.Lock()
	g.sessionShown[id]++
	g.sessionTotal++
	g.mu.Unlock()

	if _, err := g.store.Incr(ctx, lifetimeKeyPrefix+id); err != nil {
		g.logger.Warn("failed to count lifetime display", zap.String("campaign_id", id), zap.Error(err))
	}
	for _, key := range []string{id, globalKey} {
		if err := g.recordDay(ctx, key); err != nil {
			g.logger.Warn("failed to count daily display", zap.String("key", key), zap.Error(err))
		}
	}
}

func (g *Gate) getInt(ctx context.Context, key string) (int64, error) {
	v, err := g.store.GetInt(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read cap %s: %w", key, err)
	}
	return v, nil
}

func (g *Gate) dayKey(key string) string {
	return dayKeyPrefix + g.now().Format("2006-01-02") + ":" + key
}

func (g *Gate) dayCount(ctx context.Context, key string) (int, error) {
	if g.window != nil {
		count, err := g.window.Count(ctx, key)
		if err != nil {
			return 0, fmt.Errorf("read daily window %s: %w", key, err)
		}
		return count, nil
	}
	v, err := g.getInt(ctx, g.dayKey(key))
	return int(v), err
}

func (g *Gate) recordDay(ctx context.Context, key string) error {
	if g.window != nil {
		return g.window.Record(ctx, key)
	}
	_, err := g.store.Incr(ctx, g.dayKey(key))
	return err
}

// UpdateLimits changes the global caps the server sent. A nil value keeps
// the current cap.
func (g *Gate) UpdateLimits(maxPerSession, maxPerDay *int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if maxPerSession != nil {
		g.config.MaxPerSession = *maxPerSession
	}
	if maxPerDay != nil {
		g.config.MaxPerDay = *maxPerDay
	}
	g.logger.Info("global in-app caps updated",
		zap.Int("max_per_session", g.config.MaxPerSession),
		zap.Int("max_per_day", g.config.MaxPerDay),
	)
}

// Limits returns the global caps in force.
func (g *Gate) Limits() Config {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.config
}

// ResetSession starts a new session. Session counts drop to zero.
func (g *Gate) ResetSession() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessionID = uuid.NewString()
	g.sessionShown = make(map[string]int)
	g.sessionTotal = 0
	g.logger.Debug("capping session reset", zap.String("session_id", g.sessionID))
}

// SessionID identifies the current session.
func (g *Gate) SessionID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sessionID
}

// SessionShown returns how many capped in-apps showed this session.
func (g *Gate) SessionShown() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sessionTotal
}
