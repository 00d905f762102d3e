// Package evaluator decides which in-apps a trigger makes eligible. Client
// side in-apps carry their own trigger rules and limits; the Matcher holds
// them and matches app launches, events, charges and profile changes.
package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/notification"
	"github.com/lalithlochan/beacon/internal/store"
)

const (
	clientSideKey = "inapp:client_side"
	everKeyPrefix = "inapp:limits:ever:"
)

// Matcher is the default evaluator.
type Matcher struct {
	store  store.Store
	logger *zap.Logger

	mu           sync.RWMutex
	clientSide   []*candidate
	sessionShown map[string]int
}

// New creates a matcher with no client side in-apps.
func New(s store.Store, logger *zap.Logger) *Matcher {
	return &Matcher{
		store:        s,
		logger:       logger,
		sessionShown: make(map[string]int),
	}
}

// SetClientSide replaces the client side in-apps and persists them.
// Payloads that cannot be read are skipped.
func (m *Matcher) SetClientSide(ctx context.Context, payloads []json.RawMessage) error {
	candidates := m.parseAll(payloads)

	items := make([][]byte, 0, len(candidates))
	for _, c := range candidates {
		items = append(items, c.raw)
	}
	if err := m.store.Delete(ctx, clientSideKey); err != nil {
		return fmt.Errorf("replace client side in-apps: %w", err)
	}
	if len(items) > 0 {
		if err := m.store.PushBack(ctx, clientSideKey, items...); err != nil {
			return fmt.Errorf("replace client side in-apps: %w", err)
		}
	}

	m.mu.Lock()
	m.clientSide = candidates
	m.mu.Unlock()

	m.logger.Info("client side in-apps updated", zap.Int("count", len(candidates)))
	return nil
}

// Load restores the client side in-apps persisted by SetClientSide.
func (m *Matcher) Load(ctx context.Context) error {
	items, err := m.store.Range(ctx, clientSideKey)
	if err != nil {
		return fmt.Errorf("load client side in-apps: %w", err)
	}
	payloads := make([]json.RawMessage, len(items))
	for i, item := range items {
		payloads[i] = item
	}

	m.mu.Lock()
	m.clientSide = m.parseAll(payloads)
	m.mu.Unlock()
	return nil
}

func (m *Matcher) parseAll(payloads []json.RawMessage) []*candidate {
	candidates := make([]*candidate, 0, len(payloads))
	for _, raw := range payloads {
		c, err := parseCandidate(raw)
		if err != nil {
			m.logger.Debug("skipping unreadable in-app", zap.Error(err))
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates
}

// EvaluateOnAppLaunch matches the App Launched event.
func (m *Matcher) EvaluateOnAppLaunch(ctx context.Context, props map[string]any, loc *Location) []json.RawMessage {
	return m.evaluateClientSide(ctx, event{name: EventAppLaunched, props: props, loc: loc})
}

// EvaluateOnEvent matches a named event.
func (m *Matcher) EvaluateOnEvent(ctx context.Context, name string, props map[string]any, loc *Location) []json.RawMessage {
	return m.evaluateClientSide(ctx, event{name: name, props: props, loc: loc})
}

// EvaluateOnChargedEvent matches a Charged event. Item conditions match
// when any one item satisfies all of them.
func (m *Matcher) EvaluateOnChargedEvent(ctx context.Context, details map[string]any, items []map[string]any, loc *Location) []json.RawMessage {
	return m.evaluateClientSide(ctx, event{name: EventCharged, props: details, items: items, loc: loc})
}

// EvaluateOnProfileChange matches each changed attribute against triggers
// naming it. Conditions read the values as newValue and oldValue.
func (m *Matcher) EvaluateOnProfileChange(ctx context.Context, changes map[string]ProfileChange, props map[string]any, loc *Location) []json.RawMessage {
	attrs := make([]string, 0, len(changes))
	for attr := range changes {
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs)

	var out []json.RawMessage
	for _, attr := range attrs {
		change := changes[attr]
		bag := make(map[string]any, len(props)+2)
		for k, v := range props {
			bag[k] = v
		}
		bag[PropNewValue] = change.New
		bag[PropOldValue] = change.Old

		out = append(out, m.evaluateClientSide(ctx, event{profileAttr: attr, props: bag, loc: loc})...)
	}
	return out
}

// EvaluateServerSideOnAppLaunch filters in-apps the server already chose.
// Payloads without triggers pass; the rest must match App Launched. All
// eligible payloads are returned, highest priority first.
func (m *Matcher) EvaluateServerSideOnAppLaunch(ctx context.Context, payloads []json.RawMessage, props map[string]any, loc *Location) []json.RawMessage {
	e := event{name: EventAppLaunched, props: props, loc: loc}

	var eligible []*candidate
	for _, c := range m.parseAll(payloads) {
		if len(c.WhenTriggers) > 0 && !c.triggeredBy(e) {
			continue
		}
		if !m.withinLimits(ctx, c) {
			continue
		}
		eligible = append(eligible, c)
	}
	sortByPriority(eligible)

	out := make([]json.RawMessage, len(eligible))
	for i, c := range eligible {
		out[i] = c.raw
	}
	m.logger.Debug("server side app launch evaluated",
		zap.Int("received", len(payloads)),
		zap.Int("eligible", len(out)),
	)
	return out
}

// evaluateClientSide returns the highest priority client side in-app the
// event triggers, if any. One trigger shows at most one in-app.
func (m *Matcher) evaluateClientSide(ctx context.Context, e event) []json.RawMessage {
	m.mu.RLock()
	var matched []*candidate
	for _, c := range m.clientSide {
		if c.triggeredBy(e) {
			matched = append(matched, c)
		}
	}
	m.mu.RUnlock()

	sortByPriority(matched)
	for _, c := range matched {
		if m.withinLimits(ctx, c) {
			m.logger.Debug("client side in-app triggered",
				zap.String("event", e.name),
				zap.String("profile_attr", e.profileAttr),
				zap.String("campaign_id", c.key()),
			)
			return []json.RawMessage{c.raw}
		}
	}
	return nil
}

func (c *candidate) triggeredBy(e event) bool {
	for _, t := range c.WhenTriggers {
		if t.matches(e) {
			return true
		}
	}
	return false
}

func sortByPriority(cs []*candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		return cs[i].Priority > cs[j].Priority
	})
}

// CheckWhenLimits reports whether n is still within the limits its payload
// declares.
func (m *Matcher) CheckWhenLimits(n *notification.Notification) bool {
	c, err := parseCandidate(n.Raw)
	if err != nil {
		return true
	}
	return m.withinLimits(context.Background(), c)
}

func (m *Matcher) withinLimits(ctx context.Context, c *candidate) bool {
	key := c.key()
	if key == "" {
		return true
	}

	for _, l := range c.WhenLimits {
		switch l.Type {
		case LimitSession:
			m.mu.RLock()
			shown := m.sessionShown[key]
			m.mu.RUnlock()
			if shown >= l.Limit {
				return false
			}
		case LimitEver:
			count, err := m.store.GetInt(ctx, everKeyPrefix+key)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				m.logger.Warn("failed to read in-app limit",
					zap.String("campaign_id", key),
					zap.Error(err),
				)
				return false
			}
			if count >= int64(l.Limit) {
				return false
			}
		}
	}
	return true
}

// RecordShown counts a display of n against its limits.
func (m *Matcher) RecordShown(ctx context.Context, n *notification.Notification) {
	key := n.CampaignID
	if key == "" {
		key = n.ID
	}
	if key == "" {
		return
	}

	m.mu.Lock()
	m.sessionShown[key]++
	m.mu.Unlock()

	if _, err := m.store.Incr(ctx, everKeyPrefix+key); err != nil {
		m.logger.Warn("failed to record in-app impression",
			zap.String("campaign_id", key),
			zap.Error(err),
		)
	}
}

// ResetSession forgets session impressions.
func (m *Matcher) ResetSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionShown = make(map[string]int)
}
