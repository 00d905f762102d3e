package capping

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/notification"
	"github.com/lalithlochan/beacon/internal/store"
)

func inApp(t *testing.T, extra string) *notification.Notification {
	t.Helper()
	n := notification.FromJSON([]byte(`{"type":"cover","wzrk_id":"camp-1"`+extra+`}`), false)
	require.False(t, n.HasError(), n.Err())
	return n
}

func newTestGate(cfg Config) (*Gate, *store.Memory) {
	s := store.NewMemory()
	return New(s, nil, cfg, zap.NewNop()), s
}

func showTimes(g *Gate, n *notification.Notification, times int) {
	for i := 0; i < times; i++ {
		g.DidShow(context.Background(), n)
	}
}

func TestGate_UncappedShows(t *testing.T) {
	g, _ := newTestGate(Config{})
	n := inApp(t, "")

	showTimes(g, n, 20)

	assert.True(t, g.CanShow(context.Background(), n, nil))
}

func TestGate_PerCampaignCaps(t *testing.T) {
	tests := []struct {
		name  string
		extra string
	}{
		{"session", `,"mdc":2`},
		{"lifetime", `,"tlc":2`},
		{"daily", `,"tdc":2`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newTestGate(Config{})
			n := inApp(t, tt.extra)
			ctx := context.Background()

			showTimes(g, n, 1)
			assert.True(t, g.CanShow(ctx, n, nil))
			showTimes(g, n, 1)
			assert.False(t, g.CanShow(ctx, n, nil))
		})
	}
}

func TestGate_SessionResetKeepsPersistedCaps(t *testing.T) {
	g, _ := newTestGate(Config{})
	ctx := context.Background()
	session := inApp(t, `,"mdc":1`)
	lifetime := inApp(t, `,"tlc":1`)

	showTimes(g, session, 1)
	require.False(t, g.CanShow(ctx, session, nil))
	before := g.SessionID()

	g.ResetSession()

	assert.NotEqual(t, before, g.SessionID())
	assert.Zero(t, g.SessionShown())
	assert.True(t, g.CanShow(ctx, session, nil))
	assert.False(t, g.CanShow(ctx, lifetime, nil), "lifetime count survives the session")
}

func TestGate_DailyCountRollsOver(t *testing.T) {
	g, _ := newTestGate(Config{})
	day := time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return day }
	n := inApp(t, `,"tdc":1`)

	showTimes(g, n, 1)
	require.False(t, g.CanShow(context.Background(), n, nil))

	day = day.Add(2 * time.Hour)
	assert.True(t, g.CanShow(context.Background(), n, nil))
}

func TestGate_GlobalCaps(t *testing.T) {
	g, _ := newTestGate(Config{MaxPerSession: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		showTimes(g, inApp(t, fmt.Sprintf(`,"ti":"n-%d","wzrk_id":"c-%d"`, i, i)), 1)
	}

	assert.False(t, g.CanShow(ctx, inApp(t, ""), nil))
	assert.True(t, g.CanShow(ctx, inApp(t, `,"excludeGlobalCaps":1`), nil))

	zero, two := 0, 2
	g.UpdateLimits(&zero, &two)
	assert.Equal(t, Config{MaxPerSession: 0, MaxPerDay: 2}, g.Limits())
	assert.False(t, g.CanShow(ctx, inApp(t, ""), nil), "two shown today")

	g.UpdateLimits(nil, &zero)
	assert.Equal(t, Config{}, g.Limits())
	assert.True(t, g.CanShow(ctx, inApp(t, ""), nil))
}

func TestGate_ExcludedFromCaps(t *testing.T) {
	g, s := newTestGate(Config{MaxPerSession: 1})
	n := inApp(t, `,"efc":1,"tlc":0`)

	assert.True(t, g.CanShow(context.Background(), n, func(*notification.Notification) bool { return false }))

	g.DidShow(context.Background(), n)
	_, err := s.GetInt(context.Background(), lifetimeKeyPrefix+"camp-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGate_WhenLimits(t *testing.T) {
	g, _ := newTestGate(Config{})
	n := inApp(t, "")

	var asked *notification.Notification
	ok := g.CanShow(context.Background(), n, func(got *notification.Notification) bool {
		asked = got
		return false
	})

	assert.False(t, ok)
	assert.Same(t, n, asked)
}

type failingStore struct{ *store.Memory }

func (failingStore) GetInt(context.Context, string) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestGate_StoreErrorBlocksDisplay(t *testing.T) {
	g := New(failingStore{store.NewMemory()}, nil, Config{}, zap.NewNop())

	assert.False(t, g.CanShow(context.Background(), inApp(t, `,"tlc":5`), nil))
}

type fakeWindow struct{ counts map[string]int }

func (w *fakeWindow) Count(_ context.Context, key string) (int, error) { return w.counts[key], nil }
func (w *fakeWindow) Record(_ context.Context, key string) error {
	w.counts[key]++
	return nil
}

func TestGate_WindowBacksDailyCaps(t *testing.T) {
	w := &fakeWindow{counts: map[string]int{}}
	g := New(store.NewMemory(), w, Config{MaxPerDay: 3}, zap.NewNop())
	n := inApp(t, `,"tdc":2`)

	showTimes(g, n, 2)

	assert.Equal(t, 2, w.counts["camp-1"])
	assert.Equal(t, 2, w.counts[globalKey])
	assert.False(t, g.CanShow(context.Background(), n, nil))
}
