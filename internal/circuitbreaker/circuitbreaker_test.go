package circuitbreaker

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg Config) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
	cb := New(cfg, zap.NewNop())
	cb.now = clock.now
	return cb, clock
}

func trip(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		cb.Allow()
		cb.RecordFailure()
	}
}

func TestCircuitBreaker_StartsInClosedState(t *testing.T) {
	cb, _ := newTestBreaker(DefaultConfig("cdn.example.com"))
	if cb.GetState() != StateClosed {
		t.Fatalf("expected StateClosed, got %s", cb.GetState())
	}
	for i := 0; i < 10; i++ {
		if !cb.Allow() {
			t.Fatalf("request %d should be allowed", i)
		}
	}
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb, _ := newTestBreaker(Config{Name: "cdn", MaxFailures: 3, RecoveryTimeout: time.Second})
	trip(cb, 3)
	if cb.GetState() != StateOpen {
		t.Fatalf("expected StateOpen, got %s", cb.GetState())
	}
	if cb.Allow() {
		t.Fatal("should reject when open")
	}
}

func TestCircuitBreaker_ProbeLifecycle(t *testing.T) {
	cb, clock := newTestBreaker(Config{Name: "cdn", MaxFailures: 2, RecoveryTimeout: 30 * time.Second})
	trip(cb, 2)

	clock.advance(29 * time.Second)
	if cb.Allow() {
		t.Fatal("should still reject before recovery timeout")
	}

	clock.advance(time.Second)
	if !cb.Allow() {
		t.Fatal("should allow probe after timeout")
	}
	if cb.GetState() != StateHalfOpen {
		t.Fatalf("expected StateHalfOpen, got %s", cb.GetState())
	}
	if cb.Allow() {
		t.Fatal("second half-open request should be rejected")
	}

	cb.RecordSuccess()
	if cb.GetState() != StateClosed {
		t.Fatalf("expected StateClosed, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_ReopensOnFailedProbe(t *testing.T) {
	cb, clock := newTestBreaker(Config{Name: "cdn", MaxFailures: 2, RecoveryTimeout: time.Second})
	trip(cb, 2)
	clock.advance(time.Second)
	cb.Allow()
	cb.RecordFailure()
	if cb.GetState() != StateOpen {
		t.Fatalf("expected StateOpen, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(Config{Name: "cdn", MaxFailures: 3})
	trip(cb, 2)
	cb.Allow()
	cb.RecordSuccess()
	trip(cb, 2)
	if cb.GetState() != StateClosed {
		t.Fatal("success should have reset failure count")
	}
}

func TestCircuitBreaker_ResetAndStats(t *testing.T) {
	var transitions []string
	cb, _ := newTestBreaker(Config{
		Name:        "stats",
		MaxFailures: 2,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})

	cb.Allow()
	cb.RecordSuccess()
	trip(cb, 2)
	cb.Reset()

	if !cb.Allow() {
		t.Fatal("should allow after reset")
	}

	stats := cb.Stats()
	if stats.Name != "stats" || stats.TotalRequests != 4 || stats.TotalSuccesses != 1 || stats.TotalFailures != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.LastFailure == "" {
		t.Error("expected last failure time")
	}

	want := []string{"stats:closed->open", "stats:open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v", transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d) = %s, want %s", tt.s, got, tt.want)
		}
	}
}

func TestGroup_OneBreakerPerName(t *testing.T) {
	g := NewGroup(Config{MaxFailures: 1}, zap.NewNop())

	a := g.Get("a.example.com")
	if g.Get("a.example.com") != a {
		t.Fatal("expected the same breaker for the same host")
	}
	a.Allow()
	a.RecordFailure()

	if g.Get("b.example.com").GetState() != StateClosed {
		t.Fatal("hosts must not share breaker state")
	}

	stats := g.Stats()
	if len(stats) != 2 || stats[0].Name != "a.example.com" || stats[0].State != "open" {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

// --- ProtectedFetcher ---

type mockFetcher struct {
	err    error
	calls  int
	cached map[string]bool
}

func (m *mockFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return []byte("ok"), nil
}

func (m *mockFetcher) FetchImage(ctx context.Context, rawURL string) (image.Image, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}

func (m *mockFetcher) Cached(rawURL string) bool { return m.cached[rawURL] }

func TestProtectedFetcher_PassesThrough(t *testing.T) {
	mock := &mockFetcher{}
	pf := NewProtectedFetcher(mock, Config{MaxFailures: 5}, zap.NewNop())

	data, err := pf.Fetch(context.Background(), "https://cdn.example.com/a.gif")
	if err != nil || string(data) != "ok" {
		t.Fatalf("unexpected result %q, %v", data, err)
	}
	if _, err := pf.FetchImage(context.Background(), "https://cdn.example.com/a.png"); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if mock.calls != 2 {
		t.Fatalf("calls = %d", mock.calls)
	}
}

func TestProtectedFetcher_FailFastPerHost(t *testing.T) {
	mock := &mockFetcher{err: errors.New("503")}
	pf := NewProtectedFetcher(mock, Config{MaxFailures: 2, RecoveryTimeout: time.Minute}, zap.NewNop())
	ctx := context.Background()

	pf.Fetch(ctx, "https://down.example.com/1")
	pf.Fetch(ctx, "https://down.example.com/2")
	mock.calls = 0

	_, err := pf.Fetch(ctx, "https://down.example.com/3")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got: %v", err)
	}
	if mock.calls != 0 {
		t.Fatalf("fetcher called %d times when circuit open", mock.calls)
	}

	mock.err = nil
	if _, err := pf.Fetch(ctx, "https://up.example.com/1"); err != nil {
		t.Fatalf("other hosts must be unaffected: %v", err)
	}
}

func TestProtectedFetcher_CachedBypassesOpenBreaker(t *testing.T) {
	mock := &mockFetcher{err: errors.New("503"), cached: map[string]bool{}}
	pf := NewProtectedFetcher(mock, Config{MaxFailures: 1, RecoveryTimeout: time.Minute}, zap.NewNop())
	ctx := context.Background()

	pf.Fetch(ctx, "https://cdn.example.com/x")

	mock.err = nil
	mock.cached["https://cdn.example.com/cached"] = true
	if _, err := pf.Fetch(ctx, "https://cdn.example.com/cached"); err != nil {
		t.Fatalf("cached url should bypass the breaker: %v", err)
	}
}

func TestProtectedFetcher_CancelledCallerDoesNotTrip(t *testing.T) {
	mock := &mockFetcher{err: context.Canceled}
	pf := NewProtectedFetcher(mock, Config{MaxFailures: 1}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pf.Fetch(ctx, "https://cdn.example.com/x")

	if pf.Breakers().Get("cdn.example.com").GetState() != StateClosed {
		t.Fatal("a cancelled caller must not open the breaker")
	}
}
