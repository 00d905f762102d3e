package inapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/evaluator"
	"github.com/lalithlochan/beacon/internal/executor"
	"github.com/lalithlochan/beacon/internal/notification"
	"github.com/lalithlochan/beacon/internal/queue"
	"github.com/lalithlochan/beacon/internal/store"
	"github.com/lalithlochan/beacon/internal/template"
)

type fakeGate struct {
	mu     sync.Mutex
	reject map[string]bool
	shown  []string
}

func (g *fakeGate) CanShow(_ context.Context, n *notification.Notification, whenLimits func(*notification.Notification) bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.reject[n.CampaignID] {
		return false
	}
	return whenLimits(n)
}

func (g *fakeGate) DidShow(_ context.Context, n *notification.Notification) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.shown = append(g.shown, n.CampaignID)
}

// fakeInflater parses on the pool and fails the campaigns named in fail.
type fakeInflater struct {
	exec     *executor.Executor
	fail     map[string]string
	prepared []string
	mu       sync.Mutex
}

func (f *fakeInflater) Inflate(ctx context.Context, raw json.RawMessage, done func(*notification.Notification)) {
	f.exec.Go(func() {
		done(f.Prepare(ctx, notification.FromJSON(raw, true)))
	})
}

func (f *fakeInflater) Prepare(_ context.Context, n *notification.Notification) *notification.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepared = append(f.prepared, n.CampaignID)
	if msg, ok := f.fail[n.CampaignID]; ok && !n.HasError() {
		n.SetError(msg)
	}
	return n
}

type fakeHost struct {
	mu          sync.Mutex
	background  bool
	activity    string
	offline     bool
	permission  bool
	fields      map[string]any
	opened      []string
	permRequest []bool
}

func (h *fakeHost) IsForeground() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.background
}

func (h *fakeHost) CurrentActivity() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.activity
}

func (h *fakeHost) IsOnline() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.offline
}

func (h *fakeHost) HasPushPermission() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.permission
}

func (h *fakeHost) RequestPushPermission(fallback bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.permRequest = append(h.permRequest, fallback)
}

func (h *fakeHost) OpenURL(url string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opened = append(h.opened, url)
	return nil
}

func (h *fakeHost) AppLaunchFields() map[string]any { return h.fields }

func (h *fakeHost) Location() *evaluator.Location { return nil }

func (h *fakeHost) set(f func(h *fakeHost)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f(h)
}

type recordingListener struct {
	mu         sync.Mutex
	veto       map[string]bool
	panicking  bool
	shown      []string
	dismissed  []string
	clicks     []map[string]string
	permission []bool
}

func (l *recordingListener) BeforeShow(n *notification.Notification) bool {
	if l.panicking {
		panic("listener bug")
	}
	return !l.veto[n.CampaignID]
}

func (l *recordingListener) OnShow(n *notification.Notification) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shown = append(l.shown, n.CampaignID)
}

func (l *recordingListener) OnDismissed(n *notification.Notification, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dismissed = append(l.dismissed, n.CampaignID)
}

func (l *recordingListener) OnButtonClick(_ *notification.Notification, kv map[string]string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clicks = append(l.clicks, kv)
}

func (l *recordingListener) OnPushPermission(granted bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.permission = append(l.permission, granted)
}

type fakeAnalytics struct {
	mu      sync.Mutex
	viewed  []string
	clicked []string
}

func (a *fakeAnalytics) Viewed(_ context.Context, n *notification.Notification) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.viewed = append(a.viewed, n.CampaignID)
}

func (a *fakeAnalytics) Clicked(_ context.Context, n *notification.Notification, cta string, _ map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clicked = append(a.clicked, n.CampaignID+":"+cta)
}

type fakeEvaluator struct {
	mu       sync.Mutex
	eligible []json.RawMessage
	lastName string
	props    map[string]any
	recorded []string
}

func (e *fakeEvaluator) result(name string, props map[string]any) []json.RawMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastName = name
	e.props = props
	return e.eligible
}

func (e *fakeEvaluator) EvaluateOnAppLaunch(_ context.Context, props map[string]any, _ *evaluator.Location) []json.RawMessage {
	return e.result(evaluator.EventAppLaunched, props)
}

func (e *fakeEvaluator) EvaluateOnEvent(_ context.Context, name string, props map[string]any, _ *evaluator.Location) []json.RawMessage {
	return e.result(name, props)
}

func (e *fakeEvaluator) EvaluateOnChargedEvent(_ context.Context, details map[string]any, _ []map[string]any, _ *evaluator.Location) []json.RawMessage {
	return e.result(evaluator.EventCharged, details)
}

func (e *fakeEvaluator) EvaluateOnProfileChange(_ context.Context, _ map[string]evaluator.ProfileChange, props map[string]any, _ *evaluator.Location) []json.RawMessage {
	return e.result("profile", props)
}

func (e *fakeEvaluator) EvaluateServerSideOnAppLaunch(_ context.Context, payloads []json.RawMessage, props map[string]any, _ *evaluator.Location) []json.RawMessage {
	e.result(evaluator.EventAppLaunched, props)
	return payloads
}

func (e *fakeEvaluator) CheckWhenLimits(*notification.Notification) bool { return true }

func (e *fakeEvaluator) RecordShown(_ context.Context, n *notification.Notification) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recorded = append(e.recorded, n.CampaignID)
}

// fakeSurface keeps what it shows so tests can dismiss or click it later.
type fakeSurface struct {
	mu        sync.Mutex
	err       error
	shown     []string
	callbacks map[string]Callbacks
}

func (s *fakeSurface) Show(_ context.Context, n *notification.Notification, _ SurfaceConfig, cb Callbacks) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	s.shown = append(s.shown, n.CampaignID)
	if s.callbacks == nil {
		s.callbacks = make(map[string]Callbacks)
	}
	s.callbacks[n.CampaignID] = cb
	s.mu.Unlock()

	cb.OnShow()
	return nil
}

func (s *fakeSurface) Shown() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.shown...)
}

func (s *fakeSurface) dismiss(campaignID string) {
	s.mu.Lock()
	cb := s.callbacks[campaignID]
	s.mu.Unlock()
	cb.OnDismiss(map[string]any{"rating": 5})
}

type countingPresenter struct {
	mu        sync.Mutex
	presented []string
	closed    int
}

func (p *countingPresenter) OnPresent(c *template.Context) error {
	p.mu.Lock()
	p.presented = append(p.presented, c.Notification.CampaignID)
	p.mu.Unlock()
	c.Shown()
	return nil
}

func (p *countingPresenter) OnClose(*template.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
}

func (p *countingPresenter) Presented() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.presented...)
}

type harness struct {
	ctrl      *Controller
	exec      *executor.Executor
	store     *store.Memory
	queue     *queue.Queue
	backlog   *Backlog
	gate      *fakeGate
	inflater  *fakeInflater
	host      *fakeHost
	listener  *recordingListener
	analytics *fakeAnalytics
	evaluator *fakeEvaluator
	surface   *fakeSurface
	templates *template.Registry
	visual    *countingPresenter
	invisible *countingPresenter
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	logger := zap.NewNop()

	exec := executor.New(executor.Config{Workers: 2}, logger)
	t.Cleanup(exec.Stop)

	h := &harness{
		exec:      exec,
		store:     store.NewMemory(),
		gate:      &fakeGate{reject: map[string]bool{}},
		inflater:  &fakeInflater{exec: exec, fail: map[string]string{}},
		host:      &fakeHost{fields: map[string]any{"App Version": "1.2.0"}},
		listener:  &recordingListener{veto: map[string]bool{}},
		analytics: &fakeAnalytics{},
		evaluator: &fakeEvaluator{},
		surface:   &fakeSurface{},
		templates: template.NewRegistry(logger),
		visual:    &countingPresenter{},
		invisible: &countingPresenter{},
	}
	require.NoError(t, h.templates.Register(&template.Template{Name: "Wheel", Visual: true, Presenter: h.visual}))
	require.NoError(t, h.templates.Register(&template.Template{Name: "Confetti", Presenter: h.invisible}))

	h.queue = queue.New(h.store, h.templates, logger)
	h.backlog = NewBacklog(h.store, logger)

	surfaces := NewSurfaceRegistry()
	for _, f := range []Family{FamilyHTMLFullScreen, FamilyHTMLOverlay, FamilyNativeFullScreen, FamilyNativeOverlay} {
		surfaces.RegisterFamily(f, h.surface)
	}

	if cfg.AccountID == "" {
		cfg.AccountID = "acct-test"
	}
	h.ctrl = New(Deps{
		Queue:     h.queue,
		Gate:      h.gate,
		Inflater:  h.inflater,
		Templates: h.templates,
		Host:      h.host,
		Listener:  h.listener,
		Analytics: h.analytics,
		Evaluator: h.evaluator,
		Counters:  h.store,
		Surfaces:  surfaces,
		Backlog:   h.backlog,
	}, exec, cfg, logger)
	return h
}

// add queues payloads and waits for the resulting display attempts.
func (h *harness) add(t *testing.T, payloads ...json.RawMessage) {
	t.Helper()
	require.NoError(t, h.ctrl.AddPayloads(context.Background(), payloads))
	h.exec.Wait()
}

func (h *harness) queued(t *testing.T) int {
	t.Helper()
	n, err := h.queue.Len(context.Background())
	require.NoError(t, err)
	return n
}

func (h *harness) dismiss(campaignID string) {
	h.surface.dismiss(campaignID)
	h.exec.Wait()
}

func cover(id string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"ti":%q,"wzrk_id":%q,"type":"cover","title":{"text":"hi"}}`, id, id))
}

func withTTL(id string, ttl int64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"ti":%q,"wzrk_id":%q,"type":"cover","wzrk_ttl":%d}`, id, id, ttl))
}

var errSurface = errors.New("surface unavailable")
