package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/executor"
	"github.com/lalithlochan/beacon/internal/notification"
)

type memorySink struct {
	mu     sync.Mutex
	name   string
	err    error
	events []Event
}

func (s *memorySink) Send(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *memorySink) Name() string { return s.name }

func testNotification(t *testing.T) *notification.Notification {
	t.Helper()
	n := notification.FromJSON([]byte(`{"ti":"n-1","wzrk_id":"c-1","type":"cover","wzrkParams":{"wzrk_pivot":"a"}}`), false)
	require.False(t, n.HasError(), n.Err())
	return n
}

func TestFanout_DeliversToEverySink(t *testing.T) {
	ok := &memorySink{name: "ok"}
	broken := &memorySink{name: "broken", err: errors.New("unavailable")}
	last := &memorySink{name: "last"}
	f := NewFanout(zap.NewNop(), ok, broken, last)

	err := f.Send(context.Background(), Event{ID: "e-1"})

	assert.ErrorContains(t, err, "broken: unavailable")
	assert.Len(t, ok.events, 1)
	assert.Len(t, last.events, 1)
}

func TestWebhookSink(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewWebhookSink(WebhookConfig{URL: srv.URL}, zap.NewNop())
	require.NoError(t, s.Send(context.Background(), Event{ID: "e-1", Name: EventViewed}))

	assert.Equal(t, "e-1", got.ID)
	assert.Equal(t, EventViewed, got.Name)
}

func TestWebhookSink_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewWebhookSink(WebhookConfig{URL: srv.URL}, zap.NewNop())

	assert.ErrorContains(t, s.Send(context.Background(), Event{}), "502")
}

func TestRecorder(t *testing.T) {
	ex := executor.New(executor.Config{Workers: 1}, zap.NewNop())
	defer ex.Stop()
	sink := &memorySink{name: "memory"}
	r := NewRecorder(sink, ex, "acct-1", zap.NewNop())
	n := testNotification(t)

	r.Viewed(context.Background(), n)
	r.Clicked(context.Background(), n, "Buy", map[string]string{"k": "v"})
	ex.Wait()

	require.Len(t, sink.events, 2)
	byName := map[string]Event{}
	for _, e := range sink.events {
		byName[e.Name] = e
	}
	viewed := byName[EventViewed]
	assert.Equal(t, "acct-1", viewed.AccountID)
	assert.Equal(t, "c-1", viewed.CampaignID)
	assert.Equal(t, "n-1", viewed.NotificationID)
	assert.Equal(t, "a", viewed.Params["wzrk_pivot"])
	assert.NotEmpty(t, viewed.ID)

	clicked := byName[EventClicked]
	assert.Equal(t, "Buy", clicked.CallToAction)
	assert.Equal(t, map[string]string{"k": "v"}, clicked.Extras)
}
