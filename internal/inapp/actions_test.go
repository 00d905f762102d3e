package inapp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lalithlochan/beacon/internal/notification"
)

func TestHandleAction_OpenURLSplitsDeepLink(t *testing.T) {
	h := newHarness(t, Config{})
	h.add(t, cover("a"))
	n := h.ctrl.Displaying()

	h.ctrl.HandleAction(context.Background(), n, &notification.Action{
		Type: notification.ActionOpenURL,
		URL:  "https://example.com/p?wzrk_c2a=Shop__dl__myapp://shop",
	}, "", nil)

	assert.Equal(t, []string{"myapp://shop"}, h.host.opened)
	assert.Equal(t, []string{"a:Shop"}, h.analytics.clicked)
}

func TestHandleAction_KeyValueNotifiesListener(t *testing.T) {
	h := newHarness(t, Config{})
	h.add(t, cover("a"))

	kv := map[string]string{"coupon": "SAVE10"}
	got := h.ctrl.HandleAction(context.Background(), h.ctrl.Displaying(), &notification.Action{
		Type:      notification.ActionKeyValue,
		KeyValues: kv,
	}, "Claim", nil)

	assert.Equal(t, kv, got)
	assert.Equal(t, []map[string]string{kv}, h.listener.clicks)
	assert.Equal(t, []string{"a:Claim"}, h.analytics.clicked)
}

func TestHandleAction_RequestPermission(t *testing.T) {
	h := newHarness(t, Config{})
	h.add(t, cover("a"))
	n := h.ctrl.Displaying()
	rfp := &notification.Action{Type: notification.ActionRequestPermission, FallbackToSettings: true}

	h.ctrl.HandleAction(context.Background(), n, rfp, "", nil)
	assert.Equal(t, []bool{true}, h.host.permRequest)

	h.host.set(func(h *fakeHost) { h.permission = true })
	h.ctrl.HandleAction(context.Background(), n, rfp, "", nil)
	assert.Len(t, h.host.permRequest, 1)
	assert.Equal(t, []bool{true}, h.listener.permission)
}

func TestHandleAction_NonVisualTemplateBypassesSlot(t *testing.T) {
	h := newHarness(t, Config{})
	h.add(t, cover("a"))
	n := h.ctrl.Displaying()

	h.ctrl.HandleAction(context.Background(), n, &notification.Action{
		Type:         notification.ActionCustomCode,
		TemplateData: &notification.TemplateData{TemplateName: "Confetti"},
	}, "Celebrate", nil)
	h.exec.Wait()

	assert.Equal(t, []string{"a"}, h.invisible.Presented())
	require.NotNil(t, h.ctrl.Displaying())
	assert.Equal(t, "a", h.ctrl.Displaying().CampaignID)
	assert.Equal(t, 0, h.backlog.Len())
	assert.Equal(t, 0, h.queued(t))
	assert.Equal(t, []string{"a", "a"}, h.analytics.viewed)
}

func TestHandleAction_VisualTemplateGoesToQueueFront(t *testing.T) {
	h := newHarness(t, Config{})
	h.add(t, cover("a"), cover("b"))
	n := h.ctrl.Displaying()

	h.ctrl.HandleAction(context.Background(), n, &notification.Action{
		Type:         notification.ActionCustomCode,
		TemplateData: &notification.TemplateData{TemplateName: "Wheel"},
	}, "", nil)
	h.exec.Wait()

	assert.Empty(t, h.visual.Presented())
	assert.Equal(t, 2, h.queued(t))

	h.dismiss("a")

	assert.Equal(t, []string{"a"}, h.visual.Presented())
	require.NotNil(t, h.ctrl.Displaying())
	assert.Equal(t, notification.InAppTypeCustomCode, h.ctrl.Displaying().InAppType)
	assert.Equal(t, 1, h.queued(t))
}

func TestHandleAction_CloseDismissesTemplate(t *testing.T) {
	h := newHarness(t, Config{})
	wheel := json.RawMessage(`{"wzrk_id":"w","type":"custom-code","templateName":"Wheel"}`)
	h.add(t, wheel, cover("b"))
	require.NotNil(t, h.ctrl.Displaying())
	assert.Equal(t, "w", h.ctrl.Displaying().CampaignID)

	h.ctrl.HandleAction(context.Background(), h.ctrl.Displaying(), nil, "", nil)
	h.exec.Wait()

	assert.Equal(t, 1, h.visual.closed)
	assert.Equal(t, []string{"w"}, h.listener.dismissed)
	assert.Equal(t, []string{"b"}, h.surface.Shown())
}

func TestSurfaceCallbacks_OnAction(t *testing.T) {
	h := newHarness(t, Config{})
	h.add(t, cover("a"))

	h.surface.mu.Lock()
	cb := h.surface.callbacks["a"]
	h.surface.mu.Unlock()

	got := cb.OnAction(&notification.Action{Type: notification.ActionKeyValue, KeyValues: map[string]string{"k": "v"}}, "Go", nil)

	assert.Equal(t, map[string]string{"k": "v"}, got)
	assert.Equal(t, []string{"a:Go"}, h.analytics.clicked)
}
