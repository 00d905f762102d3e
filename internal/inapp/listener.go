package inapp

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/notification"
)

// The host listener is outside our control. A panicking callback is logged
// and treated as if no listener were set: BeforeShow allows display.

func (c *Controller) guard(hook string, n *notification.Notification) {
	if r := recover(); r != nil {
		fields := []zap.Field{
			zap.String("hook", hook),
			zap.String("panic", fmt.Sprint(r)),
		}
		if n != nil {
			fields = append(fields, zap.String("campaign_id", n.CampaignID))
		}
		c.logger.Error("in-app listener panicked", fields...)
	}
}

func (c *Controller) beforeShow(n *notification.Notification) (allow bool) {
	if c.deps.Listener == nil {
		return true
	}
	allow = true
	defer c.guard("before_show", n)
	return c.deps.Listener.BeforeShow(n)
}

func (c *Controller) onShow(n *notification.Notification) {
	if c.deps.Listener == nil {
		return
	}
	defer c.guard("on_show", n)
	c.deps.Listener.OnShow(n)
}

func (c *Controller) onDismissed(n *notification.Notification, formData map[string]any) {
	if c.deps.Listener == nil {
		return
	}
	defer c.guard("on_dismissed", n)
	c.deps.Listener.OnDismissed(n, formData)
}

func (c *Controller) onButtonClick(n *notification.Notification, kv map[string]string) {
	if c.deps.Listener == nil {
		return
	}
	defer c.guard("on_button_click", n)
	c.deps.Listener.OnButtonClick(n, kv)
}

func (c *Controller) onPushPermission(granted bool) {
	if c.deps.Listener == nil {
		return
	}
	defer c.guard("on_push_permission", nil)
	c.deps.Listener.OnPushPermission(granted)
}
