package inapp

import (
	"context"

	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/notification"
)

// HandleAction runs a button or link action on the in-app n. It records the
// click and returns the data handed back to the surface, if any.
func (c *Controller) HandleAction(ctx context.Context, n *notification.Notification, action *notification.Action, cta string, extras map[string]string) map[string]string {
	if action == nil {
		action = &notification.Action{Type: notification.ActionClose}
	}

	url := action.URL
	if action.Type == notification.ActionOpenURL && url != "" && cta == "" {
		parsed := notification.ParseActionURL(url, c.logger)
		url, cta = parsed.URL, parsed.CallToAction
	}

	c.deps.Analytics.Clicked(ctx, n, cta, extras)
	c.logger.Debug("in-app action",
		zap.String("campaign_id", n.CampaignID),
		zap.String("action", string(action.Type)),
		zap.String("cta", cta),
	)

	var result map[string]string
	switch action.Type {
	case notification.ActionClose:
		if n.InAppType == notification.InAppTypeCustomCode {
			c.deps.Templates.Close(n)
		}
	case notification.ActionOpenURL:
		if url == "" {
			break
		}
		if err := c.deps.Host.OpenURL(url); err != nil {
			c.logger.Warn("failed to open in-app url",
				zap.String("campaign_id", n.CampaignID),
				zap.String("url", url),
				zap.Error(err),
			)
		}
	case notification.ActionKeyValue:
		if len(action.KeyValues) > 0 {
			c.onButtonClick(n, action.KeyValues)
			result = action.KeyValues
		}
	case notification.ActionRequestPermission:
		if c.deps.Host.HasPushPermission() {
			c.onPushPermission(true)
			break
		}
		c.deps.Host.RequestPushPermission(action.FallbackToSettings)
	case notification.ActionCustomCode:
		c.invokeTemplate(ctx, n, action.TemplateData)
	}
	return result
}

// invokeTemplate presents the custom template an action names. Visual
// templates wait their turn at the front of the queue. Non-visual ones skip
// the queue and the display slot.
func (c *Controller) invokeTemplate(ctx context.Context, parent *notification.Notification, td *notification.TemplateData) {
	if td == nil {
		return
	}
	child := parent.ForAction(td)
	if child.HasError() {
		c.logger.Warn("failed to build action in-app",
			zap.String("campaign_id", parent.CampaignID),
			zap.String("error", child.Err()),
		)
		return
	}

	ctx = context.WithoutCancel(ctx)
	if c.deps.Templates.IsVisual(child) {
		added, err := c.deps.Queue.InsertInFront(ctx, child.Raw)
		if err != nil {
			c.logger.Error("failed to queue action in-app",
				zap.String("campaign_id", child.CampaignID),
				zap.Error(err),
			)
			return
		}
		if added {
			c.ShowNext(ctx)
		}
		return
	}

	c.exec.Go(func() {
		prepared := c.deps.Inflater.Prepare(ctx, child)
		if prepared.HasError() {
			c.logger.Info("action in-app not shown",
				zap.String("campaign_id", prepared.CampaignID),
				zap.String("error", prepared.Err()),
			)
			return
		}
		c.main.Post(func() { c.display(ctx, prepared, false) })
	})
}
