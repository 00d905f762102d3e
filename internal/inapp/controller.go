// Package inapp decides when in-app messages show. The Controller owns the
// display slot, drains the pending backlog before the queue, applies
// frequency caps and display preconditions, and hands each in-app to the
// surface registered for its type.
package inapp

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/executor"
	"github.com/lalithlochan/beacon/internal/metrics"
	"github.com/lalithlochan/beacon/internal/notification"
	"github.com/lalithlochan/beacon/internal/queue"
)

// LocalCountKey counts displays of device-originated in-apps.
const LocalCountKey = "inapp:local_count"

// Config holds controller settings.
type Config struct {
	AccountID          string
	ExcludedActivities []string
}

// Deps are the controller's collaborators. Listener may be nil.
type Deps struct {
	Queue     Queue
	Gate      Gate
	Inflater  Inflater
	Templates Templates
	Host      Host
	Listener  Listener
	Analytics Analytics
	Evaluator Evaluator
	Counters  Counters
	Surfaces  *SurfaceRegistry
	Backlog   *Backlog
}

// Dismissed reports that a surface closed an in-app.
type Dismissed struct {
	NotificationID string
	CampaignID     string
	FormData       map[string]any
}

// Controller runs display attempts one at a time on its own lane.
type Controller struct {
	deps   Deps
	config Config
	logger *zap.Logger
	now    func() time.Time

	exec  *executor.Executor
	lane  *executor.Lane
	main  *executor.Lane
	slot  *slot
	state stateHolder
}

// New creates a controller. Each account gets its own lane, so controllers
// for different accounts never block each other.
func New(deps Deps, exec *executor.Executor, cfg Config, logger *zap.Logger) *Controller {
	if deps.Surfaces == nil {
		deps.Surfaces = NewSurfaceRegistry()
	}
	deps.Surfaces.registerDefault(notification.InAppTypeCustomCode, &templateSurface{templates: deps.Templates})

	return &Controller{
		deps:   deps,
		config: cfg,
		logger: logger.With(zap.String("account_id", cfg.AccountID)),
		now:    time.Now,
		exec:   exec,
		lane:   exec.Lane("inapp:" + cfg.AccountID),
		main:   exec.Main(),
		slot:   &slot{},
	}
}

// State returns the lifecycle state.
func (c *Controller) State() State { return c.state.load() }

// Suspend stops display attempts until Resume.
func (c *Controller) Suspend() {
	c.setState(StateSuspended)
}

// Discard makes display attempts drop what they dequeue.
func (c *Controller) Discard() {
	c.setState(StateDiscarded)
}

// Resume restores normal operation and tries to show the next in-app.
func (c *Controller) Resume(ctx context.Context) {
	c.setState(StateResumed)
	c.ShowNext(ctx)
}

func (c *Controller) setState(s State) {
	prev := c.state.swap(s)
	if prev != s {
		c.logger.Info("in-app state changed",
			zap.String("from", prev.String()),
			zap.String("to", s.String()),
		)
	}
}

// Displaying returns the in-app on screen, or nil.
func (c *Controller) Displaying() *notification.Notification {
	return c.slot.get()
}

// ShowNext schedules a display attempt.
func (c *Controller) ShowNext(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	c.lane.Post(func() { c.showNext(ctx) })
}

// showNext runs on the lane.
func (c *Controller) showNext(ctx context.Context) {
	if c.excludedActivity() {
		c.logger.Debug("activity excluded, not showing in-apps",
			zap.String("activity", c.deps.Host.CurrentActivity()))
		return
	}
	if c.State() == StateSuspended {
		c.logger.Debug("in-apps suspended, queue kept")
		return
	}
	if !c.slot.begin() {
		c.logger.Debug("in-app showing or attempt in progress")
		return
	}

	if n := c.deps.Backlog.Pop(ctx); n != nil {
		c.logger.Debug("retrying deferred in-app", zap.String("campaign_id", n.CampaignID))
		c.checkGate(ctx, n)
		return
	}

	raw, err := c.deps.Queue.Dequeue(ctx)
	if errors.Is(err, queue.ErrEmpty) {
		c.slot.end()
		return
	}
	if err != nil {
		c.logger.Error("failed to dequeue in-app", zap.Error(err))
		c.slot.end()
		return
	}

	if c.State() == StateDiscarded {
		c.logger.Debug("in-apps discarded, dropping payload")
		metrics.RecordDropped("discarded")
		c.advance(ctx)
		return
	}

	c.deps.Inflater.Inflate(ctx, raw, func(n *notification.Notification) {
		c.lane.Post(func() { c.onInflated(ctx, n) })
	})
}

func (c *Controller) onInflated(ctx context.Context, n *notification.Notification) {
	if n.HasError() {
		c.logger.Info("in-app not shown",
			zap.String("campaign_id", n.CampaignID),
			zap.String("error", n.Err()),
		)
		metrics.RecordDropped("inflation")
		c.advance(ctx)
		return
	}
	c.checkGate(ctx, n)
}

// checkGate asks the frequency caps off the lane, then displays on the main
// lane. A rejection moves straight on to the next in-app.
func (c *Controller) checkGate(ctx context.Context, n *notification.Notification) {
	c.exec.Go(func() {
		if !c.deps.Gate.CanShow(ctx, n, c.deps.Evaluator.CheckWhenLimits) {
			c.logger.Debug("in-app rejected by caps", zap.String("campaign_id", n.CampaignID))
			c.advance(ctx)
			return
		}
		c.main.Post(func() { c.display(ctx, n, true) })
	})
}

// advance finishes the running attempt and schedules the next one.
func (c *Controller) advance(ctx context.Context) {
	c.slot.end()
	c.ShowNext(ctx)
}

// deferToBacklog parks n in the backlog and finishes the running attempt
// without starting another.
func (c *Controller) deferToBacklog(ctx context.Context, n *notification.Notification, reason string, attempt bool) {
	c.logger.Debug("in-app deferred",
		zap.String("campaign_id", n.CampaignID),
		zap.String("reason", reason),
	)
	metrics.RecordDeferred(reason)
	c.deps.Backlog.Push(ctx, n)
	if attempt {
		c.slot.end()
	}
}

func (c *Controller) drop(ctx context.Context, n *notification.Notification, reason string, attempt bool) {
	c.logger.Debug("in-app dropped",
		zap.String("campaign_id", n.CampaignID),
		zap.String("reason", reason),
	)
	metrics.RecordDropped(reason)
	if attempt {
		c.advance(ctx)
	}
}

// display runs on the main lane. attempt is true when n came from a display
// attempt that still holds the slot marker.
func (c *Controller) display(ctx context.Context, n *notification.Notification, attempt bool) {
	if n.InAppType == notification.InAppTypeCustomCode && !c.deps.Templates.IsVisual(n) {
		c.presentNonVisual(ctx, n)
		if attempt {
			c.advance(ctx)
		}
		return
	}

	if !c.beforeShow(n) {
		c.drop(ctx, n, "vetoed", attempt)
		return
	}
	if !c.deps.Host.IsForeground() {
		c.deferToBacklog(ctx, n, "background", attempt)
		return
	}
	if c.slot.busy() {
		c.deferToBacklog(ctx, n, "busy", attempt)
		return
	}
	if c.excludedActivity() {
		c.deferToBacklog(ctx, n, "excluded_activity", attempt)
		return
	}
	if n.Expired(c.now()) {
		c.drop(ctx, n, "expired", attempt)
		return
	}
	if n.IsHTML() && !c.deps.Host.IsOnline() {
		c.drop(ctx, n, "offline", attempt)
		return
	}
	if n.IsPushPrimer() && c.deps.Host.HasPushPermission() {
		c.onPushPermission(true)
		c.drop(ctx, n, "permission_granted", attempt)
		return
	}

	surface := c.deps.Surfaces.Lookup(n.InAppType)
	if surface == nil {
		c.logger.Warn("no surface for in-app type",
			zap.String("campaign_id", n.CampaignID),
			zap.String("inapp_type", n.InAppType.String()),
		)
		c.drop(ctx, n, "unknown_type", attempt)
		return
	}

	if !c.slot.occupy(n) {
		c.deferToBacklog(ctx, n, "busy", attempt)
		return
	}

	if n.IsLocalInApp {
		if _, err := c.deps.Counters.Incr(ctx, LocalCountKey); err != nil {
			c.logger.Warn("failed to count local in-app", zap.Error(err))
		}
	}

	cfg := SurfaceConfig{AccountID: c.config.AccountID, Family: FamilyOf(n.InAppType)}
	if err := surface.Show(ctx, n, cfg, c.callbacks(ctx, n)); err != nil {
		c.logger.Error("surface failed to show in-app",
			zap.String("campaign_id", n.CampaignID),
			zap.String("inapp_type", n.InAppType.String()),
			zap.Error(err),
		)
		metrics.RecordDropped("surface_error")
		c.slot.release(n.CampaignID)
		c.ShowNext(ctx)
		return
	}

	metrics.RecordDisplayed(n.InAppType.String())
	c.logger.Info("in-app displayed",
		zap.String("campaign_id", n.CampaignID),
		zap.String("notification_id", n.ID),
		zap.String("inapp_type", n.InAppType.String()),
	)
}

func (c *Controller) callbacks(ctx context.Context, n *notification.Notification) Callbacks {
	return Callbacks{
		OnShow: func() { c.didShow(ctx, n) },
		OnDismiss: func(formData map[string]any) {
			c.Dismiss(ctx, Dismissed{NotificationID: n.ID, CampaignID: n.CampaignID, FormData: formData})
		},
		OnAction: func(action *notification.Action, cta string, extras map[string]string) map[string]string {
			return c.HandleAction(ctx, n, action, cta, extras)
		},
	}
}

// didShow counts a display once the surface reports it on screen.
func (c *Controller) didShow(ctx context.Context, n *notification.Notification) {
	c.deps.Gate.DidShow(ctx, n)
	c.deps.Evaluator.RecordShown(ctx, n)
	c.deps.Analytics.Viewed(ctx, n)
	c.onShow(n)
}

// presentNonVisual runs a custom template that does not take the screen.
func (c *Controller) presentNonVisual(ctx context.Context, n *notification.Notification) {
	if err := c.deps.Templates.Present(n, &nonVisualListener{c: c, ctx: ctx}); err != nil {
		c.logger.Warn("failed to present custom template",
			zap.String("campaign_id", n.CampaignID),
			zap.Error(err),
		)
		metrics.RecordDropped("template_error")
		return
	}
	metrics.RecordDisplayed(n.InAppType.String())
}

type nonVisualListener struct {
	c   *Controller
	ctx context.Context
}

func (l *nonVisualListener) OnTemplateShown(n *notification.Notification) {
	l.c.didShow(l.ctx, n)
}

func (l *nonVisualListener) OnTemplateDismissed(n *notification.Notification) {
	l.c.onDismissed(n, nil)
}

// Dismiss reports that a surface closed an in-app. The slot is cleared only
// when d names the campaign on screen; either way the next in-app is tried.
func (c *Controller) Dismiss(ctx context.Context, d Dismissed) {
	ctx = context.WithoutCancel(ctx)
	c.lane.Post(func() { c.handleDismissed(ctx, d) })
}

func (c *Controller) handleDismissed(ctx context.Context, d Dismissed) {
	n, matched := c.slot.release(d.CampaignID)
	metrics.RecordDismissed(matched)
	if !matched {
		current := ""
		if n != nil {
			current = n.CampaignID
		}
		c.logger.Debug("ignoring dismissal of in-app not on screen",
			zap.String("campaign_id", d.CampaignID),
			zap.String("displaying", current),
		)
	} else {
		c.logger.Debug("in-app dismissed", zap.String("campaign_id", d.CampaignID))
		c.onDismissed(n, d.FormData)
	}
	c.showNext(ctx)
}

func (c *Controller) excludedActivity() bool {
	if len(c.config.ExcludedActivities) == 0 {
		return false
	}
	return slices.Contains(c.config.ExcludedActivities, c.deps.Host.CurrentActivity())
}

// Status is a snapshot of the controller.
type Status struct {
	State      State
	Displaying *notification.Notification
	Backlog    int
	Queued     int
}

// Status reports the current state.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	queued, err := c.deps.Queue.Len(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		State:      c.State(),
		Displaying: c.slot.get(),
		Backlog:    c.deps.Backlog.Len(),
		Queued:     queued,
	}, nil
}
