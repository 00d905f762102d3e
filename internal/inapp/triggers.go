package inapp

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"

	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/evaluator"
	"github.com/lalithlochan/beacon/internal/metrics"
)

// props merges the app launch fields under extra. Keys in extra win.
func (c *Controller) props(extra map[string]any) map[string]any {
	out := make(map[string]any)
	maps.Copy(out, c.deps.Host.AppLaunchFields())
	maps.Copy(out, extra)
	return out
}

// OnAppLaunch evaluates client-side in-apps for an app launch.
func (c *Controller) OnAppLaunch(ctx context.Context) error {
	eligible := c.deps.Evaluator.EvaluateOnAppLaunch(ctx, c.props(nil), c.deps.Host.Location())
	return c.enqueue(ctx, "app_launch", eligible)
}

// OnEvent evaluates client-side in-apps for a named event.
func (c *Controller) OnEvent(ctx context.Context, name string, props map[string]any) error {
	eligible := c.deps.Evaluator.EvaluateOnEvent(ctx, name, c.props(props), c.deps.Host.Location())
	return c.enqueue(ctx, "event", eligible)
}

// OnChargedEvent evaluates client-side in-apps for a purchase. Items are
// matched separately from the charge details.
func (c *Controller) OnChargedEvent(ctx context.Context, details map[string]any, items []map[string]any) error {
	eligible := c.deps.Evaluator.EvaluateOnChargedEvent(ctx, c.props(details), items, c.deps.Host.Location())
	return c.enqueue(ctx, "charged", eligible)
}

// OnProfileChange evaluates client-side in-apps for changed profile
// attributes.
func (c *Controller) OnProfileChange(ctx context.Context, changes map[string]evaluator.ProfileChange) error {
	extra := make(map[string]any, len(changes))
	for name, ch := range changes {
		extra[name] = map[string]any{
			evaluator.PropNewValue: ch.New,
			evaluator.PropOldValue: ch.Old,
		}
	}
	eligible := c.deps.Evaluator.EvaluateOnProfileChange(ctx, changes, c.props(extra), c.deps.Host.Location())
	return c.enqueue(ctx, "profile", eligible)
}

// OnAppLaunchServerSide runs the local pass over in-apps the server already
// selected for this launch.
func (c *Controller) OnAppLaunchServerSide(ctx context.Context, payloads []json.RawMessage) error {
	eligible := c.deps.Evaluator.EvaluateServerSideOnAppLaunch(ctx, payloads, c.props(nil), c.deps.Host.Location())
	return c.enqueue(ctx, "app_launch_server", eligible)
}

// AddPayloads queues in-apps pushed by the server as they are.
func (c *Controller) AddPayloads(ctx context.Context, payloads []json.RawMessage) error {
	return c.enqueue(ctx, "server", payloads)
}

func (c *Controller) enqueue(ctx context.Context, source string, payloads []json.RawMessage) error {
	if len(payloads) == 0 {
		return nil
	}
	added, err := c.deps.Queue.EnqueueAll(ctx, payloads)
	if err != nil {
		return fmt.Errorf("enqueue %s in-apps: %w", source, err)
	}
	metrics.RecordEnqueued(source, added)
	c.logger.Debug("in-apps enqueued",
		zap.String("source", source),
		zap.Int("eligible", len(payloads)),
		zap.Int("added", added),
	)
	if added > 0 {
		c.ShowNext(ctx)
	}
	return nil
}
