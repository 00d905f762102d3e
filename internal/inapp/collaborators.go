package inapp

import (
	"context"
	"encoding/json"

	"github.com/lalithlochan/beacon/internal/evaluator"
	"github.com/lalithlochan/beacon/internal/notification"
	"github.com/lalithlochan/beacon/internal/template"
)

// Queue is the persisted FIFO of raw payloads.
type Queue interface {
	EnqueueAll(ctx context.Context, payloads []json.RawMessage) (int, error)
	InsertInFront(ctx context.Context, payload json.RawMessage) (bool, error)
	Dequeue(ctx context.Context) (json.RawMessage, error)
	Len(ctx context.Context) (int, error)
}

// Gate applies frequency caps.
type Gate interface {
	CanShow(ctx context.Context, n *notification.Notification, whenLimits func(*notification.Notification) bool) bool
	DidShow(ctx context.Context, n *notification.Notification)
}

// Inflater parses payloads and fetches what they render.
type Inflater interface {
	Inflate(ctx context.Context, raw json.RawMessage, done func(*notification.Notification))
	Prepare(ctx context.Context, n *notification.Notification) *notification.Notification
}

// Templates presents custom-code in-apps.
type Templates interface {
	IsVisual(n *notification.Notification) bool
	Present(n *notification.Notification, l template.Listener) error
	Close(n *notification.Notification)
}

// Host is the app the engine runs in.
type Host interface {
	IsForeground() bool
	CurrentActivity() string
	IsOnline() bool
	HasPushPermission() bool
	RequestPushPermission(fallbackToSettings bool)
	OpenURL(url string) error
	AppLaunchFields() map[string]any
	Location() *evaluator.Location
}

// Listener is the host app's view of in-app lifecycle. Every method is
// optional in effect: a panicking listener is treated as absent.
type Listener interface {
	BeforeShow(n *notification.Notification) bool
	OnShow(n *notification.Notification)
	OnDismissed(n *notification.Notification, formData map[string]any)
	OnButtonClick(n *notification.Notification, kv map[string]string)
	OnPushPermission(granted bool)
}

// NopListener allows everything and ignores every event. Embed it to
// implement only some Listener methods.
type NopListener struct{}

func (NopListener) BeforeShow(*notification.Notification) bool                  { return true }
func (NopListener) OnShow(*notification.Notification)                           {}
func (NopListener) OnDismissed(*notification.Notification, map[string]any)      {}
func (NopListener) OnButtonClick(*notification.Notification, map[string]string) {}
func (NopListener) OnPushPermission(bool)                                       {}

// Analytics records in-app events.
type Analytics interface {
	Viewed(ctx context.Context, n *notification.Notification)
	Clicked(ctx context.Context, n *notification.Notification, cta string, extras map[string]string)
}

// Evaluator decides which payloads a trigger makes eligible.
type Evaluator interface {
	EvaluateOnAppLaunch(ctx context.Context, props map[string]any, loc *evaluator.Location) []json.RawMessage
	EvaluateOnEvent(ctx context.Context, name string, props map[string]any, loc *evaluator.Location) []json.RawMessage
	EvaluateOnChargedEvent(ctx context.Context, details map[string]any, items []map[string]any, loc *evaluator.Location) []json.RawMessage
	EvaluateOnProfileChange(ctx context.Context, changes map[string]evaluator.ProfileChange, props map[string]any, loc *evaluator.Location) []json.RawMessage
	EvaluateServerSideOnAppLaunch(ctx context.Context, payloads []json.RawMessage, props map[string]any, loc *evaluator.Location) []json.RawMessage
	CheckWhenLimits(n *notification.Notification) bool
	RecordShown(ctx context.Context, n *notification.Notification)
}

// Counters are persisted integers.
type Counters interface {
	GetInt(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string) (int64, error)
}
