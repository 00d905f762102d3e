package analytics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/notification"
)

// Pool runs background work.
type Pool interface {
	Go(task func()) bool
}

// Recorder turns in-app lifecycle calls into events and sends them on the
// pool so a slow sink never holds up display.
type Recorder struct {
	sink      Sink
	pool      Pool
	accountID string
	timeout   time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewRecorder creates a recorder.
func NewRecorder(sink Sink, pool Pool, accountID string, logger *zap.Logger) *Recorder {
	return &Recorder{
		sink:      sink,
		pool:      pool,
		accountID: accountID,
		timeout:   10 * time.Second,
		logger:    logger,
		now:       time.Now,
	}
}

// Viewed records that n was shown.
func (r *Recorder) Viewed(ctx context.Context, n *notification.Notification) {
	r.send(ctx, NewEvent(EventViewed, r.accountID, n, r.now()))
}

// Clicked records a click on n with the action's call to action and any
// extra key values.
func (r *Recorder) Clicked(ctx context.Context, n *notification.Notification, cta string, extras map[string]string) {
	e := NewEvent(EventClicked, r.accountID, n, r.now())
	e.CallToAction = cta
	e.Extras = extras
	r.send(ctx, e)
}

func (r *Recorder) send(ctx context.Context, e Event) {
	// events outlive the request that caused them
	ctx = context.WithoutCancel(ctx)
	r.pool.Go(func() {
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		if err := r.sink.Send(ctx, e); err != nil {
			r.logger.Warn("failed to send analytics event",
				zap.String("event", e.Name),
				zap.String("event_id", e.ID),
				zap.Error(err),
			)
		}
	})
}
