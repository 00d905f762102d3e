// Package surface holds the sandbox stand-ins for the host app: surfaces that
// render in-apps to the log, a settable device and a logging template
// presenter.
package surface

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/inapp"
	"github.com/lalithlochan/beacon/internal/notification"
)

var (
	ErrNothingShowing = errors.New("surface: no in-app showing")
	ErrBusy           = errors.New("surface: another in-app is showing")
	ErrNoButton       = errors.New("surface: no such button")
)

// Config holds log surface settings.
type Config struct {
	// AutoDismiss closes an in-app after this long. Zero keeps it up until
	// Dismiss is called.
	AutoDismiss time.Duration
}

type active struct {
	n     *notification.Notification
	cb    inapp.Callbacks
	timer *time.Timer
}

// Log renders in-apps as log lines and keeps the one on screen so the debug
// API can click or dismiss it.
type Log struct {
	mu      sync.Mutex
	current *active
	config  Config
	logger  *zap.Logger
}

var _ inapp.Surface = (*Log)(nil)

// NewLog creates a log surface.
func NewLog(cfg Config, logger *zap.Logger) *Log {
	return &Log{
		config: cfg,
		logger: logger,
	}
}

// Show implements inapp.Surface.
func (s *Log) Show(_ context.Context, n *notification.Notification, cfg inapp.SurfaceConfig, cb inapp.Callbacks) error {
	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return ErrBusy
	}
	a := &active{n: n, cb: cb}
	if s.config.AutoDismiss > 0 {
		a.timer = time.AfterFunc(s.config.AutoDismiss, func() {
			if err := s.dismiss(a, nil); err == nil {
				s.logger.Debug("in-app auto dismissed", zap.String("campaign_id", n.CampaignID))
			}
		})
	}
	s.current = a
	s.mu.Unlock()

	s.logger.Info("showing in-app",
		zap.String("account_id", cfg.AccountID),
		zap.String("family", string(cfg.Family)),
		zap.String("campaign_id", n.CampaignID),
		zap.String("inapp_type", n.InAppType.String()),
		zap.String("title", n.Title),
		zap.String("message", n.Message),
		zap.Int("buttons", len(n.Buttons)),
		zap.Bool("html", n.IsHTML()),
	)
	if cb.OnShow != nil {
		cb.OnShow()
	}
	return nil
}

// Active returns the in-app on screen, or nil.
func (s *Log) Active() *notification.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.current.n
}

// Dismiss closes the in-app on screen.
func (s *Log) Dismiss(formData map[string]any) error {
	s.mu.Lock()
	a := s.current
	s.mu.Unlock()
	if a == nil {
		return ErrNothingShowing
	}
	return s.dismiss(a, formData)
}

func (s *Log) dismiss(a *active, formData map[string]any) error {
	s.mu.Lock()
	if s.current != a {
		s.mu.Unlock()
		return ErrNothingShowing
	}
	s.current = nil
	if a.timer != nil {
		a.timer.Stop()
	}
	s.mu.Unlock()

	s.logger.Info("in-app dismissed", zap.String("campaign_id", a.n.CampaignID))
	if a.cb.OnDismiss != nil {
		a.cb.OnDismiss(formData)
	}
	return nil
}

// Click presses button index on the in-app on screen. A close action also
// dismisses it.
func (s *Log) Click(index int) (map[string]string, error) {
	s.mu.Lock()
	a := s.current
	s.mu.Unlock()
	if a == nil {
		return nil, ErrNothingShowing
	}
	if index < 0 || index >= len(a.n.Buttons) {
		return nil, ErrNoButton
	}

	b := a.n.Buttons[index]
	s.logger.Info("in-app button clicked",
		zap.String("campaign_id", a.n.CampaignID),
		zap.Int("index", index),
		zap.String("text", b.Text),
	)

	var result map[string]string
	if a.cb.OnAction != nil {
		result = a.cb.OnAction(b.Action, b.Text, nil)
	}
	if b.Action == nil || b.Action.Type == notification.ActionClose {
		// the action may already have closed it
		_ = s.dismiss(a, nil)
	}
	return result, nil
}
