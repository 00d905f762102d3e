package surface

import (
	"maps"
	"sync"

	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/evaluator"
	"github.com/lalithlochan/beacon/internal/inapp"
)

// DeviceConfig is the starting state of a Device.
type DeviceConfig struct {
	Foreground     bool
	Online         bool
	PushPermission bool
	Activity       string
	AppVersion     string
	OSVersion      string
	SDKVersion     int
}

// Device is a settable stand-in for the app and phone the engine runs on.
type Device struct {
	mu         sync.RWMutex
	foreground bool
	online     bool
	permission bool
	activity   string
	location   *evaluator.Location
	fields     map[string]any
	logger     *zap.Logger
}

var _ inapp.Host = (*Device)(nil)

// NewDevice creates a device in the state cfg describes.
func NewDevice(cfg DeviceConfig, logger *zap.Logger) *Device {
	return &Device{
		foreground: cfg.Foreground,
		online:     cfg.Online,
		permission: cfg.PushPermission,
		activity:   cfg.Activity,
		fields: map[string]any{
			"App Version": cfg.AppVersion,
			"OS Version":  cfg.OSVersion,
			"SDK Version": cfg.SDKVersion,
		},
		logger: logger,
	}
}

// DeviceState is a snapshot of a Device.
type DeviceState struct {
	Foreground     bool                `json:"foreground"`
	Online         bool                `json:"online"`
	PushPermission bool                `json:"push_permission"`
	Activity       string              `json:"activity"`
	Location       *evaluator.Location `json:"location,omitempty"`
}

// State returns the current device state.
func (d *Device) State() DeviceState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return DeviceState{
		Foreground:     d.foreground,
		Online:         d.online,
		PushPermission: d.permission,
		Activity:       d.activity,
		Location:       d.location,
	}
}

// Update applies the non-nil fields of u.
func (d *Device) Update(u DeviceUpdate) DeviceState {
	d.mu.Lock()
	if u.Foreground != nil {
		d.foreground = *u.Foreground
	}
	if u.Online != nil {
		d.online = *u.Online
	}
	if u.PushPermission != nil {
		d.permission = *u.PushPermission
	}
	if u.Activity != nil {
		d.activity = *u.Activity
	}
	if u.Location != nil {
		loc := *u.Location
		d.location = &loc
	}
	d.mu.Unlock()
	return d.State()
}

// DeviceUpdate changes some of a Device's state.
type DeviceUpdate struct {
	Foreground     *bool               `json:"foreground"`
	Online         *bool               `json:"online"`
	PushPermission *bool               `json:"push_permission"`
	Activity       *string             `json:"activity"`
	Location       *evaluator.Location `json:"location"`
}

func (d *Device) IsForeground() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.foreground
}

func (d *Device) CurrentActivity() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.activity
}

func (d *Device) IsOnline() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.online
}

func (d *Device) HasPushPermission() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.permission
}

// RequestPushPermission grants permission straight away.
func (d *Device) RequestPushPermission(fallbackToSettings bool) {
	d.mu.Lock()
	d.permission = true
	d.mu.Unlock()
	d.logger.Info("push permission granted", zap.Bool("fallback_to_settings", fallbackToSettings))
}

// OpenURL logs the URL the in-app asked to open.
func (d *Device) OpenURL(url string) error {
	d.logger.Info("opening url", zap.String("url", url))
	return nil
}

func (d *Device) AppLaunchFields() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return maps.Clone(d.fields)
}

func (d *Device) Location() *evaluator.Location {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.location == nil {
		return nil
	}
	loc := *d.location
	return &loc
}
