package inapp

import (
	"context"
	"sync"

	"github.com/lalithlochan/beacon/internal/notification"
	"github.com/lalithlochan/beacon/internal/template"
)

// Family groups the in-app types one kind of surface renders.
type Family string

const (
	FamilyHTMLFullScreen   Family = "html_fullscreen"
	FamilyHTMLOverlay      Family = "html_overlay"
	FamilyNativeFullScreen Family = "native_fullscreen"
	FamilyNativeOverlay    Family = "native_overlay"
	FamilyCustomCode       Family = "custom_code"
)

var families = map[notification.InAppType]Family{
	notification.InAppTypeHTML:                      FamilyHTMLFullScreen,
	notification.InAppTypeCoverHTML:                 FamilyHTMLFullScreen,
	notification.InAppTypeInterstitialHTML:          FamilyHTMLFullScreen,
	notification.InAppTypeHalfInterstitialHTML:      FamilyHTMLFullScreen,
	notification.InAppTypeHeaderHTML:                FamilyHTMLOverlay,
	notification.InAppTypeFooterHTML:                FamilyHTMLOverlay,
	notification.InAppTypeCover:                     FamilyNativeFullScreen,
	notification.InAppTypeInterstitial:              FamilyNativeFullScreen,
	notification.InAppTypeHalfInterstitial:          FamilyNativeFullScreen,
	notification.InAppTypeAlert:                     FamilyNativeFullScreen,
	notification.InAppTypeCoverImageOnly:            FamilyNativeFullScreen,
	notification.InAppTypeInterstitialImageOnly:     FamilyNativeFullScreen,
	notification.InAppTypeHalfInterstitialImageOnly: FamilyNativeFullScreen,
	notification.InAppTypeHeader:                    FamilyNativeOverlay,
	notification.InAppTypeFooter:                    FamilyNativeOverlay,
	notification.InAppTypeCustomCode:                FamilyCustomCode,
}

// FamilyOf returns the family of t, or "" for unknown types.
func FamilyOf(t notification.InAppType) Family {
	return families[t]
}

// SurfaceConfig tells a surface about the account it renders for.
type SurfaceConfig struct {
	AccountID string
	Family    Family
}

// Callbacks report what happens on a surface back to the controller. They
// may be called from any goroutine.
type Callbacks struct {
	OnShow    func()
	OnDismiss func(formData map[string]any)
	OnAction  func(action *notification.Action, cta string, extras map[string]string) map[string]string
}

// Surface renders in-apps. Show returns once rendering has started; the
// surface owns the in-app until it calls OnDismiss.
type Surface interface {
	Show(ctx context.Context, n *notification.Notification, cfg SurfaceConfig, cb Callbacks) error
}

// SurfaceRegistry maps in-app types to the surface that renders them.
type SurfaceRegistry struct {
	mu       sync.RWMutex
	surfaces map[notification.InAppType]Surface
}

func NewSurfaceRegistry() *SurfaceRegistry {
	return &SurfaceRegistry{surfaces: make(map[notification.InAppType]Surface)}
}

// Register sets the surface for one type.
func (r *SurfaceRegistry) Register(t notification.InAppType, s Surface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surfaces[t] = s
}

// RegisterFamily sets the surface for every type in f.
func (r *SurfaceRegistry) RegisterFamily(f Family, s Surface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for t, fam := range families {
		if fam == f {
			r.surfaces[t] = s
		}
	}
}

// Lookup returns the surface for t, or nil.
func (r *SurfaceRegistry) Lookup(t notification.InAppType) Surface {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.surfaces[t]
}

func (r *SurfaceRegistry) registerDefault(t notification.InAppType, s Surface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.surfaces[t]; !ok {
		r.surfaces[t] = s
	}
}

// templateSurface shows visual custom templates through the template
// registry.
type templateSurface struct {
	templates Templates
}

func (s *templateSurface) Show(_ context.Context, n *notification.Notification, _ SurfaceConfig, cb Callbacks) error {
	return s.templates.Present(n, templateCallbacks{cb})
}

// templateCallbacks adapts surface callbacks to template lifecycle events.
type templateCallbacks struct {
	cb Callbacks
}

var _ template.Listener = templateCallbacks{}

func (t templateCallbacks) OnTemplateShown(*notification.Notification) {
	if t.cb.OnShow != nil {
		t.cb.OnShow()
	}
}

func (t templateCallbacks) OnTemplateDismissed(*notification.Notification) {
	if t.cb.OnDismiss != nil {
		t.cb.OnDismiss(nil)
	}
}
