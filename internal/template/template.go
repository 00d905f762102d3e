// Package template holds the custom templates the host registers. A payload
// of type custom-code names one of them, and the registry presents it in
// place of a built-in surface.
package template

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/notification"
)

var (
	ErrNotRegistered = errors.New("template not registered")
	ErrDuplicate     = errors.New("template already registered")
	ErrNoTemplate    = errors.New("notification has no template data")
)

// ArgType is the declared type of a template argument.
type ArgType string

const (
	ArgString  ArgType = "string"
	ArgNumber  ArgType = "number"
	ArgBoolean ArgType = "boolean"
	ArgFile    ArgType = "file"
	ArgMap     ArgType = "map"
)

// Arg declares one argument a template accepts.
type Arg struct {
	Name    string
	Type    ArgType
	Default any
}

// Presenter renders a template. OnPresent is called with a fresh Context
// each time a notification for the template is shown.
type Presenter interface {
	OnPresent(c *Context) error
	OnClose(c *Context)
}

// Template is one registered custom template. Non-visual templates run code
// without occupying the screen and never take the display slot.
type Template struct {
	Name      string
	Visual    bool
	Args      []Arg
	Presenter Presenter
}

// Listener receives the lifecycle of a presented template.
type Listener interface {
	OnTemplateShown(n *notification.Notification)
	OnTemplateDismissed(n *notification.Notification)
}

// Registry maps template names to templates and tracks which are on screen.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*Template
	active    map[string]*Context
	logger    *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		templates: make(map[string]*Template),
		active:    make(map[string]*Context),
		logger:    logger,
	}
}

// Register adds t. Names are unique.
func (r *Registry) Register(t *Template) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("register template: name required")
	}
	if t.Presenter == nil {
		return fmt.Errorf("register template %q: presenter required", t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.templates[t.Name]; ok {
		return fmt.Errorf("register template %q: %w", t.Name, ErrDuplicate)
	}
	r.templates[t.Name] = t

	r.logger.Info("custom template registered",
		zap.String("template", t.Name),
		zap.Bool("visual", t.Visual),
		zap.Int("args", len(t.Args)),
	)
	return nil
}

// IsRegistered reports whether a template with name exists.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.templates[name]
	return ok
}

// Template returns the template called name, or nil.
func (r *Registry) Template(name string) *Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.templates[name]
}

// IsVisual reports whether the template behind n occupies the screen.
// Unknown templates count as visual so they go through the full pipeline.
func (r *Registry) IsVisual(n *notification.Notification) bool {
	if n.CustomTemplateData == nil {
		return true
	}
	t := r.Template(n.CustomTemplateData.TemplateName)
	return t == nil || t.Visual
}

// FileURLs lists the values of every file argument of n's template, in
// declaration order. Arguments without a value are skipped.
func (r *Registry) FileURLs(n *notification.Notification) []string {
	if n.CustomTemplateData == nil {
		return nil
	}
	t := r.Template(n.CustomTemplateData.TemplateName)
	if t == nil {
		return nil
	}

	var urls []string
	for _, arg := range t.Args {
		if arg.Type != ArgFile {
			continue
		}
		if url, ok := n.CustomTemplateData.Vars[arg.Name].(string); ok && url != "" {
			urls = append(urls, url)
		}
	}
	return urls
}

// Present shows n through its template's presenter.
func (r *Registry) Present(n *notification.Notification, l Listener) error {
	if n.CustomTemplateData == nil {
		return ErrNoTemplate
	}
	name := n.CustomTemplateData.TemplateName
	t := r.Template(name)
	if t == nil {
		return fmt.Errorf("present %q: %w", name, ErrNotRegistered)
	}

	c := &Context{
		Notification: n,
		Template:     t,
		listener:     l,
		registry:     r,
	}

	r.mu.Lock()
	r.active[name] = c
	r.mu.Unlock()

	if err := t.Presenter.OnPresent(c); err != nil {
		r.release(name, c)
		return fmt.Errorf("present %q: %w", name, err)
	}

	r.logger.Debug("custom template presented",
		zap.String("template", name),
		zap.String("campaign_id", n.CampaignID),
		zap.Bool("is_action", n.CustomTemplateData.IsAction),
	)
	return nil
}

// Close asks the presenter showing n's template to close it.
func (r *Registry) Close(n *notification.Notification) {
	if n.CustomTemplateData == nil {
		return
	}
	name := n.CustomTemplateData.TemplateName

	r.mu.RLock()
	c := r.active[name]
	r.mu.RUnlock()
	if c == nil {
		return
	}

	c.Template.Presenter.OnClose(c)
	c.Dismissed()
}

func (r *Registry) release(name string, c *Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[name] == c {
		delete(r.active, name)
	}
}
