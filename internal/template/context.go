package template

import (
	"encoding/json"
	"sync"

	"github.com/lalithlochan/beacon/internal/notification"
)

// Context is handed to a Presenter for one presentation. It resolves
// argument values and reports the presentation's lifecycle back.
type Context struct {
	Notification *notification.Notification
	Template     *Template

	listener Listener
	registry *Registry

	once sync.Once
}

func (c *Context) arg(name string) (Arg, any) {
	var decl Arg
	for _, a := range c.Template.Args {
		if a.Name == name {
			decl = a
			break
		}
	}
	if td := c.Notification.CustomTemplateData; td != nil {
		if v, ok := td.Vars[name]; ok && v != nil {
			return decl, v
		}
	}
	return decl, decl.Default
}

// String returns a string argument or "".
func (c *Context) String(name string) string {
	_, v := c.arg(name)
	s, _ := v.(string)
	return s
}

// Bool returns a boolean argument or false.
func (c *Context) Bool(name string) bool {
	_, v := c.arg(name)
	b, _ := v.(bool)
	return b
}

// Number returns a numeric argument or 0.
func (c *Context) Number(name string) float64 {
	_, v := c.arg(name)
	switch n := v.(type) {
	case json.Number:
		f, _ := n.Float64()
		return f
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

// File returns the URL of a file argument. The inflation step has already
// fetched it before the presenter runs.
func (c *Context) File(name string) string {
	decl, v := c.arg(name)
	if decl.Type != ArgFile {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Shown reports that the template is now on screen.
func (c *Context) Shown() {
	if c.listener != nil {
		c.listener.OnTemplateShown(c.Notification)
	}
}

// Dismissed reports that the template finished. Only the first call counts.
func (c *Context) Dismissed() {
	c.once.Do(func() {
		c.registry.release(c.Template.Name, c)
		if c.listener != nil {
			c.listener.OnTemplateDismissed(c.Notification)
		}
	})
}
