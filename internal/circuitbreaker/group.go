package circuitbreaker

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Group hands out one breaker per name, all built from the same template
// config.
type Group struct {
	mu       sync.Mutex
	template Config
	breakers map[string]*CircuitBreaker
	logger   *zap.Logger
}

// NewGroup creates a group. template.Name is ignored.
func NewGroup(template Config, logger *zap.Logger) *Group {
	return &Group{
		template: template,
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger,
	}
}

// Get returns the breaker for name, creating it on first use.
func (g *Group) Get(name string) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cb, ok := g.breakers[name]; ok {
		return cb
	}
	cfg := g.template
	cfg.Name = name
	cb := New(cfg, g.logger)
	g.breakers[name] = cb
	return cb
}

// Stats returns the stats of every breaker, sorted by name.
func (g *Group) Stats() []Stats {
	g.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(g.breakers))
	for _, cb := range g.breakers {
		breakers = append(breakers, cb)
	}
	g.mu.Unlock()

	out := make([]Stats, 0, len(breakers))
	for _, cb := range breakers {
		out = append(out, cb.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
