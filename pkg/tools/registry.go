package tools

import (
	"log/slog"
	"sync"

	"cerebro-ai/cerebro/pkg/proxy/types"
)

// Registry holds tools registered out-of-band, keyed by base tenant.
// Registration replaces the tenant's whole set; reads return snapshot
// copies so callers never observe a concurrent mutation.
type Registry struct {
	mu      sync.RWMutex
	tenants map[string]*tenantTools
	logger  *slog.Logger
}

// tenantTools is one tenant's registered set with its own mutation
// lock, so updating one tenant never blocks another.
type tenantTools struct {
	mu    sync.Mutex
	tools map[string]*Registered
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tenants: make(map[string]*tenantTools),
		logger:  slog.Default().With("component", "tools.registry"),
	}
}

func (r *Registry) tenant(base string, create bool) *tenantTools {
	r.mu.RLock()
	tt, ok := r.tenants[base]
	r.mu.RUnlock()
	if ok || !create {
		return tt
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if tt, ok = r.tenants[base]; ok {
		return tt
	}
	tt = &tenantTools{tools: make(map[string]*Registered)}
	r.tenants[base] = tt
	return tt
}

// Register adds or replaces tools for a base tenant. Existing tools
// with the same name are overwritten; others are kept.
func (r *Registry) Register(base string, regs []Registered) {
	tt := r.tenant(base, true)
	tt.mu.Lock()
	defer tt.mu.Unlock()
	for i := range regs {
		reg := regs[i]
		name := reg.Name()
		if name == "" {
			r.logger.Warn("skipping tool registration without a name", "tenant", base)
			continue
		}
		tt.tools[name] = &reg
	}
	r.logger.Info("registered tenant tools", "tenant", base, "count", len(regs), "total", len(tt.tools))
}

// Replace swaps a tenant's entire tool set.
func (r *Registry) Replace(base string, regs []Registered) {
	tt := r.tenant(base, true)
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.tools = make(map[string]*Registered, len(regs))
	for i := range regs {
		reg := regs[i]
		if reg.Name() == "" {
			continue
		}
		tt.tools[reg.Name()] = &reg
	}
}

// Unregister removes named tools from a tenant. An empty names slice
// removes everything.
func (r *Registry) Unregister(base string, names []string) {
	tt := r.tenant(base, false)
	if tt == nil {
		return
	}
	tt.mu.Lock()
	defer tt.mu.Unlock()
	if len(names) == 0 {
		tt.tools = make(map[string]*Registered)
		return
	}
	for _, name := range names {
		delete(tt.tools, name)
	}
}

// Get returns a tenant's registered tool by name.
func (r *Registry) Get(base, name string) (*Registered, bool) {
	tt := r.tenant(base, false)
	if tt == nil {
		return nil, false
	}
	tt.mu.Lock()
	defer tt.mu.Unlock()
	reg, ok := tt.tools[name]
	return reg, ok
}

// List returns a snapshot of a tenant's registered tools.
func (r *Registry) List(base string) []Registered {
	tt := r.tenant(base, false)
	if tt == nil {
		return nil
	}
	tt.mu.Lock()
	defer tt.mu.Unlock()
	out := make([]Registered, 0, len(tt.tools))
	for _, reg := range tt.tools {
		out = append(out, *reg)
	}
	return out
}

// Definitions returns the OpenAI-shaped tool definitions for a tenant,
// for merging with per-request tools before the upstream call.
func (r *Registry) Definitions(base string) []types.Tool {
	regs := r.List(base)
	defs := make([]types.Tool, 0, len(regs))
	for _, reg := range regs {
		defs = append(defs, reg.Definition)
	}
	return defs
}

// MergeDefinitions combines request-supplied tools with the tenant's
// registered set. Request tools win on name collision.
func (r *Registry) MergeDefinitions(base string, requestTools []types.Tool) []types.Tool {
	seen := make(map[string]bool, len(requestTools))
	merged := make([]types.Tool, 0, len(requestTools))
	for _, t := range requestTools {
		merged = append(merged, t)
		seen[t.Function.Name] = true
	}
	for _, t := range r.Definitions(base) {
		if seen[t.Function.Name] {
			continue
		}
		merged = append(merged, t)
	}
	return merged
}
