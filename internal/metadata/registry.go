package metadata

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TemplateLoader fetches a template with its screens and fields.
type TemplateLoader func(ctx context.Context, id string) (*Template, error)

type cachedTemplate struct {
	tmpl     *Template
	loadedAt time.Time
}

// Registry caches fully-loaded template configurations for form sessions.
// Returned templates are shared snapshots and must not be mutated.
// Admin mutations call Invalidate so the next session start sees the change.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]cachedTemplate
	gens      map[string]uint64 // bumped by Invalidate
	load      TemplateLoader
	group     singleflight.Group
	ttl       time.Duration
	now       func() time.Time
}

// NewRegistry creates a registry. A zero ttl caches until invalidated.
func NewRegistry(load TemplateLoader, ttl time.Duration, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		templates: make(map[string]cachedTemplate),
		gens:      make(map[string]uint64),
		load:      load,
		ttl:       ttl,
		now:       now,
	}
}

// GetTemplate returns the cached template, loading it on a miss. Concurrent
// misses for the same id share one load.
func (r *Registry) GetTemplate(ctx context.Context, id string) (*Template, error) {
	r.mu.RLock()
	c, ok := r.templates[id]
	r.mu.RUnlock()
	if ok && (r.ttl == 0 || r.now().Sub(c.loadedAt) < r.ttl) {
		return c.tmpl, nil
	}

	v, err, _ := r.group.Do(id, func() (any, error) {
		r.mu.RLock()
		gen := r.gens[id]
		r.mu.RUnlock()

		tmpl, err := r.load(ctx, id)
		if err != nil {
			return nil, err
		}
		tmpl.SortScreens()
		r.mu.Lock()
		// A load that raced an Invalidate may hold the old tree; serve it
		// to its own callers but do not cache it.
		if r.gens[id] == gen {
			r.templates[id] = cachedTemplate{tmpl: tmpl, loadedAt: r.now()}
		}
		r.mu.Unlock()
		return tmpl, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Template), nil
}

// Invalidate drops a cached template. Loads already in flight for id are
// not cached, and later callers do not join them.
func (r *Registry) Invalidate(id string) {
	r.mu.Lock()
	delete(r.templates, id)
	r.gens[id]++
	r.mu.Unlock()
	r.group.Forget(id)
}

// Len returns the number of cached templates.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.templates)
}
