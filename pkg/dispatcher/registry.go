package dispatcher

import (
	"sync"

	"github.com/morezero/component-runtime/pkg/service"
)

// Registry is the process-wide table of running dispatchers keyed by the
// source id stamped into the addresses they own. Connect events are routed
// to their target dispatcher through this table.
type Registry struct {
	mu         sync.RWMutex
	bySource   map[service.SourceID]*Dispatcher
	nextSource service.SourceID
}

// NewRegistry creates an empty dispatcher registry. Source ids start above
// SourceUnknown.
func NewRegistry() *Registry {
	return &Registry{
		bySource:   make(map[service.SourceID]*Dispatcher),
		nextSource: service.SourceUnknown + 1,
	}
}

// Attach registers a dispatcher and returns its freshly allocated source id.
func (r *Registry) Attach(d *Dispatcher) service.SourceID {
	r.mu.Lock()
	defer r.mu.Unlock()
	src := r.nextSource
	r.nextSource++
	r.bySource[src] = d
	return src
}

// Detach removes the dispatcher registered under src.
func (r *Registry) Detach(src service.SourceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bySource, src)
}

// Lookup returns the dispatcher owning src, or nil.
func (r *Registry) Lookup(src service.SourceID) *Dispatcher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bySource[src]
}

// Deliver posts ev to the dispatcher owning src. It returns false when no
// such dispatcher is attached or the event was rejected.
func (r *Registry) Deliver(src service.SourceID, ev Event) bool {
	d := r.Lookup(src)
	if d == nil {
		return false
	}
	return d.PostEvent(ev)
}
