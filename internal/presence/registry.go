// Package presence tracks which identities are currently reachable for
// live delivery and on which connection. The registry is process-local:
// it is rebuilt empty on restart, so every identity is offline at boot
// until it re-registers.
package presence

import "sync"

// Handle is a live delivery target. A websocket client satisfies it.
type Handle interface {
	Push(event interface{}) error
}

// Registry maps identities to their active delivery handle. At most one
// handle is kept per identity; a newer registration supersedes an older
// one (last-registration-wins).
type Registry struct {
	mu      sync.RWMutex
	handles map[string]Handle
}

func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[string]Handle),
	}
}

// Register binds identity to handle, overwriting any prior binding.
func (r *Registry) Register(identity string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[identity] = h
}

// Lookup returns the active handle for identity, if any.
func (r *Registry) Lookup(identity string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[identity]
	return h, ok
}

// Unregister removes the binding only if it still points at h, so a late
// unregister from a dying connection never evicts a newer registration
// for the same identity.
func (r *Registry) Unregister(identity string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.handles[identity]; ok && current == h {
		delete(r.handles, identity)
	}
}

// Count returns the number of identities currently online.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
