package registry

import "sync"

// Handle is the registry's view of a live client connection: something it can
// hand to the delivery path for writing. The owning session keeps the full
// connection; the registry never closes a handle.
type Handle interface {
	Send(message []byte) error
}

// Registry maps authenticated identities to their live connection handle.
// At most one entry exists per identity at any instant; a later registration
// for the same identity supersedes the earlier one.
//
// All methods are safe for unbounded concurrent callers. Mutations for a
// single identity are linearized by the mutex; operations on different
// identities only contend on the same lock for the duration of a map access.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Handle
}

func New() *Registry {
	return &Registry{
		entries: make(map[string]Handle),
	}
}

// Put registers handle under identity, unconditionally replacing any existing
// entry. Returns the superseded handle, or nil if the identity was offline.
func (r *Registry) Put(identity string, handle Handle) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.entries[identity]
	r.entries[identity] = handle
	return prev
}

// RemoveIfCurrent removes the entry for identity only if it still maps to
// handle. A stale session cleaning up after being superseded finds a
// different handle stored and leaves the newer registration intact.
// Returns whether an entry was removed.
func (r *Registry) RemoveIfCurrent(identity string, handle Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.entries[identity]; ok && current == handle {
		delete(r.entries, identity)
		return true
	}
	return false
}

// Get returns the live handle for identity, or nil if offline.
func (r *Registry) Get(identity string) Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[identity]
}

// Snapshot returns a point-in-time copy of all live handles. Registrations
// racing the snapshot may or may not be included; broadcast over the result
// is best-effort by design.
func (r *Registry) Snapshot() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := make([]Handle, 0, len(r.entries))
	for _, h := range r.entries {
		handles = append(handles, h)
	}
	return handles
}

// Len reports the number of live entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
