// Package registry maps control plane entity IDs to owning session IDs so
// inbound events, which carry only entity IDs, can be routed to the right
// session without the session polling.
package registry

import "sync"

// Registry is a concurrent entity-to-session index.
//
// Multiple sessions register and resolve concurrently; the lock is held only
// for the duration of the map operation, never across command calls.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]string   // entity ID -> session ID
	sessions map[string][]string // session ID -> entity IDs, for bulk release
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		entities: make(map[string]string),
		sessions: make(map[string][]string),
	}
}

// Register binds an entity ID to a session. Re-registering an entity moves
// it to the new session; the small entity set per session makes collisions
// a control plane bug rather than a normal case.
func (r *Registry) Register(entityID, sessionID string) {
	if entityID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities[entityID] = sessionID
	r.sessions[sessionID] = append(r.sessions[sessionID], entityID)
}

// Resolve returns the session owning the entity. The second return is false
// for IDs never registered or already unregistered; callers drop the event
// with a warning, never treat it as fatal.
func (r *Registry) Resolve(entityID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessionID, ok := r.entities[entityID]
	return sessionID, ok
}

// Unregister removes a single entity binding. Unknown IDs are ignored.
func (r *Registry) Unregister(entityID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessionID, ok := r.entities[entityID]
	if !ok {
		return
	}
	delete(r.entities, entityID)
	ids := r.sessions[sessionID]
	for i, id := range ids {
		if id == entityID {
			r.sessions[sessionID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(r.sessions[sessionID]) == 0 {
		delete(r.sessions, sessionID)
	}
}

// UnregisterSession removes every entity registered by the session.
// Called once during session teardown.
func (r *Registry) UnregisterSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entityID := range r.sessions[sessionID] {
		delete(r.entities, entityID)
	}
	delete(r.sessions, sessionID)
}

// Len returns the number of registered entities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}
