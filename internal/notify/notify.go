// Package notify delivers asynchronous events to sessions that are currently
// online. Delivery is best-effort: offline or slow receivers drop the event,
// the transaction log remains the durable record.
package notify

import "sync"

// Registry is the shared directory of online sessions, keyed by username.
// It never owns session shutdown; sessions deregister themselves.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]chan<- string
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]chan<- string)}
}

// Register associates a username with a session channel. A second login with
// the same name displaces the previous registration.
func (r *Registry) Register(username string, ch chan<- string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[username] = ch
}

// Unregister removes the association, but only if it still points at ch, so
// a displaced session cannot unregister its successor.
func (r *Registry) Unregister(username string, ch chan<- string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[username] == ch {
		delete(r.sessions, username)
	}
}

// Notify sends a line to the user's session without blocking. It reports
// whether the event was accepted.
func (r *Registry) Notify(username, line string) bool {
	r.mu.RLock()
	ch, ok := r.sessions[username]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	select {
	case ch <- line:
		return true
	default:
		// Slow receiver, drop rather than stall dispatch.
		return false
	}
}
