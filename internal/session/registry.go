package session

import (
	"github.com/homepin/mapsession/internal/provider"
	"github.com/homepin/mapsession/pkg/core"
)

type registration struct {
	marker   core.Handle
	listener core.ListenerHandle
}

// RegistryStats counts active listeners and every listener detached so far.
type RegistryStats struct {
	Active   int `json:"active"`
	Detached int `json:"detached"`
}

// ListenerRegistry holds the click listeners of non-home markers, in registration order.
// A listener is always removed from the provider before it leaves the registry.
type ListenerRegistry struct {
	provider provider.Provider
	entries  []registration
	detached int
}

// NewListenerRegistry creates an empty registry detaching through p.
func NewListenerRegistry(p provider.Provider) *ListenerRegistry {
	return &ListenerRegistry{provider: p}
}

// Add records l as the listener of marker. A previous listener of the same marker is detached.
func (r *ListenerRegistry) Add(marker core.Handle, l core.ListenerHandle) {
	r.Detach(marker)
	r.entries = append(r.entries, registration{marker: marker, listener: l})
}

// Detach removes the listener of marker, if any.
func (r *ListenerRegistry) Detach(marker core.Handle) bool {
	for i, e := range r.entries {
		if e.marker == marker {
			r.provider.RemoveListener(e.listener)
			r.detached++
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

// DetachAll removes every listener and clears the registry. It returns how many were detached.
func (r *ListenerRegistry) DetachAll() int {
	n := len(r.entries)
	for _, e := range r.entries {
		r.provider.RemoveListener(e.listener)
	}
	r.detached += n
	r.entries = nil
	return n
}

// Listener returns the listener registered for marker.
func (r *ListenerRegistry) Listener(marker core.Handle) (core.ListenerHandle, bool) {
	for _, e := range r.entries {
		if e.marker == marker {
			return e.listener, true
		}
	}
	return 0, false
}

// Len returns the number of active listeners.
func (r *ListenerRegistry) Len() int {
	return len(r.entries)
}

// Stats returns the registry counters.
func (r *ListenerRegistry) Stats() RegistryStats {
	return RegistryStats{Active: len(r.entries), Detached: r.detached}
}
