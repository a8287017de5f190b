// Package registry maps participant identities to their live connection.
package registry

import (
	"slices"
	"sync"

	"github.com/matheus3301/dmsync/internal/bus"
	"github.com/matheus3301/dmsync/internal/model"
)

// Conn is a live bidirectional channel to one participant.
type Conn interface {
	// Send queues an event for delivery. It must not block on the network.
	Send(evt model.Event) error
	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// Registry holds at most one connection per identity; the most recent
// registration wins.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
	ids   map[Conn]string
	bus   *bus.Bus
}

// New creates an empty registry. Presence changes are published on b as
// bus.KindPresenceChanged with a []string snapshot; b may be nil.
func New(b *bus.Bus) *Registry {
	return &Registry{
		conns: make(map[string]Conn),
		ids:   make(map[Conn]string),
		bus:   b,
	}
}

// Register binds id to conn and returns the handle it replaced, if any.
// The caller owns closing the replaced handle.
func (r *Registry) Register(id string, conn Conn) (replaced Conn) {
	r.mu.Lock()
	prev, had := r.conns[id]
	if had {
		delete(r.ids, prev)
	}
	r.conns[id] = conn
	r.ids[conn] = id
	snap := r.snapshotLocked()
	r.mu.Unlock()

	if !had {
		r.publish(snap)
	}
	return prev
}

// Lookup returns the live connection for id.
func (r *Registry) Lookup(id string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// Unregister removes the entry whose handle is conn. A handle that was
// already replaced by a newer registration leaves the entry untouched.
// Returns whether an entry was removed.
func (r *Registry) Unregister(conn Conn) bool {
	r.mu.Lock()
	id, ok := r.ids[conn]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.ids, conn)
	delete(r.conns, id)
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.publish(snap)
	return true
}

// Online returns a sorted snapshot of the connected identities.
func (r *Registry) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Len returns the number of connected identities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes every registered connection. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	conns := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

func (r *Registry) snapshotLocked() []string {
	out := make([]string, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (r *Registry) publish(online []string) {
	r.bus.Publish(bus.Event{Kind: bus.KindPresenceChanged, Payload: online})
}
