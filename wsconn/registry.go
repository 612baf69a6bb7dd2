package wsconn

import (
	"sync"

	"github.com/oarkflow/xid"
)

type registryEntry struct {
	id   string
	conn *Conn
}

// Registry tracks a server's accepted connections in acceptance order,
// guarded by a mutex so Add/Remove/Snapshot are safe to call from the
// per-connection goroutines an http.Server spawns.
type Registry struct {
	mu    sync.Mutex
	order []registryEntry
	index map[string]int
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Add registers c under a freshly generated connection ID and returns it.
func (r *Registry) Add(c *Conn) string {
	id := xid.New().String()
	r.mu.Lock()
	r.index[id] = len(r.order)
	r.order = append(r.order, registryEntry{id: id, conn: c})
	r.mu.Unlock()
	return id
}

// Remove unregisters the connection with the given ID, if still present.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[id]
	if !ok {
		return
	}
	delete(r.index, id)
	r.order = append(r.order[:i], r.order[i+1:]...)
	for j := i; j < len(r.order); j++ {
		r.index[r.order[j].id] = j
	}
}

// Get returns the connection registered under id, if any.
func (r *Registry) Get(id string) (*Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return r.order[i].conn, true
}

// Snapshot returns the currently registered connections in acceptance
// order. The returned slice is a copy, safe to iterate without holding the
// registry's lock.
func (r *Registry) Snapshot() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Conn, len(r.order))
	for i, e := range r.order {
		out[i] = e.conn
	}
	return out
}

// Len reports the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}
