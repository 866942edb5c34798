// Package peers keeps one Connection per remote participant.
package peers

import (
	"sync"
	"time"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/rs/zerolog/log"
)

// Info is a read-only view of a Connection.
type Info struct {
	RemoteID  domain.SessionID
	Direction domain.Direction
	Status    domain.ConnStatus
	CreatedAt time.Time
}

type Registry struct {
	mu       sync.RWMutex
	conns    map[domain.SessionID]*Connection
	onClosed []func(*Connection)
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.SessionID]*Connection)}
}

// OnClosed adds an observer run after a connection leaves the registry.
func (r *Registry) OnClosed(fn func(*Connection)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onClosed = append(r.onClosed, fn)
}

// Upsert returns the existing connection for remote, or creates a Pending one.
// The requested direction is ignored when an entry exists: first writer wins.
func (r *Registry) Upsert(remote domain.SessionID, dir domain.Direction) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[remote]; ok {
		return c, false
	}
	c := newConnection(remote, dir)
	r.conns[remote] = c
	log.Debug().Str("module", "app.peers").Str("remote", string(remote)).Str("direction", dir.String()).Msg("connection pending")
	return c, true
}

// MarkActive attaches the remote stream. Only the first call for a Pending
// connection has effect.
func (r *Registry) MarkActive(remote domain.SessionID, stream core.RemoteStream) bool {
	if stream == nil {
		return false
	}
	r.mu.RLock()
	c, ok := r.conns[remote]
	r.mu.RUnlock()
	if !ok || !c.activate(stream) {
		return false
	}
	log.Info().Str("module", "app.peers").Str("remote", string(remote)).Str("direction", c.Direction.String()).Msg("connection active")
	return true
}

// Close removes the connection for remote. Unknown ids are a no-op.
func (r *Registry) Close(remote domain.SessionID) bool {
	r.mu.Lock()
	c, ok := r.conns[remote]
	if ok {
		delete(r.conns, remote)
	}
	observers := r.onClosed
	r.mu.Unlock()
	if !ok {
		return false
	}
	r.finish(c, observers)
	return true
}

// CloseAll empties the registry and returns how many connections were closed.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	all := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		all = append(all, c)
	}
	clear(r.conns)
	observers := r.onClosed
	r.mu.Unlock()

	for _, c := range all {
		r.finish(c, observers)
	}
	return len(all)
}

func (r *Registry) finish(c *Connection, observers []func(*Connection)) {
	if !c.close() {
		return
	}
	log.Info().Str("module", "app.peers").Str("remote", string(c.RemoteID)).Msg("connection closed")
	for _, fn := range observers {
		fn(c)
	}
}

// Current reports whether c is still the registered connection for its remote.
func (r *Registry) Current(c *Connection) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[c.RemoteID] == c
}

func (r *Registry) Get(remote domain.SessionID) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[remote]
	return c, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, Info{
			RemoteID:  c.RemoteID,
			Direction: c.Direction,
			Status:    c.Status(),
			CreatedAt: c.CreatedAt,
		})
	}
	return out
}
