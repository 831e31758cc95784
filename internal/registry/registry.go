// Package registry tracks the peers currently connected to the telemetry server.
package registry

import (
	"sync"

	"github.com/google/uuid"
)

// Registry is a concurrency-safe set of peers keyed by id.
// Enumeration order is unspecified.
type Registry struct {
	mu    sync.RWMutex
	peers map[uuid.UUID]*Peer
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		peers: make(map[uuid.UUID]*Peer),
	}
}

// Add registers p.
func (r *Registry) Add(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[p.ID] = p
}

// Remove deregisters and closes the peer with the given id. Removing an absent
// peer is a no-op. It reports whether the peer was registered.
func (r *Registry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	p, ok := r.peers[id]
	delete(r.peers, id)
	r.mu.Unlock()

	if ok {
		_ = p.Close()
	}
	return ok
}

// ForEach calls fn for every registered peer. fn runs outside the registry
// lock and may call Remove.
func (r *Registry) ForEach(fn func(*Peer)) {
	for _, p := range r.list() {
		fn(p)
	}
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// CloseAll removes and closes every peer, then waits for their workers.
// It must not be called from a peer worker.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	peers := make([]*Peer, 0, len(r.peers))
	for id, p := range r.peers {
		peers = append(peers, p)
		delete(r.peers, id)
	}
	r.mu.Unlock()

	for _, p := range peers {
		_ = p.Close()
	}
	for _, p := range peers {
		p.Wait()
	}
}

func (r *Registry) list() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}
