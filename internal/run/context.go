// Package run tracks the recording session the simulator is currently in.
package run

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/wro-sim/simlink/pkg/core"
)

// Context holds the current run and the number of connected peers. It
// satisfies logging.Session.
type Context struct {
	mu    sync.RWMutex
	run   *core.Run
	peers atomic.Int64
}

// NewContext creates a new Context with no run started
func NewContext() *Context {
	return &Context{
		run: &core.Run{Name: "No run started"},
	}
}

// New returns an unstarted run with a fresh id.
func New(name, tag string) *core.Run {
	return &core.Run{
		ID:   uuid.NewString(),
		Name: name,
		Tag:  tag,
	}
}

// GetRun returns the current run
func (c *Context) GetRun() *core.Run {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.run
}

// SetRun sets the current run
func (c *Context) SetRun(r *core.Run) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.run = r
}

// Started reports whether SetRun has been called with an identified run.
func (c *Context) Started() bool {
	return c.GetRun().ID != ""
}

// RunID returns the current run id, or "" before a run has started.
func (c *Context) RunID() string {
	return c.GetRun().ID
}

// TrackPeer counts a peer joining or leaving.
func (c *Context) TrackPeer(connected bool) {
	if connected {
		c.peers.Add(1)
	} else {
		c.peers.Add(-1)
	}
}

// Peers returns the number of peers tracked as connected.
func (c *Context) Peers() int {
	return int(c.peers.Load())
}
