package registry

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingConn counts Close calls on top of one end of a net.Pipe.
type countingConn struct {
	net.Conn
	closes atomic.Int32
}

func (c *countingConn) Close() error {
	c.closes.Add(1)
	return c.Conn.Close()
}

func newTestPeer(t *testing.T) (*Peer, *countingConn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })
	cc := &countingConn{Conn: server}
	return NewPeer(cc), cc
}

func TestRegistry_AddRemove(t *testing.T) {
	r := New()
	p, conn := newTestPeer(t)

	r.Add(p)
	assert.Equal(t, 1, r.Len())

	var seen []*Peer
	r.ForEach(func(q *Peer) { seen = append(seen, q) })
	require.Len(t, seen, 1)
	assert.Same(t, p, seen[0])

	assert.True(t, r.Remove(p.ID))
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, int32(1), conn.closes.Load())
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	r := New()
	p, conn := newTestPeer(t)
	r.Add(p)

	assert.True(t, r.Remove(p.ID))
	assert.False(t, r.Remove(p.ID))
	assert.False(t, r.Remove(uuid.New()))

	assert.Equal(t, int32(1), conn.closes.Load(), "socket must be closed exactly once")
}

func TestRegistry_ForEachAllowsRemove(t *testing.T) {
	r := New()
	for i := 0; i < 5; i++ {
		p, _ := newTestPeer(t)
		r.Add(p)
	}

	visited := 0
	r.ForEach(func(p *Peer) {
		visited++
		r.Remove(p.ID)
	})

	assert.Equal(t, 5, visited)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_CloseAllWaitsForWorkers(t *testing.T) {
	r := New()
	var finished atomic.Int32

	for i := 0; i < 3; i++ {
		p, _ := newTestPeer(t)
		r.Add(p)
		p.Go(func() {
			<-p.Done()
			time.Sleep(10 * time.Millisecond)
			finished.Add(1)
		})
	}

	r.CloseAll()
	assert.Equal(t, int32(3), finished.Load())
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_ConcurrentAddRemove(t *testing.T) {
	r := New()
	const n = 200

	peers := make([]*Peer, n)
	for i := range peers {
		peers[i], _ = newTestPeer(t)
	}

	var wg sync.WaitGroup
	for _, p := range peers {
		wg.Add(1)
		go func(p *Peer) {
			defer wg.Done()
			r.Add(p)
			r.Remove(p.ID)
			r.Remove(p.ID)
		}(p)
	}
	wg.Wait()

	assert.Equal(t, 0, r.Len())
}

func TestPeer_OfferReplacesPending(t *testing.T) {
	p, _ := newTestPeer(t)

	assert.False(t, p.Offer([]byte("first")))
	assert.True(t, p.Offer([]byte("second")))

	select {
	case got := <-p.Outbox():
		assert.Equal(t, []byte("second"), got)
	default:
		t.Fatal("expected a pending frame")
	}
}

func TestPeer_OfferAfterCloseIgnored(t *testing.T) {
	p, _ := newTestPeer(t)
	require.NoError(t, p.Close())

	p.Offer([]byte("late"))
	select {
	case <-p.Outbox():
		t.Fatal("closed peer must not queue frames")
	default:
	}
}

func TestPeer_CloseOnce(t *testing.T) {
	p, conn := newTestPeer(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Close()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), conn.closes.Load())
	select {
	case <-p.Done():
	default:
		t.Fatal("Done must be closed")
	}
}
