package run

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext_Default(t *testing.T) {
	ctx := NewContext()

	r := ctx.GetRun()
	assert.Equal(t, "No run started", r.Name)
	assert.False(t, ctx.Started())
	assert.Empty(t, ctx.RunID())
	assert.Zero(t, ctx.Peers())
}

func TestContext_SetRun(t *testing.T) {
	ctx := NewContext()
	r := New("lap-1", "practice")
	ctx.SetRun(r)

	assert.True(t, ctx.Started())
	assert.Same(t, r, ctx.GetRun())
	assert.Equal(t, r.ID, ctx.RunID())
}

func TestContext_TrackPeer(t *testing.T) {
	ctx := NewContext()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx.TrackPeer(true)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, ctx.Peers())

	for i := 0; i < 20; i++ {
		ctx.TrackPeer(false)
	}
	assert.Equal(t, 30, ctx.Peers())
}

func TestNew_UniqueIDs(t *testing.T) {
	a := New("a", "")
	b := New("a", "")
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "a", a.Name)
}
