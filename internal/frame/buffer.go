package frame

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
)

// Buffer is the live backing store of a telemetry frame. Writers update one
// region at a time; readers take whole-frame copies. A single RWMutex guards
// the bytes so no region can be observed half-written.
type Buffer struct {
	mu     sync.RWMutex
	layout Layout
	data   []byte
}

// NewBuffer returns an all-zero frame for layout.
func NewBuffer(layout Layout) *Buffer {
	return &Buffer{
		layout: layout,
		data:   make([]byte, layout.Size()),
	}
}

// Layout returns the layout the buffer was created with.
func (b *Buffer) Layout() Layout {
	return b.layout
}

// WriteRegion overwrites exactly the region owned by ch. It fails with a
// *LengthMismatchError when len(data) differs from the region length, leaving
// the frame untouched.
func (b *Buffer) WriteRegion(ch Channel, data []byte) error {
	r, ok := b.layout.Region(ch)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRegion, ch)
	}
	if len(data) != r.Length {
		return &LengthMismatchError{Channel: ch, Want: r.Length, Got: len(data)}
	}

	b.mu.Lock()
	copy(b.data[r.Offset:r.End()], data)
	b.mu.Unlock()
	return nil
}

// WriteFloat stores v little-endian into the 4-byte region owned by ch.
func (b *Buffer) WriteFloat(ch Channel, v float32) error {
	var raw [FloatBytes]byte
	binary.LittleEndian.PutUint32(raw[:], math.Float32bits(v))
	return b.WriteRegion(ch, raw[:])
}

// ReadFloat decodes the 4-byte region owned by ch.
func (b *Buffer) ReadFloat(ch Channel) (float32, error) {
	r, ok := b.layout.Region(ch)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownRegion, ch)
	}
	if r.Length != FloatBytes {
		return 0, &LengthMismatchError{Channel: ch, Want: FloatBytes, Got: r.Length}
	}

	b.mu.RLock()
	bits := binary.LittleEndian.Uint32(b.data[r.Offset:r.End()])
	b.mu.RUnlock()
	return math.Float32frombits(bits), nil
}

// Snapshot returns a copy of the whole frame. The copy is never written again
// by the buffer and can be shared read-only between goroutines.
func (b *Buffer) Snapshot() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}
