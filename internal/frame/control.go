package frame

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ControlSize is the exact length of a control frame.
const ControlSize = 8

// Control is a decoded control frame. The meaning of the two values depends on
// the vehicle control mode: {speed target, steering percent} or
// {acceleration percent, steering percent}.
type Control struct {
	Value1 float32
	Value2 float32
}

// DecodeControl decodes an 8-byte control frame. It returns false, and the
// caller must take no action, for any other length. Values are carried
// bitwise, so NaN payloads survive unchanged.
func DecodeControl(b []byte) (Control, bool) {
	if len(b) != ControlSize {
		return Control{}, false
	}
	return Control{
		Value1: math.Float32frombits(binary.LittleEndian.Uint32(b[0:4])),
		Value2: math.Float32frombits(binary.LittleEndian.Uint32(b[4:8])),
	}, true
}

// ParseControl is DecodeControl with an error describing the rejected length.
func ParseControl(b []byte) (Control, error) {
	c, ok := DecodeControl(b)
	if !ok {
		return Control{}, fmt.Errorf("%w: control frame is %d bytes, want %d", ErrFraming, len(b), ControlSize)
	}
	return c, nil
}

// EncodeControl is the exact inverse of DecodeControl.
func EncodeControl(v1, v2 float32) []byte {
	return AppendControl(make([]byte, 0, ControlSize), v1, v2)
}

// AppendControl appends the encoded frame to dst.
func AppendControl(dst []byte, v1, v2 float32) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v1))
	return binary.LittleEndian.AppendUint32(dst, math.Float32bits(v2))
}
